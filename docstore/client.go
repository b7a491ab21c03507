package docstore

import "context"

// DocumentClient is the backend a Store composes with. Implementations bind
// the store to a concrete document service (see the natsdoc package).
//
// Error contract: implementations classify failures with the sentinels in
// the errors package. ErrKeyNotFound for point operations against absent
// records, ErrConcurrencyConflict for conditional replaces whose token no
// longer matches (including replaces of absent records), and
// ErrSchemaMismatch when a collection's recorded partition scheme disagrees
// with the one requested. Everything else is surfaced as-is for the store
// to wrap.
//
// The partition value is part of record identity: operations scoped to one
// partition must never observe or disturb records stored under another,
// even for the same key.
//
// EnsureDatabase and EnsureCollection are idempotent: "already exists" is
// success, and concurrent creation races must be tolerated. The store calls
// them before every data operation, so implementations may rely on
// EnsureCollection having run before data operations on a collection.
type DocumentClient interface {
	// EnsureDatabase creates the database if it does not exist.
	EnsureDatabase(ctx context.Context, databaseID string, opts ResourceOptions) error

	// EnsureCollection creates the collection if it does not exist,
	// recording partitionField (normalized, separator-free; empty for
	// unpartitioned) as its partition scheme.
	EnsureCollection(ctx context.Context, databaseID, collectionID, partitionField string, opts ResourceOptions) error

	// ReadRecords fetches the records stored under sanitizedKeys, scoped to
	// partitionValue. Absent keys are omitted, not errors. Returned records
	// carry their current version tokens.
	ReadRecords(ctx context.Context, databaseID, collectionID string, sanitizedKeys []string, partitionValue string) ([]Record, error)

	// UpsertRecord inserts or replaces rec unconditionally and returns the
	// new version token.
	UpsertRecord(ctx context.Context, databaseID, collectionID string, rec Record) (string, error)

	// ReplaceRecord replaces rec only if the stored record's current token
	// equals ifMatch, returning the new token.
	ReplaceRecord(ctx context.Context, databaseID, collectionID string, rec Record, ifMatch string) (string, error)

	// DeleteRecord removes the record under sanitizedKey. Implementations
	// may return ErrKeyNotFound for absent records; the store absorbs it.
	DeleteRecord(ctx context.Context, databaseID, collectionID, sanitizedKey, partitionValue string) error
}
