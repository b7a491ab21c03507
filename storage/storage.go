// Package storage provides the pluggable backend contract for bot state
// persistence.
package storage

import (
	"context"

	json "github.com/goccy/go-json"
)

// VersionTagField is the reserved field carrying a StoreItem's version tag.
// The tag is metadata: backends strip it from the persisted payload and
// re-attach the backing store's current token on read.
const VersionTagField = "versionTag"

// VersionTagAny is the wildcard tag: write unconditionally, ignoring any
// stored version.
const VersionTagAny = "*"

// StoreItem is a JSON-shaped state blob: arbitrary fields plus an optional
// version tag under VersionTagField.
type StoreItem map[string]any

// VersionTag returns the item's version tag and whether one is present.
// A present but non-string value is reported as present with an empty tag,
// which conditional writes reject as caller misuse.
func (it StoreItem) VersionTag() (string, bool) {
	v, ok := it[VersionTagField]
	if !ok {
		return "", false
	}
	tag, _ := v.(string)
	return tag, true
}

// SetVersionTag sets the item's version tag in place.
func (it StoreItem) SetVersionTag(tag string) {
	it[VersionTagField] = tag
}

// Clone returns a deep copy of the item via a JSON round-trip, so stored
// state never aliases caller-held maps.
func (it StoreItem) Clone() (StoreItem, error) {
	if it == nil {
		return StoreItem{}, nil
	}
	data, err := json.Marshal(it)
	if err != nil {
		return nil, err
	}
	var out StoreItem
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = StoreItem{}
	}
	return out, nil
}

// Payload returns a deep copy of the item with the version tag stripped.
func (it StoreItem) Payload() (StoreItem, error) {
	out, err := it.Clone()
	if err != nil {
		return nil, err
	}
	delete(out, VersionTagField)
	return out, nil
}

// Store is the pluggable backend interface for keyed state persistence.
//
// Keys are arbitrary strings; backends escape them to storage-safe
// identifiers (see EscapeKey) and carry the original alongside the record.
// Values are StoreItems. Per-record version tags provide the only
// concurrency control: there is no locking and no cross-key atomicity.
//
// Batch semantics:
//   - Read returns a mapping keyed by the original keys. Keys with no
//     stored record are simply absent from the result.
//   - Write applies each change independently. A version-tagged change is a
//     conditional replace; an untagged or wildcard-tagged change is an
//     unconditional upsert. Failure of one key does not prevent attempts on
//     the others and does not roll back keys that succeeded.
//   - Delete is idempotent per key: deleting an absent key is success.
//   - Empty inputs are no-ops that never touch the backend.
//
// All implementations must be safe for concurrent use from multiple
// goroutines.
type Store interface {
	// Read fetches the items stored under keys.
	Read(ctx context.Context, keys []string) (map[string]StoreItem, error)

	// Write persists each change under its key.
	Write(ctx context.Context, changes map[string]StoreItem) error

	// Delete removes the records stored under keys.
	Delete(ctx context.Context, keys []string) error
}
