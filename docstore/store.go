package docstore

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/botstate/errors"
	"github.com/c360/botstate/storage"
)

// Store persists StoreItems as enveloped records through a DocumentClient,
// with per-record optimistic concurrency. Safe for concurrent use.
type Store struct {
	cfg     Config
	client  DocumentClient
	logger  *slog.Logger
	metrics *storeMetrics

	// Lazy resource handles, materialized on first use.
	mu        sync.Mutex
	dbReady   bool
	collReady bool
}

var _ storage.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store) error

// WithLogger sets the store's logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) error {
		if logger != nil {
			s.logger = logger
		}
		return nil
	}
}

// WithMetrics registers the store's Prometheus metrics with registry.
func WithMetrics(registry prometheus.Registerer) Option {
	return func(s *Store) error {
		m, err := newStoreMetrics(registry, s.cfg.DatabaseID, s.cfg.CollectionID)
		if err != nil {
			return err
		}
		s.metrics = m
		return nil
	}
}

// New validates cfg and creates a store over client. No network call is made
// until the first read, write, or delete.
func New(client DocumentClient, cfg Config, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, errors.Configf("document client cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Store{
		cfg:    cfg,
		client: client,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// ensureProvisioned lazily creates the backing database and collection,
// once per store instance. Both creates are idempotent; "already exists"
// races are tolerated by the client. A partition scheme disagreement
// surfaces as ErrSchemaMismatch.
func (s *Store) ensureProvisioned(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dbReady {
		if err := s.client.EnsureDatabase(ctx, s.cfg.DatabaseID, s.cfg.DatabaseOptions); err != nil {
			return err
		}
		s.dbReady = true
		s.logger.Debug("database ensured", "database", s.cfg.DatabaseID)
	}

	if !s.collReady {
		err := s.client.EnsureCollection(ctx, s.cfg.DatabaseID, s.cfg.CollectionID,
			s.cfg.partitionFieldName(), s.cfg.CollectionOptions)
		if err != nil {
			return err
		}
		s.collReady = true
		s.logger.Debug("collection ensured",
			"database", s.cfg.DatabaseID,
			"collection", s.cfg.CollectionID,
			"partition_field", s.cfg.partitionFieldName())
	}

	return nil
}

// Read fetches the items stored under keys in a single batched lookup.
// Keys with no stored record are absent from the result.
func (s *Store) Read(ctx context.Context, keys []string) (map[string]storage.StoreItem, error) {
	result := make(map[string]storage.StoreItem, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	start := time.Now()
	defer func() { s.metrics.observeReadLatency(time.Since(start).Seconds()) }()
	s.metrics.incRead()

	sanitized := make([]string, 0, len(keys))
	for _, key := range keys {
		if key == "" {
			s.metrics.incError("read")
			return nil, errors.WrapRead(key, errors.ErrEmptyKey)
		}
		sanitized = append(sanitized, storage.EscapeKey(key))
	}

	if err := s.ensureProvisioned(ctx); err != nil {
		s.metrics.incError("read")
		if errors.IsSchemaMismatch(err) {
			return nil, err
		}
		return nil, errors.WrapRead("", err)
	}

	records, err := s.client.ReadRecords(ctx, s.cfg.DatabaseID, s.cfg.CollectionID, sanitized, s.cfg.PartitionValue)
	if err != nil {
		s.metrics.incError("read")
		if errors.IsSchemaMismatch(err) {
			return nil, err
		}
		return nil, errors.WrapRead("", err)
	}

	for _, rec := range records {
		item := storage.StoreItem(rec.Payload)
		if item == nil {
			item = storage.StoreItem{}
		}
		item.SetVersionTag(rec.VersionToken)
		result[rec.OriginalKey] = item
	}
	return result, nil
}

// Write persists each change independently: untagged and wildcard-tagged
// items upsert, tagged items replace conditionally. All sub-operations are
// awaited and every per-key failure is collected into the returned error.
func (s *Store) Write(ctx context.Context, changes map[string]storage.StoreItem) error {
	if len(changes) == 0 {
		return nil
	}

	start := time.Now()
	defer func() { s.metrics.observeWriteLatency(time.Since(start).Seconds()) }()
	s.metrics.incWrite()

	if err := s.ensureProvisioned(ctx); err != nil {
		s.metrics.incError("write")
		if errors.IsSchemaMismatch(err) {
			return err
		}
		return errors.WrapWrite("", err)
	}

	// Stable order keeps collected errors deterministic.
	keys := make([]string, 0, len(changes))
	for key := range changes {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	outcomes := make([]error, len(keys))
	var wg sync.WaitGroup
	for i, key := range keys {
		wg.Add(1)
		go func(i int, key string, item storage.StoreItem) {
			defer wg.Done()
			outcomes[i] = s.writeOne(ctx, key, item)
		}(i, key, changes[key])
	}
	wg.Wait()

	var errs []error
	for _, err := range outcomes {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

func (s *Store) writeOne(ctx context.Context, key string, item storage.StoreItem) error {
	if key == "" {
		s.metrics.incError("write")
		return errors.WrapWrite(key, errors.ErrEmptyKey)
	}

	tag, present := item.VersionTag()
	if present && tag == "" {
		s.metrics.incError("write")
		return errors.WrapWrite(key, errors.ErrInvalidVersionTag)
	}

	payload, err := item.Payload()
	if err != nil {
		s.metrics.incError("write")
		return errors.WrapWrite(key, err)
	}

	rec := Record{
		SanitizedKey:   storage.EscapeKey(key),
		OriginalKey:    key,
		Payload:        payload,
		PartitionValue: s.cfg.PartitionValue,
	}

	if !present || tag == storage.VersionTagAny {
		_, err = s.client.UpsertRecord(ctx, s.cfg.DatabaseID, s.cfg.CollectionID, rec)
	} else {
		_, err = s.client.ReplaceRecord(ctx, s.cfg.DatabaseID, s.cfg.CollectionID, rec, tag)
	}
	if err != nil {
		if errors.IsConflict(err) {
			s.metrics.incConflict()
			s.logger.Debug("conditional write rejected", "key", key, "tag", tag)
		} else {
			s.metrics.incError("write")
		}
		return errors.WrapWrite(key, err)
	}
	return nil
}

// Delete removes the records stored under keys. Absent keys are success.
// Sub-operations fan out per key like Write.
func (s *Store) Delete(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	start := time.Now()
	defer func() { s.metrics.observeDeleteLatency(time.Since(start).Seconds()) }()
	s.metrics.incDelete()

	if err := s.ensureProvisioned(ctx); err != nil {
		s.metrics.incError("delete")
		if errors.IsSchemaMismatch(err) {
			return err
		}
		return errors.WrapDelete("", err)
	}

	outcomes := make([]error, len(keys))
	var wg sync.WaitGroup
	for i, key := range keys {
		wg.Add(1)
		go func(i int, key string) {
			defer wg.Done()
			outcomes[i] = s.deleteOne(ctx, key)
		}(i, key)
	}
	wg.Wait()

	var errs []error
	for _, err := range outcomes {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

func (s *Store) deleteOne(ctx context.Context, key string) error {
	if key == "" {
		s.metrics.incError("delete")
		return errors.WrapDelete(key, errors.ErrEmptyKey)
	}

	err := s.client.DeleteRecord(ctx, s.cfg.DatabaseID, s.cfg.CollectionID,
		storage.EscapeKey(key), s.cfg.PartitionValue)
	if err != nil && !errors.IsNotFound(err) {
		s.metrics.incError("delete")
		return errors.WrapDelete(key, err)
	}
	return nil
}
