package storage

import (
	"context"
	stderrors "errors"
	"strconv"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/c360/botstate/errors"
)

// memoryEntry holds a stored payload (version tag stripped) and the tag
// minted for it.
type memoryEntry struct {
	data []byte
	tag  string
}

// MemoryStore is an in-memory Store for development and tests.
//
// It implements the full concurrency contract: monotonic version tags,
// conditional replace on tagged writes, wildcard overwrite, and idempotent
// delete. Payloads are kept as marshaled JSON so callers never share memory
// with the store. Safe for concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]memoryEntry
	etag  uint64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]memoryEntry)}
}

var _ Store = (*MemoryStore)(nil)

// Read fetches the items stored under keys. Absent keys are omitted from
// the result.
func (m *MemoryStore) Read(ctx context.Context, keys []string) (map[string]StoreItem, error) {
	result := make(map[string]StoreItem, len(keys))
	if len(keys) == 0 {
		return result, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.WrapRead("", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, key := range keys {
		if key == "" {
			return nil, errors.WrapRead(key, errors.ErrEmptyKey)
		}
		entry, ok := m.items[key]
		if !ok {
			continue
		}
		var item StoreItem
		if err := json.Unmarshal(entry.data, &item); err != nil {
			return nil, errors.WrapRead(key, err)
		}
		if item == nil {
			item = StoreItem{}
		}
		item.SetVersionTag(entry.tag)
		result[key] = item
	}
	return result, nil
}

// Write persists each change independently, collecting per-key failures.
func (m *MemoryStore) Write(ctx context.Context, changes map[string]StoreItem) error {
	if len(changes) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return errors.WrapWrite("", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for key, item := range changes {
		if err := m.writeOne(key, item); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

func (m *MemoryStore) writeOne(key string, item StoreItem) error {
	if key == "" {
		return errors.WrapWrite(key, errors.ErrEmptyKey)
	}

	tag, present := item.VersionTag()
	if present && tag == "" {
		return errors.WrapWrite(key, errors.ErrInvalidVersionTag)
	}

	current, exists := m.items[key]
	if present && tag != VersionTagAny {
		if !exists || current.tag != tag {
			return errors.WrapWrite(key, errors.ErrConcurrencyConflict)
		}
	}

	payload, err := item.Payload()
	if err != nil {
		return errors.WrapWrite(key, err)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.WrapWrite(key, err)
	}

	m.etag++
	m.items[key] = memoryEntry{data: data, tag: strconv.FormatUint(m.etag, 10)}
	return nil
}

// Delete removes the records stored under keys. Absent keys are ignored.
func (m *MemoryStore) Delete(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return errors.WrapDelete("", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range keys {
		if key == "" {
			return errors.WrapDelete(key, errors.ErrEmptyKey)
		}
		delete(m.items, key)
	}
	return nil
}

// Len reports the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
