package storage

import (
	"context"

	"github.com/c360/botstate/errors"
	"github.com/c360/botstate/pkg/retry"
)

// WriteWithRetry applies mutate to the current value of key and writes the
// result conditionally, retrying the whole read-mutate-write cycle on
// concurrency conflicts with exponential backoff.
//
// mutate receives the stored item with its version tag set, or an empty item
// when the key is absent, and returns the item to store. The returned item's
// version tag is carried into the write, so the write only succeeds against
// the revision that was read. Stores never retry on their own; this helper is
// the explicit opt-in recovery loop.
func WriteWithRetry(ctx context.Context, store Store, cfg retry.Config, key string,
	mutate func(current StoreItem) (StoreItem, error)) error {

	return retry.Do(ctx, cfg, func() error {
		result, err := store.Read(ctx, []string{key})
		if err != nil {
			return retry.NonRetryable(err)
		}

		current, ok := result[key]
		if !ok {
			current = StoreItem{}
		}

		updated, err := mutate(current)
		if err != nil {
			return retry.NonRetryable(err)
		}
		if updated == nil {
			updated = StoreItem{}
		}

		// Keep the write conditional on what was read. A fresh key writes
		// untagged, so concurrent first-writes are last-writer-wins.
		if tag, present := current.VersionTag(); ok && present {
			updated.SetVersionTag(tag)
		} else {
			delete(updated, VersionTagField)
		}

		err = store.Write(ctx, map[string]StoreItem{key: updated})
		if err == nil {
			return nil
		}
		if errors.IsConflict(err) {
			return err
		}
		return retry.NonRetryable(err)
	})
}
