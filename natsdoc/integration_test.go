//go:build integration

package natsdoc_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/botstate/docstore"
	"github.com/c360/botstate/errors"
	"github.com/c360/botstate/natsdoc"
	"github.com/c360/botstate/pkg/retry"
	"github.com/c360/botstate/storage"
)

// Package-level shared test server to avoid Docker resource exhaustion
var sharedServer *natsdoc.TestServer

// TestMain sets up a single shared NATS container for all backend tests
func TestMain(m *testing.M) {
	if os.Getenv("INTEGRATION_TESTS") != "" {
		server, err := natsdoc.NewSharedTestServer(
			natsdoc.WithStartTimeout(30 * time.Second),
		)
		if err != nil {
			panic("Failed to create shared test server: " + err.Error())
		}
		sharedServer = server
	}

	exitCode := m.Run()

	if sharedServer != nil {
		sharedServer.Cleanup()
	}

	os.Exit(exitCode)
}

func requireServer(t *testing.T) *natsdoc.TestServer {
	t.Helper()
	if sharedServer == nil {
		t.Skip("Skipping integration test: INTEGRATION_TESTS not set")
	}
	return sharedServer
}

// newStore provisions a store on its own database so tests stay isolated.
func newStore(t *testing.T, database, collection string) *docstore.Store {
	t.Helper()
	server := requireServer(t)

	store, err := natsdoc.Open(docstore.Config{
		ServiceEndpoint: server.URL,
		AuthToken:       server.Token,
		DatabaseID:      database,
		CollectionID:    collection,
	})
	require.NoError(t, err)
	return store
}

func TestIntegration_ReadWriteRoundTrip(t *testing.T) {
	store := newStore(t, "it-roundtrip", "state")
	ctx := context.Background()

	t.Run("missing keys are omitted", func(t *testing.T) {
		items, err := store.Read(ctx, []string{"nobody"})
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("write then read returns value with token", func(t *testing.T) {
		err := store.Write(ctx, map[string]storage.StoreItem{
			"user1": {"count": float64(1)},
		})
		require.NoError(t, err)

		items, err := store.Read(ctx, []string{"user1"})
		require.NoError(t, err)
		require.Contains(t, items, "user1")

		tag, ok := items["user1"].VersionTag()
		assert.True(t, ok)
		assert.NotEmpty(t, tag)
		assert.Equal(t, float64(1), items["user1"]["count"])
	})

	t.Run("tagged write-back succeeds and rotates token", func(t *testing.T) {
		items, err := store.Read(ctx, []string{"user1"})
		require.NoError(t, err)
		before, _ := items["user1"].VersionTag()

		items["user1"]["count"] = float64(2)
		require.NoError(t, store.Write(ctx, map[string]storage.StoreItem{"user1": items["user1"]}))

		items, err = store.Read(ctx, []string{"user1"})
		require.NoError(t, err)
		after, _ := items["user1"].VersionTag()
		assert.NotEqual(t, before, after)
		assert.Equal(t, float64(2), items["user1"]["count"])
	})
}

func TestIntegration_ConcurrencyConflict(t *testing.T) {
	store := newStore(t, "it-conflict", "state")
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, map[string]storage.StoreItem{
		"doc": {"v": "original"},
	}))

	items, err := store.Read(ctx, []string{"doc"})
	require.NoError(t, err)
	stale := items["doc"]

	// Another writer moves the record forward.
	fresh, err := stale.Clone()
	require.NoError(t, err)
	fresh["v"] = "winner"
	require.NoError(t, store.Write(ctx, map[string]storage.StoreItem{"doc": fresh}))

	// The stale tag must now be rejected and the winner's value kept.
	stale["v"] = "loser"
	err = store.Write(ctx, map[string]storage.StoreItem{"doc": stale})
	require.Error(t, err)
	assert.True(t, errors.IsConflict(err))

	items, err = store.Read(ctx, []string{"doc"})
	require.NoError(t, err)
	assert.Equal(t, "winner", items["doc"]["v"])
}

func TestIntegration_WildcardOverwrites(t *testing.T) {
	store := newStore(t, "it-wildcard", "state")
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, map[string]storage.StoreItem{
		"doc": {"v": "first"},
	}))

	forced := storage.StoreItem{"v": "forced"}
	forced.SetVersionTag(storage.VersionTagAny)
	require.NoError(t, store.Write(ctx, map[string]storage.StoreItem{"doc": forced}))

	items, err := store.Read(ctx, []string{"doc"})
	require.NoError(t, err)
	assert.Equal(t, "forced", items["doc"]["v"])
}

func TestIntegration_DeleteIdempotent(t *testing.T) {
	store := newStore(t, "it-delete", "state")
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, map[string]storage.StoreItem{
		"gone": {"v": "x"},
	}))

	require.NoError(t, store.Delete(ctx, []string{"gone"}))
	require.NoError(t, store.Delete(ctx, []string{"gone", "never-existed"}))

	items, err := store.Read(ctx, []string{"gone"})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestIntegration_SpecialCharacterKeys(t *testing.T) {
	store := newStore(t, "it-escape", "state")
	ctx := context.Background()

	keys := []string{
		"conversation/user@example.com",
		"a?b#c*d",
		"plain_key-1",
	}
	batch := make(map[string]storage.StoreItem, len(keys))
	for i, key := range keys {
		batch[key] = storage.StoreItem{"index": float64(i)}
	}
	require.NoError(t, store.Write(ctx, batch))

	items, err := store.Read(ctx, keys)
	require.NoError(t, err)
	require.Len(t, items, len(keys))
	for i, key := range keys {
		assert.Equal(t, float64(i), items[key]["index"], "key %q", key)
	}
}

func TestIntegration_SchemaMismatch(t *testing.T) {
	server := requireServer(t)
	ctx := context.Background()

	first, err := natsdoc.Open(docstore.Config{
		ServiceEndpoint: server.URL,
		AuthToken:       server.Token,
		DatabaseID:      "it-schema",
		CollectionID:    "shared",
		PartitionField:  "/tenant",
		PartitionValue:  "t1",
	})
	require.NoError(t, err)
	require.NoError(t, first.Write(ctx, map[string]storage.StoreItem{"k": {"v": "x"}}))

	second, err := natsdoc.Open(docstore.Config{
		ServiceEndpoint: server.URL,
		AuthToken:       server.Token,
		DatabaseID:      "it-schema",
		CollectionID:    "shared",
		PartitionField:  "/region",
		PartitionValue:  "eu",
	})
	require.NoError(t, err)

	err = second.Write(ctx, map[string]storage.StoreItem{"k": {"v": "y"}})
	require.Error(t, err)
	assert.True(t, errors.IsSchemaMismatch(err))
}

func TestIntegration_PartitionScoping(t *testing.T) {
	server := requireServer(t)
	ctx := context.Background()

	open := func(tenant string) *docstore.Store {
		store, err := natsdoc.Open(docstore.Config{
			ServiceEndpoint: server.URL,
			AuthToken:       server.Token,
			DatabaseID:      "it-partition",
			CollectionID:    "state",
			PartitionField:  "/tenant",
			PartitionValue:  tenant,
		})
		require.NoError(t, err)
		return store
	}

	alpha := open("alpha")
	beta := open("beta")

	require.NoError(t, alpha.Write(ctx, map[string]storage.StoreItem{"shared-key": {"owner": "alpha"}}))

	// The other partition cannot see alpha's record.
	items, err := beta.Read(ctx, []string{"shared-key"})
	require.NoError(t, err)
	assert.Empty(t, items)

	// Nor can it clobber the record by writing the same key.
	require.NoError(t, beta.Write(ctx, map[string]storage.StoreItem{"shared-key": {"owner": "beta"}}))

	items, err = alpha.Read(ctx, []string{"shared-key"})
	require.NoError(t, err)
	require.Contains(t, items, "shared-key")
	assert.Equal(t, "alpha", items["shared-key"]["owner"])

	// Nor remove it by deleting the same key.
	require.NoError(t, beta.Delete(ctx, []string{"shared-key"}))

	items, err = alpha.Read(ctx, []string{"shared-key"})
	require.NoError(t, err)
	require.Contains(t, items, "shared-key")
	assert.Equal(t, "alpha", items["shared-key"]["owner"])

	// Each partition still controls its own copy.
	items, err = beta.Read(ctx, []string{"shared-key"})
	require.NoError(t, err)
	assert.NotContains(t, items, "shared-key")
}

func TestIntegration_ConcurrentProvisioning(t *testing.T) {
	server := requireServer(t)
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	errCh := make(chan error, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			store, err := natsdoc.Open(docstore.Config{
				ServiceEndpoint: server.URL,
				AuthToken:       server.Token,
				DatabaseID:      "it-provision",
				CollectionID:    "state",
			})
			if err != nil {
				errCh <- err
				return
			}
			errCh <- store.Write(ctx, map[string]storage.StoreItem{
				fmt.Sprintf("writer-%d", i): {"ok": true},
			})
		}(i)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		assert.NoError(t, err)
	}
}

func TestIntegration_WriteWithRetry(t *testing.T) {
	store := newStore(t, "it-retry", "state")
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, map[string]storage.StoreItem{
		"counter": {"n": float64(0)},
	}))

	const writers = 5
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := storage.WriteWithRetry(ctx, store, retry.Config{
				MaxAttempts:  20,
				InitialDelay: 5 * time.Millisecond,
				MaxDelay:     50 * time.Millisecond,
				Multiplier:   2.0,
			}, "counter", func(item storage.StoreItem) (storage.StoreItem, error) {
				item["n"] = item["n"].(float64) + 1
				return item, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	items, err := store.Read(ctx, []string{"counter"})
	require.NoError(t, err)
	assert.Equal(t, float64(writers), items["counter"]["n"])
}
