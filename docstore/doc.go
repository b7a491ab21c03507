// Package docstore implements the keyed optimistic-concurrency store over an
// external document store.
//
// # Overview
//
// A Store persists storage.StoreItem values under string keys as enveloped
// records in a database/collection pair owned by a DocumentClient. Each
// stored record carries a backend-minted version token surfaced to callers
// as the item's version tag; tagged writes are conditional replaces, so
// concurrent writers detect lost updates instead of silently overwriting
// each other.
//
// # Resource Lifecycle
//
// The backing database and collection are created lazily on first use, once
// per Store instance, via create-if-not-exists calls that treat "already
// exists" as success. Concurrent first-use from multiple stores pointed at
// the same resources is therefore safe. A partition configuration that
// disagrees with the collection's actual scheme surfaces as
// errors.ErrSchemaMismatch so setup problems are distinguishable from
// transport failures.
//
// # Batch Semantics
//
// Read issues one batched lookup; keys with no record are absent from the
// result. Write and Delete fan out per key, await every sub-operation, and
// collect all per-key failures into the returned error. There is no
// cross-key atomicity and no rollback of keys that succeeded; the store
// performs no automatic retries.
//
// # Usage
//
//	client, _ := natsdoc.New("nats://localhost:4222")
//	store, err := docstore.New(client, docstore.Config{
//	    ServiceEndpoint: "nats://localhost:4222",
//	    AuthToken:       token,
//	    DatabaseID:      "botstate",
//	    CollectionID:    "conversations",
//	})
//	if err != nil {
//	    return err
//	}
//
//	items, err := store.Read(ctx, []string{"conversation/42"})
package docstore
