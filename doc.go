// Package botstate provides pluggable state storage for conversational bots.
//
// # Overview
//
// Bots persist conversation and user state as arbitrary JSON-shaped blobs
// keyed by string identifiers. BotState provides a small, backend-agnostic
// contract for that persistence plus production backends:
//
//	┌─────────────────────────────────────┐
//	│        Bot / dialog framework       │  reads and writes state blobs
//	└─────────────────────────────────────┘
//	           ↓ storage.Store
//	┌─────────────────────────────────────┐
//	│   storage.MemoryStore (dev/test)    │
//	│   docstore.Store (document store)   │  optimistic concurrency via
//	└─────────────────────────────────────┘  per-record version tags
//	           ↓ docstore.DocumentClient
//	┌─────────────────────────────────────┐
//	│     natsdoc.Client (JetStream KV)   │  lazy, idempotent provisioning
//	└─────────────────────────────────────┘
//
// # Packages
//
//   - storage: the Store contract, StoreItem values, key escaping, an
//     in-memory backend, and a conflict-retry helper.
//   - docstore: the keyed optimistic-concurrency store over a caller-supplied
//     document client, with lazy resource provisioning and Prometheus metrics.
//   - natsdoc: DocumentClient backed by NATS JetStream KV buckets.
//   - errors: the shared error taxonomy (configuration, schema mismatch,
//     concurrency conflict, per-operation wrapping).
//   - pkg/retry: exponential backoff used by the opt-in retry helpers.
//
// # Concurrency Model
//
// Every stored record carries an opaque version tag minted by the backend.
// Writes that supply a tag are conditional: they succeed only if the stored
// record still carries that exact tag, otherwise they fail with a concurrency
// conflict the caller recovers from by re-reading and retrying. Writes without
// a tag, or with the wildcard "*", overwrite unconditionally. The store never
// retries on its own; storage.WriteWithRetry implements the re-read loop for
// callers that want it.
package botstate
