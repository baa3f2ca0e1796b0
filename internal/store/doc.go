// Package store provides SQLite-backed durable storage for normalization
// runs.
//
// A run record pins everything needed to reproduce a normalization: the
// canonical input graph and its content hash, the catalog hash it ran
// against, the engine and IR versions, and the outcome (result graph,
// diagnostics, iteration count, convergence).
//
// # Critical Patterns
//
// Runs are identified by UUIDv7 and written with ON CONFLICT(id) DO
// NOTHING, so re-recording a run is idempotent.
//
// All ordering uses seq INTEGER (insertion order), never timestamps, and
// every list query ends with ORDER BY seq ASC, id ASC COLLATE BINARY so
// results are identical across replays.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
//
// Content hashes are computed in internal/ir/hash.go using RFC 8785
// canonical JSON and SHA-256 with domain separation.
package store
