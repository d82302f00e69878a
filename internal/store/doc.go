// Package store provides SQLite-backed persistence for run ledgers.
//
// Tables:
//   - runs: one row per execution, with its final summary
//   - transactions: the append-only transaction records of each run
//   - failures: entities that failed in each run
//   - run_issues: per-entity issues of continue-on-error migrations
//   - id_map: the source-to-target ID map of each migration
//
// Writes are idempotent: re-inserting a record with the same content ID is
// a no-op (ON CONFLICT DO NOTHING). Reads order by seq, then id, and
// return empty slices rather than nil.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
