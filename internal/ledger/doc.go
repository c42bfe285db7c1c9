// Package ledger is the durable key-value state behind every balance and
// record the settlement engine keeps: the employer tax ledger, the payroll
// ledger, the trust pool ledger and their supporting registries.
//
// Backends implement Storage and are interchangeable:
//   - MemoryStore: in-process, for tests and single-node development.
//   - SQLiteStore: single-node durable storage.
//   - PostgresStore: shared durable storage; per-key advisory locks.
//   - RedisStore: shared storage with optimistic WATCH/MULTI updates.
//
// Store layers typed accessors and per-key locking over a backend so that
// read-modify-write sequences on one subject are atomic while different
// subjects never contend.
package ledger
