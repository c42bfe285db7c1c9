// Package audit implements the append-only, hash-chained log of settlement
// decisions and domain events.
//
// The chain begins with a well-known genesis entry whose Hash equals
// GenesisHash (64 hex zeros). Every later entry records the hash of its
// predecessor, so any rewrite of history is detected by Verify.
//
// Two implementations of Log are provided:
//   - MemoryLog: in-process, for tests and development.
//   - PostgresLog: durable, for production use.
//
// S3Exporter copies verified ranges of the log to object storage as JSON
// lines for offline replay.
package audit
