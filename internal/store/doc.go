// Package store provides the SQLite-backed record store behind live queries.
//
// The store keeps typed records for declared entity kinds and an append-only
// change log:
//   - entities: declared kinds and their field types
//   - records: current state, fields stored as canonical JSON
//   - changes: one row per committed write, keyed by an AUTOINCREMENT seq
//
// # Contexts
//
// A Context is the handle a live query works against. It fetches records,
// registers change subscriptions and queues notifications for the writes the
// store commits. Notifications are never delivered from inside a write:
// the owner of a Context drains its queue with ProcessPendingChanges (or
// Run), so subscription callbacks execute on the owner's goroutine strictly
// after the triggering transaction has committed.
//
// Several changes to the same entity kind drained together wake each
// matching subscription once.
//
// # External writers
//
// Other processes may write to the same database file. WatchExternal watches
// the file and its WAL with fsnotify and republishes changes it has not seen
// yet, so contexts in this process are notified of those commits too.
//
// # Deterministic Query Results
//
// Fetch always ends ORDER BY with seq ASC, id ASC COLLATE BINARY after the
// requested sort keys, so ties and unordered queries come back in a stable
// order.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait up to 5s for locks
//   - foreign_keys=ON: Records must belong to a declared entity
package store
