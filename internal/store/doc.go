// Package store provides the SQLite-backed document store for todosync.
//
// The store keeps:
//   - Records: the current revision of every task, tombstones included
//   - Changes: an append-only log assigning each committed mutation a sequence
//   - Conflicts: losing revisions retained as recorded alternates
//   - Checkpoints: per remote endpoint and direction, the last confirmed sequence
//
// # Compare-and-swap
//
// Every write, local or replicated, names the revision it expects to replace.
// The UPDATE is qualified by (id, gen, tag), so at most one writer wins per
// record per attempt; the loser gets a *ConflictError carrying the current
// revision.
//
// # Sequence
//
// changes.seq is an AUTOINCREMENT key inserted in the same transaction as the
// record write, so a sequence value exists if and only if its mutation
// committed. Ordering never uses wall-clock time.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - Single connection: transactions are serialized
package store
