// Package replicate keeps a local store synchronized with a remote peer.
//
// A Coordinator runs exchange passes between the local store and a Peer.
// Each pass pulls remote changes after the pull checkpoint, applying them
// and the new checkpoint in one local transaction, then pushes local changes
// after the push checkpoint and records the push checkpoint once the peer
// has answered. Replaying a pass is harmless: revisions a side already knows
// are skipped.
//
// Lifecycle:
//
//	Idle -> Connecting -> Active <-> Paused
//	            ^           |
//	            |           v
//	            +------- Error (wait backoff, Retry only)
//
// Every state can reach Stopped. Per-document rejections by the peer are
// reported as Denied events without leaving the current state.
//
// Failed attempts wait Backoff(base, cap) before reconnecting: base, then
// double the previous delay, never more than cap. The delay resets after
// every successful connect.
//
// Observers receive events through an unbounded outbox drained by one
// goroutine, so a slow observer never stalls replication.
package replicate
