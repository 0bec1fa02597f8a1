// Package feed delivers the store's change log as an ordered stream.
//
// A Subscription yields one doc.Event per committed mutation, in
// non-decreasing sequence order. Subscriptions are at-least-once: a consumer
// that records Cursor and later subscribes again from it sees every mutation
// committed after that sequence, with no gaps.
//
// Non-live subscriptions close their channel once they have caught up with
// the log. Live subscriptions keep waiting on the store's commit signal until
// Unsubscribe is called, the parent context ends, or the store is closed.
package feed
