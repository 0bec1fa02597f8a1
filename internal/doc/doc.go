// Package doc defines the record, revision, and change-event types shared by
// every other todosync package.
//
// doc imports nothing internal. Revisions are content-addressed: the tag of a
// revision is a SHA-256 over the canonical JSON of the record content plus the
// parent revision, so two replicas that make the same edit from the same base
// produce the same revision.
//
// Key constraints:
//   - Record IDs come from an IDGenerator, never from wall-clock time
//   - Ordering between mutations comes from the store's sequence, never from
//     revisions or timestamps
//   - Wins is the single conflict rule; both replicas apply it identically
package doc
