package doc

import "strings"

// RevsLimit bounds the ancestor history carried by a record.
const RevsLimit = 100

// Record is one task as stored and replicated.
//
// ID never changes after creation. Deleted records are tombstones: they stay
// in the store so the deletion can replicate.
type Record struct {
	ID        string
	Rev       Revision
	Title     string
	Completed bool
	Deleted   bool

	// Seq is the store sequence of the mutation that produced Rev.
	// Zero for records that have not been committed.
	Seq int64

	// History lists ancestor revisions, newest first, excluding Rev.
	History []Revision
}

// Content returns the fields covered by the revision tag.
func (r Record) Content() Content {
	return Content{
		ID:        r.ID,
		Title:     r.Title,
		Completed: r.Completed,
		Deleted:   r.Deleted,
	}
}

// Parent returns the revision Rev was derived from, or the zero revision for
// a first generation.
func (r Record) Parent() Revision {
	if len(r.History) == 0 {
		return Revision{}
	}
	return r.History[0]
}

// HasAncestor reports whether rev appears in the record's history.
func (r Record) HasAncestor(rev Revision) bool {
	for _, h := range r.History {
		if h.Equal(rev) {
			return true
		}
	}
	return false
}

// Descend returns the history a child of r carries: r.Rev followed by
// r.History, truncated to RevsLimit.
func (r Record) Descend() []Revision {
	if r.Rev.IsZero() {
		return nil
	}
	n := len(r.History) + 1
	if n > RevsLimit {
		n = RevsLimit
	}
	out := make([]Revision, 0, n)
	out = append(out, r.Rev)
	out = append(out, r.History[:n-1]...)
	return out
}

// Content is the revisioned part of a record.
type Content struct {
	ID        string
	Title     string
	Completed bool
	Deleted   bool
}

// NormalizeTitle trims surrounding whitespace the way every command does
// before storing a title.
func NormalizeTitle(s string) string {
	return strings.TrimSpace(s)
}

// Event is one entry of the change feed.
type Event struct {
	ID      string   `json:"id"`
	Rev     Revision `json:"rev"`
	Seq     int64    `json:"seq"`
	Deleted bool     `json:"deleted"`
}
