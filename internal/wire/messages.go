package wire

import (
	"fmt"

	"github.com/roach88/todosync/internal/doc"
	"github.com/roach88/todosync/internal/store"
)

// Change is one record on the wire.
type Change struct {
	ID        string   `json:"id" cbor:"id"`
	Rev       string   `json:"rev" cbor:"rev"`
	History   []string `json:"history,omitempty" cbor:"history,omitempty"`
	Title     string   `json:"title" cbor:"title"`
	Completed bool     `json:"completed" cbor:"completed"`
	Deleted   bool     `json:"deleted,omitempty" cbor:"deleted,omitempty"`
	Seq       int64    `json:"seq,omitempty" cbor:"seq,omitempty"`
}

// FromRecord converts a record for sending.
func FromRecord(rec doc.Record) Change {
	c := Change{
		ID:        rec.ID,
		Rev:       rec.Rev.String(),
		Title:     rec.Title,
		Completed: rec.Completed,
		Deleted:   rec.Deleted,
		Seq:       rec.Seq,
	}
	if len(rec.History) > 0 {
		c.History = make([]string, len(rec.History))
		for i, h := range rec.History {
			c.History[i] = h.String()
		}
	}
	return c
}

// Record converts a received change. Only the revision strings are checked
// here; content validation is the receiver's job.
func (c Change) Record() (doc.Record, error) {
	rev, err := doc.ParseRevision(c.Rev)
	if err != nil {
		return doc.Record{}, fmt.Errorf("change %s: %w", c.ID, err)
	}
	rec := doc.Record{
		ID:        c.ID,
		Rev:       rev,
		Title:     c.Title,
		Completed: c.Completed,
		Deleted:   c.Deleted,
		Seq:       c.Seq,
	}
	if len(c.History) > 0 {
		rec.History = make([]doc.Revision, len(c.History))
		for i, h := range c.History {
			if rec.History[i], err = doc.ParseRevision(h); err != nil {
				return doc.Record{}, fmt.Errorf("change %s history: %w", c.ID, err)
			}
		}
	}
	return rec, nil
}

// ChangesResponse answers GET /db/_changes.
type ChangesResponse struct {
	Results []Change `json:"results" cbor:"results"`
	LastSeq int64    `json:"last_seq" cbor:"last_seq"`
}

// ApplyRequest is the body of POST /db/_apply.
type ApplyRequest struct {
	Docs []Change `json:"docs" cbor:"docs"`
}

// Error codes in ApplyResult.
const (
	ErrorDenied  = "denied"
	ErrorInvalid = "invalid"
)

// ApplyResult is the receiver's answer for one document.
type ApplyResult struct {
	ID      string `json:"id" cbor:"id"`
	Rev     string `json:"rev,omitempty" cbor:"rev,omitempty"`
	Outcome string `json:"outcome,omitempty" cbor:"outcome,omitempty"`
	Error   string `json:"error,omitempty" cbor:"error,omitempty"`
	Reason  string `json:"reason,omitempty" cbor:"reason,omitempty"`
}

// ApplyResponse answers POST /db/_apply, one result per request document in
// request order.
type ApplyResponse struct {
	Results []ApplyResult `json:"results" cbor:"results"`
}

// Info answers GET /db.
type Info struct {
	Name      string `json:"db_name" cbor:"db_name"`
	UpdateSeq int64  `json:"update_seq" cbor:"update_seq"`
	DocCount  int    `json:"doc_count" cbor:"doc_count"`
}

// Update is pushed over the /db/_updates websocket after commits.
type Update struct {
	LastSeq int64 `json:"last_seq" cbor:"last_seq"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error  string `json:"error" cbor:"error"`
	Reason string `json:"reason,omitempty" cbor:"reason,omitempty"`
}

// ParseOutcome maps an ApplyResult.Outcome back to a store outcome.
func ParseOutcome(s string) (store.Outcome, error) {
	for _, o := range []store.Outcome{
		store.OutcomeApplied,
		store.OutcomeSkipped,
		store.OutcomeWon,
		store.OutcomeLost,
		store.OutcomeRejected,
	} {
		if o.String() == s {
			return o, nil
		}
	}
	return 0, fmt.Errorf("unknown outcome %q", s)
}
