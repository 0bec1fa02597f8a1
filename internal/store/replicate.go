package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/todosync/internal/doc"
)

// Outcome classifies what ApplyBatch did with one inbound revision.
type Outcome int

const (
	// OutcomeApplied means the revision became current: the record was new
	// or the local revision was one of its ancestors.
	OutcomeApplied Outcome = iota + 1
	// OutcomeSkipped means the revision was already known: current, an
	// ancestor of current, or a recorded alternate.
	OutcomeSkipped
	// OutcomeWon means the revision conflicted with the local one and won;
	// the local revision was kept as an alternate.
	OutcomeWon
	// OutcomeLost means the revision conflicted and lost; it was kept as an
	// alternate and the local revision stays current.
	OutcomeLost
	// OutcomeRejected means the revision was malformed. Err says why.
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeWon:
		return "won"
	case OutcomeLost:
		return "lost"
	case OutcomeRejected:
		return "rejected"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// ApplyResult is the per-record result of ApplyBatch.
type ApplyResult struct {
	ID      string
	Rev     doc.Revision
	Outcome Outcome

	// Seq is the local sequence assigned when the outcome changed the
	// current revision (Applied or Won), else 0.
	Seq int64

	// Err is set only for OutcomeRejected.
	Err error
}

// Changed reports whether the result produced a new local sequence.
func (r ApplyResult) Changed() bool {
	return r.Outcome == OutcomeApplied || r.Outcome == OutcomeWon
}

// ApplyBatch writes replicated revisions, keeping their revision identity
// (unlike Put, which derives a new one).
//
// For each inbound record:
//   - unknown id, or local revision is an ancestor: the inbound revision
//     becomes current (Applied)
//   - already known: nothing is written (Skipped)
//   - independent revisions: doc.Wins picks the current one and the other is
//     recorded as an alternate (Won or Lost)
//   - malformed: Rejected, the rest of the batch continues
//
// Every write goes through the same compare-and-swap as Put. When cp is not
// nil it is written in the same transaction, so after a crash either the
// writes and the checkpoint are both present or neither is.
func (s *Store) ApplyBatch(ctx context.Context, recs []doc.Record, cp *Checkpoint) ([]ApplyResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("apply batch: begin tx: %w", err)
	}
	defer tx.Rollback()

	results := make([]ApplyResult, 0, len(recs))
	changed := false
	for _, in := range recs {
		res, err := s.applyOne(ctx, tx, in)
		if err != nil {
			return nil, fmt.Errorf("apply batch: %s: %w", in.ID, err)
		}
		changed = changed || res.Changed()
		results = append(results, res)
	}

	if cp != nil {
		if err := setCheckpoint(ctx, tx, *cp); err != nil {
			return nil, fmt.Errorf("apply batch: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("apply batch: commit: %w", err)
	}
	if changed {
		s.commits.notify()
	}

	return results, nil
}

func (s *Store) applyOne(ctx context.Context, tx *sql.Tx, in doc.Record) (ApplyResult, error) {
	res := ApplyResult{ID: in.ID, Rev: in.Rev}

	if in.ID == "" {
		res.Outcome = OutcomeRejected
		res.Err = fmt.Errorf("%w: empty id", ErrInvalid)
		return res, nil
	}
	if err := doc.VerifyTag(in); err != nil {
		res.Outcome = OutcomeRejected
		res.Err = fmt.Errorf("%w: %v", ErrInvalid, err)
		return res, nil
	}
	if len(in.History) > doc.RevsLimit {
		in.History = in.History[:doc.RevsLimit]
	}

	cur, err := getRecord(ctx, tx, in.ID)
	if errors.Is(err, ErrNotFound) {
		return s.install(ctx, tx, in, doc.Revision{}, OutcomeApplied)
	}
	if err != nil {
		return res, err
	}

	if cur.Rev.Equal(in.Rev) || cur.HasAncestor(in.Rev) {
		res.Outcome = OutcomeSkipped
		return res, nil
	}

	known, err := hasAlternate(ctx, tx, in.ID, in.Rev)
	if err != nil {
		return res, err
	}
	if known {
		res.Outcome = OutcomeSkipped
		return res, nil
	}

	if in.HasAncestor(cur.Rev) {
		return s.install(ctx, tx, in, cur.Rev, OutcomeApplied)
	}

	if doc.Wins(in.Rev, cur.Rev) {
		if err := recordAlternate(ctx, tx, cur); err != nil {
			return res, err
		}
		return s.install(ctx, tx, in, cur.Rev, OutcomeWon)
	}

	if err := recordAlternate(ctx, tx, in); err != nil {
		return res, err
	}
	res.Outcome = OutcomeLost
	return res, nil
}

func (s *Store) install(ctx context.Context, tx *sql.Tx, in doc.Record, expected doc.Revision, outcome Outcome) (ApplyResult, error) {
	seq, err := s.swap(ctx, tx, in, expected)
	if err != nil {
		return ApplyResult{}, err
	}
	return ApplyResult{ID: in.ID, Rev: in.Rev, Outcome: outcome, Seq: seq}, nil
}

func hasAlternate(ctx context.Context, q querier, id string, rev doc.Revision) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM conflicts
		WHERE doc_id = ? AND gen = ? AND tag = ?
	`, id, rev.Gen, rev.Tag).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check alternate: %w", err)
	}
	return count > 0, nil
}

// recordAlternate keeps a losing revision. Idempotent.
func recordAlternate(ctx context.Context, q querier, rec doc.Record) error {
	history, err := marshalHistory(rec.History)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO conflicts
		(doc_id, gen, tag, history, title, completed, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(doc_id, gen, tag) DO NOTHING
	`, rec.ID, rec.Rev.Gen, rec.Rev.Tag, history, rec.Title, rec.Completed, rec.Deleted)
	if err != nil {
		return fmt.Errorf("record alternate: %w", err)
	}
	return nil
}
