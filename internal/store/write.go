package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/todosync/internal/doc"
)

// querier is implemented by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// errSwapFailed is returned by swapRecord when the stored revision no longer
// matches. Callers translate it into a ConflictError.
var errSwapFailed = errors.New("compare-and-swap failed")

// Put writes rec's content as a new revision of rec.ID.
//
// The write happens only if the record is new (expected is the zero revision)
// or its current revision equals expected. Otherwise Put returns a
// *ConflictError carrying the current revision. A non-zero expected revision
// for an unknown id returns ErrNotFound.
//
// rec.Rev, rec.Seq and rec.History are ignored; the new revision and its
// sequence are assigned in the same transaction and returned.
func (s *Store) Put(ctx context.Context, rec doc.Record, expected doc.Revision) (doc.Revision, int64, error) {
	if rec.ID == "" {
		return doc.Revision{}, 0, fmt.Errorf("put: %w: empty id", ErrInvalid)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return doc.Revision{}, 0, fmt.Errorf("put: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	cur, err := getRecord(ctx, tx, rec.ID)
	switch {
	case errors.Is(err, ErrNotFound):
		if !expected.IsZero() {
			return doc.Revision{}, 0, fmt.Errorf("put %s: %w", rec.ID, ErrNotFound)
		}
		cur = doc.Record{}
	case err != nil:
		return doc.Revision{}, 0, fmt.Errorf("put: %w", err)
	case !cur.Rev.Equal(expected):
		return doc.Revision{}, 0, &ConflictError{ID: rec.ID, Expected: expected, Current: cur.Rev}
	}

	next := doc.Record{
		ID:        rec.ID,
		Title:     rec.Title,
		Completed: rec.Completed,
		Deleted:   rec.Deleted,
		History:   cur.Descend(),
	}
	next.Rev = doc.NextRevision(cur.Rev, next.Content())

	seq, err := s.swap(ctx, tx, next, cur.Rev)
	if errors.Is(err, errSwapFailed) {
		return doc.Revision{}, 0, conflictFor(ctx, tx, rec.ID, expected)
	}
	if err != nil {
		return doc.Revision{}, 0, fmt.Errorf("put: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return doc.Revision{}, 0, fmt.Errorf("put: commit: %w", err)
	}
	s.commits.notify()

	return next.Rev, seq, nil
}

// Remove replaces the current revision of id with a tombstone revision.
//
// Same compare-and-swap semantics as Put. Removing an unknown id or a record
// that is already a tombstone returns ErrNotFound.
func (s *Store) Remove(ctx context.Context, id string, expected doc.Revision) (doc.Revision, int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return doc.Revision{}, 0, fmt.Errorf("remove: begin tx: %w", err)
	}
	defer tx.Rollback()

	cur, err := getRecord(ctx, tx, id)
	if err != nil {
		return doc.Revision{}, 0, fmt.Errorf("remove %s: %w", id, err)
	}
	if !cur.Rev.Equal(expected) {
		return doc.Revision{}, 0, &ConflictError{ID: id, Expected: expected, Current: cur.Rev}
	}
	if cur.Deleted {
		return doc.Revision{}, 0, fmt.Errorf("remove %s: already deleted: %w", id, ErrNotFound)
	}

	next := cur
	next.Deleted = true
	next.History = cur.Descend()
	next.Rev = doc.NextRevision(cur.Rev, next.Content())

	seq, err := s.swap(ctx, tx, next, cur.Rev)
	if errors.Is(err, errSwapFailed) {
		return doc.Revision{}, 0, conflictFor(ctx, tx, id, expected)
	}
	if err != nil {
		return doc.Revision{}, 0, fmt.Errorf("remove: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return doc.Revision{}, 0, fmt.Errorf("remove: commit: %w", err)
	}
	s.commits.notify()

	return next.Rev, seq, nil
}

// swap installs rec as the current revision if the stored revision still
// equals expected, and appends the mutation to the change log.
// Returns the sequence assigned to the mutation.
func (s *Store) swap(ctx context.Context, tx *sql.Tx, rec doc.Record, expected doc.Revision) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO changes (doc_id, gen, tag, deleted)
		VALUES (?, ?, ?, ?)
	`, rec.ID, rec.Rev.Gen, rec.Rev.Tag, rec.Deleted)
	if err != nil {
		return 0, fmt.Errorf("append change: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("append change: last insert id: %w", err)
	}

	history, err := marshalHistory(rec.History)
	if err != nil {
		return 0, err
	}

	if expected.IsZero() {
		res, err = tx.ExecContext(ctx, `
			INSERT INTO records (`+recordColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`, rec.ID, rec.Rev.Gen, rec.Rev.Tag, history, rec.Title, rec.Completed, rec.Deleted, seq)
	} else {
		res, err = tx.ExecContext(ctx, `
			UPDATE records
			SET gen = ?, tag = ?, history = ?, title = ?, completed = ?, deleted = ?, seq = ?
			WHERE id = ? AND gen = ? AND tag = ?
		`, rec.Rev.Gen, rec.Rev.Tag, history, rec.Title, rec.Completed, rec.Deleted, seq,
			rec.ID, expected.Gen, expected.Tag)
	}
	if err != nil {
		return 0, fmt.Errorf("write record: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("write record: rows affected: %w", err)
	}
	if n == 0 {
		return 0, errSwapFailed
	}

	return seq, nil
}

// getRecord reads the current record for id. Returns ErrNotFound if absent.
func getRecord(ctx context.Context, q querier, id string) (doc.Record, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM records
		WHERE id = ?
	`, id)
	return scanRecord(row)
}

// conflictFor builds the ConflictError for a failed swap from the revision
// currently stored.
func conflictFor(ctx context.Context, q querier, id string, expected doc.Revision) error {
	cur, err := getRecord(ctx, q, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("read current %s: %w", id, err)
	}
	return &ConflictError{ID: id, Expected: expected, Current: cur.Rev}
}
