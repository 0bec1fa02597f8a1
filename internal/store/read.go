package store

import (
	"context"
	"fmt"

	"github.com/roach88/todosync/internal/doc"
)

// Get returns the current record for id, tombstones included.
// Returns ErrNotFound for unknown ids.
func (s *Store) Get(ctx context.Context, id string) (doc.Record, error) {
	rec, err := getRecord(ctx, s.db, id)
	if err != nil {
		return doc.Record{}, fmt.Errorf("get %s: %w", id, err)
	}
	return rec, nil
}

// ListOption configures ListAll.
type ListOption func(*listOptions)

type listOptions struct {
	includeDeleted bool
}

// IncludeDeleted makes ListAll return tombstones too.
func IncludeDeleted() ListOption {
	return func(o *listOptions) {
		o.includeDeleted = true
	}
}

// ListAll returns a snapshot of all records, most recently mutated first.
// Tombstones are excluded unless IncludeDeleted is given.
//
// The snapshot is a single SELECT, so a concurrent mutation is either fully
// visible or not visible at all.
//
// Returns an empty slice (not nil) for an empty store.
func (s *Store) ListAll(ctx context.Context, opts ...ListOption) ([]doc.Record, error) {
	var o listOptions
	for _, opt := range opts {
		opt(&o)
	}

	query := `SELECT ` + recordColumns + ` FROM records`
	if !o.includeDeleted {
		query += ` WHERE deleted = 0`
	}
	query += ` ORDER BY seq DESC`

	return s.queryRecords(ctx, query)
}

// ChangesSince returns the current state of every record last mutated after
// since, in ascending sequence order, at most limit records. Used as the
// source side of replication.
func (s *Store) ChangesSince(ctx context.Context, since int64, limit int) ([]doc.Record, error) {
	return s.queryRecords(ctx, `
		SELECT `+recordColumns+`
		FROM records
		WHERE seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`, since, limit)
}

// ChangesAfter returns change-log events with sequence greater than since,
// in ascending sequence order, at most limit events. Every committed mutation
// appears, including ones later superseded.
func (s *Store) ChangesAfter(ctx context.Context, since int64, limit int) ([]doc.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, doc_id, gen, tag, deleted
		FROM changes
		WHERE seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("query changes: %w", err)
	}
	defer rows.Close()

	events := []doc.Event{}
	for rows.Next() {
		var ev doc.Event
		if err := rows.Scan(&ev.Seq, &ev.ID, &ev.Rev.Gen, &ev.Rev.Tag, &ev.Deleted); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate changes: %w", err)
	}
	return events, nil
}

// Conflicts returns the recorded alternate revisions of id, highest
// generation first.
func (s *Store) Conflicts(ctx context.Context, id string) ([]doc.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_id, gen, tag, history, title, completed, deleted, 0
		FROM conflicts
		WHERE doc_id = ?
		ORDER BY gen DESC, tag DESC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query conflicts: %w", err)
	}
	defer rows.Close()

	recs := []doc.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conflicts: %w", err)
	}
	return recs, nil
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]doc.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	recs := []doc.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return recs, nil
}
