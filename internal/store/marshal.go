package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roach88/todosync/internal/doc"
)

// marshalHistory converts a revision history to JSON TEXT for storage.
// Revisions encode through their text form ("<gen>-<tag>").
func marshalHistory(h []doc.Revision) (string, error) {
	if len(h) == 0 {
		return "[]", nil
	}
	if len(h) > doc.RevsLimit {
		h = h[:doc.RevsLimit]
	}
	data, err := json.Marshal(h)
	if err != nil {
		return "", fmt.Errorf("marshal history: %w", err)
	}
	return string(data), nil
}

// unmarshalHistory parses JSON TEXT to a revision history.
func unmarshalHistory(data string) ([]doc.Revision, error) {
	if data == "" || data == "[]" {
		return nil, nil
	}
	var h []doc.Revision
	if err := json.Unmarshal([]byte(data), &h); err != nil {
		return nil, fmt.Errorf("unmarshal history: %w", err)
	}
	return h, nil
}

// scanner is implemented by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// recordColumns is the column list scanRecord expects, in order.
const recordColumns = `id, gen, tag, history, title, completed, deleted, seq`

func scanRecord(sc scanner) (doc.Record, error) {
	var (
		rec     doc.Record
		history string
	)
	err := sc.Scan(&rec.ID, &rec.Rev.Gen, &rec.Rev.Tag, &history, &rec.Title, &rec.Completed, &rec.Deleted, &rec.Seq)
	if err == sql.ErrNoRows {
		return doc.Record{}, ErrNotFound
	}
	if err != nil {
		return doc.Record{}, fmt.Errorf("scan record: %w", err)
	}
	rec.History, err = unmarshalHistory(history)
	if err != nil {
		return doc.Record{}, err
	}
	return rec, nil
}
