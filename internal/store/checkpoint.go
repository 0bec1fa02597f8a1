package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Direction names one half of a bidirectional exchange.
type Direction string

const (
	// DirectionPull tracks the remote sequence applied locally.
	DirectionPull Direction = "pull"
	// DirectionPush tracks the local sequence confirmed by the remote.
	DirectionPush Direction = "push"
)

// Checkpoint is the last sequence confirmed for one endpoint and direction.
// The sequence belongs to the source side of that direction.
type Checkpoint struct {
	Endpoint  string
	Direction Direction
	Seq       int64
}

// Checkpoint returns the stored sequence for endpoint and dir, or 0 if none
// has been committed yet.
func (s *Store) Checkpoint(ctx context.Context, endpoint string, dir Direction) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT seq FROM checkpoints
		WHERE endpoint = ? AND direction = ?
	`, endpoint, string(dir)).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read checkpoint: %w", err)
	}
	return seq, nil
}

// SetCheckpoint stores cp, replacing any previous value.
func (s *Store) SetCheckpoint(ctx context.Context, cp Checkpoint) error {
	return setCheckpoint(ctx, s.db, cp)
}

func setCheckpoint(ctx context.Context, q querier, cp Checkpoint) error {
	if cp.Endpoint == "" {
		return fmt.Errorf("write checkpoint: empty endpoint")
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO checkpoints (endpoint, direction, seq)
		VALUES (?, ?, ?)
		ON CONFLICT(endpoint, direction) DO UPDATE SET seq = excluded.seq
	`, cp.Endpoint, string(cp.Direction), cp.Seq)
	if err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return nil
}
