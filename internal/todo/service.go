// Package todo translates user commands into store writes.
//
// Every edit carries the revision the caller last saw. A stale revision
// comes back as a store conflict so the caller can refresh and retry;
// nothing is merged or dropped silently.
package todo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/todosync/internal/doc"
	"github.com/roach88/todosync/internal/store"
)

var (
	// ErrEmptyTitle is returned by Create for a blank title.
	ErrEmptyTitle = errors.New("title is empty")

	// ErrDeleted is returned when editing a task that is a tombstone.
	ErrDeleted = errors.New("task is deleted")
)

// Service runs todo commands against a store.
type Service struct {
	store  *store.Store
	ids    doc.IDGenerator
	logger *slog.Logger
}

// NewService creates a service. A nil ids uses random UUIDs.
func NewService(s *store.Store, ids doc.IDGenerator) *Service {
	if ids == nil {
		ids = doc.UUIDGenerator{}
	}
	return &Service{store: s, ids: ids, logger: slog.Default()}
}

// Create adds an open task with a fresh id.
func (s *Service) Create(ctx context.Context, title string) (doc.Record, error) {
	title = doc.NormalizeTitle(title)
	if title == "" {
		return doc.Record{}, ErrEmptyTitle
	}

	rec := doc.Record{ID: s.ids.Generate(), Title: title}
	rev, seq, err := s.store.Put(ctx, rec, doc.Revision{})
	if err != nil {
		return doc.Record{}, fmt.Errorf("create: %w", err)
	}
	rec.Rev = rev
	rec.Seq = seq

	s.logger.Debug("task created", "id", rec.ID, "rev", rev)
	return rec, nil
}

// ToggleComplete sets the completed flag.
func (s *Service) ToggleComplete(ctx context.Context, id string, base doc.Revision, checked bool) (doc.Record, error) {
	return s.edit(ctx, id, base, func(rec *doc.Record) {
		rec.Completed = checked
	})
}

// Rename changes the title. A title that is blank after trimming deletes the
// task instead.
func (s *Service) Rename(ctx context.Context, id string, base doc.Revision, title string) (doc.Record, error) {
	title = doc.NormalizeTitle(title)
	if title == "" {
		return s.Delete(ctx, id, base)
	}
	return s.edit(ctx, id, base, func(rec *doc.Record) {
		rec.Title = title
	})
}

// Delete tombstones the task.
func (s *Service) Delete(ctx context.Context, id string, base doc.Revision) (doc.Record, error) {
	cur, err := s.live(ctx, id)
	if err != nil {
		return doc.Record{}, err
	}

	rev, seq, err := s.store.Remove(ctx, id, base)
	if err != nil {
		return doc.Record{}, fmt.Errorf("delete: %w", err)
	}

	out := cur
	out.Deleted = true
	out.History = cur.Descend()
	out.Rev = rev
	out.Seq = seq
	s.logger.Debug("task deleted", "id", id, "rev", rev)
	return out, nil
}

// Get returns one task, tombstones included.
func (s *Service) Get(ctx context.Context, id string) (doc.Record, error) {
	return s.store.Get(ctx, id)
}

// List returns the tasks to display, most recently changed first.
func (s *Service) List(ctx context.Context) ([]doc.Record, error) {
	return s.store.ListAll(ctx)
}

func (s *Service) edit(ctx context.Context, id string, base doc.Revision, apply func(*doc.Record)) (doc.Record, error) {
	cur, err := s.live(ctx, id)
	if err != nil {
		return doc.Record{}, err
	}

	next := cur
	apply(&next)

	rev, seq, err := s.store.Put(ctx, next, base)
	if err != nil {
		return doc.Record{}, fmt.Errorf("edit: %w", err)
	}
	next.History = cur.Descend()
	next.Rev = rev
	next.Seq = seq

	s.logger.Debug("task edited", "id", id, "rev", rev)
	return next, nil
}

// live reads id and refuses tombstones.
func (s *Service) live(ctx context.Context, id string) (doc.Record, error) {
	cur, err := s.store.Get(ctx, id)
	if err != nil {
		return doc.Record{}, err
	}
	if cur.Deleted {
		return doc.Record{}, fmt.Errorf("%s: %w", id, ErrDeleted)
	}
	return cur, nil
}
