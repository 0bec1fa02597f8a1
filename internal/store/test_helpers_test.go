package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/todosync/internal/doc"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// mustPut creates or updates a record and returns its stored state.
func mustPut(t *testing.T, s *Store, rec doc.Record, expected doc.Revision) doc.Record {
	t.Helper()
	_, _, err := s.Put(context.Background(), rec, expected)
	require.NoError(t, err)
	got, err := s.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	return got
}

// branch derives a replicated child revision of parent with the given
// title, as another replica would produce it.
func branch(parent doc.Record, title string) doc.Record {
	child := parent
	child.Title = title
	child.Seq = 0
	child.History = parent.Descend()
	child.Rev = doc.NextRevision(parent.Rev, child.Content())
	return child
}
