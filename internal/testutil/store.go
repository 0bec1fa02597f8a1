package testutil

import (
	"path/filepath"
	"testing"

	"github.com/roach88/todosync/internal/store"
)

// OpenStore opens a fresh store in a temporary directory and closes it when
// the test ends.
func OpenStore(t testing.TB) *store.Store {
	t.Helper()
	return OpenStoreAt(t, filepath.Join(t.TempDir(), "todos.db"))
}

// OpenStoreAt opens the store at path and closes it when the test ends.
func OpenStoreAt(t testing.TB, path string) *store.Store {
	t.Helper()
	s, err := store.Open(path)
	if err != nil {
		t.Fatalf("store.Open(%q) failed: %v", path, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}
