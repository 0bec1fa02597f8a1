package policy

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/todosync/internal/doc"
)

func TestDefault_Accepts(t *testing.T) {
	p, err := Default()
	require.NoError(t, err)

	tests := []struct {
		name string
		rec  doc.Record
	}{
		{"open task", doc.Record{ID: "t1", Title: "buy milk"}},
		{"completed task", doc.Record{ID: "t2", Title: "done", Completed: true}},
		{"uuid id", doc.Record{ID: "0b8f6d7e-1c2a-4e55-9f00-6b1d3c2a9e10", Title: "x"}},
		{"tombstone with empty title", doc.Record{ID: "t3", Deleted: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, p.Check(tt.rec))
		})
	}
}

func TestDefault_Denies(t *testing.T) {
	p, err := Default()
	require.NoError(t, err)

	tests := []struct {
		name string
		rec  doc.Record
	}{
		{"blank title", doc.Record{ID: "t1", Title: "   "}},
		{"empty title", doc.Record{ID: "t1"}},
		{"bad id", doc.Record{ID: "../etc/passwd", Title: "x"}},
		{"title too long", doc.Record{ID: "t1", Title: strings.Repeat("a", 501)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.Check(tt.rec)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrDenied)

			var v *Violation
			require.ErrorAs(t, err, &v)
			assert.Equal(t, tt.rec.ID, v.ID)
			assert.NotEmpty(t, v.Message)
		})
	}
}

func TestLoad_CustomPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strict.cue")
	require.NoError(t, os.WriteFile(path, []byte(`
#Todo: {
	id:        string
	title:     !~"(?i)secret"
	completed: bool
	deleted:   bool
}
`), 0o644))

	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, p.Name())

	assert.NoError(t, p.Check(doc.Record{ID: "a", Title: "public"}))
	assert.ErrorIs(t, p.Check(doc.Record{ID: "b", Title: "top SECRET plan"}), ErrDenied)
}

func TestCompile_Errors(t *testing.T) {
	_, err := Compile("broken.cue", []byte(`#Todo: {`))
	assert.Error(t, err)

	_, err = Compile("missing.cue", []byte(`#Other: {}`))
	assert.ErrorContains(t, err, "#Todo not defined")

	_, err = Load(filepath.Join(t.TempDir(), "absent.cue"))
	assert.Error(t, err)
}

func TestCheck_ConcurrentCallers(t *testing.T) {
	p, err := Default()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				assert.NoError(t, p.Check(doc.Record{ID: "t1", Title: "x"}))
				assert.Error(t, p.Check(doc.Record{ID: "t1"}))
			}
		}()
	}
	wg.Wait()
}
