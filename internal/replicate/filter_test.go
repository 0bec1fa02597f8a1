package replicate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/todosync/internal/doc"
)

func TestCompileFilter_EmptyMatchesAll(t *testing.T) {
	f, err := CompileFilter("")
	require.NoError(t, err)
	assert.Nil(t, f)

	ok, err := f.Match(doc.Record{ID: "x"})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFilter_Match(t *testing.T) {
	tests := []struct {
		name   string
		source string
		rec    doc.Record
		want   bool
	}{
		{"open task", "!completed", doc.Record{Title: "a"}, true},
		{"completed task", "!completed", doc.Record{Title: "a", Completed: true}, false},
		{"title prefix", `title startsWith "work:"`, doc.Record{Title: "work: report"}, true},
		{"title prefix miss", `title startsWith "work:"`, doc.Record{Title: "home: dishes"}, false},
		{"tombstones pass", `deleted || title != ""`, doc.Record{Deleted: true}, true},
		{"by id", `id in ["a", "b"]`, doc.Record{ID: "b"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := CompileFilter(tt.source)
			require.NoError(t, err)

			got, err := f.Match(tt.rec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.source, f.String())
		})
	}
}

func TestCompileFilter_Errors(t *testing.T) {
	for _, src := range []string{
		"title +",      // syntax
		"title",        // not a bool
		"priority > 1", // unknown field
	} {
		_, err := CompileFilter(src)
		assert.Error(t, err, src)
	}
}
