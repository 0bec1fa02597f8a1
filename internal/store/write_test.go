package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/todosync/internal/doc"
)

func TestPut_CreatesFirstGeneration(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rev, seq, err := s.Put(ctx, doc.Record{ID: "t1", Title: "buy milk"}, doc.Revision{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rev.Gen)
	assert.Equal(t, int64(1), seq)

	got, err := s.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, rev, got.Rev)
	assert.Equal(t, "buy milk", got.Title)
	assert.False(t, got.Completed)
	assert.Equal(t, seq, got.Seq)
	assert.Empty(t, got.History)
}

func TestPut_UpdateWithCurrentRevision(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first := mustPut(t, s, doc.Record{ID: "t1", Title: "buy milk"}, doc.Revision{})

	update := first
	update.Completed = true
	rev, seq, err := s.Put(ctx, update, first.Rev)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rev.Gen)
	assert.Greater(t, seq, first.Seq)

	got, err := s.Get(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, got.Completed)
	assert.Equal(t, []doc.Revision{first.Rev}, got.History)
	assert.NoError(t, doc.VerifyTag(got))
}

func TestPut_StaleRevisionConflicts(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first := mustPut(t, s, doc.Record{ID: "t1", Title: "a"}, doc.Revision{})
	second := mustPut(t, s, doc.Record{ID: "t1", Title: "b"}, first.Rev)

	_, _, err := s.Put(ctx, doc.Record{ID: "t1", Title: "c"}, first.Rev)
	require.ErrorIs(t, err, ErrConflict)

	current, ok := CurrentRevision(err)
	require.True(t, ok)
	assert.Equal(t, second.Rev, current)
}

func TestPut_CreateExistingConflicts(t *testing.T) {
	s := createTestStore(t)
	first := mustPut(t, s, doc.Record{ID: "t1", Title: "a"}, doc.Revision{})

	_, _, err := s.Put(context.Background(), doc.Record{ID: "t1", Title: "b"}, doc.Revision{})

	var ce *ConflictError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, first.Rev, ce.Current)
	assert.True(t, ce.Expected.IsZero())
}

func TestPut_UnknownIDWithRevision(t *testing.T) {
	s := createTestStore(t)

	_, _, err := s.Put(context.Background(), doc.Record{ID: "ghost"}, doc.Revision{Gen: 1, Tag: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPut_EmptyID(t *testing.T) {
	s := createTestStore(t)

	_, _, err := s.Put(context.Background(), doc.Record{Title: "x"}, doc.Revision{})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestPut_ConcurrentStaleWritersExactlyOneWins(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	base := mustPut(t, s, doc.Record{ID: "t1", Title: "base"}, doc.Revision{})

	const writers = 16
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := doc.Record{ID: "t1", Title: "writer", Completed: i%2 == 0}
			rec.Title = rec.Title + string(rune('a'+i))
			_, _, errs[i] = s.Put(ctx, rec, base.Rev)
		}(i)
	}
	wg.Wait()

	final, err := s.Get(ctx, "t1")
	require.NoError(t, err)

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		require.ErrorIs(t, err, ErrConflict)
		current, ok := CurrentRevision(err)
		require.True(t, ok)
		assert.Equal(t, final.Rev, current)
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, int64(2), final.Rev.Gen)
}

func TestRemove_Tombstones(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first := mustPut(t, s, doc.Record{ID: "t1", Title: "buy milk"}, doc.Revision{})

	rev, seq, err := s.Remove(ctx, "t1", first.Rev)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rev.Gen)
	assert.Greater(t, seq, first.Seq)

	got, err := s.Get(ctx, "t1")
	require.NoError(t, err, "tombstones stay readable")
	assert.True(t, got.Deleted)
	assert.Equal(t, rev, got.Rev)
}

func TestRemove_StaleRevision(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first := mustPut(t, s, doc.Record{ID: "t1", Title: "a"}, doc.Revision{})
	mustPut(t, s, doc.Record{ID: "t1", Title: "b"}, first.Rev)

	_, _, err := s.Remove(ctx, "t1", first.Rev)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestRemove_UnknownAndAlreadyDeleted(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, _, err := s.Remove(ctx, "ghost", doc.Revision{})
	assert.ErrorIs(t, err, ErrNotFound)

	first := mustPut(t, s, doc.Record{ID: "t1", Title: "a"}, doc.Revision{})
	rev, _, err := s.Remove(ctx, "t1", first.Rev)
	require.NoError(t, err)

	_, _, err = s.Remove(ctx, "t1", rev)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMutations_AssignIncreasingSequences(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	var last int64
	rev := doc.Revision{}
	for i := 0; i < 5; i++ {
		var seq int64
		var err error
		rev, seq, err = s.Put(ctx, doc.Record{ID: "t1", Title: "v" + string(rune('0'+i))}, rev)
		require.NoError(t, err)
		assert.Greater(t, seq, last)
		last = seq
	}

	got, err := s.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, last, got)
}

func TestMutations_FailedWriteDoesNotConsumeSequence(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first := mustPut(t, s, doc.Record{ID: "t1", Title: "a"}, doc.Revision{})
	_, _, err := s.Put(ctx, doc.Record{ID: "t1", Title: "b"}, doc.Revision{Gen: 9, Tag: "stale"})
	require.ErrorIs(t, err, ErrConflict)

	_, seq, err := s.Put(ctx, doc.Record{ID: "t2", Title: "c"}, doc.Revision{})
	require.NoError(t, err)
	assert.Equal(t, first.Seq+1, seq)
}

func TestPut_ReadYourWrite(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rev, _, err := s.Put(ctx, doc.Record{ID: "t1", Title: "a"}, doc.Revision{})
	require.NoError(t, err)

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, rev, all[0].Rev)
}
