package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/todosync/internal/doc"
)

func TestGet_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListAll_DescendingSequence(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	a := mustPut(t, s, doc.Record{ID: "a", Title: "first"}, doc.Revision{})
	mustPut(t, s, doc.Record{ID: "b", Title: "second"}, doc.Revision{})
	mustPut(t, s, doc.Record{ID: "c", Title: "third"}, doc.Revision{})
	// Touching a makes it the most recently mutated.
	mustPut(t, s, doc.Record{ID: "a", Title: "first again"}, a.Rev)

	all, err := s.ListAll(ctx)
	require.NoError(t, err)

	ids := make([]string, len(all))
	for i, r := range all {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"a", "c", "b"}, ids)
}

func TestListAll_ExcludesTombstonesByDefault(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	a := mustPut(t, s, doc.Record{ID: "a", Title: "keep"}, doc.Revision{})
	b := mustPut(t, s, doc.Record{ID: "b", Title: "drop"}, doc.Revision{})
	_, _, err := s.Remove(ctx, "b", b.Rev)
	require.NoError(t, err)

	live, err := s.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, a.ID, live[0].ID)

	all, err := s.ListAll(ctx, IncludeDeleted())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "b", all[0].ID)
	assert.True(t, all[0].Deleted)
}

func TestListAll_EmptyStoreReturnsEmptySlice(t *testing.T) {
	s := createTestStore(t)

	all, err := s.ListAll(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)
}

func TestChangesAfter_EveryMutationInOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	a := mustPut(t, s, doc.Record{ID: "a", Title: "1"}, doc.Revision{})
	a2 := mustPut(t, s, doc.Record{ID: "a", Title: "2"}, a.Rev)
	b := mustPut(t, s, doc.Record{ID: "b", Title: "x"}, doc.Revision{})
	_, _, err := s.Remove(ctx, "b", b.Rev)
	require.NoError(t, err)

	events, err := s.ChangesAfter(ctx, 0, 100)
	require.NoError(t, err)
	require.Len(t, events, 4)

	assert.Equal(t, doc.Event{ID: "a", Rev: a.Rev, Seq: 1}, events[0])
	assert.Equal(t, doc.Event{ID: "a", Rev: a2.Rev, Seq: 2}, events[1])
	assert.Equal(t, "b", events[3].ID)
	assert.True(t, events[3].Deleted)

	tail, err := s.ChangesAfter(ctx, 2, 1)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, int64(3), tail[0].Seq)
}

func TestChangesSince_LatestStatePerRecord(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	a := mustPut(t, s, doc.Record{ID: "a", Title: "1"}, doc.Revision{})
	mustPut(t, s, doc.Record{ID: "b", Title: "x"}, doc.Revision{})
	a2 := mustPut(t, s, doc.Record{ID: "a", Title: "2"}, a.Rev)

	recs, err := s.ChangesSince(ctx, 0, 100)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "b", recs[0].ID)
	assert.Equal(t, "a", recs[1].ID)
	assert.Equal(t, a2.Rev, recs[1].Rev)
	assert.Equal(t, []doc.Revision{a.Rev}, recs[1].History)

	recs, err = s.ChangesSince(ctx, a2.Seq, 100)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestChangesSince_RespectsLimit(t *testing.T) {
	s := createTestStore(t)

	for _, id := range []string{"a", "b", "c"} {
		mustPut(t, s, doc.Record{ID: id, Title: id}, doc.Revision{})
	}

	recs, err := s.ChangesSince(context.Background(), 0, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, int64(2), recs[1].Seq)
}
