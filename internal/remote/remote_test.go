package remote

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/todosync/internal/doc"
	"github.com/roach88/todosync/internal/policy"
	"github.com/roach88/todosync/internal/replicate"
	"github.com/roach88/todosync/internal/store"
	"github.com/roach88/todosync/internal/testutil"
	"github.com/roach88/todosync/internal/wire"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startServer serves st and returns a client for it.
func startServer(t *testing.T, st *store.Store, opts ...ServerOption) (*httptest.Server, *Client) {
	t.Helper()
	srv := NewServer(st, append([]ServerOption{WithServerLogger(quietLogger())}, opts...)...)
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})

	c, err := NewClient(ts.URL+"/db", WithClientLogger(quietLogger()))
	require.NoError(t, err)
	return ts, c
}

func newRecord(id, title string) doc.Record {
	rec := doc.Record{ID: id, Title: title}
	rec.Rev = doc.NextRevision(doc.Revision{}, rec.Content())
	return rec
}

func TestNewClient_RejectsBadEndpoint(t *testing.T) {
	_, err := NewClient("ftp://example.com/db")
	assert.Error(t, err)
	_, err = NewClient("://nope")
	assert.Error(t, err)
}

func TestInfo(t *testing.T) {
	st := testutil.OpenStore(t)
	_, _, err := st.Put(context.Background(), doc.Record{ID: "a", Title: "x"}, doc.Revision{})
	require.NoError(t, err)

	_, c := startServer(t, st, WithName("inbox"))

	info, err := c.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, wire.Info{Name: "inbox", UpdateSeq: 1, DocCount: 1}, info)
}

func TestChanges_PagesWithLastSeq(t *testing.T) {
	st := testutil.OpenStore(t)
	for _, id := range []string{"a", "b", "c"} {
		_, _, err := st.Put(context.Background(), doc.Record{ID: id, Title: id}, doc.Revision{})
		require.NoError(t, err)
	}
	_, c := startServer(t, st)

	batch, err := c.Changes(context.Background(), 0, 2)
	require.NoError(t, err)
	require.Len(t, batch.Changes, 2)
	assert.Equal(t, int64(2), batch.LastSeq)
	assert.NoError(t, doc.VerifyTag(batch.Changes[0]))

	batch, err = c.Changes(context.Background(), batch.LastSeq, 2)
	require.NoError(t, err)
	require.Len(t, batch.Changes, 1)
	assert.Equal(t, "c", batch.Changes[0].ID)

	batch, err = c.Changes(context.Background(), 3, 2)
	require.NoError(t, err)
	assert.Empty(t, batch.Changes)
	assert.Equal(t, int64(3), batch.LastSeq)
}

func TestChanges_BadParameters(t *testing.T) {
	ts, _ := startServer(t, testutil.OpenStore(t))

	for _, q := range []string{"since=-1", "since=abc", "limit=0"} {
		resp, err := http.Get(ts.URL + "/db/_changes?" + q)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}
}

func TestApply_PerDocumentResults(t *testing.T) {
	st := testutil.OpenStore(t)
	p, err := policy.Default()
	require.NoError(t, err)
	_, c := startServer(t, st, WithPolicy(p))

	good := newRecord("good", "fine")
	blank := newRecord("blank", " ")
	tampered := newRecord("tampered", "original")
	tampered.Title = "changed"

	results, err := c.Apply(context.Background(), []doc.Record{good, blank, tampered})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.NoError(t, results[0].Err)
	assert.Equal(t, store.OutcomeApplied, results[0].Outcome)

	assert.ErrorIs(t, results[1].Err, replicate.ErrDenied)

	assert.ErrorIs(t, results[2].Err, store.ErrInvalid)
	assert.False(t, errors.Is(results[2].Err, replicate.ErrDenied))

	_, err = st.Get(context.Background(), "good")
	assert.NoError(t, err)
	_, err = st.Get(context.Background(), "blank")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Offering the same revision again is a no-op.
	results, err = c.Apply(context.Background(), []doc.Record{good})
	require.NoError(t, err)
	assert.Equal(t, store.OutcomeSkipped, results[0].Outcome)
}

func TestApply_MalformedRevisionString(t *testing.T) {
	ts, _ := startServer(t, testutil.OpenStore(t))

	body := `{"docs":[{"id":"x","rev":"nope","title":"t","completed":false}]}`
	resp, err := http.Post(ts.URL+"/db/_apply", wire.ContentTypeJSON, strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out wire.ApplyResponse
	require.NoError(t, wire.JSON.Unmarshal(data, &out))
	require.Len(t, out.Results, 1)
	assert.Equal(t, wire.ErrorInvalid, out.Results[0].Error)
}

func TestApply_UnsupportedContentType(t *testing.T) {
	ts, _ := startServer(t, testutil.OpenStore(t))

	resp, err := http.Post(ts.URL+"/db/_apply", "text/plain", strings.NewReader("hi"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
}

func TestUnknownRoute(t *testing.T) {
	ts, _ := startServer(t, testutil.OpenStore(t))

	c, err := NewClient(ts.URL + "/other")
	require.NoError(t, err)
	_, err = c.Info(context.Background())

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.Equal(t, "not_found", se.Kind)
}

func TestClient_CBOR(t *testing.T) {
	st := testutil.OpenStore(t)
	ts, _ := startServer(t, st)

	c, err := NewClient(ts.URL+"/db", WithCodec(wire.CBOR))
	require.NoError(t, err)

	results, err := c.Apply(context.Background(), []doc.Record{newRecord("a", "via cbor")})
	require.NoError(t, err)
	require.NoError(t, results[0].Err)

	batch, err := c.Changes(context.Background(), 0, 10)
	require.NoError(t, err)
	require.Len(t, batch.Changes, 1)
	assert.Equal(t, "via cbor", batch.Changes[0].Title)
}

func TestUpdates_SignalsCommits(t *testing.T) {
	st := testutil.OpenStore(t)
	_, c := startServer(t, st)

	ctx, cancel := context.WithCancel(context.Background())
	updates, err := c.Updates(ctx)
	require.NoError(t, err)

	// The stream opens with the current position.
	testutil.Collect(t, updates, 1)

	_, _, err = st.Put(context.Background(), doc.Record{ID: "a", Title: "x"}, doc.Revision{})
	require.NoError(t, err)
	testutil.Collect(t, updates, 1)

	cancel()
	testutil.Drain(t, updates)
}

func TestUpdates_EndsWhenServerCloses(t *testing.T) {
	st := testutil.OpenStore(t)
	srv := NewServer(st, WithServerLogger(quietLogger()))
	ts := httptest.NewServer(srv)
	defer ts.Close()

	c, err := NewClient(ts.URL+"/db", WithClientLogger(quietLogger()))
	require.NoError(t, err)

	updates, err := c.Updates(context.Background())
	require.NoError(t, err)
	testutil.Collect(t, updates, 1)

	srv.Close()
	testutil.Drain(t, updates)
}

func TestCoordinatorOverHTTP(t *testing.T) {
	local := testutil.OpenStore(t)
	remoteStore := testutil.OpenStore(t)
	p, err := policy.Default()
	require.NoError(t, err)
	ts, client := startServer(t, remoteStore, WithPolicy(p))

	_, _, err = local.Put(context.Background(), doc.Record{ID: "ok", Title: "ship it"}, doc.Revision{})
	require.NoError(t, err)
	_, _, err = local.Put(context.Background(), doc.Record{ID: "bad id!", Title: "nope"}, doc.Revision{})
	require.NoError(t, err)

	events := make(chan replicate.Event, 64)
	coord, err := replicate.New(local, client, replicate.Config{
		Endpoint:     ts.URL + "/db",
		Live:         true,
		PollInterval: -1,
	}, replicate.WithObserver(func(ev replicate.Event) { events <- ev }), replicate.WithLogger(quietLogger()))
	require.NoError(t, err)
	require.NoError(t, coord.Start(context.Background()))
	defer coord.Stop()

	testutil.Eventually(t, func() bool { return coord.State() == replicate.StatePaused }, "initial exchange")

	_, err = remoteStore.Get(context.Background(), "ok")
	require.NoError(t, err)
	_, err = remoteStore.Get(context.Background(), "bad id!")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// A write on the server reaches the client through the update stream.
	_, _, err = remoteStore.Put(context.Background(), doc.Record{ID: "srv", Title: "from server"}, doc.Revision{})
	require.NoError(t, err)
	testutil.Eventually(t, func() bool {
		_, err := local.Get(context.Background(), "srv")
		return err == nil
	}, "pull through websocket")

	coord.Stop()
	require.NoError(t, coord.Err())

	denied := 0
	timeout := time.After(time.Second)
	for done := false; !done; {
		select {
		case ev := <-events:
			if ev.State == replicate.StateDenied {
				denied++
				assert.Equal(t, "bad id!", ev.DocID)
			}
			if ev.State == replicate.StateStopped {
				done = true
			}
		case <-timeout:
			t.Fatal("missing stopped event")
		}
	}
	assert.Equal(t, 1, denied)
}

// stalledServer accepts connections but never answers a request until the
// test ends.
func stalledServer(t *testing.T) *httptest.Server {
	t.Helper()
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(ts.Close)
	t.Cleanup(func() { close(release) })
	return ts
}

func TestClient_RequestTimeout(t *testing.T) {
	ts := stalledServer(t)
	c, err := NewClient(ts.URL+"/db", WithTimeout(100*time.Millisecond), WithClientLogger(quietLogger()))
	require.NoError(t, err)

	start := time.Now()
	_, err = c.Changes(context.Background(), 0, 10)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestUpdates_CancelAbortsStalledHandshake(t *testing.T) {
	ts := stalledServer(t)
	c, err := NewClient(ts.URL+"/db", WithClientLogger(quietLogger()))
	require.NoError(t, err)

	// No deadline, only cancellation.
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	start := time.Now()
	_, err = c.Updates(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestCoordinator_LiveConnectTimeoutOnStalledPeer(t *testing.T) {
	local := testutil.OpenStore(t)
	ts := stalledServer(t)
	client, err := NewClient(ts.URL+"/db", WithClientLogger(quietLogger()))
	require.NoError(t, err)

	var (
		mu     sync.Mutex
		states []replicate.State
	)
	coord, err := replicate.New(local, client, replicate.Config{
		Endpoint:       ts.URL + "/db",
		Live:           true,
		Retry:          false,
		ConnectTimeout: 200 * time.Millisecond,
	}, replicate.WithObserver(func(ev replicate.Event) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, ev.State)
	}), replicate.WithLogger(quietLogger()))
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, coord.Start(context.Background()))
	select {
	case <-coord.Done():
	case <-time.After(3 * time.Second):
		coord.Stop()
		t.Fatal("coordinator still connecting long after the connect timeout")
	}
	assert.Less(t, time.Since(start), 2*time.Second)

	require.Error(t, coord.Err())
	assert.ErrorIs(t, coord.Err(), context.DeadlineExceeded)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []replicate.State{replicate.StateConnecting, replicate.StateError, replicate.StateStopped}, states)
}
