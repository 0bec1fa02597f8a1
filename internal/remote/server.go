package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/roach88/todosync/internal/doc"
	"github.com/roach88/todosync/internal/policy"
	"github.com/roach88/todosync/internal/replicate"
	"github.com/roach88/todosync/internal/store"
	"github.com/roach88/todosync/internal/wire"
)

const (
	// MaxLimit caps the limit parameter of _changes.
	MaxLimit = 1000

	maxBodyBytes = 8 << 20
	writeWait    = 10 * time.Second
	pingPeriod   = 30 * time.Second
)

// Server exposes one store over HTTP.
type Server struct {
	store    *store.Store
	peer     *replicate.StorePeer
	policy   *policy.Policy
	name     string
	logger   *slog.Logger
	router   *mux.Router
	upgrader websocket.Upgrader

	// ctx ends update streams on Close; hijacked websocket connections are
	// not tracked by http.Server.Shutdown.
	ctx    context.Context
	cancel context.CancelFunc
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithPolicy denies inbound records that do not satisfy p.
func WithPolicy(p *policy.Policy) ServerOption {
	return func(s *Server) {
		s.policy = p
	}
}

// WithName sets the database name reported by GET /db.
func WithName(name string) ServerOption {
	return func(s *Server) {
		s.name = name
	}
}

// WithServerLogger sets the logger. Defaults to slog.Default().
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = l
	}
}

// NewServer creates a server for st.
func NewServer(st *store.Store, opts ...ServerOption) *Server {
	s := &Server{
		store:  st,
		name:   "todos",
		logger: slog.Default(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	var check replicate.CheckFunc
	if s.policy != nil {
		check = s.policy.Check
	}
	s.peer = replicate.NewStorePeer(st, check)

	r := mux.NewRouter()
	r.Use(s.logRequests)
	r.Methods(http.MethodGet).Path("/db").HandlerFunc(s.getInfo)
	r.Methods(http.MethodGet).Path("/db/_changes").HandlerFunc(s.getChanges)
	r.Methods(http.MethodPost).Path("/db/_apply").HandlerFunc(s.postApply)
	r.Methods(http.MethodGet).Path("/db/_updates").HandlerFunc(s.getUpdates)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		s.writeError(w, req, http.StatusNotFound, "not_found", req.URL.Path)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		s.writeError(w, req, http.StatusMethodNotAllowed, "method_not_allowed", req.Method)
	})
	s.router = r

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close ends open update streams. It does not close the store.
func (s *Server) Close() {
	s.cancel()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		s.logger.Info("handled",
			"method", r.Method,
			"url", r.URL.String(),
			"status", m.Code,
			"bytes", m.Written,
			"duration", m.Duration,
		)
	})
}

func (s *Server) getInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	seq, err := s.store.LastSeq(ctx)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	recs, err := s.store.ListAll(ctx)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	s.write(w, r, http.StatusOK, wire.Info{Name: s.name, UpdateSeq: seq, DocCount: len(recs)})
}

func (s *Server) getChanges(w http.ResponseWriter, r *http.Request) {
	since, err := intParam(r, "since", 0)
	if err != nil || since < 0 {
		s.writeError(w, r, http.StatusBadRequest, "bad_request", "invalid since")
		return
	}
	limit, err := intParam(r, "limit", replicate.DefaultBatchSize)
	if err != nil || limit < 1 {
		s.writeError(w, r, http.StatusBadRequest, "bad_request", "invalid limit")
		return
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	batch, err := s.peer.Changes(r.Context(), since, int(limit))
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	resp := wire.ChangesResponse{
		Results: make([]wire.Change, len(batch.Changes)),
		LastSeq: batch.LastSeq,
	}
	for i, rec := range batch.Changes {
		resp.Results[i] = wire.FromRecord(rec)
	}
	s.write(w, r, http.StatusOK, resp)
}

func (s *Server) postApply(w http.ResponseWriter, r *http.Request) {
	codec, err := wire.ForContentType(r.Header.Get("Content-Type"))
	if err != nil {
		s.writeError(w, r, http.StatusUnsupportedMediaType, "unsupported_media_type", err.Error())
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, r, http.StatusRequestEntityTooLarge, "too_large", err.Error())
		return
	}
	var req wire.ApplyRequest
	if err := codec.Unmarshal(body, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	resp := wire.ApplyResponse{Results: make([]wire.ApplyResult, len(req.Docs))}
	recs := make([]doc.Record, 0, len(req.Docs))
	index := make([]int, 0, len(req.Docs))
	for i, c := range req.Docs {
		rec, err := c.Record()
		if err != nil {
			resp.Results[i] = wire.ApplyResult{
				ID:      c.ID,
				Rev:     c.Rev,
				Outcome: store.OutcomeRejected.String(),
				Error:   wire.ErrorInvalid,
				Reason:  err.Error(),
			}
			continue
		}
		recs = append(recs, rec)
		index = append(index, i)
	}

	if len(recs) > 0 {
		results, err := s.peer.Apply(r.Context(), recs)
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		for j, res := range results {
			resp.Results[index[j]] = toWireResult(res)
			if res.Err != nil {
				s.logger.Warn("refused document", "id", res.ID, "rev", res.Rev, "error", res.Err)
			}
		}
	}

	s.write(w, r, http.StatusOK, resp)
}

func toWireResult(res replicate.Result) wire.ApplyResult {
	out := wire.ApplyResult{ID: res.ID, Rev: res.Rev.String()}
	if res.Outcome != 0 {
		out.Outcome = res.Outcome.String()
	}
	if res.Err != nil {
		out.Error = wire.ErrorInvalid
		if errors.Is(res.Err, replicate.ErrDenied) {
			out.Error = wire.ErrorDenied
		}
		out.Reason = res.Err.Error()
	}
	return out
}

// getUpdates streams an Update after every commit until the client goes
// away, the store closes, or the server is closed.
func (s *Server) getUpdates(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("failed to upgrade", "error", err)
		return
	}
	defer conn.Close()

	commits, release := s.store.WatchCommits()
	defer release()

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	// The read loop only notices the client closing.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	send := func() error {
		seq, err := s.store.LastSeq(ctx)
		if err != nil {
			return err
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(wire.Update{LastSeq: seq})
	}

	if err := send(); err != nil {
		s.logger.Debug("update stream ended", "error", err)
		return
	}
	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(writeWait))
			return
		case _, ok := <-commits:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "store closed"),
					time.Now().Add(writeWait))
				return
			}
			if err := send(); err != nil {
				s.logger.Debug("update stream ended", "error", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (s *Server) write(w http.ResponseWriter, r *http.Request, status int, v any) {
	codec := wire.Negotiate(r.Header.Get("Accept"))
	data, err := codec.Marshal(v)
	if err != nil {
		s.logger.Error("failed to encode response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", codec.ContentType())
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		s.logger.Debug("failed to write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, code, reason string) {
	s.write(w, r, status, wire.ErrorResponse{Error: code, Reason: reason})
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("request failed", "url", r.URL.String(), "error", err)
	s.writeError(w, r, http.StatusInternalServerError, "internal", "internal error")
}

func intParam(r *http.Request, name string, def int64) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}
