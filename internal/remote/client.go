package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/todosync/internal/doc"
	"github.com/roach88/todosync/internal/replicate"
	"github.com/roach88/todosync/internal/store"
	"github.com/roach88/todosync/internal/wire"
)

// DefaultTimeout bounds each request of a Client that was not given its own
// http.Client. A peer that stalls mid-session then fails the pass and the
// coordinator retries.
const DefaultTimeout = 30 * time.Second

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code   int
	Kind   string
	Reason string
}

func (e *StatusError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("http %d %s: %s", e.Code, e.Kind, e.Reason)
	}
	return fmt.Sprintf("http %d %s", e.Code, e.Kind)
}

// Client talks to a Server. It implements replicate.Peer and
// replicate.Watcher.
type Client struct {
	base   *url.URL
	http   *http.Client
	codec  wire.Codec
	dialer *websocket.Dialer
	logger *slog.Logger

	timeout time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout sets the per-request timeout of the default HTTP client. It
// has no effect together with WithHTTPClient.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// WithCodec selects the request and response encoding. Defaults to JSON.
func WithCodec(codec wire.Codec) ClientOption {
	return func(c *Client) {
		c.codec = codec
	}
}

// WithClientLogger sets the logger. Defaults to slog.Default().
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a client for a database URL such as
// http://localhost:5984/db.
func NewClient(endpoint string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("parse endpoint %q: scheme must be http or https", endpoint)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")

	c := &Client{
		base:    u,
		codec:   wire.JSON,
		dialer:  websocket.DefaultDialer,
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: c.timeout}
	}
	return c, nil
}

// Info fetches database info.
func (c *Client) Info(ctx context.Context) (wire.Info, error) {
	var info wire.Info
	err := c.do(ctx, http.MethodGet, c.url("", nil), nil, &info)
	return info, err
}

// Changes implements replicate.Peer.
func (c *Client) Changes(ctx context.Context, since int64, limit int) (replicate.Batch, error) {
	q := url.Values{}
	q.Set("since", strconv.FormatInt(since, 10))
	q.Set("limit", strconv.Itoa(limit))

	var resp wire.ChangesResponse
	if err := c.do(ctx, http.MethodGet, c.url("/_changes", q), nil, &resp); err != nil {
		return replicate.Batch{}, err
	}

	batch := replicate.Batch{
		Changes: make([]doc.Record, 0, len(resp.Results)),
		LastSeq: resp.LastSeq,
	}
	for _, ch := range resp.Results {
		rec, err := ch.Record()
		if err != nil {
			return replicate.Batch{}, fmt.Errorf("decode changes: %w", err)
		}
		batch.Changes = append(batch.Changes, rec)
	}
	return batch, nil
}

// Apply implements replicate.Peer.
func (c *Client) Apply(ctx context.Context, recs []doc.Record) ([]replicate.Result, error) {
	req := wire.ApplyRequest{Docs: make([]wire.Change, len(recs))}
	for i, rec := range recs {
		req.Docs[i] = wire.FromRecord(rec)
	}

	var resp wire.ApplyResponse
	if err := c.do(ctx, http.MethodPost, c.url("/_apply", nil), req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) != len(recs) {
		return nil, fmt.Errorf("apply: got %d results for %d documents", len(resp.Results), len(recs))
	}

	results := make([]replicate.Result, len(resp.Results))
	for i, r := range resp.Results {
		results[i] = fromWireResult(recs[i], r)
	}
	return results, nil
}

func fromWireResult(rec doc.Record, r wire.ApplyResult) replicate.Result {
	res := replicate.Result{ID: rec.ID, Rev: rec.Rev}
	if o, err := wire.ParseOutcome(r.Outcome); err == nil {
		res.Outcome = o
	}
	switch r.Error {
	case "":
	case wire.ErrorDenied:
		res.Err = &replicate.DeniedError{ID: rec.ID, Reason: r.Reason}
	default:
		res.Err = fmt.Errorf("%w: %s", store.ErrInvalid, r.Reason)
	}
	return res
}

// Updates implements replicate.Watcher over the _updates websocket.
func (c *Client) Updates(ctx context.Context) (<-chan struct{}, error) {
	u := c.url("/_updates", nil)
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	// The dialer only honors ctx deadlines during the handshake. Closing the
	// raw connection when ctx ends also aborts a handshake that stalls, and
	// afterwards ends the stream.
	var (
		mu  sync.Mutex
		raw net.Conn
	)
	dialer := *c.dialer
	netDial := dialer.NetDialContext
	if netDial == nil {
		var nd net.Dialer
		netDial = nd.DialContext
	}
	dialer.NetDialContext = func(dctx context.Context, network, addr string) (net.Conn, error) {
		nc, err := netDial(dctx, network, addr)
		if err == nil {
			mu.Lock()
			raw = nc
			mu.Unlock()
		}
		return nc, err
	}
	context.AfterFunc(ctx, func() {
		mu.Lock()
		defer mu.Unlock()
		if raw != nil {
			raw.Close()
		}
	})

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("dial updates: %w", err)
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			var upd wire.Update
			if err := conn.ReadJSON(&upd); err != nil {
				if ctx.Err() == nil {
					c.logger.Debug("update stream closed", "error", err)
				}
				return
			}
			select {
			case out <- struct{}{}:
			default:
			}
		}
	}()
	return out, nil
}

func (c *Client) url(path string, q url.Values) *url.URL {
	u := *c.base
	u.Path += path
	if q != nil {
		u.RawQuery = q.Encode()
	}
	return &u
}

func (c *Client) do(ctx context.Context, method string, u *url.URL, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := c.codec.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", c.codec.ContentType())
	if in != nil {
		req.Header.Set("Content-Type", c.codec.ContentType())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, u.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, u.Path, err)
	}

	codec, codecErr := wire.ForContentType(resp.Header.Get("Content-Type"))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{Code: resp.StatusCode, Kind: http.StatusText(resp.StatusCode)}
		var er wire.ErrorResponse
		if codecErr == nil && codec.Unmarshal(data, &er) == nil && er.Error != "" {
			se.Kind = er.Error
			se.Reason = er.Reason
		}
		return se
	}
	if codecErr != nil {
		return fmt.Errorf("%s %s: %w", method, u.Path, codecErr)
	}

	if err := codec.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: decode: %w", method, u.Path, err)
	}
	return nil
}

var (
	_ replicate.Peer    = (*Client)(nil)
	_ replicate.Watcher = (*Client)(nil)
)
