package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/todosync/internal/doc"
	"github.com/roach88/todosync/internal/store"
)

// Now subscribes from the sequence current at subscribe time, so only
// mutations committed afterwards are delivered.
const Now int64 = -1

// DefaultBatchSize is how many events are read from the log per query.
const DefaultBatchSize = 100

// ErrClosed is reported by Subscription.Err when the store was closed while a
// live subscription was waiting.
var ErrClosed = errors.New("feed: store closed")

// Feed hands out subscriptions to one store's change log.
type Feed struct {
	store     *store.Store
	batchSize int
	logger    *slog.Logger
}

// Option configures a Feed.
type Option func(*Feed)

// WithBatchSize sets how many events are read per query. Values below 1 are
// ignored.
func WithBatchSize(n int) Option {
	return func(f *Feed) {
		if n > 0 {
			f.batchSize = n
		}
	}
}

// WithLogger sets the logger used for subscription lifecycle messages.
func WithLogger(l *slog.Logger) Option {
	return func(f *Feed) {
		f.logger = l
	}
}

// New creates a Feed over s.
func New(s *store.Store, opts ...Option) *Feed {
	f := &Feed{
		store:     s,
		batchSize: DefaultBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Subscribe starts delivering events with sequence greater than since.
// Pass Now to skip everything already committed.
//
// The subscription stops when ctx is cancelled or Unsubscribe is called.
func (f *Feed) Subscribe(ctx context.Context, since int64, live bool) (*Subscription, error) {
	if since == Now {
		last, err := f.store.LastSeq(ctx)
		if err != nil {
			return nil, fmt.Errorf("subscribe: %w", err)
		}
		since = last
	}
	if since < 0 {
		return nil, fmt.Errorf("subscribe: invalid sequence %d", since)
	}

	// Register for commit signals before the first read so a commit landing
	// between the read and the wait is not missed.
	var commits <-chan struct{}
	release := func() {}
	if live {
		commits, release = f.store.WatchCommits()
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		events: make(chan doc.Event),
		cancel: cancel,
		done:   make(chan struct{}),
		cursor: since,
	}

	f.logger.Debug("feed subscribed", "since", since, "live", live)
	go sub.run(ctx, f, live, commits, release)

	return sub, nil
}

// Subscription is one consumer's position in the change log.
type Subscription struct {
	events chan doc.Event
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	cursor int64
	err    error
}

// Events returns the delivery channel. It is closed when the subscription
// ends.
func (s *Subscription) Events() <-chan doc.Event {
	return s.events
}

// Cursor returns the sequence of the last event handed to the consumer, or
// the starting sequence if none has been.
func (s *Subscription) Cursor() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Err returns the error that ended the subscription, if any. Cancellation is
// not an error.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed once the delivery goroutine has exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Unsubscribe stops delivery and waits for the delivery goroutine to exit.
// Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.cancel()
	<-s.done
}

func (s *Subscription) run(ctx context.Context, f *Feed, live bool, commits <-chan struct{}, release func()) {
	defer close(s.done)
	defer close(s.events)
	defer release()
	defer s.cancel()

	cursor := s.Cursor()
	for {
		events, err := f.store.ChangesAfter(ctx, cursor, f.batchSize)
		if err != nil {
			if ctx.Err() == nil {
				f.logger.Error("feed read failed", "cursor", cursor, "error", err)
				s.fail(err)
			}
			return
		}

		for _, ev := range events {
			// The cursor moves before the send so a consumer reading it
			// right after receiving ev sees ev.Seq.
			s.advance(ev.Seq)
			select {
			case s.events <- ev:
				cursor = ev.Seq
			case <-ctx.Done():
				s.advance(cursor)
				return
			}
		}

		if len(events) == f.batchSize {
			continue
		}
		if !live {
			return
		}

		select {
		case <-ctx.Done():
			return
		case _, ok := <-commits:
			if !ok {
				s.fail(ErrClosed)
				return
			}
		}
	}
}

func (s *Subscription) advance(seq int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = seq
}

func (s *Subscription) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}
