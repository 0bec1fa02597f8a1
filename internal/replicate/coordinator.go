package replicate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/todosync/internal/store"
)

// Coordinator drives replication between a local store and one peer.
//
// Thread-safety model:
//   - Start, Stop, State, Err, Done: safe from any goroutine
//   - passes run on a single goroutine owned by the coordinator, so at most
//     one pass is in flight
//   - observers run on a separate dispatcher goroutine
type Coordinator struct {
	local   *store.Store
	remote  Peer
	cfg     Config
	filter  *Filter
	backoff BackoffFunc
	logger  *slog.Logger

	observer func(Event)
	outbox   *outbox

	mu      sync.Mutex
	state   State
	err     error
	started bool
	cancel  context.CancelFunc
	done    chan struct{}

	// delay is the last backoff delay. Only the run goroutine touches it.
	delay time.Duration
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithObserver registers fn to receive every event, in order, on the
// dispatcher goroutine.
func WithObserver(fn func(Event)) Option {
	return func(c *Coordinator) {
		c.observer = fn
	}
}

// WithBackoff replaces the Config.BackoffBase/BackoffCap schedule.
func WithBackoff(fn BackoffFunc) Option {
	return func(c *Coordinator) {
		c.backoff = fn
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// New creates an idle coordinator. It fails if cfg has no endpoint or its
// filter does not compile.
func New(local *store.Store, remote Peer, cfg Config, opts ...Option) (*Coordinator, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	filter, err := CompileFilter(cfg.Filter)
	if err != nil {
		return nil, fmt.Errorf("replicate: %w", err)
	}

	c := &Coordinator{
		local:  local,
		remote: remote,
		cfg:    cfg,
		filter: filter,
		logger: slog.Default(),
		outbox: newOutbox(),
		state:  StateIdle,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.backoff == nil {
		c.backoff = Backoff(cfg.BackoffBase, cfg.BackoffCap)
	}
	c.logger = c.logger.With("endpoint", cfg.Endpoint)

	return c, nil
}

// Start launches replication. It returns immediately; use Done to wait.
// Cancelling ctx has the same effect as Stop.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return ErrAlreadyStarted
	}
	c.started = true

	ctx, c.cancel = context.WithCancel(ctx)
	go c.run(ctx)
	return nil
}

// Stop cancels replication and waits until in-flight I/O has finished and
// the Stopped event has been delivered. Calling Stop on an idle coordinator
// moves it straight to Stopped.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.started {
		c.started = true
		c.mu.Unlock()
		c.finish(nil)
		return
	}
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	<-c.done
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the failure that stopped the coordinator, or nil.
func (c *Coordinator) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Done is closed after the coordinator reached Stopped and observers have
// seen every event.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

func (c *Coordinator) run(ctx context.Context) {
	var dispatched chan struct{}
	if c.observer != nil {
		dispatched = make(chan struct{})
		go func() {
			defer close(dispatched)
			c.outbox.dispatch(c.observer)
		}()
	}

	c.logger.Info("replication starting", "live", c.cfg.Live, "retry", c.cfg.Retry)
	err := c.loop(ctx)
	c.finishWith(err, dispatched)
}

// loop runs attempts until one-shot completion, cancellation, or a failure
// that is not retried. It returns the failure that ended it, if any.
func (c *Coordinator) loop(ctx context.Context) error {
	for {
		c.transition(Event{State: StateConnecting})

		err := c.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			return nil
		}

		if !c.cfg.Retry || errors.Is(err, ErrLocalClosed) {
			c.logger.Error("replication failed", "error", err)
			c.transition(Event{State: StateError, Err: err})
			return err
		}

		c.delay = c.backoff(c.delay)
		c.logger.Warn("replication attempt failed", "error", err, "retry_in", c.delay)
		c.transition(Event{State: StateError, Err: err, Delay: c.delay})

		timer := time.NewTimer(c.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// session runs one connected attempt. It returns nil when a one-shot
// replication has caught up or ctx ends, and an error otherwise.
func (c *Coordinator) session(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Everything up to the end of the first pass, including opening the
	// peer's update stream, shares one ConnectTimeout budget.
	connectCtx, connectCancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer connectCancel()

	// Subscribe before the first pass so commits made during it wake the
	// session afterwards.
	var localCommits, remoteUpdates <-chan struct{}
	if c.cfg.Live {
		var release func()
		localCommits, release = c.local.WatchCommits()
		defer release()

		if w, ok := c.remote.(Watcher); ok {
			updates, err := c.watch(ctx, connectCtx, w)
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			remoteUpdates = updates
		}
	}

	res, err := c.pass(connectCtx)
	connectCancel()
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	c.delay = 0
	c.transition(Event{State: StateActive, Pulled: res.pulled, Pushed: res.pushed})
	if err := c.drain(ctx, res); err != nil {
		return err
	}

	if !c.cfg.Live {
		c.logger.Info("replication complete")
		return nil
	}

	var poll <-chan time.Time
	if c.cfg.PollInterval > 0 {
		ticker := time.NewTicker(c.cfg.PollInterval)
		defer ticker.Stop()
		poll = ticker.C
	}

	for {
		c.transition(Event{State: StatePaused})

		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-localCommits:
			if !ok {
				return ErrLocalClosed
			}
		case _, ok := <-remoteUpdates:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return ErrConnectionLost
			}
		case <-poll:
		}

		res, err := c.pass(ctx)
		if err != nil {
			return err
		}
		if res.moved() {
			c.transition(Event{State: StateActive, Pulled: res.pulled, Pushed: res.pushed})
		}
		if err := c.drain(ctx, res); err != nil {
			return err
		}
	}
}

// watch opens w's update stream. The stream lives as long as ctx, but
// opening it is abandoned when connectCtx ends first.
func (c *Coordinator) watch(ctx, connectCtx context.Context, w Watcher) (<-chan struct{}, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(connectCtx, cancel)

	updates, err := w.Updates(streamCtx)
	if !stop() {
		// connectCtx ended while dialing and streamCtx is already cancelled.
		return nil, fmt.Errorf("open updates: %w", connectCtx.Err())
	}
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open updates: %w", err)
	}
	return updates, nil
}

// drain keeps passing while the previous pass hit the batch limit.
func (c *Coordinator) drain(ctx context.Context, res passResult) error {
	for res.more {
		var err error
		res, err = c.pass(ctx)
		if err != nil {
			return err
		}
		if res.moved() {
			c.transition(Event{State: StateActive, Pulled: res.pulled, Pushed: res.pushed})
		}
	}
	return nil
}

// transition records ev.State as the current state and publishes ev.
func (c *Coordinator) transition(ev Event) {
	c.mu.Lock()
	prev := c.state
	c.state = ev.State
	c.mu.Unlock()

	if prev == ev.State && ev.State == StatePaused {
		return
	}
	c.logger.Debug("replication state", "from", prev, "to", ev.State)
	c.publish(ev)
}

// publish hands ev to the observer without changing state.
func (c *Coordinator) publish(ev Event) {
	if c.observer != nil {
		c.outbox.Enqueue(ev)
	}
}

func (c *Coordinator) finish(err error) {
	c.finishWith(err, nil)
}

// finishWith emits Stopped after all replication I/O has returned, waits for
// the dispatcher to deliver it, then closes Done.
func (c *Coordinator) finishWith(err error, dispatched chan struct{}) {
	c.mu.Lock()
	c.state = StateStopped
	c.err = err
	c.mu.Unlock()

	c.publish(Event{State: StateStopped, Err: err})
	c.outbox.Close()
	if dispatched != nil {
		<-dispatched
	} else if c.observer != nil {
		c.outbox.dispatch(c.observer)
	}

	c.logger.Info("replication stopped", "error", err)
	close(c.done)
}
