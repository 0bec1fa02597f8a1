package replicate

import "sync"

// outbox is a thread-safe FIFO of observer events.
//
// It is unbounded so publishing from the replication goroutine never blocks
// on a slow observer. A channel buffered to one slot signals availability and
// is closed by Close to wake the dispatcher for the final drain.
type outbox struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{}
}

func newOutbox() *outbox {
	return &outbox{
		events: make([]Event, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds ev to the back. Returns false once the outbox is closed.
func (q *outbox) Enqueue(ev Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.events = append(q.events, ev)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front event without blocking.
func (q *outbox) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}
	ev := q.events[0]
	q.events[0] = Event{} // release Err for GC
	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}
	return ev, true
}

// Wait returns the availability signal. It is closed by Close.
func (q *outbox) Wait() <-chan struct{} {
	return q.signal
}

// Close rejects further events. Queued events stay dequeueable.
func (q *outbox) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

// dispatch delivers queued events to fn in order until the outbox is closed
// and empty.
func (q *outbox) dispatch(fn func(Event)) {
	for {
		for {
			ev, ok := q.TryDequeue()
			if !ok {
				break
			}
			fn(ev)
		}
		if _, open := <-q.Wait(); !open {
			for {
				ev, ok := q.TryDequeue()
				if !ok {
					return
				}
				fn(ev)
			}
		}
	}
}
