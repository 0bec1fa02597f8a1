package replicate

import (
	"fmt"
	"time"
)

// State is the lifecycle position of a Coordinator.
type State int

const (
	// StateIdle is the state before Start.
	StateIdle State = iota
	// StateConnecting means the first pass of an attempt is running.
	StateConnecting
	// StateActive means changes are moving.
	StateActive
	// StatePaused means both sides are caught up and a live session is
	// waiting for new changes.
	StatePaused
	// StateError means the last attempt failed. With Retry the coordinator
	// reconnects after Event.Delay.
	StateError
	// StateDenied labels events for documents the peer rejected. The
	// coordinator itself never rests in this state.
	StateDenied
	// StateStopped is terminal.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StatePaused:
		return "paused"
	case StateError:
		return "error"
	case StateDenied:
		return "denied"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Event is one observer notification.
type Event struct {
	State State

	// Err is set for StateError, StateDenied, and a StateStopped caused by a
	// failure.
	Err error

	// DocID is set for StateDenied.
	DocID string

	// Pulled and Pushed count revisions that became current on the local
	// and remote side during the pass that produced a StateActive event.
	Pulled int
	Pushed int

	// Delay is the wait before the next attempt, set for StateError when
	// retrying.
	Delay time.Duration
}

func (e Event) String() string {
	switch e.State {
	case StateActive:
		return fmt.Sprintf("active pulled=%d pushed=%d", e.Pulled, e.Pushed)
	case StateError:
		if e.Delay > 0 {
			return fmt.Sprintf("error retry_in=%s: %v", e.Delay, e.Err)
		}
		return fmt.Sprintf("error: %v", e.Err)
	case StateDenied:
		return fmt.Sprintf("denied %s: %v", e.DocID, e.Err)
	case StateStopped:
		if e.Err != nil {
			return fmt.Sprintf("stopped: %v", e.Err)
		}
	}
	return e.State.String()
}
