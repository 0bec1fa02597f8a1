package replicate

import (
	"errors"
	"fmt"
)

var (
	// ErrDenied matches every *DeniedError.
	ErrDenied = errors.New("document denied")

	// ErrConnectionLost is returned when the peer's update stream ends
	// during a live session.
	ErrConnectionLost = errors.New("connection lost")

	// ErrLocalClosed is returned when the local store is closed under a
	// running coordinator. It stops the coordinator even with Retry.
	ErrLocalClosed = errors.New("local store closed")

	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("coordinator already started")
)

// DeniedError is a per-document rejection by the receiving side.
type DeniedError struct {
	ID     string
	Reason string
}

func (e *DeniedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("document %s denied", e.ID)
	}
	return fmt.Sprintf("document %s denied: %s", e.ID, e.Reason)
}

// Is makes errors.Is(err, ErrDenied) true for any DeniedError.
func (e *DeniedError) Is(target error) bool {
	return target == ErrDenied
}
