package store

import (
	"errors"
	"fmt"

	"github.com/roach88/todosync/internal/doc"
)

var (
	// ErrNotFound is returned for unknown ids, and by Remove for records that
	// are already tombstones.
	ErrNotFound = errors.New("not found")

	// ErrConflict matches every *ConflictError.
	ErrConflict = errors.New("revision conflict")

	// ErrInvalid marks a malformed record, such as an empty id or an inbound
	// revision whose tag does not match its content.
	ErrInvalid = errors.New("invalid record")
)

// ConflictError reports a compare-and-swap failure. Current is the revision
// the caller should re-read and retry against.
type ConflictError struct {
	ID       string
	Expected doc.Revision
	Current  doc.Revision
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("revision conflict on %s: expected %q, current %q", e.ID, e.Expected, e.Current)
}

// Is makes errors.Is(err, ErrConflict) true for any ConflictError.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// CurrentRevision extracts the current revision from a conflict error.
// Uses errors.As to handle wrapped errors.
func CurrentRevision(err error) (doc.Revision, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce.Current, true
	}
	return doc.Revision{}, false
}
