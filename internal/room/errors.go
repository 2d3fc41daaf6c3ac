package room

import (
	"errors"
	"fmt"
)

// Rejection reasons reported synchronously to callers. The engine never
// retries on its own; retry policy belongs to the caller.
var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrNotAuthorized = errors.New("not authorized")
	ErrWrongPassword = errors.New("wrong password")
	ErrRoomFull      = errors.New("room is full")
)

// ValidationError marks a malformed create or update payload.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PersistenceError wraps a durable-store failure. When it is returned the
// in-memory room has already been rolled back to its pre-update value.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
