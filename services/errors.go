package services

import (
	"errors"
	"fmt"
)

var (
	ErrSessionNotFound    = errors.New("chat session not found")
	ErrInvalidSender      = errors.New("invalid message sender")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotAdmin           = errors.New("account is not allowed to access the back office")
)

// PersistenceError wraps a failure of the durable store (unreachable, rejected write).
// Not-found conditions are reported with sentinels instead.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func persistenceError(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}
