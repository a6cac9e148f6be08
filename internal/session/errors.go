package session

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy rejects a submit while another command is in flight on the
	// same session. The caller may retry once the session is ready again.
	ErrBusy = errors.New("command already in flight")

	// ErrTimeout reports that a command exceeded its deadline. The session
	// remains usable; the remote process may still complete asynchronously.
	ErrTimeout = errors.New("command timed out")

	// ErrSessionClosed rejects operations on a terminated session.
	ErrSessionClosed = errors.New("session closed")

	// ErrSessionExists rejects a connect under an already-registered name.
	ErrSessionExists = errors.New("session name already in use")

	// ErrSessionNotFound reports an unknown session name.
	ErrSessionNotFound = errors.New("session not found")
)

// ConnectError wraps a failure to establish or initialize a session. It is
// fatal to the connection attempt and is not retried internally.
type ConnectError struct {
	Target string
	Err    error
}

func (e *ConnectError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("connect failed: %v", e.Err)
	}
	return fmt.Sprintf("connect %s: %v", e.Target, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}
