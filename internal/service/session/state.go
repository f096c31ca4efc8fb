package session

import "errors"

// State is the lifecycle state of a session.
type State int

const (
	// StateIdle means the session exists but Start has not been called.
	StateIdle State = iota
	// StateConnecting means the transport is being connected.
	StateConnecting
	// StateOpen means the backend accepted the connection and audio may flow.
	StateOpen
	// StateClosed means the session ended normally.
	StateClosed
	// StateFailed means the transport ended abnormally. The transcript is
	// still readable.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateClosed:
		return "CLOSED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal returns true if the session can no longer accept audio or edits.
func (s State) IsTerminal() bool {
	return s == StateClosed || s == StateFailed
}

var (
	// ErrSessionClosed is returned for operations on a session that has ended.
	ErrSessionClosed = errors.New("session is closed")

	// ErrNotOpen is returned when audio is sent before the backend accepted
	// the connection.
	ErrNotOpen = errors.New("session is not open")

	// ErrLimitExceeded is returned when a session exceeds its audio limits.
	// The session is closed.
	ErrLimitExceeded = errors.New("session limit exceeded")

	// ErrNotFound is returned by the manager for unknown session ids.
	ErrNotFound = errors.New("session not found")

	// ErrTooManySessions is returned when the manager is at capacity.
	ErrTooManySessions = errors.New("too many active sessions")
)
