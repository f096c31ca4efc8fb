// Package transport defines the boundary between a transcription session and
// the backend that produces edit actions.
package transport

import (
	"context"
	"errors"

	"transcribe-stream-service/internal/service/transcript"
)

// ErrClosed is returned by Send after Disconnect or remote close.
var ErrClosed = errors.New("transport is closed")

// Listener receives lifecycle events from a Transport. OnMessage is called
// from a single goroutine in arrival order.
type Listener interface {
	// OnOpen is called once the backend accepted the connection.
	OnOpen()

	// OnMessage is called for every raw message from the backend.
	OnMessage(raw string)

	// OnError is called when the connection terminates abnormally.
	OnError(err error)

	// OnClose is called exactly once when the connection is gone, after any OnError.
	OnClose()
}

// Transport connects a session to a backend (websocket service, cloud
// recognizer, simulator).
type Transport interface {
	// Connect opens the session and starts delivering events to l.
	Connect(ctx context.Context, l Listener) error

	// Send pushes one audio frame to the backend.
	Send(ctx context.Context, audio []byte) error

	// Disconnect signals end of audio and releases resources. The listener
	// still receives OnClose.
	Disconnect() error
}

// Rebaser is implemented by transports that compute action offsets from
// their own view of the transcript. The session calls Rebase with the
// current state whenever the transcript changed other than by applying
// one of the transport's own batches.
type Rebaser interface {
	Rebase(st transcript.State)
}

// Factory creates a Transport for a new session.
type Factory func(sessionID string) (Transport, error)
