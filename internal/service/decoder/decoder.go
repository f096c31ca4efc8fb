// Package decoder turns raw backend messages into ordered action batches.
package decoder

import (
	"errors"
	"fmt"

	"transcribe-stream-service/internal/models"
)

// ErrDecode is the sentinel every DecodeError unwraps to.
var ErrDecode = errors.New("decode error")

// Decoder converts one raw backend message into an ordered list of actions.
// Implementations must be side-effect free.
type Decoder interface {
	Decode(raw string) ([]models.Action, error)
}

// Func adapts a plain function to the Decoder interface.
type Func func(raw string) ([]models.Action, error)

// Decode calls f(raw).
func (f Func) Decode(raw string) ([]models.Action, error) { return f(raw) }

// DecodeError reports where a message diverged from the expected schema.
// Position is the index of the action in the envelope, or -1 for the
// envelope itself.
type DecodeError struct {
	Position int
	Context  string
	Field    string
	Reason   string
	Err      error
}

func (e *DecodeError) Error() string {
	var msg string
	switch {
	case e.Field != "" && e.Reason == "":
		msg = fmt.Sprintf("missing field '%s' in %s", e.Field, e.Context)
	case e.Field != "":
		msg = fmt.Sprintf("field '%s' in %s: %s", e.Field, e.Context, e.Reason)
	default:
		msg = fmt.Sprintf("%s: %s", e.Context, e.Reason)
	}
	if e.Position >= 0 {
		msg = fmt.Sprintf("%s (action %d)", msg, e.Position)
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrDecode, e.Err}
	}
	return []error{ErrDecode}
}

func missing(pos int, context, field string) *DecodeError {
	return &DecodeError{Position: pos, Context: context, Field: field}
}

func invalid(pos int, context, field, reason string) *DecodeError {
	return &DecodeError{Position: pos, Context: context, Field: field, Reason: reason}
}
