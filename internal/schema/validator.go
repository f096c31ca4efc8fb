// Package schema checks outgoing transcript events before they are published.
package schema

import (
	"errors"
	"fmt"

	"transcribe-stream-service/internal/models"
	"transcribe-stream-service/internal/service/transcript"
)

// ErrInvalidEvent is returned for events that consumers could not interpret.
var ErrInvalidEvent = errors.New("invalid event")

type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// Validate checks required fields and that every annotation lies inside the
// event's text. Offsets count UTF-16 code units.
func (v *Validator) Validate(event any) error {
	switch e := event.(type) {
	case models.TranscriptUpdated:
		if e.EventType != models.EventTranscriptUpdated {
			return invalid("eventType", "expected %q, got %q", models.EventTranscriptUpdated, e.EventType)
		}
		if e.Operation == "" {
			return invalid("operation", "must be set")
		}
		return validateCommon(e.SessionID, e.Timestamp, e.Text, e.Annotations)
	case models.TranscriptFinal:
		if e.EventType != models.EventTranscriptFinal {
			return invalid("eventType", "expected %q, got %q", models.EventTranscriptFinal, e.EventType)
		}
		if e.State == "" {
			return invalid("state", "must be set")
		}
		return validateCommon(e.SessionID, e.Timestamp, e.Text, e.Annotations)
	default:
		return fmt.Errorf("%w: unsupported type %T", ErrInvalidEvent, event)
	}
}

func validateCommon(sessionID string, ts int64, text string, anns []models.AnnotationView) error {
	if sessionID == "" {
		return invalid("sessionId", "must be set")
	}
	if ts <= 0 {
		return invalid("timestamp", "must be positive")
	}
	length := transcript.Length(text)
	for _, a := range anns {
		if a.ID == "" {
			return invalid("annotations.id", "must be set")
		}
		if a.Start < 0 || a.Start > a.End || a.End > length {
			return invalid("annotations", "%q spans [%d, %d) outside text of length %d", a.ID, a.Start, a.End, length)
		}
	}
	return nil
}

func invalid(field, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidEvent, field, fmt.Sprintf(format, args...))
}
