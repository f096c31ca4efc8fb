package transcript

import (
	"errors"
	"fmt"
)

// Errors returned by Apply and Stream. Callers match them with errors.Is.
var (
	// ErrInvalidRange - an offset lies outside the text, start > end, or
	// an offset splits a surrogate pair.
	ErrInvalidRange = errors.New("invalid range")
	// ErrInvalidArgument - undo/redo count out of bounds, or a nil action.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrDuplicateAnnotation - AddAnnotation with an id that is already stored.
	ErrDuplicateAnnotation = errors.New("duplicate annotation id")
)

// RangeError describes a rejected offset pair.
type RangeError struct {
	Subject string
	Start   int
	End     int
	Length  int
}

func (e *RangeError) Error() string {
	if e.Length < 0 {
		return fmt.Sprintf("%s: range [%d, %d) invalid", e.Subject, e.Start, e.End)
	}
	return fmt.Sprintf("%s: range [%d, %d) invalid for text of length %d", e.Subject, e.Start, e.End, e.Length)
}

func (e *RangeError) Unwrap() error { return ErrInvalidRange }

func countError(op string, count, limit int) error {
	return fmt.Errorf("%s count %d outside [0, %d]: %w", op, count, limit, ErrInvalidArgument)
}
