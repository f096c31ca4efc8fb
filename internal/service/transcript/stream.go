package transcript

import (
	"slices"

	"transcribe-stream-service/internal/models"
)

// UndoableBatch is one received batch together with the actions that roll it
// back. Inverse is already in application order for undo.
type UndoableBatch struct {
	Original []models.Action
	Inverse  []models.Action
}

// Stream is a State plus a linear undo/redo history of the batches folded
// into it. The zero value is an empty stream ready for use.
//
// Every method either commits fully or leaves the stream unchanged.
// A Stream must have a single writer.
type Stream struct {
	state   State
	history []UndoableBatch
	undone  []UndoableBatch
}

// NewStream returns an empty stream.
func NewStream() *Stream {
	return &Stream{}
}

// State returns the current state. The returned value must not be modified.
func (s *Stream) State() State { return s.state }

// Text returns the current text.
func (s *Stream) Text() string { return s.state.Text }

// Annotations returns a copy of the current annotations.
func (s *Stream) Annotations() []models.AddAnnotation {
	return slices.Clone(s.state.Annotations)
}

// History returns the batches currently folded into the state, oldest first.
func (s *Stream) History() []UndoableBatch { return slices.Clone(s.history) }

// Undone returns the batches available for redo, next-to-redo first.
func (s *Stream) Undone() []UndoableBatch { return slices.Clone(s.undone) }

// HistoryLen returns the number of batches that can be undone.
func (s *Stream) HistoryLen() int { return len(s.history) }

// UndoneLen returns the number of batches that can be redone.
func (s *Stream) UndoneLen() int { return len(s.undone) }

// ReceiveActions applies a new batch, records it for undo and clears the
// redo stack.
func (s *Stream) ReceiveActions(actions []models.Action) error {
	next, inverse, err := ApplyWithInverse(s.state, actions)
	if err != nil {
		return err
	}
	s.state = next
	s.history = append(slices.Clip(s.history), UndoableBatch{
		Original: slices.Clone(actions),
		Inverse:  inverse,
	})
	s.undone = nil
	return nil
}

// Undo rolls back the last count batches. Undone batches move to the front
// of the redo stack keeping their relative order.
func (s *Stream) Undo(count int) error {
	if count < 0 || count > len(s.history) {
		return countError("undo", count, len(s.history))
	}
	if count == 0 {
		return nil
	}

	split := len(s.history) - count
	entries := s.history[split:]
	var combined []models.Action
	for i := len(entries) - 1; i >= 0; i-- {
		combined = append(combined, entries[i].Inverse...)
	}

	next, err := Apply(s.state, combined)
	if err != nil {
		return err
	}

	undone := make([]UndoableBatch, 0, count+len(s.undone))
	undone = append(undone, entries...)
	undone = append(undone, s.undone...)

	s.state = next
	s.history = slices.Clone(s.history[:split])
	s.undone = undone
	return nil
}

// Redo re-applies the next count undone batches. With nothing to redo it is
// a no-op for any non-negative count.
func (s *Stream) Redo(count int) error {
	if count < 0 {
		return countError("redo", count, len(s.undone))
	}
	if len(s.undone) == 0 {
		return nil
	}
	if count > len(s.undone) {
		return countError("redo", count, len(s.undone))
	}

	state := s.state
	redone := make([]UndoableBatch, 0, count)
	for _, entry := range s.undone[:count] {
		next, inverse, err := ApplyWithInverse(state, entry.Original)
		if err != nil {
			return err
		}
		state = next
		redone = append(redone, UndoableBatch{Original: entry.Original, Inverse: inverse})
	}

	s.state = state
	s.history = append(slices.Clip(s.history), redone...)
	s.undone = slices.Clone(s.undone[count:])
	return nil
}
