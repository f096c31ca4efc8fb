// Package transcript folds ordered batches of edit actions into a text plus
// annotation state, and keeps the undo/redo history of those batches.
//
// Everything here is synchronous and single-writer. Concurrency belongs to
// the session that owns a Stream.
package transcript

import (
	"fmt"
	"slices"

	"transcribe-stream-service/internal/models"
)

// State is the current transcript text and its annotations in insertion order.
// A committed State is never mutated in place; Apply always builds a new one.
type State struct {
	Text        string
	Annotations []models.AddAnnotation
}

// Length returns the UTF-16 length of the text.
func (s State) Length() int {
	return Length(s.Text)
}

// Clone returns a copy that shares nothing mutable with s.
func (s State) Clone() State {
	return State{Text: s.Text, Annotations: slices.Clone(s.Annotations)}
}

// Equal reports whether both states carry the same text and the same
// annotations in the same order.
func (s State) Equal(o State) bool {
	if s.Text != o.Text || len(s.Annotations) != len(o.Annotations) {
		return false
	}
	for i := range s.Annotations {
		if s.Annotations[i] != o.Annotations[i] {
			return false
		}
	}
	return true
}

// Annotation returns the stored annotation with the given id.
func (s State) Annotation(id string) (models.AddAnnotation, bool) {
	if i := indexOf(s.Annotations, id); i >= 0 {
		return s.Annotations[i], true
	}
	return models.AddAnnotation{}, false
}

// Apply folds actions into s strictly in list order. The batch is atomic:
// on error the returned State is the zero value and s is untouched.
func Apply(s State, actions []models.Action) (State, error) {
	next, _, err := fold(s, actions, false)
	return next, err
}

// ApplyWithInverse is Apply that also returns the actions which, applied to
// the returned state, restore s exactly.
func ApplyWithInverse(s State, actions []models.Action) (State, []models.Action, error) {
	return fold(s, actions, true)
}

func fold(s State, actions []models.Action, withInverse bool) (State, []models.Action, error) {
	text := s.Text
	anns := slices.Clone(s.Annotations)
	var groups [][]models.Action

	for i, action := range actions {
		var (
			inv []models.Action
			err error
		)
		switch a := action.(type) {
		case models.AddAnnotation:
			anns, inv, err = addAnnotation(anns, a)
		case models.RemoveAnnotation:
			anns, inv = removeAnnotation(anns, a)
		case models.UpdateAnnotation:
			inv, err = updateAnnotation(anns, a)
		case models.ReplaceText:
			text, inv, err = replaceText(text, a)
		case nil:
			err = fmt.Errorf("nil action: %w", ErrInvalidArgument)
		default:
			err = fmt.Errorf("unsupported action %T: %w", action, ErrInvalidArgument)
		}
		if err != nil {
			return State{}, nil, wrapAction(i, action, err)
		}
		if withInverse && len(inv) > 0 {
			groups = append(groups, inv)
		}
	}

	length := Length(text)
	for _, a := range anns {
		p := a.Parameters
		if p.StartCharIndex < 0 || p.StartCharIndex > p.EndCharIndex || p.EndCharIndex > length {
			return State{}, nil, &RangeError{
				Subject: fmt.Sprintf("annotation %q", p.ID),
				Start:   p.StartCharIndex,
				End:     p.EndCharIndex,
				Length:  length,
			}
		}
	}

	var inverse []models.Action
	if withInverse {
		for i := len(groups) - 1; i >= 0; i-- {
			inverse = append(inverse, groups[i]...)
		}
	}
	return State{Text: text, Annotations: anns}, inverse, nil
}

func wrapAction(i int, action models.Action, err error) error {
	if action == nil {
		return fmt.Errorf("action %d: %w", i, err)
	}
	d := action.Data()
	return fmt.Errorf("action %d (%s id=%q): %w", i, action.Kind(), d.ID, err)
}

func indexOf(anns []models.AddAnnotation, id string) int {
	return slices.IndexFunc(anns, func(a models.AddAnnotation) bool {
		return a.Parameters.ID == id
	})
}

func checkOrder(p models.AnnotationParameters) error {
	if p.StartCharIndex < 0 || p.StartCharIndex > p.EndCharIndex {
		return &RangeError{
			Subject: fmt.Sprintf("annotation %q", p.ID),
			Start:   p.StartCharIndex,
			End:     p.EndCharIndex,
			Length:  -1,
		}
	}
	return nil
}

func addAnnotation(anns []models.AddAnnotation, a models.AddAnnotation) ([]models.AddAnnotation, []models.Action, error) {
	if indexOf(anns, a.Parameters.ID) >= 0 {
		return nil, nil, fmt.Errorf("annotation %q: %w", a.Parameters.ID, ErrDuplicateAnnotation)
	}
	if err := checkOrder(a.Parameters); err != nil {
		return nil, nil, err
	}
	inv := []models.Action{models.RemoveAnnotation{
		ActionData: a.ActionData,
		Parameters: models.RemoveParameters{ID: a.Parameters.ID},
	}}
	return append(anns, a), inv, nil
}

// removeAnnotation drops the first match. Its inverse takes every later
// annotation off, re-adds the removed one, then re-adds the later ones so
// the insertion order comes back unchanged.
func removeAnnotation(anns []models.AddAnnotation, r models.RemoveAnnotation) ([]models.AddAnnotation, []models.Action) {
	idx := indexOf(anns, r.Parameters.ID)
	if idx < 0 {
		return anns, nil
	}
	later := anns[idx+1:]
	inv := make([]models.Action, 0, 2*len(later)+1)
	for _, l := range later {
		inv = append(inv, models.RemoveAnnotation{
			ActionData: r.ActionData,
			Parameters: models.RemoveParameters{ID: l.Parameters.ID},
		})
	}
	inv = append(inv, anns[idx])
	for _, l := range later {
		inv = append(inv, l)
	}
	return slices.Delete(anns, idx, idx+1), inv
}

func updateAnnotation(anns []models.AddAnnotation, u models.UpdateAnnotation) ([]models.Action, error) {
	idx := indexOf(anns, u.Parameters.ID)
	if idx < 0 {
		return nil, nil
	}
	if err := checkOrder(u.Parameters); err != nil {
		return nil, err
	}
	prior := anns[idx]
	anns[idx] = models.AddAnnotation{ActionData: u.ActionData, Parameters: u.Parameters}
	return []models.Action{models.UpdateAnnotation{
		ActionData: prior.ActionData,
		Parameters: prior.Parameters,
	}}, nil
}

func replaceText(text string, r models.ReplaceText) (string, []models.Action, error) {
	p := r.Parameters
	next, removed, err := splice(text, p.Start, p.End, p.Text)
	if err != nil {
		return "", nil, err
	}
	inv := []models.Action{models.ReplaceText{
		ActionData: r.ActionData,
		Parameters: models.ReplaceTextParameters{
			Start: p.Start,
			End:   p.Start + Length(p.Text),
			Text:  removed,
		},
	}}
	return next, inv, nil
}
