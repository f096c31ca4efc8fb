package decoder

import (
	"encoding/json"
	"fmt"

	"transcribe-stream-service/internal/models"
)

type wireEnvelope struct {
	Actions []wireAction `json:"actions"`
}

type wireAction struct {
	ID         string `json:"id"`
	Index      int    `json:"index"`
	Type       string `json:"type"`
	Parameters any    `json:"parameters"`
}

type wireAnnotation struct {
	ID         string `json:"id"`
	Start      int    `json:"startCharacterIndex"`
	End        int    `json:"endCharacterIndex"`
	Type       string `json:"type"`
	Parameters any    `json:"parameters,omitempty"`
}

type wireRemove struct {
	ID string `json:"id"`
}

type wireReplace struct {
	Start int    `json:"startCharacterIndex"`
	End   int    `json:"endCharacterIndex"`
	Text  string `json:"text"`
}

type wireIntent struct {
	Status string `json:"status"`
}

type wireEntity struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Encode writes actions as the envelope JSON.Decode reads.
func Encode(actions []models.Action) (string, error) {
	env := wireEnvelope{Actions: make([]wireAction, 0, len(actions))}
	for i, action := range actions {
		wa, err := encodeAction(action)
		if err != nil {
			return "", fmt.Errorf("encode action %d: %w", i, err)
		}
		env.Actions = append(env.Actions, wa)
	}
	b, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func encodeAction(action models.Action) (wireAction, error) {
	if action == nil {
		return wireAction{}, fmt.Errorf("nil action")
	}
	d := action.Data()
	wa := wireAction{ID: d.ID, Index: d.Index}

	switch a := action.(type) {
	case models.AddAnnotation:
		wa.Type = TypeAddAnnotation
		wa.Parameters = encodeAnnotation(a.Parameters)
	case models.UpdateAnnotation:
		wa.Type = TypeUpdateAnnotation
		wa.Parameters = encodeAnnotation(a.Parameters)
	case models.RemoveAnnotation:
		wa.Type = TypeRemoveAnnotation
		wa.Parameters = wireRemove{ID: a.Parameters.ID}
	case models.ReplaceText:
		wa.Type = TypeReplaceText
		wa.Parameters = wireReplace{Start: a.Parameters.Start, End: a.Parameters.End, Text: a.Parameters.Text}
	default:
		return wireAction{}, fmt.Errorf("unsupported action %T", action)
	}
	return wa, nil
}

func encodeAnnotation(p models.AnnotationParameters) wireAnnotation {
	wa := wireAnnotation{ID: p.ID, Start: p.StartCharIndex, End: p.EndCharIndex}
	switch t := p.Type.(type) {
	case models.TranscriptionTentative:
		wa.Type = AnnotationTentative
	case models.Intent:
		wa.Type = AnnotationIntent
		wa.Parameters = wireIntent{Status: t.Status.String()}
	case models.Entity:
		wa.Type = AnnotationEntity
		wa.Parameters = wireEntity{Type: t.Kind.String(), Text: t.Text}
	}
	return wa
}
