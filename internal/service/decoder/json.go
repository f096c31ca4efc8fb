package decoder

import (
	"encoding/json"
	"fmt"
	"strings"

	"transcribe-stream-service/internal/models"
)

// Wire tags.
const (
	TypeAddAnnotation    = "add_annotation"
	TypeRemoveAnnotation = "remove_annotation"
	TypeUpdateAnnotation = "update_annotation"
	TypeReplaceText      = "replace_text"

	AnnotationTentative = "transcription_tentative"
	AnnotationIntent    = "intent"
	AnnotationEntity    = "entity"

	IntentPending    = "pending"
	IntentRecognized = "recognized"

	EntityName = "name"
)

type envelope struct {
	Actions *[]rawAction `json:"actions"`
}

type rawAction struct {
	ID         *string         `json:"id"`
	Index      *int            `json:"index"`
	Type       *string         `json:"type"`
	Parameters json.RawMessage `json:"parameters"`
}

type rawAnnotation struct {
	ID         *string         `json:"id"`
	Start      *int            `json:"startCharacterIndex"`
	End        *int            `json:"endCharacterIndex"`
	Type       *string         `json:"type"`
	Parameters json.RawMessage `json:"parameters"`
}

type rawRemove struct {
	ID *string `json:"id"`
}

type rawReplace struct {
	Start *int    `json:"startCharacterIndex"`
	End   *int    `json:"endCharacterIndex"`
	Text  *string `json:"text"`
}

type rawIntent struct {
	Status *string `json:"status"`
}

type rawEntity struct {
	Type *string `json:"type"`
	Text *string `json:"text"`
}

// JSON decodes the envelope
//
//	{"actions": [{"id": "...", "index": 0, "type": "replace_text", "parameters": {...}}]}
//
// It holds no state; the zero value is ready to use.
type JSON struct{}

// NewJSON returns the default envelope decoder.
func NewJSON() JSON { return JSON{} }

// Decode implements Decoder.
func (JSON) Decode(raw string) ([]models.Action, error) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, &DecodeError{Position: -1, Context: "envelope", Reason: "invalid JSON", Err: err}
	}
	if env.Actions == nil {
		return nil, missing(-1, "envelope", "actions")
	}

	actions := make([]models.Action, 0, len(*env.Actions))
	for i, ra := range *env.Actions {
		a, err := decodeAction(i, ra)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, nil
}

func decodeAction(pos int, ra rawAction) (models.Action, error) {
	if ra.ID == nil {
		return nil, missing(pos, "action", "id")
	}
	if ra.Index == nil {
		return nil, missing(pos, "action", "index")
	}
	if ra.Type == nil {
		return nil, missing(pos, "action", "type")
	}
	data := models.ActionData{ID: *ra.ID, Index: *ra.Index}

	switch *ra.Type {
	case TypeAddAnnotation:
		p, err := decodeAnnotation(pos, "AddAnnotation parameters", ra.Parameters)
		if err != nil {
			return nil, err
		}
		return models.AddAnnotation{ActionData: data, Parameters: p}, nil
	case TypeUpdateAnnotation:
		p, err := decodeAnnotation(pos, "UpdateAnnotation parameters", ra.Parameters)
		if err != nil {
			return nil, err
		}
		return models.UpdateAnnotation{ActionData: data, Parameters: p}, nil
	case TypeRemoveAnnotation:
		const ctx = "RemoveAnnotation parameters"
		var rr rawRemove
		if err := unmarshalParams(pos, ctx, ra.Parameters, &rr); err != nil {
			return nil, err
		}
		if rr.ID == nil {
			return nil, missing(pos, ctx, "id")
		}
		return models.RemoveAnnotation{ActionData: data, Parameters: models.RemoveParameters{ID: *rr.ID}}, nil
	case TypeReplaceText:
		const ctx = "ReplaceText parameters"
		var rr rawReplace
		if err := unmarshalParams(pos, ctx, ra.Parameters, &rr); err != nil {
			return nil, err
		}
		switch {
		case rr.Start == nil:
			return nil, missing(pos, ctx, "startCharacterIndex")
		case rr.End == nil:
			return nil, missing(pos, ctx, "endCharacterIndex")
		case rr.Text == nil:
			return nil, missing(pos, ctx, "text")
		}
		return models.ReplaceText{
			ActionData: data,
			Parameters: models.ReplaceTextParameters{Start: *rr.Start, End: *rr.End, Text: *rr.Text},
		}, nil
	default:
		return nil, invalid(pos, "action", "type", fmt.Sprintf("unknown action type '%s'", *ra.Type))
	}
}

func unmarshalParams(pos int, ctx string, raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return missing(pos, strings.TrimSuffix(ctx, " parameters"), "parameters")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &DecodeError{Position: pos, Context: ctx, Reason: "invalid JSON", Err: err}
	}
	return nil
}

func decodeAnnotation(pos int, ctx string, raw json.RawMessage) (models.AnnotationParameters, error) {
	var ra rawAnnotation
	if err := unmarshalParams(pos, ctx, raw, &ra); err != nil {
		return models.AnnotationParameters{}, err
	}
	switch {
	case ra.ID == nil:
		return models.AnnotationParameters{}, missing(pos, ctx, "id")
	case *ra.ID == "":
		return models.AnnotationParameters{}, invalid(pos, ctx, "id", "annotation id must not be empty")
	case ra.Start == nil:
		return models.AnnotationParameters{}, missing(pos, ctx, "startCharacterIndex")
	case ra.End == nil:
		return models.AnnotationParameters{}, missing(pos, ctx, "endCharacterIndex")
	case ra.Type == nil:
		return models.AnnotationParameters{}, missing(pos, ctx, "type")
	}

	typ, err := decodeAnnotationType(pos, *ra.Type, ra.Parameters)
	if err != nil {
		return models.AnnotationParameters{}, err
	}
	return models.AnnotationParameters{
		ID:             *ra.ID,
		StartCharIndex: *ra.Start,
		EndCharIndex:   *ra.End,
		Type:           typ,
	}, nil
}

func decodeAnnotationType(pos int, tag string, raw json.RawMessage) (models.AnnotationType, error) {
	switch tag {
	case AnnotationTentative:
		return models.TranscriptionTentative{}, nil
	case AnnotationIntent:
		const ctx = "Intent parameters"
		var ri rawIntent
		if err := unmarshalParams(pos, ctx, raw, &ri); err != nil {
			return nil, err
		}
		if ri.Status == nil {
			return nil, missing(pos, ctx, "status")
		}
		switch *ri.Status {
		case IntentPending:
			return models.Intent{Status: models.IntentPending}, nil
		case IntentRecognized:
			return models.Intent{Status: models.IntentRecognized}, nil
		default:
			return nil, invalid(pos, ctx, "status", fmt.Sprintf("unknown intent status '%s'", *ri.Status))
		}
	case AnnotationEntity:
		const ctx = "Entity parameters"
		var re rawEntity
		if err := unmarshalParams(pos, ctx, raw, &re); err != nil {
			return nil, err
		}
		if re.Type == nil {
			return nil, missing(pos, ctx, "type")
		}
		if re.Text == nil {
			return nil, missing(pos, ctx, "text")
		}
		if *re.Type != EntityName {
			return nil, invalid(pos, ctx, "type", fmt.Sprintf("unknown entity type '%s'", *re.Type))
		}
		return models.Entity{Kind: models.EntityName, Text: *re.Text}, nil
	default:
		return nil, invalid(pos, "annotation", "type", fmt.Sprintf("unknown annotation type '%s'", tag))
	}
}
