// Package models defines the action vocabulary folded into a transcript and
// the event payloads published about it.
package models

import "fmt"

// ActionKind identifies one of the four action variants.
type ActionKind int

const (
	KindAddAnnotation ActionKind = iota
	KindRemoveAnnotation
	KindUpdateAnnotation
	KindReplaceText
)

// String returns the wire tag of the kind.
func (k ActionKind) String() string {
	switch k {
	case KindAddAnnotation:
		return "add_annotation"
	case KindRemoveAnnotation:
		return "remove_annotation"
	case KindUpdateAnnotation:
		return "update_annotation"
	case KindReplaceText:
		return "replace_text"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// ActionData is the server-assigned identity of an edit operation.
// Index is informational: batches are applied in list order.
type ActionData struct {
	ID    string
	Index int
}

// Action is one atomic edit. The set of implementations is closed;
// consumers switch over the concrete types.
type Action interface {
	Data() ActionData
	Kind() ActionKind
	isAction()
}

// AnnotationParameters describe an offset-addressed span over the text.
// ID identifies the annotation, not the operation that carries it.
type AnnotationParameters struct {
	ID             string
	StartCharIndex int
	EndCharIndex   int
	Type           AnnotationType
}

// AddAnnotation appends an annotation. Stored annotations keep this shape.
type AddAnnotation struct {
	ActionData ActionData
	Parameters AnnotationParameters
}

// RemoveParameters target an existing annotation by id.
type RemoveParameters struct {
	ID string
}

// RemoveAnnotation removes the annotation with the given id, if any.
type RemoveAnnotation struct {
	ActionData ActionData
	Parameters RemoveParameters
}

// UpdateAnnotation replaces the annotation with Parameters.ID, if any.
type UpdateAnnotation struct {
	ActionData ActionData
	Parameters AnnotationParameters
}

// ReplaceTextParameters splice Text over [Start, End) of the current text.
type ReplaceTextParameters struct {
	Start int
	End   int
	Text  string
}

// ReplaceText splices the transcript text.
type ReplaceText struct {
	ActionData ActionData
	Parameters ReplaceTextParameters
}

func (a AddAnnotation) Data() ActionData    { return a.ActionData }
func (a RemoveAnnotation) Data() ActionData { return a.ActionData }
func (a UpdateAnnotation) Data() ActionData { return a.ActionData }
func (a ReplaceText) Data() ActionData      { return a.ActionData }

func (AddAnnotation) Kind() ActionKind    { return KindAddAnnotation }
func (RemoveAnnotation) Kind() ActionKind { return KindRemoveAnnotation }
func (UpdateAnnotation) Kind() ActionKind { return KindUpdateAnnotation }
func (ReplaceText) Kind() ActionKind      { return KindReplaceText }

func (AddAnnotation) isAction()    {}
func (RemoveAnnotation) isAction() {}
func (UpdateAnnotation) isAction() {}
func (ReplaceText) isAction()      {}
