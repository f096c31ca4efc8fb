package models

// Event types carried in the eventType field and the Kafka eventType header.
const (
	EventTranscriptUpdated = "transcript.updated"
	EventTranscriptFinal   = "transcript.final"
)

// AnnotationView is the flattened, JSON-friendly form of a stored annotation.
type AnnotationView struct {
	ID         string `json:"id"`
	ActionID   string `json:"actionId"`
	Start      int    `json:"startCharacterIndex"`
	End        int    `json:"endCharacterIndex"`
	Type       string `json:"type"`
	Status     string `json:"status,omitempty"`
	EntityKind string `json:"entityType,omitempty"`
	EntityText string `json:"entityText,omitempty"`
}

// NewAnnotationView flattens a stored annotation.
func NewAnnotationView(a AddAnnotation) AnnotationView {
	v := AnnotationView{
		ID:       a.Parameters.ID,
		ActionID: a.ActionData.ID,
		Start:    a.Parameters.StartCharIndex,
		End:      a.Parameters.EndCharIndex,
	}
	switch t := a.Parameters.Type.(type) {
	case TranscriptionTentative:
		v.Type = t.Name()
	case Intent:
		v.Type = t.Name()
		v.Status = t.Status.String()
	case Entity:
		v.Type = t.Name()
		v.EntityKind = t.Kind.String()
		v.EntityText = t.Text
	}
	return v
}

// NewAnnotationViews flattens a list of stored annotations.
func NewAnnotationViews(annotations []AddAnnotation) []AnnotationView {
	views := make([]AnnotationView, 0, len(annotations))
	for _, a := range annotations {
		views = append(views, NewAnnotationView(a))
	}
	return views
}

// TranscriptUpdated is published after every committed change to a session's transcript.
type TranscriptUpdated struct {
	EventType   string           `json:"eventType"`
	SessionID   string           `json:"sessionId"`
	TenantID    string           `json:"tenantId,omitempty"`
	Timestamp   int64            `json:"timestamp"`
	Operation   string           `json:"operation"`
	ActionCount int              `json:"actionCount"`
	Text        string           `json:"text"`
	Annotations []AnnotationView `json:"annotations"`
	HistoryLen  int              `json:"historyLength"`
	UndoneLen   int              `json:"undoneLength"`
}

// TranscriptFinal is published once when a session closes.
type TranscriptFinal struct {
	EventType   string           `json:"eventType"`
	SessionID   string           `json:"sessionId"`
	TenantID    string           `json:"tenantId,omitempty"`
	Timestamp   int64            `json:"timestamp"`
	Text        string           `json:"text"`
	Annotations []AnnotationView `json:"annotations"`
	State       string           `json:"state"`
	Error       string           `json:"error,omitempty"`
}
