package models

import "fmt"

// AnnotationType is the closed set of annotation kinds.
type AnnotationType interface {
	Name() string
	isAnnotationType()
}

// TranscriptionTentative marks text that later messages may still revise.
type TranscriptionTentative struct{}

// IntentStatus is the recognition state of an intent annotation.
type IntentStatus int

const (
	IntentPending IntentStatus = iota
	IntentRecognized
)

// String returns the wire value of the status.
func (s IntentStatus) String() string {
	switch s {
	case IntentPending:
		return "pending"
	case IntentRecognized:
		return "recognized"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Intent marks a span as carrying a (possibly pending) intent.
type Intent struct {
	Status IntentStatus
}

// EntityKind enumerates recognized entity kinds.
type EntityKind int

const (
	EntityName EntityKind = iota
)

// String returns the wire value of the kind.
func (k EntityKind) String() string {
	switch k {
	case EntityName:
		return "name"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Entity marks a span as a named entity.
type Entity struct {
	Kind EntityKind
	Text string
}

func (TranscriptionTentative) Name() string { return "transcription_tentative" }
func (Intent) Name() string                 { return "intent" }
func (Entity) Name() string                 { return "entity" }

func (TranscriptionTentative) isAnnotationType() {}
func (Intent) isAnnotationType()                 {}
func (Entity) isAnnotationType()                 {}
