// Package synth turns partial and final recognizer results into action
// batches, so that plain speech-to-text engines can drive a transcript the
// same way an action-emitting backend does.
//
// Settled text grows at the end of the transcript. The open segment is the
// tentative tail [base, base+len) carrying a TranscriptionTentative
// annotation, replaced in place by each partial and finally by the final
// text.
package synth

import (
	"sync"

	"github.com/google/uuid"

	"transcribe-stream-service/internal/models"
	"transcribe-stream-service/internal/service/transcript"
)

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithActionIDs overrides how action ids are minted.
func WithActionIDs(next func() string) Option {
	return func(s *Synthesizer) {
		s.nextActionID = next
	}
}

// WithSeparator sets the text inserted between consecutive segments.
func WithSeparator(sep string) Option {
	return func(s *Synthesizer) {
		s.separator = sep
	}
}

// Synthesizer builds action batches for one session.
// Safe for concurrent use, though recognizers call it from one goroutine.
type Synthesizer struct {
	mu           sync.Mutex
	sessionID    string
	ids          *IDGenerator
	nextActionID func() string
	separator    string

	base  int
	index int
	seg   *Segment
}

// New creates a synthesizer for sessionID. ids may be shared across sessions.
func New(sessionID string, ids *IDGenerator, opts ...Option) *Synthesizer {
	if ids == nil {
		ids = NewIDGenerator()
	}
	s := &Synthesizer{
		sessionID:    sessionID,
		ids:          ids,
		nextActionID: uuid.NewString,
		separator:    " ",
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Segment returns the open segment, or nil.
func (s *Synthesizer) Segment() *Segment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seg
}

// Partial returns the batch that shows text as the tentative tail.
func (s *Synthesizer) Partial(text string) []models.Action {
	s.mu.Lock()
	defer s.mu.Unlock()

	body := s.body(text)
	n := transcript.Length(body)

	if s.seg != nil && s.seg.State() == SegmentOpen {
		old := s.seg.Length()
		if err := s.seg.Revise(n); err != nil {
			return nil
		}
		return []models.Action{
			s.replace(s.base, s.base+old, body),
			models.UpdateAnnotation{
				ActionData: s.data(),
				Parameters: s.tentative(s.seg.ID(), n),
			},
		}
	}

	s.seg = NewSegment(s.ids.Next(s.sessionID), n)
	return []models.Action{
		s.replace(s.base, s.base, body),
		models.AddAnnotation{
			ActionData: s.data(),
			Parameters: s.tentative(s.seg.ID(), n),
		},
	}
}

// Final returns the batch that settles text, replacing any tentative tail.
func (s *Synthesizer) Final(text string) []models.Action {
	s.mu.Lock()
	defer s.mu.Unlock()

	body := s.body(text)
	n := transcript.Length(body)

	var actions []models.Action
	if s.seg != nil && s.seg.State() == SegmentOpen {
		old := s.seg.Length()
		id := s.seg.ID()
		if err := s.seg.Finalize(n); err != nil {
			return nil
		}
		s.seg.Close()
		actions = []models.Action{
			s.replace(s.base, s.base+old, body),
			models.RemoveAnnotation{
				ActionData: s.data(),
				Parameters: models.RemoveParameters{ID: id},
			},
		}
	} else if n > 0 {
		actions = []models.Action{s.replace(s.base, s.base, body)}
	}

	s.base += n
	s.seg = nil
	return actions
}

// Drop returns the batch that withdraws the tentative tail, or nil when no
// segment is open.
func (s *Synthesizer) Drop() []models.Action {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seg == nil || !s.seg.Drop() {
		return nil
	}
	seg := s.seg
	s.seg = nil
	return []models.Action{
		s.replace(s.base, s.base+seg.Length(), ""),
		models.RemoveAnnotation{
			ActionData: s.data(),
			Parameters: models.RemoveParameters{ID: seg.ID()},
		},
	}
}

// Rebase realigns the synthesizer with a transcript that changed outside
// its own batches (undo, redo, edits from another source, a rejected
// batch). An open segment survives only while its tentative annotation is
// still in st; otherwise it is dropped and new text goes after st.Text.
func (s *Synthesizer) Rebase(st transcript.State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seg != nil && s.seg.State() == SegmentOpen {
		if ann, ok := st.Annotation(s.seg.ID()); ok {
			p := ann.Parameters
			if err := s.seg.Revise(p.EndCharIndex - p.StartCharIndex); err == nil {
				s.base = p.StartCharIndex
				return
			}
		}
		s.seg.Drop()
	}
	s.seg = nil
	s.base = st.Length()
}

func (s *Synthesizer) body(text string) string {
	if text == "" || s.base == 0 {
		return text
	}
	return s.separator + text
}

func (s *Synthesizer) data() models.ActionData {
	d := models.ActionData{ID: s.nextActionID(), Index: s.index}
	s.index++
	return d
}

func (s *Synthesizer) replace(start, end int, text string) models.ReplaceText {
	return models.ReplaceText{
		ActionData: s.data(),
		Parameters: models.ReplaceTextParameters{Start: start, End: end, Text: text},
	}
}

func (s *Synthesizer) tentative(id string, n int) models.AnnotationParameters {
	return models.AnnotationParameters{
		ID:             id,
		StartCharIndex: s.base,
		EndCharIndex:   s.base + n,
		Type:           models.TranscriptionTentative{},
	}
}
