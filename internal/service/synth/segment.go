package synth

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// IDGenerator hands out annotation ids for tentative segments.
// Safe for concurrent use; the counter is shared across sessions.
type IDGenerator struct {
	counter uint64
}

// NewIDGenerator returns a generator starting at 1.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{}
}

// Next returns "<sessionID>-seg-N".
func (g *IDGenerator) Next(sessionID string) string {
	n := atomic.AddUint64(&g.counter, 1)
	return fmt.Sprintf("%s-seg-%d", sessionID, n)
}

// SegmentState is the lifecycle state of one tentative segment.
type SegmentState int

const (
	// SegmentOpen - tentative text is on screen and may be revised.
	SegmentOpen SegmentState = iota
	// SegmentFinal - the final text replaced the tentative text.
	SegmentFinal
	// SegmentClosed - settled; nothing more is emitted for it.
	SegmentClosed
	// SegmentDropped - tentative text was withdrawn without a final.
	SegmentDropped
)

// String returns the string representation of the state.
func (s SegmentState) String() string {
	switch s {
	case SegmentOpen:
		return "OPEN"
	case SegmentFinal:
		return "FINAL"
	case SegmentClosed:
		return "CLOSED"
	case SegmentDropped:
		return "DROPPED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal returns true for CLOSED and DROPPED.
func (s SegmentState) IsTerminal() bool {
	return s == SegmentClosed || s == SegmentDropped
}

var (
	ErrSegmentClosed       = errors.New("segment is closed")
	ErrFinalAlreadyEmitted = errors.New("final already emitted for this segment")
	ErrPartialAfterFinal   = errors.New("cannot revise segment after final")
)

// Segment tracks one tentative span of the transcript.
//
//	OPEN ──Revise()──▶ OPEN
//	  │
//	  ├──Finalize()──▶ FINAL ──Close()──▶ CLOSED
//	  │
//	  └──Drop()──────▶ DROPPED
type Segment struct {
	mu     sync.RWMutex
	id     string
	state  SegmentState
	length int
}

// NewSegment opens a segment whose tentative text spans length code units.
func NewSegment(id string, length int) *Segment {
	return &Segment{id: id, state: SegmentOpen, length: length}
}

// ID returns the annotation id of the segment.
func (s *Segment) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// State returns the current state.
func (s *Segment) State() SegmentState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Length returns the current length of the segment's text.
func (s *Segment) Length() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.length
}

// Revise records new tentative text of the given length.
func (s *Segment) Revise(length int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case SegmentOpen:
		s.length = length
		return nil
	case SegmentFinal:
		return ErrPartialAfterFinal
	default:
		return ErrSegmentClosed
	}
}

// Finalize records the final text and moves to FINAL.
func (s *Segment) Finalize(length int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case SegmentOpen:
		s.state = SegmentFinal
		s.length = length
		return nil
	case SegmentFinal:
		return ErrFinalAlreadyEmitted
	default:
		return ErrSegmentClosed
	}
}

// Close moves to CLOSED. Idempotent; a dropped segment stays dropped.
func (s *Segment) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SegmentDropped {
		s.state = SegmentClosed
	}
}

// Drop abandons the segment. Returns false if it was already terminal.
func (s *Segment) Drop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.IsTerminal() {
		return false
	}
	s.state = SegmentDropped
	return true
}
