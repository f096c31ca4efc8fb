package synth

import (
	"sync"
	"testing"
)

func TestIDGenerator_Next(t *testing.T) {
	gen := NewIDGenerator()

	if id := gen.Next("s-123"); id != "s-123-seg-1" {
		t.Errorf("expected 's-123-seg-1', got %s", id)
	}
	if id := gen.Next("s-123"); id != "s-123-seg-2" {
		t.Errorf("expected 's-123-seg-2', got %s", id)
	}
	// The counter is shared across sessions.
	if id := gen.Next("s-456"); id != "s-456-seg-3" {
		t.Errorf("expected 's-456-seg-3', got %s", id)
	}
}

func TestIDGenerator_ThreadSafety(t *testing.T) {
	gen := NewIDGenerator()
	numGoroutines := 50
	perGoroutine := 20

	var wg sync.WaitGroup
	results := make(chan string, numGoroutines*perGoroutine)
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				results <- gen.Next("s")
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[string]bool)
	for id := range results {
		if seen[id] {
			t.Errorf("duplicate id generated: %s", id)
		}
		seen[id] = true
	}
	if len(seen) != numGoroutines*perGoroutine {
		t.Errorf("expected %d unique ids, got %d", numGoroutines*perGoroutine, len(seen))
	}
}

func TestSegment_Lifecycle(t *testing.T) {
	seg := NewSegment("seg-1", 3)

	if seg.State() != SegmentOpen {
		t.Errorf("expected SegmentOpen, got %v", seg.State())
	}
	for i := 0; i < 3; i++ {
		if err := seg.Revise(4 + i); err != nil {
			t.Fatalf("revise %d: unexpected error: %v", i, err)
		}
	}
	if seg.Length() != 6 {
		t.Errorf("expected length 6, got %d", seg.Length())
	}

	if err := seg.Finalize(10); err != nil {
		t.Fatalf("finalize: unexpected error: %v", err)
	}
	if err := seg.Finalize(10); err != ErrFinalAlreadyEmitted {
		t.Errorf("expected ErrFinalAlreadyEmitted, got %v", err)
	}
	if err := seg.Revise(1); err != ErrPartialAfterFinal {
		t.Errorf("expected ErrPartialAfterFinal, got %v", err)
	}

	seg.Close()
	seg.Close()
	if seg.State() != SegmentClosed {
		t.Errorf("expected SegmentClosed, got %v", seg.State())
	}
	if err := seg.Revise(1); err != ErrSegmentClosed {
		t.Errorf("expected ErrSegmentClosed, got %v", err)
	}
	if seg.Drop() {
		t.Error("expected Drop to fail on a closed segment")
	}
}

func TestSegment_Drop(t *testing.T) {
	seg := NewSegment("seg-1", 3)

	if !seg.Drop() {
		t.Fatal("expected first Drop to succeed")
	}
	if seg.Drop() {
		t.Error("expected second Drop to report already terminal")
	}

	seg.Close()
	if seg.State() != SegmentDropped {
		t.Errorf("expected Close to keep SegmentDropped, got %v", seg.State())
	}
	if err := seg.Finalize(1); err != ErrSegmentClosed {
		t.Errorf("expected ErrSegmentClosed, got %v", err)
	}
}

func TestSegmentState_String(t *testing.T) {
	tests := []struct {
		state    SegmentState
		expected string
		terminal bool
	}{
		{SegmentOpen, "OPEN", false},
		{SegmentFinal, "FINAL", false},
		{SegmentClosed, "CLOSED", true},
		{SegmentDropped, "DROPPED", true},
		{SegmentState(42), "UNKNOWN(42)", false},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.expected {
			t.Errorf("SegmentState(%d).String() = %v, want %v", tt.state, got, tt.expected)
		}
		if got := tt.state.IsTerminal(); got != tt.terminal {
			t.Errorf("SegmentState(%d).IsTerminal() = %v, want %v", tt.state, got, tt.terminal)
		}
	}
}
