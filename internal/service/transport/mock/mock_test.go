package mock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"transcribe-stream-service/internal/service/decoder"
	"transcribe-stream-service/internal/service/synth"
	"transcribe-stream-service/internal/service/transcript"
	"transcribe-stream-service/internal/service/transport"
)

// testListener folds every message into a stream, like a session would.
type testListener struct {
	mu     sync.Mutex
	stream *transcript.Stream
	opened bool
	errs   []error
	closed chan struct{}
}

func newTestListener() *testListener {
	return &testListener{stream: transcript.NewStream(), closed: make(chan struct{})}
}

func (l *testListener) OnOpen() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.opened = true
}

func (l *testListener) OnMessage(raw string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	actions, err := decoder.NewJSON().Decode(raw)
	if err == nil {
		err = l.stream.ReceiveActions(actions)
	}
	if err != nil {
		l.errs = append(l.errs, err)
	}
}

func (l *testListener) OnError(err error) {}

func (l *testListener) OnClose() { close(l.closed) }

func (l *testListener) text() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stream.Text()
}

func newScripted(utts []SimulatedUtterance) *Transport {
	n := 0
	syn := synth.New("s1", synth.NewIDGenerator(), synth.WithActionIDs(func() string {
		n++
		return fmt.Sprintf("a%d", n)
	}))
	return New("s1", nil, WithUtterances(utts), WithDelay(0), WithSynthesizer(syn))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for condition")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTransport_ScriptedUtterance(t *testing.T) {
	tr := newScripted([]SimulatedUtterance{{Partials: []string{"I want", "I want to"}, Final: "I want to go"}})
	l := newTestListener()
	ctx := context.Background()

	if err := tr.Connect(ctx, l); err != nil {
		t.Fatalf("connect: %v", err)
	}

	_ = tr.Send(ctx, []byte("f1"))
	waitFor(t, func() bool { return l.text() == "I want" })

	_ = tr.Send(ctx, []byte("f2"))
	waitFor(t, func() bool { return l.text() == "I want to" })

	_ = tr.Send(ctx, []byte("f3"))
	waitFor(t, func() bool { return l.text() == "I want to go" })

	if err := tr.Disconnect(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	<-l.closed

	if len(l.errs) != 0 {
		t.Errorf("expected all messages to apply cleanly, got %v", l.errs)
	}
	if len(l.stream.Annotations()) != 0 {
		t.Errorf("expected no tentative annotations after final, got %d", len(l.stream.Annotations()))
	}
	if tr.FramesReceived() != 3 {
		t.Errorf("expected 3 frames, got %d", tr.FramesReceived())
	}
}

func TestTransport_DisconnectSettlesOpenSegment(t *testing.T) {
	tr := newScripted([]SimulatedUtterance{{Partials: []string{"Thank", "Thank you"}, Final: "Thank you very much"}})
	l := newTestListener()
	ctx := context.Background()

	_ = tr.Connect(ctx, l)
	_ = tr.Send(ctx, []byte("f1"))

	if err := tr.Disconnect(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	<-l.closed

	if l.text() != "Thank you very much" {
		t.Errorf("expected final text on disconnect, got %q", l.text())
	}
}

func TestTransport_SecondUtteranceSeparated(t *testing.T) {
	tr := newScripted([]SimulatedUtterance{
		{Partials: nil, Final: "Hello"},
		{Partials: []string{"wor"}, Final: "world"},
	})
	l := newTestListener()
	ctx := context.Background()

	_ = tr.Connect(ctx, l)
	for i := 0; i < 3; i++ {
		_ = tr.Send(ctx, []byte("f"))
	}
	_ = tr.Disconnect()
	<-l.closed

	if l.text() != "Hello world" {
		t.Errorf("expected 'Hello world', got %q", l.text())
	}
}

func TestTransport_SendAfterDisconnect(t *testing.T) {
	tr := newScripted(DefaultUtterances)
	l := newTestListener()
	_ = tr.Connect(context.Background(), l)
	_ = tr.Disconnect()

	if err := tr.Send(context.Background(), []byte("f")); !errors.Is(err, transport.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := tr.Disconnect(); err != nil {
		t.Errorf("expected idempotent disconnect, got %v", err)
	}
}

func TestNew_RotatesUtterances(t *testing.T) {
	a := New("a", nil)
	b := New("b", nil)
	if a.current == b.current {
		t.Errorf("expected different starting utterances, both %d", a.current)
	}
}
