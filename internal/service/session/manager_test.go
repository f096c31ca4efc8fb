package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"transcribe-stream-service/internal/service/decoder"
	"transcribe-stream-service/internal/service/transport"
	"transcribe-stream-service/internal/service/transport/mock"
)

type testFactory struct {
	mu         sync.Mutex
	transports map[string]*testTransport
	err        error
}

func (f *testFactory) New(id string) (transport.Transport, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transports == nil {
		f.transports = make(map[string]*testTransport)
	}
	t := &testTransport{}
	f.transports[id] = t
	return t, nil
}

func newTestManager(cfg ManagerConfig, f *testFactory) *Manager {
	m := NewManager(cfg, f.New, decoder.NewJSON(), &testPublisher{}, newMetrics())
	n := 0
	m.newID = func() string {
		n++
		return fmt.Sprintf("session-%d", n)
	}
	return m
}

func TestManager_CreateGetClose(t *testing.T) {
	m := newTestManager(ManagerConfig{}, &testFactory{})

	s, err := m.Create(context.Background(), "tenant-1")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if s.ID() != "session-1" {
		t.Errorf("expected id 'session-1', got %s", s.ID())
	}
	if got := s.Snapshot().TenantID; got != "tenant-1" {
		t.Errorf("expected tenant 'tenant-1', got %s", got)
	}

	got, err := m.Get("session-1")
	if err != nil || got != s {
		t.Fatalf("expected to get created session, got %v, %v", got, err)
	}

	if err := m.Close("session-1"); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if _, err := m.Get("session-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after close, got %v", err)
	}
	if err := m.Close("session-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound closing twice, got %v", err)
	}
}

func TestManager_DefaultIDsAreUUIDs(t *testing.T) {
	m := NewManager(ManagerConfig{}, (&testFactory{}).New, nil, nil, newMetrics())
	defer m.CloseAll(context.Background())

	s, err := m.Create(context.Background(), "")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if len(s.ID()) != 36 {
		t.Errorf("expected uuid session id, got %q", s.ID())
	}
}

func TestManager_MaxSessions(t *testing.T) {
	f := &testFactory{}
	m := newTestManager(ManagerConfig{MaxSessions: 2}, f)
	defer m.CloseAll(context.Background())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := m.Create(ctx, ""); err != nil {
			t.Fatalf("create %d failed: %v", i, err)
		}
	}
	if _, err := m.Create(ctx, ""); !errors.Is(err, ErrTooManySessions) {
		t.Fatalf("expected ErrTooManySessions, got %v", err)
	}

	// Ended sessions stay readable but no longer count against the cap.
	f.transports["session-1"].listener.OnClose()
	s, _ := m.Get("session-1")
	<-s.Done()

	if _, err := m.Create(ctx, ""); err != nil {
		t.Errorf("expected create after a session ended, got %v", err)
	}
	if m.Len() != 3 {
		t.Errorf("expected 3 registered sessions, got %d", m.Len())
	}
}

func TestManager_FactoryError(t *testing.T) {
	m := newTestManager(ManagerConfig{}, &testFactory{err: errors.New("no backend")})

	if _, err := m.Create(context.Background(), ""); err == nil {
		t.Fatal("expected error")
	}
	if m.Len() != 0 {
		t.Errorf("expected no registered sessions, got %d", m.Len())
	}
}

func TestManager_StartErrorUnregisters(t *testing.T) {
	m := NewManager(ManagerConfig{}, func(id string) (transport.Transport, error) {
		return &testTransport{connectErr: errors.New("refused")}, nil
	}, nil, nil, newMetrics())

	if _, err := m.Create(context.Background(), ""); err == nil {
		t.Fatal("expected error")
	}
	if m.Len() != 0 {
		t.Errorf("expected failed session unregistered, got %d", m.Len())
	}
}

func TestManager_CloseAll(t *testing.T) {
	m := newTestManager(ManagerConfig{}, &testFactory{})
	ctx := context.Background()

	var sessions []*Session
	for i := 0; i < 3; i++ {
		s, err := m.Create(ctx, "")
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		sessions = append(sessions, s)
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := m.CloseAll(ctx); err != nil {
		t.Fatalf("close all failed: %v", err)
	}

	for _, s := range sessions {
		if s.State() != StateClosed {
			t.Errorf("expected %s closed, got %s", s.ID(), s.State())
		}
	}
	if m.Len() != 0 {
		t.Errorf("expected no sessions, got %d", m.Len())
	}
	if _, err := m.Create(context.Background(), ""); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed after shutdown, got %v", err)
	}
}

func TestManager_WithMockBackend(t *testing.T) {
	utts := []mock.SimulatedUtterance{{Partials: []string{"Hello"}, Final: "Hello there"}}
	factory := func(id string) (transport.Transport, error) {
		return mock.New(id, nil, mock.WithUtterances(utts), mock.WithDelay(0)), nil
	}
	pub := &testPublisher{}
	m := NewManager(ManagerConfig{Session: Config{Backend: "mock"}}, factory, decoder.NewJSON(), pub, newMetrics())

	s, err := m.Create(context.Background(), "")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := s.SendAudio(ctx, []byte{0, 0}); err != nil {
			t.Fatalf("send %d failed: %v", i, err)
		}
	}
	if err := m.Close(s.ID()); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	if s.Text() != "Hello there" {
		t.Errorf("expected 'Hello there', got %q", s.Text())
	}
	if n := len(s.Annotations()); n != 0 {
		t.Errorf("expected tentative annotation settled, got %d", n)
	}
	if s.Snapshot().HistoryLen != 2 {
		t.Errorf("expected 2 batches, got %d", s.Snapshot().HistoryLen)
	}

	if err := s.Undo(ctx, 1); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed after close, got %v", err)
	}
	if _, finals := pub.counts(); finals != 1 {
		t.Errorf("expected 1 final event, got %d", finals)
	}
}

func waitForText(t *testing.T, s *Session, expected string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.Text() != expected {
		if time.Now().After(deadline) {
			t.Fatalf("expected text %q, got %q", expected, s.Text())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestManager_MockBackendKeepsTranscribingAfterUndo(t *testing.T) {
	utts := []mock.SimulatedUtterance{
		{Partials: []string{"Hello"}, Final: "Hello there"},
		{Partials: []string{"How"}, Final: "How are you"},
	}
	factory := func(id string) (transport.Transport, error) {
		return mock.New(id, nil, mock.WithUtterances(utts), mock.WithDelay(0)), nil
	}
	m := NewManager(ManagerConfig{Session: Config{Backend: "mock"}}, factory, decoder.NewJSON(), &testPublisher{}, newMetrics())

	s, err := m.Create(context.Background(), "")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	ctx := context.Background()
	send := func(frames int) {
		for i := 0; i < frames; i++ {
			if err := s.SendAudio(ctx, []byte{0, 0}); err != nil {
				t.Fatalf("send failed: %v", err)
			}
		}
	}

	send(2)
	waitForText(t, s, "Hello there")

	if err := s.Undo(ctx, 1); err != nil {
		t.Fatalf("undo failed: %v", err)
	}
	if s.Text() != "Hello" {
		t.Fatalf("expected tentative 'Hello' after undo, got %q", s.Text())
	}

	send(2)
	waitForText(t, s, "Hello How are you")

	if err := m.Close(s.ID()); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := s.LastError(); err != nil {
		t.Errorf("expected no rejected batches, got %v", err)
	}
	if s.Snapshot().HistoryLen != 3 {
		t.Errorf("expected 3 batches, got %d", s.Snapshot().HistoryLen)
	}
}
