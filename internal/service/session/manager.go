package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"transcribe-stream-service/internal/observability/metrics"
	"transcribe-stream-service/internal/service/decoder"
	"transcribe-stream-service/internal/service/transport"
)

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Session Config
	// MaxSessions caps sessions that have not ended. Zero means no cap.
	MaxSessions int
}

// Manager creates sessions and keeps them addressable by id until deleted.
type Manager struct {
	cfg       ManagerConfig
	factory   transport.Factory
	decoder   decoder.Decoder
	publisher Publisher
	metrics   *metrics.Metrics
	newID     func() string

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
}

// NewManager creates a manager that builds one transport per session with factory.
func NewManager(cfg ManagerConfig, factory transport.Factory, dec decoder.Decoder, publisher Publisher, m *metrics.Metrics) *Manager {
	return &Manager{
		cfg:       cfg,
		factory:   factory,
		decoder:   dec,
		publisher: publisher,
		metrics:   m,
		newID:     uuid.NewString,
		sessions:  make(map[string]*Session),
	}
}

// Create registers a new session and starts it. tenantID is optional.
func (m *Manager) Create(ctx context.Context, tenantID string) (*Session, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if m.cfg.MaxSessions > 0 && m.activeLocked() >= m.cfg.MaxSessions {
		m.mu.Unlock()
		if m.metrics != nil {
			m.metrics.RecordLimitExceeded("sessions")
		}
		return nil, ErrTooManySessions
	}

	id := m.newID()
	t, err := m.factory(id)
	if err != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}
	cfg := m.cfg.Session
	cfg.TenantID = tenantID
	s := New(id, cfg, t, m.decoder, m.publisher, m.metrics)
	m.sessions[id] = s
	m.mu.Unlock()

	if err := s.Start(ctx); err != nil {
		m.remove(id)
		return nil, err
	}

	log.Info().
		Str("sessionId", id).
		Str("tenantId", tenantID).
		Str("backend", cfg.Backend).
		Msg("Session created")
	return s, nil
}

// Get returns the session with the given id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Close closes the session and forgets it.
func (m *Manager) Close(id string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	err = s.Close()
	m.remove(id)
	return err
}

// Len returns the number of registered sessions, ended ones included.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CloseAll closes every session and rejects new ones. It returns ctx.Err()
// if ctx ends before all sessions are closed.
func (m *Manager) CloseAll(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			if err := s.Close(); err != nil {
				log.Warn().Err(err).Str("sessionId", s.ID()).Msg("Error closing session")
			}
			m.remove(s.ID())
		}(s)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Int("sessions", len(sessions)).Msg("All sessions closed")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

func (m *Manager) activeLocked() int {
	n := 0
	for _, s := range m.sessions {
		if !s.State().IsTerminal() {
			n++
		}
	}
	return n
}
