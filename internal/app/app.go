package app

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"transcribe-stream-service/internal/config"
	"transcribe-stream-service/internal/observability/logging"
	"transcribe-stream-service/internal/observability/metrics"
	"transcribe-stream-service/internal/service/session"
)

// Closer releases a process-wide resource on shutdown.
type Closer interface {
	Close() error
}

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Config
	Sessions    *session.Manager
	Metrics     *metrics.Metrics

	publisher Closer
	ready     atomic.Bool
}

// New constructs a new Application. publisher may be nil.
func New(cfg *config.Config, sessions *session.Manager, publisher Closer, m *metrics.Metrics) *Application {
	if m == nil {
		m = metrics.DefaultMetrics
	}
	a := &Application{
		Cfg:       cfg,
		Sessions:  sessions,
		Metrics:   m,
		publisher: publisher,
		Logger:    logging.WithComponent("application"),
	}

	a.Logger.Info().
		Str("method", "New").
		Str("backend", cfg.Backend.Kind).
		Msg("Transcribe stream service application created")
	return a
}

// Start marks the application ready to serve traffic.
func (a *Application) Start() error {
	a.StartupTime = time.Now().UTC()
	a.ready.Store(true)

	a.Logger.Info().
		Str("method", "Start").
		Time("startupTime", a.StartupTime).
		Msg("Transcribe stream service starting")
	return nil
}

// Ready reports whether the application accepts new sessions.
func (a *Application) Ready() bool {
	return a.ready.Load()
}

// Shutdown stops accepting sessions, closes the live ones so their final
// transcripts are published, then closes the publisher.
func (a *Application) Shutdown(ctx context.Context) error {
	a.ready.Store(false)
	a.Logger.Info().Str("method", "Shutdown").Msg("Transcribe stream service shutting down")

	var errs []error
	if a.Sessions != nil {
		if err := a.Sessions.CloseAll(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
