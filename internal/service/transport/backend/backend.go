// Package backend builds the transport factory selected by configuration.
package backend

import (
	"fmt"

	"transcribe-stream-service/internal/config"
	"transcribe-stream-service/internal/service/synth"
	"transcribe-stream-service/internal/service/transport"
	"transcribe-stream-service/internal/service/transport/google"
	"transcribe-stream-service/internal/service/transport/mock"
	"transcribe-stream-service/internal/service/transport/websocket"
)

// NewFactory returns a factory creating one transport per session for the
// configured backend kind.
func NewFactory(cfg *config.Config) (transport.Factory, error) {
	ids := synth.NewIDGenerator()

	switch cfg.Backend.Kind {
	case config.BackendMock:
		return func(sessionID string) (transport.Transport, error) {
			return mock.New(sessionID, ids), nil
		}, nil

	case config.BackendWebsocket:
		if cfg.Backend.URL == "" {
			return nil, fmt.Errorf("websocket backend requires a URL")
		}
		wsCfg := websocket.Config{
			URL:            cfg.Backend.URL,
			APIKey:         cfg.Backend.APIKey,
			ConnectTimeout: cfg.Backend.ConnectTimeout,
			CloseTimeout:   cfg.Backend.CloseTimeout,
		}
		return func(sessionID string) (transport.Transport, error) {
			return websocket.New(sessionID, wsCfg), nil
		}, nil

	case config.BackendGoogle:
		gCfg := google.Config{
			LanguageCode:   cfg.STT.LanguageCode,
			SampleRateHz:   cfg.STT.SampleRateHz,
			InterimResults: cfg.STT.InterimResults,
			AudioEncoding:  cfg.STT.AudioEncoding,
			CloseTimeout:   cfg.Backend.CloseTimeout,
		}
		return func(sessionID string) (transport.Transport, error) {
			return google.New(sessionID, gCfg, ids), nil
		}, nil

	default:
		return nil, fmt.Errorf("unknown backend kind %q", cfg.Backend.Kind)
	}
}
