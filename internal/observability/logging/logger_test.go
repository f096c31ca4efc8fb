package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })
	return &buf
}

func TestContextLoggers(t *testing.T) {
	tests := []struct {
		name     string
		logger   func() zerolog.Logger
		expected map[string]string
	}{
		{"tenant", func() zerolog.Logger { return WithTenant("s1", "t1") }, map[string]string{"sessionId": "s1", "tenantId": "t1"}},
		{"transport", func() zerolog.Logger { return WithTransport("s1", "mock") }, map[string]string{"sessionId": "s1", "backend": "mock"}},
		{"component", func() zerolog.Logger { return WithComponent("application") }, map[string]string{"component": "application"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := capture(t)
			l := tt.logger()
			l.Info().Msg("hello")

			var fields map[string]any
			if err := json.Unmarshal(buf.Bytes(), &fields); err != nil {
				t.Fatalf("failed to parse log line %q: %v", buf.String(), err)
			}
			for k, v := range tt.expected {
				if fields[k] != v {
					t.Errorf("expected %s=%q, got %v", k, v, fields[k])
				}
			}
		})
	}
}

func TestInit_InvalidLevelFallsBackToInfo(t *testing.T) {
	prevLevel := zerolog.GlobalLevel()
	prevLogger := log.Logger
	defer func() {
		zerolog.SetGlobalLevel(prevLevel)
		log.Logger = prevLogger
	}()

	cfg := DefaultConfig()
	cfg.Level = "chatty"
	Init(cfg)

	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Errorf("expected info level, got %s", zerolog.GlobalLevel())
	}
}
