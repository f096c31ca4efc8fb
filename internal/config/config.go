// Package config loads service configuration from environment variables.
// Unset or unparsable values fall back to defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Backend kinds.
const (
	BackendMock      = "mock"
	BackendWebsocket = "websocket"
	BackendGoogle    = "google"
)

type Config struct {
	Service       ServiceConfig
	Backend       BackendConfig
	STT           STTConfig
	Session       SessionConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Principal string
	HTTPPort  string
	GRPCPort  string
}

// BackendConfig selects where sessions get their actions from.
type BackendConfig struct {
	Kind           string
	URL            string
	APIKey         string
	ConnectTimeout time.Duration
	CloseTimeout   time.Duration
}

// STTConfig is only read by the google backend.
type STTConfig struct {
	LanguageCode   string
	SampleRateHz   int32
	InterimResults bool
	AudioEncoding  string
}

// SessionConfig bounds a single session and the number of live sessions.
type SessionConfig struct {
	QueueSize     int
	MaxAudioBytes int64
	MaxDuration   time.Duration
	MaxSessions   int
}

type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	TopicUpdates string
	TopicFinal   string
	Principal    string
}

type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string
	// MetricsPort starts a separate metrics server when set.
	MetricsPort string
}

func Load() *Config {
	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-transcribe-stream")

	return &Config{
		Service: ServiceConfig{
			Principal: principal,
			HTTPPort:  envOrDefault("HTTP_PORT", "8080"),
			GRPCPort:  envOrDefault("GRPC_PORT", "50051"),
		},
		Backend: BackendConfig{
			Kind:           strings.ToLower(envOrDefault("BACKEND_KIND", BackendMock)),
			URL:            envOrDefault("BACKEND_URL", ""),
			APIKey:         envOrDefault("BACKEND_API_KEY", ""),
			ConnectTimeout: envOrDefaultDuration("BACKEND_CONNECT_TIMEOUT", 10*time.Second),
			CloseTimeout:   envOrDefaultDuration("BACKEND_CLOSE_TIMEOUT", 5*time.Second),
		},
		STT: STTConfig{
			LanguageCode:   envOrDefault("STT_LANGUAGE_CODE", "en-US"),
			SampleRateHz:   int32(envOrDefaultInt("STT_SAMPLE_RATE_HZ", 8000)),
			InterimResults: envOrDefaultBool("STT_INTERIM_RESULTS", true),
			AudioEncoding:  envOrDefault("STT_AUDIO_ENCODING", "LINEAR16"),
		},
		Session: SessionConfig{
			QueueSize:     envOrDefaultInt("SESSION_QUEUE_SIZE", 64),
			MaxAudioBytes: envOrDefaultInt64("SESSION_MAX_AUDIO_BYTES", 5*1024*1024),
			MaxDuration:   envOrDefaultDuration("SESSION_MAX_DURATION", 5*time.Minute),
			MaxSessions:   envOrDefaultInt("SESSION_MAX_SESSIONS", 100),
		},
		Kafka: KafkaConfig{
			Enabled:      envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:      envOrDefaultList("KAFKA_BROKERS", nil),
			TopicUpdates: envOrDefault("KAFKA_TOPIC_UPDATES", "transcript.updates"),
			TopicFinal:   envOrDefault("KAFKA_TOPIC_FINAL", "transcript.final"),
			Principal:    envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Observability: ObservabilityConfig{
			LogLevel:    envOrDefault("LOG_LEVEL", "info"),
			LogFormat:   envOrDefault("LOG_FORMAT", "json"),
			MetricsPort: envOrDefault("METRICS_PORT", ""),
		},
	}
}

// Validate reports settings that would make the service unusable.
func (c *Config) Validate() error {
	var errs []error
	switch c.Backend.Kind {
	case BackendMock, BackendGoogle:
	case BackendWebsocket:
		if c.Backend.URL == "" {
			errs = append(errs, errors.New("BACKEND_URL is required for the websocket backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown BACKEND_KIND %q", c.Backend.Kind))
	}
	if c.Session.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("SESSION_QUEUE_SIZE must be positive, got %d", c.Session.QueueSize))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is set"))
	}
	return errors.Join(errs...)
}

func envOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envOrDefaultInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envOrDefaultBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// envOrDefaultList splits a comma-separated value, dropping empty items.
func envOrDefaultList(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
