package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"transcribe-stream-service/internal/app"
	"transcribe-stream-service/internal/config"
	"transcribe-stream-service/internal/events"
	apihttp "transcribe-stream-service/internal/http"
	"transcribe-stream-service/internal/observability"
	"transcribe-stream-service/internal/observability/logging"
	"transcribe-stream-service/internal/observability/metrics"
	"transcribe-stream-service/internal/service/decoder"
	"transcribe-stream-service/internal/service/session"
	"transcribe-stream-service/internal/service/transport/backend"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg := config.Load()

	logging.Init(logging.Config{
		Level:      cfg.Observability.LogLevel,
		Format:     cfg.Observability.LogFormat,
		TimeFormat: time.RFC3339,
	})

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	m := metrics.DefaultMetrics

	// Kafka publisher with separate topics for updates and final transcripts
	publisher := events.New(&events.Config{
		Enabled:      cfg.Kafka.Enabled,
		Brokers:      cfg.Kafka.Brokers,
		TopicUpdates: cfg.Kafka.TopicUpdates,
		TopicFinal:   cfg.Kafka.TopicFinal,
		Principal:    cfg.Kafka.Principal,
	})

	factory, err := backend.NewFactory(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create backend factory")
	}

	sessions := session.NewManager(session.ManagerConfig{
		Session: session.Config{
			QueueSize: cfg.Session.QueueSize,
			Limits: session.Limits{
				MaxAudioBytes: cfg.Session.MaxAudioBytes,
				MaxDuration:   cfg.Session.MaxDuration,
			},
			Backend: cfg.Backend.Kind,
		},
		MaxSessions: cfg.Session.MaxSessions,
	}, factory, decoder.NewJSON(), publisher, m)

	application := app.New(cfg, sessions, publisher, m)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Service.HTTPPort,
		Handler:           apihttp.NewRouter(application),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	var obsServer *observability.Server
	if cfg.Observability.MetricsPort != "" {
		obsServer = observability.NewServer(":"+cfg.Observability.MetricsPort, application.Ready)
		obsServer.Start()
	}

	lis, err := net.Listen("tcp", ":"+cfg.Service.GRPCPort)
	if err != nil {
		log.Fatal().Err(err).Str("port", cfg.Service.GRPCPort).Msg("Failed to listen")
	}

	grpcServer, healthServer := newGRPCServer(m)

	if err := application.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start application")
	}

	go func() {
		log.Info().Str("port", cfg.Service.GRPCPort).Msg("gRPC health server started")
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatal().Err(err).Msg("gRPC serve failed")
		}
	}()

	go func() {
		log.Info().
			Str("port", cfg.Service.HTTPPort).
			Str("backend", cfg.Backend.Kind).
			Msg("Transcribe stream service started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP serve failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("Shutting down")
	healthServer.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	if err := application.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Application shutdown failed")
	}
	if obsServer != nil {
		if err := obsServer.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Observability server shutdown failed")
		}
	}
	grpcServer.GracefulStop()
}

// newGRPCServer builds the gRPC server. It only serves the overall health
// status (service name "") and reflection.
func newGRPCServer(m *metrics.Metrics) (*grpc.Server, *health.Server) {
	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(observability.UnaryServerInterceptor(m)),
		grpc.StreamInterceptor(observability.StreamServerInterceptor(m)),
	)

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	// Enable gRPC reflection for debugging tools like grpcurl
	reflection.Register(grpcServer)

	return grpcServer, healthServer
}
