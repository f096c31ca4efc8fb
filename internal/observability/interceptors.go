// Package observability provides gRPC interceptors and the metrics HTTP server.
package observability

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"transcribe-stream-service/internal/observability/logging"
	"transcribe-stream-service/internal/observability/metrics"
)

// UnaryServerInterceptor counts and logs unary calls. A panicking handler
// is turned into codes.Internal instead of taking the process down.
func UnaryServerInterceptor(m *metrics.Metrics) grpc.UnaryServerInterceptor {
	logger := logging.WithComponent("grpc")
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp interface{}, err error) {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				err = recovered(logger, info.FullMethod, r)
			}
			observe(m, logger, info.FullMethod, "unary", start, err)
		}()
		return handler(ctx, req)
	}
}

// StreamServerInterceptor is UnaryServerInterceptor for streaming calls
// (health Watch, reflection).
func StreamServerInterceptor(m *metrics.Metrics) grpc.StreamServerInterceptor {
	logger := logging.WithComponent("grpc")
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) (err error) {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				err = recovered(logger, info.FullMethod, r)
			}
			observe(m, logger, info.FullMethod, "stream", start, err)
		}()
		return handler(srv, ss)
	}
}

func recovered(logger zerolog.Logger, method string, r interface{}) error {
	logger.Error().
		Str("method", method).
		Str("panic", fmt.Sprint(r)).
		Msg("gRPC handler panicked")
	return status.Errorf(codes.Internal, "internal error in %s", method)
}

func observe(m *metrics.Metrics, logger zerolog.Logger, method, kind string, start time.Time, err error) {
	code := status.Code(err)
	m.RecordGRPCCall(method, code.String())

	ev := logger.Debug()
	if code != codes.OK {
		ev = logger.Warn().Err(err)
	}
	ev.Str("method", method).
		Str("kind", kind).
		Str("code", code.String()).
		Dur("duration", time.Since(start)).
		Msg("gRPC call finished")
}
