package dataapi

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/rafaeljc/skylab/internal/logger"
	"github.com/rafaeljc/skylab/internal/observability"
)

// RequestIDHeader is the metadata key carrying the request id, both on the
// incoming call and on the response header.
const RequestIDHeader = "x-request-id"

// RequestLoggerInterceptor tags each call with a request id (the caller's,
// or a fresh UUID), echoes it back in the response header, hands the
// handler a logger carrying it, and logs the outcome.
func RequestLoggerInterceptor(base *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		began := time.Now()
		id := incomingRequestID(ctx)
		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDHeader, id))

		ctx, rpcLog := logger.With(ctx, base,
			slog.String("request_id", id),
			slog.String("rpc_method", info.FullMethod),
		)

		resp, err := handler(ctx, req)

		code := status.Code(err)
		attrs := []any{
			slog.String("code", code.String()),
			slog.Duration("duration", time.Since(began)),
			slog.String("peer_addr", peerAddr(ctx)),
		}
		if err != nil && levelForCode(code) == slog.LevelError {
			attrs = append(attrs, slog.String("error", status.Convert(err).Message()))
		}
		rpcLog.Log(ctx, levelForCode(code), "grpc request completed", attrs...)

		return resp, err
	}
}

// MetricsInterceptor observes latency and counts calls per method and code.
func MetricsInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		timer := time.Now()
		resp, err := handler(ctx, req)

		labels := []string{info.FullMethod, status.Code(err).String()}
		observability.DataPlaneGrpcDuration.WithLabelValues(labels...).Observe(time.Since(timer).Seconds())
		observability.DataPlaneGrpcTotal.WithLabelValues(labels...).Inc()
		return resp, err
	}
}

func incomingRequestID(ctx context.Context) string {
	md, _ := metadata.FromIncomingContext(ctx)
	for _, v := range md.Get(RequestIDHeader) {
		if v != "" {
			return v
		}
	}
	return uuid.NewString()
}

// levelForCode keeps caller mistakes at INFO; only server side failures page.
func levelForCode(code codes.Code) slog.Level {
	switch code {
	case codes.Internal, codes.Unavailable, codes.DataLoss, codes.Unknown:
		return slog.LevelError
	case codes.DeadlineExceeded, codes.Unimplemented, codes.FailedPrecondition:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

func peerAddr(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return "unknown"
	}
	return p.Addr.String()
}
