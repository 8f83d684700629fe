package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/oggyb/swipe-guard/internal/logger"
)

// RequestIDHeader is echoed from the caller when present.
const RequestIDHeader = "x-request-id"

// UnaryLogging attaches a request-scoped logger carrying a request id to the
// call context and logs the outcome of every call.
func UnaryLogging(base *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		reqID := requestID(ctx)
		log := base.With("request_id", reqID, "method", info.FullMethod)
		ctx = logger.NewContext(ctx, log)
		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDHeader, reqID))

		start := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err)
		attrs := []any{"code", code.String(), "took", time.Since(start)}
		if err != nil {
			log.Warn("rpc failed", append(attrs, "err", err)...)
		} else {
			log.Debug("rpc done", attrs...)
		}
		return resp, err
	}
}

func requestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(RequestIDHeader); len(v) > 0 && v[0] != "" {
			return v[0]
		}
	}
	return uuid.NewString()
}
