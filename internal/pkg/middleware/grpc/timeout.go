package grpc

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// DefaultRPCTimeout bounds calls that arrive without a deadline.
const DefaultRPCTimeout = 10 * time.Second

// UnaryServerTimeout bounds handlers whose caller sent no deadline.
func UnaryServerTimeout(d time.Duration) grpc.UnaryServerInterceptor {
	if d <= 0 {
		d = DefaultRPCTimeout
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return handler(ctx, req)
	}
}

// UnaryServerLogger logs every call at V(1) and failures at error level.
func UnaryServerLogger(log logr.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if err != nil {
			log.Error(err, "rpc failed", "method", info.FullMethod, "code", status.Code(err).String(), "duration", time.Since(start))
		} else {
			log.V(1).Info("rpc", "method", info.FullMethod, "duration", time.Since(start))
		}
		return resp, err
	}
}
