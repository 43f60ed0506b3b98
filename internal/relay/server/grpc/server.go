// Package grpc serves the standard gRPC health protocol for the relay.
package grpc

import (
	"context"
	"net"

	"github.com/go-logr/logr"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	grpcmw "github.com/hydronom-io/hydronom/internal/pkg/middleware/grpc"
	"github.com/hydronom-io/hydronom/pkg/options"
)

// AuditService is the health service name that tracks the audit sink.
const AuditService = "hydronom.relay.AuditLog"

type Server struct {
	server  *grpc.Server
	health  *health.Server
	options *options.GrpcOptions
	log     logr.Logger
}

func NewServer(opts *options.GrpcOptions, logger logr.Logger) *Server {
	log := logger.WithName("grpc")
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(
		grpcmw.UnaryServerTimeout(grpcmw.DefaultRPCTimeout),
		grpcmw.UnaryServerLogger(log),
	))

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(AuditService, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	if opts.Reflection {
		reflection.Register(s) // Enable grpc_cli support
	}

	return &Server{server: s, health: hs, options: opts, log: log}
}

// SetAuditDegraded flips the audit service between SERVING and
// NOT_SERVING.
func (s *Server) SetAuditDegraded(degraded bool) {
	st := healthpb.HealthCheckResponse_SERVING
	if degraded {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus(AuditService, st)
}

func (s *Server) Start(ctx context.Context) error {
	lis, err := net.Listen(s.options.Network, s.options.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, lis)
}

// Serve runs on an existing listener until ctx is done.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	s.log.Info("Starting gRPC Server", "addr", lis.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(lis); err != nil {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.health.Shutdown()
		s.server.GracefulStop()
		return nil
	}
}
