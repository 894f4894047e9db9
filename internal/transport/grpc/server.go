// Package grpcx exposes the standard gRPC health service so orchestrators can
// probe the relay and observe it draining on shutdown.
package grpcx

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name reported alongside the overall ("") status.
const ServiceName = "chat.relay.v1.Relay"

type Server struct {
	addr   string
	grpc   *grpc.Server
	health *health.Server
	log    *slog.Logger
}

func NewServer(addr string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}

	gs := grpc.NewServer(
		grpc.ChainUnaryInterceptor(UnaryServerInterceptor(log)),
		grpc.ChainStreamInterceptor(StreamServerInterceptor(log)),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	return &Server{addr: addr, grpc: gs, health: hs, log: log}
}

// Serve blocks until the server stops. A graceful stop is not an error.
func (s *Server) Serve(lis net.Listener) error {
	s.log.Info("grpc listen", "addr", lis.Addr().String())
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

func (s *Server) ListenAndServe() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(lis)
}

// Drain reports NOT_SERVING so probes stop routing new sessions here.
func (s *Server) Drain() {
	s.health.Shutdown()
}

// Stop drains and then stops gracefully, falling back to a hard stop when ctx
// expires first.
func (s *Server) Stop(ctx context.Context) {
	s.Drain()

	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.grpc.Stop()
	}
}
