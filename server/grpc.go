// Package server exposes a running widget container over gRPC and HTTP.
// The gRPC side serves the standard health service; the HTTP side is a
// small control surface for inspecting the widget graph and injecting
// data.
package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/watsonkit/watsonkit/widget"
)

// Logger is the logging interface used by the servers.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// HealthService is the service name whose status follows the container.
const HealthService = "watsonkit.Container"

// GRPCServer serves the health service for a container.
type GRPCServer struct {
	container *widget.Container
	logger    Logger
	address   string

	grpcServer *grpc.Server
	health     *health.Server

	mu         sync.Mutex
	listener   net.Listener
	isShutdown bool
}

// NewGRPCServer creates a server for container on address. Without opts
// the ServerOptions interceptors are installed.
func NewGRPCServer(container *widget.Container, address string, logger Logger, opts ...grpc.ServerOption) *GRPCServer {
	if len(opts) == 0 {
		opts = ServerOptions(logger)
	}
	s := &GRPCServer{
		container:  container,
		logger:     logger,
		address:    address,
		grpcServer: grpc.NewServer(opts...),
		health:     health.NewServer(),
	}
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	s.SyncHealth()
	return s
}

// Server returns the underlying gRPC server for registering more services.
func (s *GRPCServer) Server() *grpc.Server { return s.grpcServer }

// Addr returns the bound address once started.
func (s *GRPCServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// SyncHealth reports SERVING while the container is initialized and
// NOT_SERVING otherwise.
func (s *GRPCServer) SyncHealth() healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if s.container.State() == widget.StateInitialized {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(HealthService, st)
	return st
}

// WatchHealth calls SyncHealth every interval until ctx is done.
func (s *GRPCServer) WatchHealth(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SyncHealth()
		}
	}
}

// StartBackground listens and serves in a goroutine. The returned channel
// carries the serve error, if any, and is closed when serving stops.
func (s *GRPCServer) StartBackground() (<-chan error, error) {
	lis, err := net.Listen("tcp", s.address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	s.mu.Lock()
	s.listener = lis
	s.mu.Unlock()

	s.logger.Info("grpc_server_started", "address", lis.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.grpcServer.Serve(lis); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh, nil
}

// Start serves until ctx is canceled, then stops gracefully.
func (s *GRPCServer) Start(ctx context.Context) error {
	errCh, err := s.StartBackground()
	if err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		s.logger.Info("grpc_graceful_shutdown_initiated", "reason", ctx.Err().Error())
		s.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}

// GracefulStop marks the service NOT_SERVING and waits for pending calls.
func (s *GRPCServer) GracefulStop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isShutdown {
		return
	}
	s.isShutdown = true
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
	s.logger.Info("grpc_server_stopped")
}
