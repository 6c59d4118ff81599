// Package health exposes the standard gRPC health service. The status is
// SERVING while the state backend answers and NOT_SERVING otherwise or after
// shutdown.
package health

import (
	"context"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dmitrijs2005/rtmp-auth/internal/logging"
)

// ServiceName is reported next to the overall ("") status.
const ServiceName = "rtmp_auth"

// DefaultInterval is how often the backend is probed.
const DefaultInterval = 10 * time.Second

const checkTimeout = 2 * time.Second

// CheckFunc returns nil while the service is healthy.
type CheckFunc func(ctx context.Context) error

type Server struct {
	address  string
	check    CheckFunc
	interval time.Duration
	logger   logging.Logger
	health   *health.Server
}

func NewServer(address string, check CheckFunc, interval time.Duration, l logging.Logger) *Server {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Server{
		address:  address,
		check:    check,
		interval: interval,
		logger:   l.With("module", "health"),
		health:   health.NewServer(),
	}
}

func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve runs the gRPC server on listen until ctx is done.
func (s *Server) Serve(ctx context.Context, listen net.Listener) error {
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, s.health)

	s.update(ctx)
	go s.probe(ctx)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping health server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting health server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil {
		return err
	}
	return nil
}

func (s *Server) probe(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.update(ctx)
		}
	}
}

func (s *Server) update(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING

	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if err := s.check(checkCtx); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn(ctx, "health check failed", "error", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}

	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}
