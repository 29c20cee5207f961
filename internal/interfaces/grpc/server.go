// Package grpc serves the standard gRPC health service for load balancers
// and orchestrators. The reported status follows the dependency checks of
// the HTTP readiness probe.
package grpc

import (
	"context"
	"fmt"
	"net"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"

	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/logging"
)

// ServiceName is the health service name reported alongside the overall "" entry.
const ServiceName = "priorart.v1.PriorArt"

const defaultGracefulTimeout = 10 * time.Second

var defaultKeepaliveParams = keepalive.ServerParameters{
	MaxConnectionIdle:     15 * time.Minute,
	MaxConnectionAge:      30 * time.Minute,
	MaxConnectionAgeGrace: 5 * time.Second,
	Time:                  5 * time.Minute,
	Timeout:               time.Second,
}

// Check probes one dependency.
type Check func(ctx context.Context) error

type Option func(*Server)

func WithLogger(l logging.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithGracefulTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.gracefulTimeout = d
		}
	}
}

// WithChecks sets the dependency checks polled by MonitorReadiness.
func WithChecks(checks ...Check) Option {
	return func(s *Server) { s.checks = checks }
}

// Server is a gRPC server exposing grpc.health.v1.Health.
type Server struct {
	grpcServer      *grpc.Server
	health          *health.Server
	listener        net.Listener
	checks          []Check
	gracefulTimeout time.Duration
	logger          logging.Logger

	mu      sync.Mutex
	serving bool
}

// NewServer binds addr and registers the health service. Status starts as
// NOT_SERVING until the first successful readiness check, or SetServing.
func NewServer(addr string, opts ...Option) (*Server, error) {
	s := &Server{
		health:          health.NewServer(),
		gracefulTimeout: defaultGracefulTimeout,
		logger:          logging.NewNopLogger(),
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.Named("grpc")

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = lis

	s.grpcServer = grpc.NewServer(
		grpc.KeepaliveParams(defaultKeepaliveParams),
		grpc.ChainUnaryInterceptor(recoveryUnaryInterceptor(s.logger), loggingUnaryInterceptor(s.logger)),
	)
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	s.setStatus(false)
	return s, nil
}

// SetServing flips the overall and service status.
func (s *Server) SetServing(serving bool) {
	s.mu.Lock()
	changed := s.serving != serving
	s.mu.Unlock()
	s.setStatus(serving)
	if changed {
		s.logger.Info("grpc health status changed", logging.Bool("serving", serving))
	}
}

func (s *Server) setStatus(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.mu.Lock()
	s.serving = serving
	s.mu.Unlock()
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// CheckOnce runs every check and updates the status. It reports whether all
// checks passed.
func (s *Server) CheckOnce(ctx context.Context) bool {
	ok := true
	for _, check := range s.checks {
		if err := check(ctx); err != nil {
			s.logger.Warn("readiness check failed", logging.Err(err))
			ok = false
			break
		}
	}
	s.SetServing(ok)
	return ok
}

// MonitorReadiness polls the checks every interval until ctx is done.
func (s *Server) MonitorReadiness(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		checkCtx, cancel := context.WithTimeout(ctx, interval)
		s.CheckOnce(checkCtx)
		cancel()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Start serves until Stop.
func (s *Server) Start() error {
	s.logger.Info("grpc server listening", logging.String("addr", s.Addr()))
	if err := s.grpcServer.Serve(s.listener); err != nil && err != grpc.ErrServerStopped {
		return err
	}
	return nil
}

// Stop reports NOT_SERVING, then stops gracefully, forcing the stop after
// the graceful timeout.
func (s *Server) Stop(ctx context.Context) {
	s.health.Shutdown()

	ctx, cancel := context.WithTimeout(ctx, s.gracefulTimeout)
	defer cancel()
	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
		s.logger.Info("grpc server stopped")
	case <-ctx.Done():
		s.logger.Warn("grpc graceful stop timed out, forcing stop")
		s.grpcServer.Stop()
	}
}

// Addr returns the bound address, useful with port 0.
func (s *Server) Addr() string { return s.listener.Addr().String() }

func recoveryUnaryInterceptor(logger logging.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("grpc panic recovered",
					logging.String("method", info.FullMethod),
					logging.Any("panic", r),
					logging.String("stack", string(debug.Stack())))
				err = status.Errorf(codes.Internal, "internal server error")
			}
		}()
		return handler(ctx, req)
	}
}

func isHealthCheck(method string) bool {
	return strings.HasPrefix(method, "/grpc.health.v1.Health/")
}

func loggingUnaryInterceptor(logger logging.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if isHealthCheck(info.FullMethod) {
			return handler(ctx, req)
		}
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Info("grpc request",
			logging.String("method", info.FullMethod),
			logging.Duration("duration", time.Since(start)),
			logging.String("code", status.Code(err).String()))
		return resp, err
	}
}
