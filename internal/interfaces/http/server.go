package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/turtacn/PriorArt-Intelligence/internal/config"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/logging"
)

// Server runs the API handler on the configured address.
type Server struct {
	srv             *http.Server
	handler         http.Handler
	shutdownTimeout time.Duration
	logger          logging.Logger
}

// NewServer wraps handler with the configured body limit and timeouts.
func NewServer(cfg config.HTTPConfig, handler http.Handler, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	h := handler
	if cfg.MaxBodySize > 0 {
		h = http.MaxBytesHandler(handler, cfg.MaxBodySize)
	}
	shutdown := cfg.ShutdownTimeout
	if shutdown <= 0 {
		shutdown = 30 * time.Second
	}
	return &Server{
		handler:         h,
		shutdownTimeout: shutdown,
		logger:          logger.Named("http"),
		srv: &http.Server{
			Addr:              cfg.Addr(),
			Handler:           h,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
		},
	}
}

// Start listens and serves until Stop. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on ln. It returns nil after a clean shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("http server listening", logging.String("addr", ln.Addr().String()))
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop drains in-flight requests for at most the shutdown timeout.
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		return err
	}
	s.logger.Info("http server stopped")
	return nil
}

func (s *Server) Handler() http.Handler { return s.handler }
