// Package api serves the optional status endpoints that are reachable while
// the bootstrap sequence runs.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"plexident/launchpad/internal/config"
)

// Options configures the router.
type Options struct {
	ServiceName string
	Status      statusSource
	Targets     []Target
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
	// DeepHealthRate caps GET /health/deep per second; zero means unlimited.
	DeepHealthRate float64
}

// NewRouter builds the gin engine with Recovery, Tracing and RequestLogger
// applied in that order.
func NewRouter(opts Options) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(Recovery(slog.Default()))
	engine.Use(Tracing(opts.ServiceName))
	engine.Use(RequestLogger(slog.Default()))

	h := newHandler(opts.Status, opts.Targets)

	engine.GET("/health", h.Health)
	deep := []gin.HandlerFunc{h.DeepHealth}
	if opts.DeepHealthRate > 0 {
		burst := max(1, int(opts.DeepHealthRate))
		deep = append([]gin.HandlerFunc{RateLimit(rate.NewLimiter(rate.Limit(opts.DeepHealthRate), burst))}, deep...)
	}
	engine.GET("/health/deep", deep...)
	engine.GET("/ready", h.Ready)
	engine.GET("/status", h.Status)
	if opts.Metrics != nil {
		engine.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	return engine
}

// Server runs the status API in the background.
type Server struct {
	cfg config.StatusConfig
	srv *http.Server
}

// NewServer returns a Server for handler listening on cfg.Port.
func NewServer(cfg config.StatusConfig, handler http.Handler) *Server {
	return &Server{
		cfg: cfg,
		srv: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
	}
}

// Start binds the port synchronously, so a port already in use is reported
// to the caller, then serves in a goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("status server listen %s: %w", s.srv.Addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln in a goroutine.
func (s *Server) Serve(ln net.Listener) error {
	slog.Info("status server listening", "addr", ln.Addr().String())
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("status server stopped", "error", err)
		}
	}()
	return nil
}

// Shutdown stops the server gracefully, bounded by the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("status server shutdown: %w", err)
	}
	return nil
}
