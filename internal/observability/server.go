package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rafaeljc/skylab/internal/config"
)

// Server is the admin listener every skylab binary runs next to its API:
// liveness, readiness over the registered checkers, and Prometheus metrics.
type Server struct {
	logger   *slog.Logger
	cfg      *config.ObservabilityConfig
	mux      chi.Router
	checkers []Checker

	mu       sync.Mutex
	httpSrv  *http.Server
	listener net.Listener
}

// NewServer mounts the admin routes on the paths from cfg.
func NewServer(logger *slog.Logger, cfg *config.ObservabilityConfig, checkers ...Checker) *Server {
	if cfg == nil {
		panic("observability: nil config")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{logger: logger, cfg: cfg, checkers: checkers}

	mux := chi.NewRouter()
	mux.Use(middleware.Recoverer, middleware.NoCache)
	mux.Get(cfg.LivenessPath, s.liveness)
	mux.Get(cfg.ReadinessPath, s.readiness)
	mux.Handle(cfg.MetricsPath, promhttp.Handler())
	s.mux = mux

	return s
}

// Handler exposes the router for in-process tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start binds the admin port and serves in the background. A bind failure
// is returned so the binary can refuse to boot without its probes.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.httpSrv != nil {
		return errors.New("observability server already started")
	}

	ln, err := net.Listen("tcp", net.JoinHostPort("", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("failed to bind observability port %s: %w", s.cfg.Port, err)
	}

	s.listener = ln
	s.httpSrv = &http.Server{
		Handler:           s.mux,
		ReadTimeout:       s.cfg.Timeout,
		ReadHeaderTimeout: s.cfg.Timeout,
		WriteTimeout:      s.cfg.Timeout,
		IdleTimeout:       3 * s.cfg.Timeout,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	s.logger.Info("observability server listening",
		slog.String("addr", ln.Addr().String()),
		slog.Group("paths",
			slog.String("liveness", s.cfg.LivenessPath),
			slog.String("readiness", s.cfg.ReadinessPath),
			slog.String("metrics", s.cfg.MetricsPath),
		),
		slog.Int("checkers", len(s.checkers)),
	)

	srv := s.httpSrv
	go func() {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("observability server stopped", slog.Any("error", err))
		}
	}()
	return nil
}

// Addr is the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown drains in-flight probes. Calling it before Start is a no-op.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpSrv
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	s.logger.Info("observability server shutting down")
	return srv.Shutdown(ctx)
}
