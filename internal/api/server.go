// Package api serves the launcher over HTTP: start launches, follow their
// progress and read history.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mattjoyce/bxt-launcher/internal/config"
	"github.com/mattjoyce/bxt-launcher/internal/events"
	"github.com/mattjoyce/bxt-launcher/internal/history"
	"github.com/mattjoyce/bxt-launcher/internal/runner"
)

// Launcher starts launches and looks up live ones.
type Launcher interface {
	Start(ctx context.Context, profileRef string) (*runner.Launch, error)
	Get(id string) (*runner.Launch, error)
}

// HistoryReader reads finished launches. It is nil when history is disabled.
type HistoryReader interface {
	Get(ctx context.Context, id string) (*history.Entry, error)
	List(ctx context.Context, limit int) ([]history.Entry, error)
}

// Config holds API server configuration
type Config struct {
	Listen string
	// APIKey guards every route except /healthz and /metrics. Empty disables auth.
	APIKey string
}

// Server represents the HTTP API server
type Server struct {
	config    Config
	launcher  Launcher
	history   HistoryReader
	profiles  *config.Config
	hub       *events.Hub
	metrics   http.Handler
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
	// launchCtx parents every launch started over HTTP; it ends with Start.
	launchCtx context.Context
}

// Deps are the collaborators the server exposes.
type Deps struct {
	Launcher Launcher
	History  HistoryReader
	Profiles *config.Config
	Hub      *events.Hub
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

// New creates a new API server instance
func New(cfg Config, deps Deps, logger *slog.Logger) *Server {
	hub := deps.Hub
	if hub == nil {
		hub = events.NewHub(0)
	}
	return &Server{
		config:    cfg,
		launcher:  deps.Launcher,
		history:   deps.History,
		profiles:  deps.Profiles,
		hub:       hub,
		metrics:   deps.Metrics,
		logger:    logger,
		startedAt: time.Now(),
		launchCtx: context.Background(),
	}
}

// Start serves until ctx is cancelled. Launches started over HTTP are
// cancelled with it.
func (s *Server) Start(ctx context.Context) error {
	s.launchCtx = ctx
	s.server = &http.Server{
		Addr:              s.config.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Handler returns the routed handler without listening.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(s.requireKey)
		r.Get("/openapi.json", s.handleOpenAPI)
		r.Get("/profiles", s.handleListProfiles)
		r.Post("/launch", s.handleLaunch)
		r.Get("/launch/{launchID}", s.handleGetLaunch)
		r.Get("/history", s.handleListHistory)
		r.Get("/events", s.handleEvents)
	})

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
