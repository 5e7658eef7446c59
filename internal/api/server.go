// Package api is the read-only admin API: the collaborator interface for the
// separate admin panel. It can query stored events and tail a live feed, and
// has no write access to the store.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"instagate/internal/events"
	"instagate/internal/store"
)

// EventReader is the read-only slice of the store this API is allowed to see.
type EventReader interface {
	ListEvents(ctx context.Context, limit int) ([]store.StoredEvent, error)
	GetEvent(ctx context.Context, eventID string) (*store.StoredEvent, error)
}

// Config holds admin API server configuration.
type Config struct {
	Listen string
	// APIKey is the bearer token required on every endpoint except /healthz.
	APIKey string
}

// Server is the admin HTTP server.
type Server struct {
	config    Config
	reader    EventReader
	hub       *events.Hub
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

func New(config Config, reader EventReader, hub *events.Hub, logger *slog.Logger) *Server {
	return &Server{
		config:    config,
		reader:    reader,
		hub:       hub,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Start starts the admin HTTP server (blocking).
func (s *Server) Start(ctx context.Context) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:        s.config.Listen,
		Handler:     router,
		ReadTimeout: 10 * time.Second,
		// No WriteTimeout: /events is a long-lived SSE stream.
		IdleTimeout: 120 * time.Second,
	}

	s.logger.Info("admin api starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("admin api shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("admin api shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("admin api error: %w", err)
	}
}

func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/admin/events", s.handleListEvents)
		r.Get("/admin/events/{eventID}", s.handleGetEvent)
		r.Get("/events", s.handleEvents)
	})

	return r
}
