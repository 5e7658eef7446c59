package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/zeebo/blake3"

	"instagate/internal/events"
	"instagate/internal/ingest"
	"instagate/internal/store"
)

// Server is the public webhook endpoint: the verification handshake on GET
// and the event-delivery pipeline on POST.
type Server struct {
	config     Config
	store      EventStore
	dispatcher ReplyDispatcher
	hub        *events.Hub // may be nil
	logger     *slog.Logger
	server     *http.Server
}

// New creates a new webhook server instance.
func New(config Config, st EventStore, dispatcher ReplyDispatcher, hub *events.Hub, logger *slog.Logger) *Server {
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = DefaultMaxBodySize
	}
	return &Server{
		config:     config,
		store:      st,
		dispatcher: dispatcher,
		hub:        hub,
		logger:     logger,
	}
}

// Start starts the webhook HTTP server (blocking).
func (s *Server) Start(ctx context.Context) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("webhook server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("webhook server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("webhook server error: %w", err)
	}
}

func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/webhook", s.handleVerify)
	r.Head("/webhook", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/webhook", s.handleDelivery)
	r.Get("/health", s.handleHealth)

	return r
}

// loggingMiddleware logs HTTP requests (excludes payload contents).
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("webhook request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// handleVerify answers the platform's subscription handshake: echo the
// challenge when the verify token matches, 403 otherwise. A bare GET with no
// hub parameters is answered with a liveness body so the endpoint can be
// probed in a browser.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode == "" && token == "" && challenge == "" {
		s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	if mode == "subscribe" && challenge != "" && tokenEqual(token, s.config.VerifyToken) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(challenge))
		return
	}

	s.logger.Warn("webhook verification rejected", "mode", mode)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte("Forbidden"))
}

// handleDelivery runs the ingestion pipeline for one delivery. Once the
// signature has passed, the response is a 200 ack regardless of per-event
// outcomes: the platform's redelivery loop keys off this single status, and a
// non-2xx here for a reply failure would trigger a payload-wide redelivery
// storm. The only exception is a storage failure, where the events were never
// durably recorded and a 500 makes redelivery the correct recovery path.
func (s *Server) handleDelivery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limited := io.LimitReader(r.Body, s.config.MaxBodySize+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to read request body")
		return
	}
	if int64(len(body)) > s.config.MaxBodySize {
		s.respondError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	// Verify over the raw bytes, before any parsing.
	if err := verifySignature(body, r.Header.Get(SignatureHeader), s.config.AppSecret); err != nil {
		s.logger.Warn("webhook signature verification failed",
			"request_id", middleware.GetReqID(ctx),
		)
		s.respondError(w, http.StatusForbidden, "forbidden")
		return
	}

	payload, err := ingest.Parse(body)
	if err != nil {
		// Authenticated but unparseable; ack so the platform does not
		// redeliver a body we will never understand.
		s.logger.Warn("webhook payload parse failed", "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	bodyHash := deliveryHash(body)

	for ev := range payload.Events(s.logger) {
		if err := s.processEvent(ctx, ev, bodyHash); err != nil {
			s.logger.Error("event storage failed", "event_id", ev.EventID, "error", err)
			s.respondError(w, http.StatusInternalServerError, "storage unavailable")
			return
		}
	}

	w.WriteHeader(http.StatusOK)
}

// processEvent stores one event and, if this delivery won the insert, issues
// the auto-reply and records its outcome. A duplicate insert skips dispatch
// entirely. Only storage errors are returned; dispatch failures are already
// contained in the outcome.
func (s *Server) processEvent(ctx context.Context, ev ingest.InboundEvent, bodyHash string) error {
	inserted, err := s.store.TryInsert(ctx, ev, bodyHash)
	if err != nil {
		return err
	}
	if !inserted {
		s.logger.Debug("duplicate event skipped", "event_id", ev.EventID)
		return nil
	}

	s.publish(events.TypeMessageStored, map[string]string{
		"event_id":   ev.EventID,
		"event_type": string(ev.Type),
		"sender_id":  ev.SenderID,
	})

	outcome := s.dispatcher.Dispatch(ctx, ev)
	rec, err := s.store.RecordReply(ctx, ev.EventID, outcome.Status, outcome.ErrorDetail)
	if err != nil {
		if errors.Is(err, store.ErrEventNotFound) {
			// Unreachable in the normal flow: the insert above just
			// succeeded.
			s.logger.Error("reply recorded for unknown event", "event_id", ev.EventID)
		}
		return err
	}

	feedType := events.TypeReplySent
	if rec.Status == store.StatusFailed {
		feedType = events.TypeReplyFailed
	}
	s.publish(feedType, rec)
	return nil
}

// handleHealth is liveness only; it checks no dependencies.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) publish(eventType string, data any) {
	if s.hub != nil {
		s.hub.Publish(eventType, data)
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, ErrorResponse{Error: message})
}

// deliveryHash is the audit digest stored with every event from a delivery.
func deliveryHash(body []byte) string {
	sum := blake3.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func tokenEqual(presented, configured string) bool {
	if presented == "" || configured == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(configured)) == 1
}
