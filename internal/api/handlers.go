package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"instagate/internal/store"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type healthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

type listEventsResponse struct {
	Events []store.StoredEvent `json:"events"`
	Count  int                 `json:"count"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	})
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxListLimit)
	}

	evs, err := s.reader.ListEvents(r.Context(), limit)
	if err != nil {
		s.logger.Error("list events failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "storage unavailable")
		return
	}
	if evs == nil {
		evs = []store.StoredEvent{}
	}

	respondJSON(w, http.StatusOK, listEventsResponse{Events: evs, Count: len(evs)})
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	ev, err := s.reader.GetEvent(r.Context(), eventID)
	if err != nil {
		if errors.Is(err, store.ErrEventNotFound) {
			s.writeError(w, http.StatusNotFound, "event not found")
			return
		}
		s.logger.Error("get event failed", "event_id", eventID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "storage unavailable")
		return
	}

	respondJSON(w, http.StatusOK, ev)
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, map[string]string{"error": message})
}
