package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ogulcanaydogan/fare-guardian/pkg/model"
	"github.com/ogulcanaydogan/fare-guardian/pkg/scheduler"
	"github.com/ogulcanaydogan/fare-guardian/pkg/storage"
)

// StatusProvider reports scheduler state; satisfied by *scheduler.Scheduler.
type StatusProvider interface {
	Status() scheduler.Status
}

// Server provides health check and read-only status API endpoints.
type Server struct {
	storage   storage.Storage
	scheduler StatusProvider
	mux       *http.ServeMux
	logger    *slog.Logger
}

// NewServer creates an API server.
func NewServer(store storage.Storage, sched StatusProvider, logger *slog.Logger) *Server {
	s := &Server{
		storage:   store,
		scheduler: sched,
		mux:       http.NewServeMux(),
		logger:    logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/v1/alerts", s.handleAlerts)
	s.mux.HandleFunc("GET /api/v1/alerts/{id}", s.handleAlert)
	s.mux.HandleFunc("GET /api/v1/alerts/{id}/deals", s.handleDeals)
}

// Handler returns the HTTP handler for this server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.scheduler.Status())
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "owner query parameter is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	list, err := s.storage.ListAlertsByOwner(ctx, owner)
	if err != nil {
		s.logger.Error("list alerts", "owner", owner, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if list == nil {
		list = []model.Alert{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleAlert(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	alert, err := s.storage.GetAlert(ctx, r.PathValue("id"))
	if err != nil {
		s.storageError(w, "get alert", err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (s *Server) handleDeals(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	id := r.PathValue("id")
	if _, err := s.storage.GetAlert(ctx, id); err != nil {
		s.storageError(w, "get alert", err)
		return
	}

	deals, err := s.storage.ListDeals(ctx, id, limit)
	if err != nil {
		s.storageError(w, "list deals", err)
		return
	}
	if deals == nil {
		deals = []model.Deal{}
	}
	writeJSON(w, http.StatusOK, deals)
}

func (s *Server) storageError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, model.ErrNotFound) {
		writeError(w, http.StatusNotFound, "alert not found")
		return
	}
	s.logger.Error(op, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
