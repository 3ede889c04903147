// Package api exposes the world, lore, and timeline services over HTTP.
// Request and response bodies are the service layer's own JSON shapes.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"expvar"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"worldloom/internal/lore"
	"worldloom/internal/store"
	"worldloom/internal/timeline"
	"worldloom/internal/world"
)

const maxBodyBytes = 1 << 20

// Server is an HTTP API server over the worldloom services.
type Server struct {
	worlds    *world.Service
	lore      *lore.Service
	timeline  *timeline.Service
	logger    *slog.Logger
	authToken string // empty = no auth required
}

func NewServer(worlds *world.Service, loreSvc *lore.Service, tl *timeline.Service, logger *slog.Logger, authToken string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		worlds:    worlds,
		lore:      loreSvc,
		timeline:  tl,
		logger:    logger,
		authToken: authToken,
	}
}

// Handler returns an http.Handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health and runtime counters carry no world data and skip auth.
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /debug/vars", expvar.Handler())

	mux.HandleFunc("POST /v1/worlds", s.auth(s.handleCreateWorld))
	mux.HandleFunc("GET /v1/worlds", s.auth(s.handleListWorlds))
	mux.HandleFunc("GET /v1/worlds/{id}", s.auth(s.handleGetWorld))
	mux.HandleFunc("PATCH /v1/worlds/{id}", s.auth(s.handleUpdateWorld))
	mux.HandleFunc("DELETE /v1/worlds/{id}", s.auth(s.handleDeleteWorld))

	mux.HandleFunc("POST /v1/worlds/{id}/entities", s.auth(s.handleCreateEntity))
	mux.HandleFunc("GET /v1/worlds/{id}/entities", s.auth(s.handleListEntities))
	mux.HandleFunc("GET /v1/worlds/{id}/entities/{entityID}", s.auth(s.handleGetEntity))
	mux.HandleFunc("PATCH /v1/worlds/{id}/entities/{entityID}", s.auth(s.handleUpdateEntity))
	mux.HandleFunc("DELETE /v1/worlds/{id}/entities/{entityID}", s.auth(s.handleDeleteEntity))

	mux.HandleFunc("POST /v1/worlds/{id}/relations", s.auth(s.handleCreateRelation))
	mux.HandleFunc("GET /v1/worlds/{id}/relations", s.auth(s.handleListRelations))
	mux.HandleFunc("GET /v1/worlds/{id}/relations/{relationID}", s.auth(s.handleGetRelation))
	mux.HandleFunc("PATCH /v1/worlds/{id}/relations/{relationID}", s.auth(s.handleUpdateRelation))
	mux.HandleFunc("DELETE /v1/worlds/{id}/relations/{relationID}", s.auth(s.handleDeleteRelation))

	mux.HandleFunc("GET /v1/worlds/{id}/graph", s.auth(s.handleGetGraph))

	mux.HandleFunc("POST /v1/worlds/{id}/markers", s.auth(s.handleCreateMarker))
	mux.HandleFunc("GET /v1/worlds/{id}/markers", s.auth(s.handleListMarkers))
	mux.HandleFunc("GET /v1/worlds/{id}/markers/{markerID}", s.auth(s.handleGetMarker))
	mux.HandleFunc("PATCH /v1/worlds/{id}/markers/{markerID}", s.auth(s.handleUpdateMarker))
	mux.HandleFunc("POST /v1/worlds/{id}/markers/{markerID}/reposition", s.auth(s.handleRepositionMarker))
	mux.HandleFunc("DELETE /v1/worlds/{id}/markers/{markerID}", s.auth(s.handleDeleteMarker))

	mux.HandleFunc("POST /v1/worlds/{id}/markers/{markerID}/operations", s.auth(s.handleCreateOperation))
	mux.HandleFunc("GET /v1/worlds/{id}/markers/{markerID}/operations", s.auth(s.handleListOperations))
	mux.HandleFunc("GET /v1/worlds/{id}/markers/{markerID}/operations/{opID}", s.auth(s.handleGetOperation))
	mux.HandleFunc("PATCH /v1/worlds/{id}/markers/{markerID}/operations/{opID}", s.auth(s.handleUpdateOperation))
	mux.HandleFunc("DELETE /v1/worlds/{id}/markers/{markerID}/operations/{opID}", s.auth(s.handleDeleteOperation))

	mux.HandleFunc("GET /v1/worlds/{id}/state", s.auth(s.handleGetState))
	mux.HandleFunc("POST /v1/worlds/{id}/timeline/rebuild", s.auth(s.handleRebuild))

	return mux
}

// auth wraps a handler with Bearer token authentication when authToken is set.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.authToken == "" {
			next(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
			s.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeBody reads a JSON request body into v, enforcing the size limit.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// writeJSON encodes v as JSON and writes it to w with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(v); encErr != nil {
		s.logger.Error("failed to encode response", "error", encErr)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// fail maps a service error onto an HTTP status. Sentinel wraps become client
// errors with the service message; anything else is logged and masked.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrInvalidInput):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// Shutdown gracefully shuts down an http.Server with the given timeout.
// This is a convenience helper used by the api command.
func Shutdown(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
