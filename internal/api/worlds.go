package api

import (
	"net/http"

	"worldloom/internal/store"
	"worldloom/internal/world"
)

type worldsResponse struct {
	Worlds []store.World `json:"worlds"`
}

func (s *Server) handleCreateWorld(w http.ResponseWriter, r *http.Request) {
	var req world.WorldCreate
	if !s.decodeBody(w, r, &req) {
		return
	}
	created, err := s.worlds.Create(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListWorlds(w http.ResponseWriter, r *http.Request) {
	worlds, err := s.worlds.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, worldsResponse{Worlds: worlds})
}

func (s *Server) handleGetWorld(w http.ResponseWriter, r *http.Request) {
	found, err := s.worlds.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, found)
}

func (s *Server) handleUpdateWorld(w http.ResponseWriter, r *http.Request) {
	var req world.WorldUpdate
	if !s.decodeBody(w, r, &req) {
		return
	}
	updated, err := s.worlds.Update(r.Context(), r.PathValue("id"), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteWorld(w http.ResponseWriter, r *http.Request) {
	if err := s.worlds.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
