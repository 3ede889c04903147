package api

import (
	"net/http"

	"worldloom/internal/lore"
	"worldloom/internal/store"
)

type entitiesResponse struct {
	Entities []store.Entity `json:"entities"`
}

type relationsResponse struct {
	Relations []store.Relation `json:"relations"`
}

func (s *Server) handleCreateEntity(w http.ResponseWriter, r *http.Request) {
	var req lore.EntityCreate
	if !s.decodeBody(w, r, &req) {
		return
	}
	created, err := s.lore.CreateEntity(r.Context(), r.PathValue("id"), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.EntityFilter{
		Type:    q.Get("type"),
		Subtype: q.Get("subtype"),
		Tag:     q.Get("tag"),
		Search:  q.Get("search"),
	}
	entities, err := s.lore.ListEntities(r.Context(), r.PathValue("id"), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entitiesResponse{Entities: entities})
}

func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	found, err := s.lore.GetEntity(r.Context(), r.PathValue("id"), r.PathValue("entityID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, found)
}

func (s *Server) handleUpdateEntity(w http.ResponseWriter, r *http.Request) {
	var req lore.EntityUpdate
	if !s.decodeBody(w, r, &req) {
		return
	}
	updated, err := s.lore.UpdateEntity(r.Context(), r.PathValue("id"), r.PathValue("entityID"), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteEntity(w http.ResponseWriter, r *http.Request) {
	if err := s.lore.DeleteEntity(r.Context(), r.PathValue("id"), r.PathValue("entityID")); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleCreateRelation(w http.ResponseWriter, r *http.Request) {
	var req lore.RelationCreate
	if !s.decodeBody(w, r, &req) {
		return
	}
	created, err := s.lore.CreateRelation(r.Context(), r.PathValue("id"), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListRelations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RelationFilter{
		EntityID: q.Get("entity_id"),
		Type:     q.Get("type"),
	}
	relations, err := s.lore.ListRelations(r.Context(), r.PathValue("id"), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, relationsResponse{Relations: relations})
}

func (s *Server) handleGetRelation(w http.ResponseWriter, r *http.Request) {
	found, err := s.lore.GetRelation(r.Context(), r.PathValue("id"), r.PathValue("relationID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, found)
}

func (s *Server) handleUpdateRelation(w http.ResponseWriter, r *http.Request) {
	var req lore.RelationUpdate
	if !s.decodeBody(w, r, &req) {
		return
	}
	updated, err := s.lore.UpdateRelation(r.Context(), r.PathValue("id"), r.PathValue("relationID"), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteRelation(w http.ResponseWriter, r *http.Request) {
	if err := s.lore.DeleteRelation(r.Context(), r.PathValue("id"), r.PathValue("relationID")); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleGetGraph(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := lore.GraphFilter{
		EntityTypes:   q["entity_type"],
		RelationTypes: q["relation_type"],
		FocusEntityID: q.Get("focus_entity_id"),
	}
	graph, err := s.lore.Graph(r.Context(), r.PathValue("id"), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, graph)
}
