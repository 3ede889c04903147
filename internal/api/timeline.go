package api

import (
	"net/http"

	"worldloom/internal/store"
	"worldloom/internal/timeline"
)

type markersResponse struct {
	Markers []timeline.MarkerDetail `json:"markers"`
}

type operationsResponse struct {
	Operations []store.Operation `json:"operations"`
}

func (s *Server) handleCreateMarker(w http.ResponseWriter, r *http.Request) {
	var req timeline.MarkerCreate
	if !s.decodeBody(w, r, &req) {
		return
	}
	created, err := s.timeline.CreateMarker(r.Context(), r.PathValue("id"), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListMarkers(w http.ResponseWriter, r *http.Request) {
	withOps := r.URL.Query().Get("include_operations") == "true"
	markers, err := s.timeline.ListMarkers(r.Context(), r.PathValue("id"), withOps)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, markersResponse{Markers: markers})
}

func (s *Server) handleGetMarker(w http.ResponseWriter, r *http.Request) {
	found, err := s.timeline.GetMarker(r.Context(), r.PathValue("id"), r.PathValue("markerID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, found)
}

func (s *Server) handleUpdateMarker(w http.ResponseWriter, r *http.Request) {
	var req timeline.MarkerUpdate
	if !s.decodeBody(w, r, &req) {
		return
	}
	updated, err := s.timeline.UpdateMarker(r.Context(), r.PathValue("id"), r.PathValue("markerID"), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleRepositionMarker(w http.ResponseWriter, r *http.Request) {
	var req timeline.Reposition
	if !s.decodeBody(w, r, &req) {
		return
	}
	moved, err := s.timeline.RepositionMarker(r.Context(), r.PathValue("id"), r.PathValue("markerID"), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, moved)
}

func (s *Server) handleDeleteMarker(w http.ResponseWriter, r *http.Request) {
	if err := s.timeline.DeleteMarker(r.Context(), r.PathValue("id"), r.PathValue("markerID")); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleCreateOperation(w http.ResponseWriter, r *http.Request) {
	var req timeline.OperationCreate
	if !s.decodeBody(w, r, &req) {
		return
	}
	created, err := s.timeline.CreateOperation(r.Context(), r.PathValue("id"), r.PathValue("markerID"), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListOperations(w http.ResponseWriter, r *http.Request) {
	ops, err := s.timeline.ListOperations(r.Context(), r.PathValue("id"), r.PathValue("markerID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, operationsResponse{Operations: ops})
}

func (s *Server) handleGetOperation(w http.ResponseWriter, r *http.Request) {
	found, err := s.timeline.GetOperation(r.Context(), r.PathValue("id"), r.PathValue("markerID"), r.PathValue("opID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, found)
}

func (s *Server) handleUpdateOperation(w http.ResponseWriter, r *http.Request) {
	var req timeline.OperationUpdate
	if !s.decodeBody(w, r, &req) {
		return
	}
	updated, err := s.timeline.UpdateOperation(r.Context(), r.PathValue("id"), r.PathValue("markerID"), r.PathValue("opID"), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteOperation(w http.ResponseWriter, r *http.Request) {
	if err := s.timeline.DeleteOperation(r.Context(), r.PathValue("id"), r.PathValue("markerID"), r.PathValue("opID")); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// handleGetState serves the replayed world state, at a marker when marker_id
// is given and at the timeline head otherwise.
func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	state, err := s.timeline.GetState(r.Context(), r.PathValue("id"), r.URL.Query().Get("marker_id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	full := r.URL.Query().Get("full") == "true"
	res, err := s.timeline.Rebuild(r.Context(), r.PathValue("id"), full)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}
