package mcp

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"worldloom/internal/lore"
	"worldloom/internal/store/sqlite"
	"worldloom/internal/timeline"
	"worldloom/internal/world"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	ctx := context.Background()
	c, err := sqlite.New(ctx, "sqlite://:memory:")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { c.Close(context.Background()) })
	if err := c.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tl := timeline.NewService(c, logger)
	return NewServer(world.NewService(c, tl, logger), lore.NewService(c, tl, logger), tl, "test")
}

func createTestWorld(t *testing.T, s *Server) WorldOutput {
	t.Helper()
	_, w, err := s.handleCreateWorld(context.Background(), nil, CreateWorldInput{Name: "Aerwyn"})
	if err != nil {
		t.Fatalf("handleCreateWorld: %v", err)
	}
	return w
}

func TestCreateAndListWorlds(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	w := createTestWorld(t, s)
	if w.ID == "" || w.Name != "Aerwyn" {
		t.Errorf("world = %+v", w)
	}
	if len(w.EntityTypes) == 0 || len(w.RelationTypes) == 0 {
		t.Errorf("vocabulary defaults missing: %+v", w)
	}
	if w.CreatedAt == "" || w.UpdatedAt == "" {
		t.Errorf("timestamps missing: %+v", w)
	}

	_, list, err := s.handleListWorlds(ctx, nil, ListWorldsInput{})
	if err != nil {
		t.Fatalf("handleListWorlds: %v", err)
	}
	if len(list.Worlds) != 1 || list.Worlds[0].ID != w.ID {
		t.Errorf("worlds = %+v", list.Worlds)
	}

	if _, _, err := s.handleCreateWorld(ctx, nil, CreateWorldInput{}); err == nil {
		t.Error("expected error for missing name")
	}
}

func TestEntityTools(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	w := createTestWorld(t, s)

	_, alice, err := s.handleCreateEntity(ctx, nil, CreateEntityInput{
		WorldID: w.ID,
		Name:    "Alice",
		Type:    "character",
		Tags:    []string{"hero"},
		Source:  "ai",
	})
	if err != nil {
		t.Fatalf("handleCreateEntity: %v", err)
	}
	if alice.Type != "character" || alice.Source != "ai" || alice.Status != "active" {
		t.Errorf("entity = %+v", alice)
	}

	_, got, err := s.handleGetEntity(ctx, nil, GetEntityInput{WorldID: w.ID, EntityID: alice.ID})
	if err != nil {
		t.Fatalf("handleGetEntity: %v", err)
	}
	if got.ID != alice.ID || got.Name != "Alice" {
		t.Errorf("got = %+v", got)
	}

	name := "Alice the Bold"
	_, updated, err := s.handleUpdateEntity(ctx, nil, UpdateEntityInput{
		WorldID:  w.ID,
		EntityID: alice.ID,
		Name:     &name,
	})
	if err != nil {
		t.Fatalf("handleUpdateEntity: %v", err)
	}
	if updated.Name != name || updated.Source != "user" {
		t.Errorf("updated = %+v, want renamed and user-owned", updated)
	}

	_, list, err := s.handleListEntities(ctx, nil, ListEntitiesInput{WorldID: w.ID, Tag: "hero"})
	if err != nil {
		t.Fatalf("handleListEntities: %v", err)
	}
	if len(list.Entities) != 1 {
		t.Errorf("entities = %+v", list.Entities)
	}

	_, deleted, err := s.handleDeleteEntity(ctx, nil, DeleteEntityInput{WorldID: w.ID, EntityID: alice.ID})
	if err != nil {
		t.Fatalf("handleDeleteEntity: %v", err)
	}
	if !deleted.Deleted || deleted.ID != alice.ID {
		t.Errorf("deleted = %+v", deleted)
	}
	if _, _, err := s.handleGetEntity(ctx, nil, GetEntityInput{WorldID: w.ID, EntityID: alice.ID}); err == nil {
		t.Error("expected error after delete")
	}
}

func TestRelationAndGraphTools(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	w := createTestWorld(t, s)

	_, alice, err := s.handleCreateEntity(ctx, nil, CreateEntityInput{WorldID: w.ID, Name: "Alice", Type: "character"})
	if err != nil {
		t.Fatalf("handleCreateEntity: %v", err)
	}
	_, hold, err := s.handleCreateEntity(ctx, nil, CreateEntityInput{WorldID: w.ID, Name: "Riverhold", Type: "location"})
	if err != nil {
		t.Fatalf("handleCreateEntity: %v", err)
	}

	_, rel, err := s.handleCreateRelation(ctx, nil, CreateRelationInput{
		WorldID:        w.ID,
		SourceEntityID: alice.ID,
		TargetEntityID: hold.ID,
		Type:           "located_in",
	})
	if err != nil {
		t.Fatalf("handleCreateRelation: %v", err)
	}
	if rel.Weight != 0.5 {
		t.Errorf("Weight = %v, want default", rel.Weight)
	}

	if _, _, err := s.handleCreateRelation(ctx, nil, CreateRelationInput{
		WorldID:        w.ID,
		SourceEntityID: alice.ID,
		TargetEntityID: "ghost",
	}); err == nil {
		t.Error("expected error for dangling endpoint")
	}

	_, graph, err := s.handleGetGraph(ctx, nil, GetGraphInput{WorldID: w.ID, FocusEntityID: alice.ID})
	if err != nil {
		t.Fatalf("handleGetGraph: %v", err)
	}
	if len(graph.Entities) != 2 || len(graph.Relations) != 1 {
		t.Errorf("graph = %d entities, %d relations", len(graph.Entities), len(graph.Relations))
	}

	_, list, err := s.handleListRelations(ctx, nil, ListRelationsInput{WorldID: w.ID, EntityID: hold.ID})
	if err != nil {
		t.Fatalf("handleListRelations: %v", err)
	}
	if len(list.Relations) != 1 || list.Relations[0].ID != rel.ID {
		t.Errorf("relations = %+v", list.Relations)
	}

	_, deleted, err := s.handleDeleteRelation(ctx, nil, DeleteRelationInput{WorldID: w.ID, RelationID: rel.ID})
	if err != nil {
		t.Fatalf("handleDeleteRelation: %v", err)
	}
	if !deleted.Deleted {
		t.Errorf("deleted = %+v", deleted)
	}
}

func TestMarkerAndStateTools(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	w := createTestWorld(t, s)

	_, m1, err := s.handleCreateMarker(ctx, nil, CreateMarkerInput{
		WorldID: w.ID,
		Title:   "Founding",
		Operations: []OperationInput{{
			OpType:     "entity_create",
			TargetKind: "entity",
			TargetID:   "e1",
			Payload:    map[string]any{"name": "Alice", "type": "character"},
		}},
	})
	if err != nil {
		t.Fatalf("handleCreateMarker: %v", err)
	}
	if m1.PlacementStatus != "placed" || m1.MarkerKind != "explicit" {
		t.Errorf("marker = %+v", m1)
	}
	if len(m1.Operations) != 1 || m1.Operations[0].Payload["name"] != "Alice" {
		t.Errorf("inline operations = %+v", m1.Operations)
	}

	_, m2, err := s.handleCreateMarker(ctx, nil, CreateMarkerInput{WorldID: w.ID, Title: "The siege"})
	if err != nil {
		t.Fatalf("handleCreateMarker: %v", err)
	}

	_, op, err := s.handleCreateOperation(ctx, nil, CreateOperationInput{
		WorldID:  w.ID,
		MarkerID: m2.ID,
		OperationInput: OperationInput{
			OpType:     "entity_patch",
			TargetKind: "entity",
			TargetID:   "e1",
			Payload:    map[string]any{"status": "wounded"},
		},
	})
	if err != nil {
		t.Fatalf("handleCreateOperation: %v", err)
	}

	_, list, err := s.handleListMarkers(ctx, nil, ListMarkersInput{WorldID: w.ID, IncludeOperations: true})
	if err != nil {
		t.Fatalf("handleListMarkers: %v", err)
	}
	if len(list.Markers) != 2 || len(list.Markers[1].Operations) != 1 {
		t.Errorf("markers = %+v", list.Markers)
	}

	// State at the first marker: e1 exists, the patch has not applied yet.
	_, st, err := s.handleGetWorldState(ctx, nil, GetWorldStateInput{WorldID: w.ID, MarkerID: m1.ID})
	if err != nil {
		t.Fatalf("handleGetWorldState: %v", err)
	}
	if len(st.Entities) != 1 || !st.Entities[0].ExistsAtMarker || st.Entities[0].Status != "active" {
		t.Errorf("state at m1 = %+v", st.Entities)
	}
	if st.AppliedMarkerCount != 1 {
		t.Errorf("AppliedMarkerCount = %d", st.AppliedMarkerCount)
	}

	// Head state: the patch has applied.
	_, head, err := s.handleGetWorldState(ctx, nil, GetWorldStateInput{WorldID: w.ID})
	if err != nil {
		t.Fatalf("handleGetWorldState: %v", err)
	}
	if len(head.Entities) != 1 || head.Entities[0].Status != "wounded" {
		t.Errorf("head state = %+v", head.Entities)
	}

	// Replacing the payload changes the replay outcome.
	_, _, err = s.handleUpdateOperation(ctx, nil, UpdateOperationInput{
		WorldID:     w.ID,
		MarkerID:    m2.ID,
		OperationID: op.ID,
		Payload:     map[string]any{"status": "dead"},
	})
	if err != nil {
		t.Fatalf("handleUpdateOperation: %v", err)
	}
	_, head, err = s.handleGetWorldState(ctx, nil, GetWorldStateInput{WorldID: w.ID})
	if err != nil {
		t.Fatalf("handleGetWorldState: %v", err)
	}
	if head.Entities[0].Status != "dead" {
		t.Errorf("status after payload update = %q", head.Entities[0].Status)
	}

	// Moving the patch marker before the create leaves the patch with no
	// target, so it is skipped and the head reverts.
	zero := 0
	_, moved, err := s.handleRepositionMarker(ctx, nil, RepositionMarkerInput{
		WorldID:     w.ID,
		MarkerID:    m2.ID,
		InsertIndex: &zero,
	})
	if err != nil {
		t.Fatalf("handleRepositionMarker: %v", err)
	}
	if moved.SortKey >= m1.SortKey {
		t.Errorf("SortKey = %v, want before %v", moved.SortKey, m1.SortKey)
	}
	_, head, err = s.handleGetWorldState(ctx, nil, GetWorldStateInput{WorldID: w.ID})
	if err != nil {
		t.Fatalf("handleGetWorldState: %v", err)
	}
	if head.Entities[0].Status != "active" {
		t.Errorf("status after reposition = %q", head.Entities[0].Status)
	}
	if len(head.SkippedOperations) != 1 || !strings.Contains(head.SkippedOperations[0].Reason, "does not exist") {
		t.Errorf("skipped = %+v", head.SkippedOperations)
	}

	_, rebuilt, err := s.handleRebuildTimeline(ctx, nil, RebuildTimelineInput{WorldID: w.ID, Full: true})
	if err != nil {
		t.Fatalf("handleRebuildTimeline: %v", err)
	}
	if rebuilt.Status != "rebuilt" || rebuilt.SnapshotCount != 2 {
		t.Errorf("rebuild = %+v", rebuilt)
	}

	_, deletedOp, err := s.handleDeleteOperation(ctx, nil, DeleteOperationInput{
		WorldID:     w.ID,
		MarkerID:    m2.ID,
		OperationID: op.ID,
	})
	if err != nil {
		t.Fatalf("handleDeleteOperation: %v", err)
	}
	if !deletedOp.Deleted {
		t.Errorf("deleted = %+v", deletedOp)
	}
	_, deletedMarker, err := s.handleDeleteMarker(ctx, nil, DeleteMarkerInput{WorldID: w.ID, MarkerID: m2.ID})
	if err != nil {
		t.Fatalf("handleDeleteMarker: %v", err)
	}
	if !deletedMarker.Deleted {
		t.Errorf("deleted = %+v", deletedMarker)
	}
}

func TestRequiredFields(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	checks := []struct {
		name string
		call func() error
	}{
		{"get_entity", func() error {
			_, _, err := s.handleGetEntity(ctx, nil, GetEntityInput{})
			return err
		}},
		{"list_entities", func() error {
			_, _, err := s.handleListEntities(ctx, nil, ListEntitiesInput{})
			return err
		}},
		{"create_entity", func() error {
			_, _, err := s.handleCreateEntity(ctx, nil, CreateEntityInput{WorldID: "w"})
			return err
		}},
		{"create_marker", func() error {
			_, _, err := s.handleCreateMarker(ctx, nil, CreateMarkerInput{WorldID: "w"})
			return err
		}},
		{"reposition_marker", func() error {
			_, _, err := s.handleRepositionMarker(ctx, nil, RepositionMarkerInput{WorldID: "w"})
			return err
		}},
		{"create_operation", func() error {
			_, _, err := s.handleCreateOperation(ctx, nil, CreateOperationInput{WorldID: "w"})
			return err
		}},
		{"get_world_state", func() error {
			_, _, err := s.handleGetWorldState(ctx, nil, GetWorldStateInput{})
			return err
		}},
		{"rebuild_timeline", func() error {
			_, _, err := s.handleRebuildTimeline(ctx, nil, RebuildTimelineInput{})
			return err
		}},
	}
	for _, check := range checks {
		t.Run(check.name, func(t *testing.T) {
			if err := check.call(); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}
