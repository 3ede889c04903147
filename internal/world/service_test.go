package world

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"worldloom/internal/store"
	"worldloom/internal/store/sqlite"
	"worldloom/internal/timeline"
)

func newTestService(t *testing.T) (*Service, *timeline.Service, store.Store) {
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
	return NewService(c, tl, logger), tl, c
}

func TestCreateWorld(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	w, err := svc.Create(ctx, WorldCreate{Name: "Aerwyn"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if w.ID == "" || w.Name != "Aerwyn" {
		t.Errorf("world = %+v", w)
	}
	if len(w.EntityTypes) != len(DefaultEntityTypes) || w.EntityTypes[0] != "character" {
		t.Errorf("EntityTypes = %v, want defaults", w.EntityTypes)
	}
	if len(w.RelationTypes) != len(DefaultRelationTypes) || w.RelationTypes[0] != "ally_of" {
		t.Errorf("RelationTypes = %v, want defaults", w.RelationTypes)
	}

	custom, err := svc.Create(ctx, WorldCreate{
		Name:          "Custom",
		EntityTypes:   []string{"Dark Lord", "  ", "Place"},
		RelationTypes: []string{"Enemy Of"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(custom.EntityTypes) != 2 || custom.EntityTypes[0] != "dark_lord" || custom.EntityTypes[1] != "place" {
		t.Errorf("EntityTypes = %v, want normalized", custom.EntityTypes)
	}
	if len(custom.RelationTypes) != 1 || custom.RelationTypes[0] != "enemy_of" {
		t.Errorf("RelationTypes = %v", custom.RelationTypes)
	}

	if _, err := svc.Create(ctx, WorldCreate{Name: "   "}); !errors.Is(err, store.ErrInvalidInput) {
		t.Errorf("blank name error = %v, want ErrInvalidInput", err)
	}
}

func TestListWorldsNewestFirst(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	older, err := svc.Create(ctx, WorldCreate{Name: "Older"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	newer, err := svc.Create(ctx, WorldCreate{Name: "Newer"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	worlds, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(worlds) != 2 || worlds[0].ID != newer.ID || worlds[1].ID != older.ID {
		t.Errorf("order = %v, want newest first", []string{worlds[0].Name, worlds[1].Name})
	}
}

func TestUpdateWorldFlushesTimeline(t *testing.T) {
	svc, tl, st := newTestService(t)
	ctx := context.Background()

	w, err := svc.Create(ctx, WorldCreate{Name: "Aerwyn"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := tl.CreateMarker(ctx, w.ID, timeline.MarkerCreate{
		Title: "Founding",
		Operations: []timeline.OperationCreate{
			{OpType: "entity_create", TargetKind: "entity", TargetID: "e1", Payload: []byte(`{"name":"Alice"}`)},
		},
	}); err != nil {
		t.Fatalf("CreateMarker: %v", err)
	}
	if _, err := tl.GetState(ctx, w.ID, ""); err != nil {
		t.Fatalf("GetState: %v", err)
	}

	desc := "An old realm"
	updated, err := svc.Update(ctx, w.ID, WorldUpdate{
		Name:        sp("Aerwyn Reborn"),
		Description: &desc,
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Name != "Aerwyn Reborn" || updated.Description != desc {
		t.Errorf("updated = %+v", updated)
	}

	// Metadata feeds every cached state, so the cache must be flushed.
	summaries, err := st.ListSnapshotSummaries(ctx, w.ID)
	if err != nil {
		t.Fatalf("ListSnapshotSummaries: %v", err)
	}
	if len(summaries) != 0 {
		t.Errorf("%d snapshots survived a metadata update", len(summaries))
	}

	ws, err := tl.GetState(ctx, w.ID, "")
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if ws.World.Name != "Aerwyn Reborn" {
		t.Errorf("state world name = %q", ws.World.Name)
	}

	// Empty updates change nothing and keep the cache.
	before := updated.TimelineVersion
	same, err := svc.Update(ctx, w.ID, WorldUpdate{})
	if err != nil {
		t.Fatalf("Update(empty): %v", err)
	}
	if same.TimelineVersion != before {
		t.Errorf("empty update bumped the version to %d", same.TimelineVersion)
	}

	if _, err := svc.Update(ctx, w.ID, WorldUpdate{Name: sp("  ")}); !errors.Is(err, store.ErrInvalidInput) {
		t.Errorf("blank name error = %v, want ErrInvalidInput", err)
	}
	if _, err := svc.Update(ctx, "nope", WorldUpdate{Name: sp("X")}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing world error = %v, want ErrNotFound", err)
	}
}

func TestDeleteWorldCascades(t *testing.T) {
	svc, _, st := newTestService(t)
	ctx := context.Background()

	w, err := svc.Create(ctx, WorldCreate{Name: "Doomed"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	now := time.Now().UTC()
	if err := st.CreateEntity(ctx, store.Entity{
		ID: "e1", WorldID: w.ID, Name: "Alice", Type: "character",
		Aliases: []string{}, Tags: []string{}, Status: "active", Source: "user",
		CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}

	if err := svc.Delete(ctx, w.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.Get(ctx, w.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
	if _, err := st.GetEntity(ctx, w.ID, "e1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("entity survived world delete: %v", err)
	}
	if err := svc.Delete(ctx, w.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("double delete = %v, want ErrNotFound", err)
	}
}

func sp(s string) *string { return &s }
