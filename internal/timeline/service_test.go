package timeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"worldloom/internal/store"
	"worldloom/internal/store/sqlite"
)

func ip(v int) *int       { return &v }
func sp(s string) *string { return &s }

func newTestService(t *testing.T) (*Service, store.Store) {
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
	svc := NewService(c, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return svc, c
}

func seedWorld(t *testing.T, st store.Store, id string) *store.World {
	t.Helper()
	now := time.Now().UTC()
	w := store.World{
		ID:            id,
		Name:          "Test World",
		EntityTypes:   []string{"character", "location"},
		RelationTypes: []string{"ally_of"},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := st.CreateWorld(context.Background(), w); err != nil {
		t.Fatalf("CreateWorld: %v", err)
	}
	return &w
}

// seedTimeline creates three placed markers at sort keys 1, 2, 3, each
// carrying one entity_create operation (e1, e2, e3).
func seedTimeline(t *testing.T, svc *Service, st store.Store, worldID string) []*MarkerDetail {
	t.Helper()
	seedWorld(t, st, worldID)
	ctx := context.Background()
	out := make([]*MarkerDetail, 0, 3)
	for i := 1; i <= 3; i++ {
		m, err := svc.CreateMarker(ctx, worldID, MarkerCreate{
			Title:   fmt.Sprintf("Marker %d", i),
			SortKey: fp(float64(i)),
			Operations: []OperationCreate{{
				OpType:     "entity_create",
				TargetKind: "entity",
				TargetID:   fmt.Sprintf("e%d", i),
				Payload:    []byte(fmt.Sprintf(`{"name":"Entity %d"}`, i)),
			}},
		})
		if err != nil {
			t.Fatalf("CreateMarker(%d): %v", i, err)
		}
		out = append(out, m)
	}
	return out
}

func markerKeys(t *testing.T, svc *Service, worldID string) map[string]float64 {
	t.Helper()
	details, err := svc.ListMarkers(context.Background(), worldID, false)
	if err != nil {
		t.Fatalf("ListMarkers: %v", err)
	}
	keys := make(map[string]float64, len(details))
	for _, d := range details {
		keys[d.ID] = d.SortKey
	}
	return keys
}

func TestCreateMarkerPlacement(t *testing.T) {
	tests := []struct {
		name          string
		in            MarkerCreate
		wantPlacement string
		wantKey       float64
	}{
		{
			"explicit marker lands at the end",
			MarkerCreate{Title: "End"},
			PlacementPlaced, 21,
		},
		{
			"explicit marker anchors to its date",
			MarkerCreate{Title: "Dated", DateLabel: "Year 5", DateSortValue: fp(5.5)},
			PlacementPlaced, 5.5,
		},
		{
			"explicit sort key wins over date",
			MarkerCreate{Title: "Keyed", DateSortValue: fp(5.5), SortKey: fp(3.25)},
			PlacementPlaced, 3.25,
		},
		{
			"semantic marker without a key parks unplaced",
			MarkerCreate{Title: "Vibe", MarkerKind: "semantic"},
			PlacementUnplaced, 21,
		},
		{
			"semantic marker with a key stays placed",
			MarkerCreate{Title: "Anchored vibe", MarkerKind: "semantic", SortKey: fp(7)},
			PlacementPlaced, 7,
		},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, st := newTestService(t)
			ctx := context.Background()
			worldID := fmt.Sprintf("w%d", i)
			seedWorld(t, st, worldID)
			for _, key := range []float64{10, 20} {
				if _, err := svc.CreateMarker(ctx, worldID, MarkerCreate{Title: "Seed", SortKey: fp(key)}); err != nil {
					t.Fatalf("seed marker: %v", err)
				}
			}

			m, err := svc.CreateMarker(ctx, worldID, tt.in)
			if err != nil {
				t.Fatalf("CreateMarker: %v", err)
			}
			if m.PlacementStatus != tt.wantPlacement {
				t.Errorf("PlacementStatus = %q, want %q", m.PlacementStatus, tt.wantPlacement)
			}
			if m.SortKey != tt.wantKey {
				t.Errorf("SortKey = %v, want %v", m.SortKey, tt.wantKey)
			}
			if m.MarkerKind == "" || m.Source != store.SourceUser {
				t.Errorf("defaults: kind %q source %q", m.MarkerKind, m.Source)
			}
		})
	}
}

func TestCreateMarkerValidation(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	seedWorld(t, st, "w1")

	tests := []struct {
		name    string
		worldID string
		in      MarkerCreate
		wantErr error
	}{
		{"blank title", "w1", MarkerCreate{Title: "   "}, store.ErrInvalidInput},
		{"bad marker kind", "w1", MarkerCreate{Title: "T", MarkerKind: "fuzzy"}, store.ErrInvalidInput},
		{"bad placement", "w1", MarkerCreate{Title: "T", PlacementStatus: "floating"}, store.ErrInvalidInput},
		{"bad source", "w1", MarkerCreate{Title: "T", Source: "robot"}, store.ErrInvalidInput},
		{"bad op target kind", "w1", MarkerCreate{Title: "T", Operations: []OperationCreate{{OpType: "entity_create", TargetKind: "thing"}}}, store.ErrInvalidInput},
		{"negative op order", "w1", MarkerCreate{Title: "T", Operations: []OperationCreate{{OpType: "entity_create", TargetKind: "entity", OrderIndex: ip(-1)}}}, store.ErrInvalidInput},
		{"missing world", "nope", MarkerCreate{Title: "T"}, store.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.CreateMarker(ctx, tt.worldID, tt.in); !errors.Is(err, tt.wantErr) {
				t.Errorf("CreateMarker error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreateMarkerInlineOperations(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	seedWorld(t, st, "w1")

	m, err := svc.CreateMarker(ctx, "w1", MarkerCreate{
		Title: "Battle",
		Operations: []OperationCreate{
			{OpType: "Entity_Create", TargetKind: "entity", TargetID: "e1", Payload: []byte(`{"name":"Alice"}`)},
			{OpType: "entity_create", TargetKind: "entity", TargetID: "e2"},
			{OpType: "relation_create", TargetKind: "relation", TargetID: "r1", OrderIndex: ip(7)},
		},
	})
	if err != nil {
		t.Fatalf("CreateMarker: %v", err)
	}
	if len(m.Operations) != 3 {
		t.Fatalf("got %d operations, want 3", len(m.Operations))
	}
	if m.Operations[0].OrderIndex != 0 || m.Operations[1].OrderIndex != 1 || m.Operations[2].OrderIndex != 7 {
		t.Errorf("order indexes = %d, %d, %d",
			m.Operations[0].OrderIndex, m.Operations[1].OrderIndex, m.Operations[2].OrderIndex)
	}
	if m.Operations[0].OpType != "entity_create" {
		t.Errorf("OpType = %q, want normalized entity_create", m.Operations[0].OpType)
	}
	if string(m.Operations[1].Payload) != "{}" {
		t.Errorf("empty payload stored as %q", m.Operations[1].Payload)
	}
}

func TestSnapshotEviction(t *testing.T) {
	warm := func(t *testing.T, svc *Service, worldID string, markers []*MarkerDetail) {
		t.Helper()
		for _, m := range markers {
			if _, err := svc.GetState(context.Background(), worldID, m.ID); err != nil {
				t.Fatalf("GetState(%s): %v", m.ID, err)
			}
		}
	}
	cached := func(t *testing.T, st store.Store, worldID, markerID string) bool {
		t.Helper()
		_, err := st.GetSnapshot(context.Background(), worldID, markerID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("GetSnapshot(%s): %v", markerID, err)
		}
		return err == nil
	}

	tests := []struct {
		name    string
		mutate  func(t *testing.T, svc *Service, worldID string, ms []*MarkerDetail)
		survive [3]bool
	}{
		{
			"metadata update keeps all snapshots",
			func(t *testing.T, svc *Service, worldID string, ms []*MarkerDetail) {
				if _, err := svc.UpdateMarker(context.Background(), worldID, ms[1].ID, MarkerUpdate{Title: sp("Renamed")}); err != nil {
					t.Fatalf("UpdateMarker: %v", err)
				}
			},
			[3]bool{true, true, true},
		},
		{
			"sort key change evicts from the earlier position",
			func(t *testing.T, svc *Service, worldID string, ms []*MarkerDetail) {
				if _, err := svc.UpdateMarker(context.Background(), worldID, ms[1].ID, MarkerUpdate{SortKey: fp(2.5)}); err != nil {
					t.Fatalf("UpdateMarker: %v", err)
				}
			},
			[3]bool{true, false, false},
		},
		{
			"unplacing evicts the suffix",
			func(t *testing.T, svc *Service, worldID string, ms []*MarkerDetail) {
				if _, err := svc.UpdateMarker(context.Background(), worldID, ms[1].ID, MarkerUpdate{PlacementStatus: sp("unplaced")}); err != nil {
					t.Fatalf("UpdateMarker: %v", err)
				}
			},
			[3]bool{true, false, false},
		},
		{
			"marker delete evicts from its position",
			func(t *testing.T, svc *Service, worldID string, ms []*MarkerDetail) {
				if err := svc.DeleteMarker(context.Background(), worldID, ms[0].ID); err != nil {
					t.Fatalf("DeleteMarker: %v", err)
				}
			},
			[3]bool{false, false, false},
		},
		{
			"new operation evicts from its marker",
			func(t *testing.T, svc *Service, worldID string, ms []*MarkerDetail) {
				_, err := svc.CreateOperation(context.Background(), worldID, ms[1].ID, OperationCreate{
					OpType: "entity_patch", TargetKind: "entity", TargetID: "e1", Payload: []byte(`{"summary":"x"}`),
				})
				if err != nil {
					t.Fatalf("CreateOperation: %v", err)
				}
			},
			[3]bool{true, false, false},
		},
		{
			"operation update evicts from its marker",
			func(t *testing.T, svc *Service, worldID string, ms []*MarkerDetail) {
				opID := ms[2].Operations[0].ID
				_, err := svc.UpdateOperation(context.Background(), worldID, ms[2].ID, opID, OperationUpdate{
					Payload: []byte(`{"name":"Entity 3 Renamed"}`),
				})
				if err != nil {
					t.Fatalf("UpdateOperation: %v", err)
				}
			},
			[3]bool{true, true, false},
		},
		{
			"operation delete evicts from its marker",
			func(t *testing.T, svc *Service, worldID string, ms []*MarkerDetail) {
				opID := ms[0].Operations[0].ID
				if err := svc.DeleteOperation(context.Background(), worldID, ms[0].ID, opID); err != nil {
					t.Fatalf("DeleteOperation: %v", err)
				}
			},
			[3]bool{false, false, false},
		},
		{
			"new placed marker evicts everything after it",
			func(t *testing.T, svc *Service, worldID string, ms []*MarkerDetail) {
				if _, err := svc.CreateMarker(context.Background(), worldID, MarkerCreate{Title: "Wedge", SortKey: fp(1.5)}); err != nil {
					t.Fatalf("CreateMarker: %v", err)
				}
			},
			[3]bool{true, false, false},
		},
		{
			"new unplaced marker keeps all snapshots",
			func(t *testing.T, svc *Service, worldID string, ms []*MarkerDetail) {
				if _, err := svc.CreateMarker(context.Background(), worldID, MarkerCreate{Title: "Parked", MarkerKind: "semantic"}); err != nil {
					t.Fatalf("CreateMarker: %v", err)
				}
			},
			[3]bool{true, true, true},
		},
		{
			"reposition evicts from the earlier of old and new",
			func(t *testing.T, svc *Service, worldID string, ms []*MarkerDetail) {
				if _, err := svc.RepositionMarker(context.Background(), worldID, ms[2].ID, Reposition{SortKey: fp(1.5)}); err != nil {
					t.Fatalf("RepositionMarker: %v", err)
				}
			},
			[3]bool{true, false, false},
		},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, st := newTestService(t)
			worldID := fmt.Sprintf("w%d", i)
			ms := seedTimeline(t, svc, st, worldID)
			warm(t, svc, worldID, ms)

			tt.mutate(t, svc, worldID, ms)

			for j, want := range tt.survive {
				if got := cached(t, st, worldID, ms[j].ID); got != want {
					t.Errorf("snapshot for marker %d cached = %v, want %v", j+1, got, want)
				}
			}
		})
	}
}

func TestUpdateMarkerNoOp(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	ms := seedTimeline(t, svc, st, "w1")

	before, err := st.GetWorld(ctx, "w1")
	if err != nil {
		t.Fatalf("GetWorld: %v", err)
	}
	if _, err := svc.UpdateMarker(ctx, "w1", ms[0].ID, MarkerUpdate{}); err != nil {
		t.Fatalf("UpdateMarker: %v", err)
	}
	after, err := st.GetWorld(ctx, "w1")
	if err != nil {
		t.Fatalf("GetWorld: %v", err)
	}
	if after.TimelineVersion != before.TimelineVersion {
		t.Errorf("empty update bumped the version: %d -> %d", before.TimelineVersion, after.TimelineVersion)
	}
}

func TestRepositionMarker(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	ms := seedTimeline(t, svc, st, "w1")

	// Move the last marker to the front.
	moved, err := svc.RepositionMarker(ctx, "w1", ms[2].ID, Reposition{InsertIndex: ip(0)})
	if err != nil {
		t.Fatalf("RepositionMarker: %v", err)
	}
	if moved.SortKey != 0 {
		t.Errorf("SortKey = %v, want 0", moved.SortKey)
	}
	order, err := svc.ListMarkers(ctx, "w1", false)
	if err != nil {
		t.Fatalf("ListMarkers: %v", err)
	}
	if order[0].ID != ms[2].ID {
		t.Errorf("first marker = %s, want %s", order[0].ID, ms[2].ID)
	}

	// An explicit sort key wins over the index.
	moved, err = svc.RepositionMarker(ctx, "w1", ms[0].ID, Reposition{SortKey: fp(10), InsertIndex: ip(0)})
	if err != nil {
		t.Fatalf("RepositionMarker: %v", err)
	}
	if moved.SortKey != 10 {
		t.Errorf("SortKey = %v, want explicit 10", moved.SortKey)
	}

	// Unplacing through reposition takes the marker out of the ordering.
	moved, err = svc.RepositionMarker(ctx, "w1", ms[1].ID, Reposition{SortKey: fp(2), PlacementStatus: "unplaced"})
	if err != nil {
		t.Fatalf("RepositionMarker: %v", err)
	}
	if moved.PlacementStatus != PlacementUnplaced {
		t.Errorf("PlacementStatus = %q", moved.PlacementStatus)
	}

	if _, err := svc.RepositionMarker(ctx, "w1", ms[0].ID, Reposition{}); !errors.Is(err, store.ErrInvalidInput) {
		t.Errorf("reposition without a target = %v, want ErrInvalidInput", err)
	}
	if _, err := svc.RepositionMarker(ctx, "w1", "nope", Reposition{InsertIndex: ip(0)}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("reposition missing marker = %v, want ErrNotFound", err)
	}
}

func TestRepositionRenumbersOnExhaustion(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	seedWorld(t, st, "w1")

	ids := make([]string, 0, 3)
	for _, key := range []float64{1, math.Nextafter(1, 2), 5} {
		m, err := svc.CreateMarker(ctx, "w1", MarkerCreate{Title: "M", SortKey: fp(key)})
		if err != nil {
			t.Fatalf("CreateMarker: %v", err)
		}
		ids = append(ids, m.ID)
	}

	// No float fits between the first two keys, so placed markers are
	// renumbered to 0, 1, 2 and the insertion retried.
	moved, err := svc.RepositionMarker(ctx, "w1", ids[2], Reposition{InsertIndex: ip(1)})
	if err != nil {
		t.Fatalf("RepositionMarker: %v", err)
	}
	if moved.SortKey != 0.5 {
		t.Errorf("SortKey = %v, want midpoint 0.5 after renumbering", moved.SortKey)
	}

	keys := markerKeys(t, svc, "w1")
	if keys[ids[0]] != 0 || keys[ids[1]] != 1 {
		t.Errorf("renumbered keys = %v and %v, want 0 and 1", keys[ids[0]], keys[ids[1]])
	}
	order, err := svc.ListMarkers(ctx, "w1", false)
	if err != nil {
		t.Fatalf("ListMarkers: %v", err)
	}
	wantOrder := []string{ids[0], ids[2], ids[1]}
	for i, want := range wantOrder {
		if order[i].ID != want {
			t.Errorf("order[%d] = %s, want %s", i, order[i].ID, want)
		}
	}
}

func TestOperationCRUD(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	seedWorld(t, st, "w1")

	m, err := svc.CreateMarker(ctx, "w1", MarkerCreate{Title: "M"})
	if err != nil {
		t.Fatalf("CreateMarker: %v", err)
	}

	first, err := svc.CreateOperation(ctx, "w1", m.ID, OperationCreate{
		OpType: "entity_create", TargetKind: "entity", TargetID: "e1", Payload: []byte(`{"name":"A"}`),
	})
	if err != nil {
		t.Fatalf("CreateOperation: %v", err)
	}
	if first.OrderIndex != 0 {
		t.Errorf("default OrderIndex = %d, want 0", first.OrderIndex)
	}
	second, err := svc.CreateOperation(ctx, "w1", m.ID, OperationCreate{
		OpType: "entity_patch", TargetKind: "entity", TargetID: "e1", OrderIndex: ip(4),
	})
	if err != nil {
		t.Fatalf("CreateOperation: %v", err)
	}

	ops, err := svc.ListOperations(ctx, "w1", m.ID)
	if err != nil {
		t.Fatalf("ListOperations: %v", err)
	}
	if len(ops) != 2 || ops[0].ID != first.ID || ops[1].ID != second.ID {
		t.Fatalf("ops = %v", ops)
	}

	// Moving the first op after the second reorders the listing.
	updated, err := svc.UpdateOperation(ctx, "w1", m.ID, first.ID, OperationUpdate{OrderIndex: ip(9)})
	if err != nil {
		t.Fatalf("UpdateOperation: %v", err)
	}
	if updated.OrderIndex != 9 {
		t.Errorf("OrderIndex = %d, want 9", updated.OrderIndex)
	}
	ops, err = svc.ListOperations(ctx, "w1", m.ID)
	if err != nil {
		t.Fatalf("ListOperations: %v", err)
	}
	if ops[0].ID != second.ID || ops[1].ID != first.ID {
		t.Errorf("reordered ops = %s, %s", ops[0].ID, ops[1].ID)
	}

	// An empty update returns the stored row untouched.
	same, err := svc.UpdateOperation(ctx, "w1", m.ID, first.ID, OperationUpdate{})
	if err != nil {
		t.Fatalf("UpdateOperation(empty): %v", err)
	}
	if !same.UpdatedAt.Equal(updated.UpdatedAt) {
		t.Error("empty update touched UpdatedAt")
	}

	if err := svc.DeleteOperation(ctx, "w1", m.ID, second.ID); err != nil {
		t.Fatalf("DeleteOperation: %v", err)
	}
	ops, err = svc.ListOperations(ctx, "w1", m.ID)
	if err != nil {
		t.Fatalf("ListOperations: %v", err)
	}
	if len(ops) != 1 {
		t.Errorf("got %d ops after delete, want 1", len(ops))
	}

	if _, err := svc.ListOperations(ctx, "w1", "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("ListOperations(missing marker) = %v, want ErrNotFound", err)
	}
	if _, err := svc.CreateOperation(ctx, "w1", m.ID, OperationCreate{OpType: "entity_patch", TargetKind: "entity", OrderIndex: ip(-2)}); !errors.Is(err, store.ErrInvalidInput) {
		t.Errorf("negative order index = %v, want ErrInvalidInput", err)
	}
}

func TestListMarkersWithOperations(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	ms := seedTimeline(t, svc, st, "w1")
	if _, err := svc.CreateMarker(ctx, "w1", MarkerCreate{Title: "Quiet", SortKey: fp(4)}); err != nil {
		t.Fatalf("CreateMarker: %v", err)
	}

	bare, err := svc.ListMarkers(ctx, "w1", false)
	if err != nil {
		t.Fatalf("ListMarkers: %v", err)
	}
	if len(bare) != 4 {
		t.Fatalf("got %d markers, want 4", len(bare))
	}
	for _, d := range bare {
		if d.Operations == nil || len(d.Operations) != 0 {
			t.Errorf("marker %s operations = %v, want empty", d.ID, d.Operations)
		}
	}

	full, err := svc.ListMarkers(ctx, "w1", true)
	if err != nil {
		t.Fatalf("ListMarkers(withOps): %v", err)
	}
	for i, want := range []int{1, 1, 1, 0} {
		if len(full[i].Operations) != want {
			t.Errorf("marker %d has %d ops, want %d", i, len(full[i].Operations), want)
		}
	}
	if full[0].ID != ms[0].ID {
		t.Errorf("order[0] = %s, want %s", full[0].ID, ms[0].ID)
	}
}
