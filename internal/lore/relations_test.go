package lore

import (
	"context"
	"errors"
	"testing"

	"worldloom/internal/store"
)

func TestCreateRelation(t *testing.T) {
	svc, _, st := newTestService(t)
	ctx := context.Background()
	w := seedWorld(t, st, "w1")

	alice := mustEntity(t, svc, w.ID, EntityCreate{Name: "Alice"})
	bob := mustEntity(t, svc, w.ID, EntityCreate{Name: "Bob"})

	r, err := svc.CreateRelation(ctx, w.ID, RelationCreate{
		SourceEntityID: alice.ID,
		TargetEntityID: bob.ID,
	})
	if err != nil {
		t.Fatalf("CreateRelation: %v", err)
	}
	if r.Type != "related_to" || r.Weight != 0.5 {
		t.Errorf("defaults = %q/%v, want related_to/0.5", r.Type, r.Weight)
	}
	if r.Source != store.SourceUser {
		t.Errorf("Source = %q", r.Source)
	}

	heavy := 2.5
	clamped, err := svc.CreateRelation(ctx, w.ID, RelationCreate{
		SourceEntityID: alice.ID,
		TargetEntityID: bob.ID,
		Type:           " Enemy Of ",
		Weight:         &heavy,
		Context:        "Since the siege.",
	})
	if err != nil {
		t.Fatalf("CreateRelation: %v", err)
	}
	if clamped.Type != "enemy_of" || clamped.Weight != 1 {
		t.Errorf("Type = %q, Weight = %v", clamped.Type, clamped.Weight)
	}

	for _, tc := range []struct {
		name string
		in   RelationCreate
	}{
		{"missing source id", RelationCreate{TargetEntityID: bob.ID}},
		{"missing target id", RelationCreate{SourceEntityID: alice.ID}},
		{"dangling source", RelationCreate{SourceEntityID: "ghost", TargetEntityID: bob.ID}},
		{"dangling target", RelationCreate{SourceEntityID: alice.ID, TargetEntityID: "ghost"}},
	} {
		if _, err := svc.CreateRelation(ctx, w.ID, tc.in); !errors.Is(err, store.ErrInvalidInput) {
			t.Errorf("%s: error = %v, want ErrInvalidInput", tc.name, err)
		}
	}

	if _, err := svc.CreateRelation(ctx, "nope", RelationCreate{
		SourceEntityID: alice.ID,
		TargetEntityID: bob.ID,
	}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing world error = %v, want ErrNotFound", err)
	}
}

func TestListRelations(t *testing.T) {
	svc, _, st := newTestService(t)
	ctx := context.Background()
	w := seedWorld(t, st, "w1")

	alice := mustEntity(t, svc, w.ID, EntityCreate{Name: "Alice"})
	bob := mustEntity(t, svc, w.ID, EntityCreate{Name: "Bob"})
	cara := mustEntity(t, svc, w.ID, EntityCreate{Name: "Cara"})

	mustRelation(t, svc, w.ID, RelationCreate{SourceEntityID: alice.ID, TargetEntityID: bob.ID, Type: "ally_of"})
	mustRelation(t, svc, w.ID, RelationCreate{SourceEntityID: bob.ID, TargetEntityID: cara.ID, Type: "enemy_of"})

	allies, err := svc.ListRelations(ctx, w.ID, store.RelationFilter{Type: " Ally Of "})
	if err != nil {
		t.Fatalf("ListRelations: %v", err)
	}
	if len(allies) != 1 || allies[0].SourceEntityID != alice.ID {
		t.Errorf("allies = %+v", allies)
	}

	touchingBob, err := svc.ListRelations(ctx, w.ID, store.RelationFilter{EntityID: bob.ID})
	if err != nil {
		t.Fatalf("ListRelations: %v", err)
	}
	if len(touchingBob) != 2 {
		t.Errorf("relations touching bob = %d, want 2", len(touchingBob))
	}
}

func TestUpdateRelation(t *testing.T) {
	svc, _, st := newTestService(t)
	ctx := context.Background()
	w := seedWorld(t, st, "w1")

	alice := mustEntity(t, svc, w.ID, EntityCreate{Name: "Alice"})
	bob := mustEntity(t, svc, w.ID, EntityCreate{Name: "Bob"})
	cara := mustEntity(t, svc, w.ID, EntityCreate{Name: "Cara"})

	r := mustRelation(t, svc, w.ID, RelationCreate{
		SourceEntityID: alice.ID,
		TargetEntityID: bob.ID,
		Type:           "ally_of",
		Source:         "ai",
	})

	// Endpoint moves are validated before anything is written.
	ghost := "ghost"
	if _, err := svc.UpdateRelation(ctx, w.ID, r.ID, RelationUpdate{TargetEntityID: &ghost}); !errors.Is(err, store.ErrInvalidInput) {
		t.Errorf("dangling move error = %v, want ErrInvalidInput", err)
	}
	unchanged, err := svc.GetRelation(ctx, w.ID, r.ID)
	if err != nil {
		t.Fatalf("GetRelation: %v", err)
	}
	if unchanged.TargetEntityID != bob.ID || unchanged.Source != store.SourceAI {
		t.Errorf("rejected move altered the record: %+v", unchanged)
	}

	moved, err := svc.UpdateRelation(ctx, w.ID, r.ID, RelationUpdate{TargetEntityID: &cara.ID})
	if err != nil {
		t.Fatalf("UpdateRelation: %v", err)
	}
	if moved.TargetEntityID != cara.ID || moved.Source != store.SourceUser {
		t.Errorf("moved = %+v, want new target and user source", moved)
	}

	low := -3.0
	blank := " "
	clamped, err := svc.UpdateRelation(ctx, w.ID, r.ID, RelationUpdate{Weight: &low})
	if err != nil {
		t.Fatalf("UpdateRelation: %v", err)
	}
	if clamped.Weight != 0 {
		t.Errorf("Weight = %v, want clamped to 0", clamped.Weight)
	}
	if _, err := svc.UpdateRelation(ctx, w.ID, r.ID, RelationUpdate{Type: &blank}); !errors.Is(err, store.ErrInvalidInput) {
		t.Errorf("blank type error = %v, want ErrInvalidInput", err)
	}

	// Empty updates return the record untouched.
	same, err := svc.UpdateRelation(ctx, w.ID, r.ID, RelationUpdate{})
	if err != nil {
		t.Fatalf("UpdateRelation(empty): %v", err)
	}
	if same.UpdatedAt != clamped.UpdatedAt {
		t.Errorf("empty update changed the record: %+v", same)
	}

	if _, err := svc.UpdateRelation(ctx, w.ID, "nope", RelationUpdate{Weight: &low}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing relation error = %v, want ErrNotFound", err)
	}
}

func TestDeleteRelation(t *testing.T) {
	svc, _, st := newTestService(t)
	ctx := context.Background()
	w := seedWorld(t, st, "w1")

	alice := mustEntity(t, svc, w.ID, EntityCreate{Name: "Alice"})
	bob := mustEntity(t, svc, w.ID, EntityCreate{Name: "Bob"})
	r := mustRelation(t, svc, w.ID, RelationCreate{SourceEntityID: alice.ID, TargetEntityID: bob.ID})

	if err := svc.DeleteRelation(ctx, w.ID, r.ID); err != nil {
		t.Fatalf("DeleteRelation: %v", err)
	}
	if _, err := svc.GetRelation(ctx, w.ID, r.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetRelation after delete = %v, want ErrNotFound", err)
	}
	if err := svc.DeleteRelation(ctx, w.ID, r.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("double delete = %v, want ErrNotFound", err)
	}

	// Both endpoints survive.
	if _, err := svc.GetEntity(ctx, w.ID, alice.ID); err != nil {
		t.Errorf("GetEntity(alice): %v", err)
	}
	if _, err := svc.GetEntity(ctx, w.ID, bob.ID); err != nil {
		t.Errorf("GetEntity(bob): %v", err)
	}
}
