package lore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"worldloom/internal/store"
)

type RelationCreate struct {
	SourceEntityID string   `json:"source_entity_id"`
	TargetEntityID string   `json:"target_entity_id"`
	Type           string   `json:"type,omitempty"`
	Context        string   `json:"context,omitempty"`
	Weight         *float64 `json:"weight,omitempty"`
	Source         string   `json:"source,omitempty"`
	SourceNoteID   string   `json:"source_note_id,omitempty"`
}

type RelationUpdate struct {
	SourceEntityID *string  `json:"source_entity_id,omitempty"`
	TargetEntityID *string  `json:"target_entity_id,omitempty"`
	Type           *string  `json:"type,omitempty"`
	Context        *string  `json:"context,omitempty"`
	Weight         *float64 `json:"weight,omitempty"`
	Source         *string  `json:"source,omitempty"`
}

// CreateRelation links two existing entities. Both endpoints must resolve;
// a dangling endpoint id is rejected as invalid input rather than not-found,
// since the relation itself has no address yet.
func (s *Service) CreateRelation(ctx context.Context, worldID string, in RelationCreate) (*store.Relation, error) {
	if _, err := s.store.GetWorld(ctx, worldID); err != nil {
		return nil, err
	}
	if in.SourceEntityID == "" || in.TargetEntityID == "" {
		return nil, fmt.Errorf("relation requires source_entity_id and target_entity_id: %w", store.ErrInvalidInput)
	}
	if err := s.requireEntity(ctx, worldID, in.SourceEntityID); err != nil {
		return nil, err
	}
	if err := s.requireEntity(ctx, worldID, in.TargetEntityID); err != nil {
		return nil, err
	}
	typ := store.NormalizeType(in.Type)
	if typ == "" {
		typ = "related_to"
	}
	source, err := store.NormalizeSource(in.Source)
	if err != nil {
		return nil, err
	}
	weight := 0.5
	if in.Weight != nil {
		weight = store.ClampWeight(*in.Weight)
	}

	now := time.Now().UTC()
	r := store.Relation{
		ID:             uuid.NewString(),
		WorldID:        worldID,
		SourceEntityID: in.SourceEntityID,
		TargetEntityID: in.TargetEntityID,
		Type:           typ,
		Context:        in.Context,
		Weight:         weight,
		Source:         source,
		SourceNoteID:   in.SourceNoteID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateRelation(ctx, r); err != nil {
		return nil, err
	}
	if err := s.timeline.InvalidateWorld(ctx, worldID); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Service) GetRelation(ctx context.Context, worldID, id string) (*store.Relation, error) {
	return s.store.GetRelation(ctx, worldID, id)
}

func (s *Service) ListRelations(ctx context.Context, worldID string, f store.RelationFilter) ([]store.Relation, error) {
	if _, err := s.store.GetWorld(ctx, worldID); err != nil {
		return nil, err
	}
	f.Type = store.NormalizeType(f.Type)
	return s.store.ListRelations(ctx, worldID, f)
}

// UpdateRelation applies the provided fields. Moving an endpoint revalidates
// the new entity id before anything is written.
func (s *Service) UpdateRelation(ctx context.Context, worldID, id string, in RelationUpdate) (*store.Relation, error) {
	existing, err := s.store.GetRelation(ctx, worldID, id)
	if err != nil {
		return nil, err
	}

	r := *existing
	changed := false
	if in.SourceEntityID != nil && *in.SourceEntityID != r.SourceEntityID {
		if err := s.requireEntity(ctx, worldID, *in.SourceEntityID); err != nil {
			return nil, err
		}
		r.SourceEntityID = *in.SourceEntityID
		changed = true
	}
	if in.TargetEntityID != nil && *in.TargetEntityID != r.TargetEntityID {
		if err := s.requireEntity(ctx, worldID, *in.TargetEntityID); err != nil {
			return nil, err
		}
		r.TargetEntityID = *in.TargetEntityID
		changed = true
	}
	if in.Type != nil {
		typ := store.NormalizeType(*in.Type)
		if typ == "" {
			return nil, fmt.Errorf("relation type must not be blank: %w", store.ErrInvalidInput)
		}
		r.Type = typ
		changed = true
	}
	if in.Context != nil {
		r.Context = *in.Context
		changed = true
	}
	if in.Weight != nil {
		r.Weight = store.ClampWeight(*in.Weight)
		changed = true
	}
	if !changed {
		return existing, nil
	}

	if in.Source != nil {
		source, err := store.NormalizeSource(*in.Source)
		if err != nil {
			return nil, err
		}
		r.Source = source
	} else {
		r.Source = store.SourceUser
	}

	r.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateRelation(ctx, r); err != nil {
		return nil, err
	}
	if err := s.timeline.InvalidateWorld(ctx, worldID); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Service) DeleteRelation(ctx context.Context, worldID, id string) error {
	if err := s.store.DeleteRelation(ctx, worldID, id); err != nil {
		return err
	}
	s.logger.Info("deleted relation", "world_id", worldID, "relation_id", id)
	return s.timeline.InvalidateWorld(ctx, worldID)
}

func (s *Service) requireEntity(ctx context.Context, worldID, id string) error {
	_, err := s.store.GetEntity(ctx, worldID, id)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("entity %s does not exist in world %s: %w", id, worldID, store.ErrInvalidInput)
	}
	return err
}
