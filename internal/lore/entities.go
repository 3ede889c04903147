package lore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"worldloom/internal/store"
)

type EntityCreate struct {
	Name         string   `json:"name"`
	Type         string   `json:"type,omitempty"`
	Subtype      string   `json:"subtype,omitempty"`
	Aliases      []string `json:"aliases,omitempty"`
	Context      string   `json:"context,omitempty"`
	Summary      string   `json:"summary,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	Source       string   `json:"source,omitempty"`
	SourceNoteID string   `json:"source_note_id,omitempty"`
}

type EntityUpdate struct {
	Name    *string   `json:"name,omitempty"`
	Type    *string   `json:"type,omitempty"`
	Subtype *string   `json:"subtype,omitempty"`
	Aliases *[]string `json:"aliases,omitempty"`
	Context *string   `json:"context,omitempty"`
	Summary *string   `json:"summary,omitempty"`
	Tags    *[]string `json:"tags,omitempty"`
	Status  *string   `json:"status,omitempty"`
	Source  *string   `json:"source,omitempty"`
}

// CreateEntity inserts a canonical entity. The type defaults to "concept"
// and is normalized; the world's vocabulary is advisory, not enforced.
func (s *Service) CreateEntity(ctx context.Context, worldID string, in EntityCreate) (*store.Entity, error) {
	if _, err := s.store.GetWorld(ctx, worldID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("entity name is required: %w", store.ErrInvalidInput)
	}
	typ := store.NormalizeType(in.Type)
	if typ == "" {
		typ = "concept"
	}
	source, err := store.NormalizeSource(in.Source)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	e := store.Entity{
		ID:           uuid.NewString(),
		WorldID:      worldID,
		Name:         in.Name,
		Type:         typ,
		Subtype:      store.NormalizeType(in.Subtype),
		Aliases:      emptyIfNil(in.Aliases),
		Context:      in.Context,
		Summary:      in.Summary,
		Tags:         emptyIfNil(in.Tags),
		Status:       "active",
		Source:       source,
		SourceNoteID: in.SourceNoteID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateEntity(ctx, e); err != nil {
		return nil, err
	}
	if err := s.timeline.InvalidateWorld(ctx, worldID); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Service) GetEntity(ctx context.Context, worldID, id string) (*store.Entity, error) {
	return s.store.GetEntity(ctx, worldID, id)
}

func (s *Service) ListEntities(ctx context.Context, worldID string, f store.EntityFilter) ([]store.Entity, error) {
	if _, err := s.store.GetWorld(ctx, worldID); err != nil {
		return nil, err
	}
	f.Type = store.NormalizeType(f.Type)
	f.Subtype = store.NormalizeType(f.Subtype)
	return s.store.ListEntities(ctx, worldID, f)
}

// UpdateEntity applies the provided fields. Unless the update names a
// source, an edit marks the record user-owned. Provenance of origin
// (source_note_id) is fixed at creation.
func (s *Service) UpdateEntity(ctx context.Context, worldID, id string, in EntityUpdate) (*store.Entity, error) {
	existing, err := s.store.GetEntity(ctx, worldID, id)
	if err != nil {
		return nil, err
	}

	e := *existing
	changed := false
	if in.Name != nil {
		if strings.TrimSpace(*in.Name) == "" {
			return nil, fmt.Errorf("entity name is required: %w", store.ErrInvalidInput)
		}
		e.Name = *in.Name
		changed = true
	}
	if in.Type != nil {
		typ := store.NormalizeType(*in.Type)
		if typ == "" {
			return nil, fmt.Errorf("entity type must not be blank: %w", store.ErrInvalidInput)
		}
		e.Type = typ
		changed = true
	}
	if in.Subtype != nil {
		e.Subtype = store.NormalizeType(*in.Subtype)
		changed = true
	}
	if in.Aliases != nil {
		e.Aliases = emptyIfNil(*in.Aliases)
		changed = true
	}
	if in.Context != nil {
		e.Context = *in.Context
		changed = true
	}
	if in.Summary != nil {
		e.Summary = *in.Summary
		changed = true
	}
	if in.Tags != nil {
		e.Tags = emptyIfNil(*in.Tags)
		changed = true
	}
	if in.Status != nil {
		status := store.NormalizeType(*in.Status)
		if status == "" {
			return nil, fmt.Errorf("entity status must not be blank: %w", store.ErrInvalidInput)
		}
		e.Status = status
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
		e.Source = source
	} else {
		e.Source = store.SourceUser
	}

	e.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateEntity(ctx, e); err != nil {
		return nil, err
	}
	if err := s.timeline.InvalidateWorld(ctx, worldID); err != nil {
		return nil, err
	}
	return &e, nil
}

// DeleteEntity removes a canonical entity. Relations referencing it are left
// in place; views drop relations with missing endpoints at assembly.
func (s *Service) DeleteEntity(ctx context.Context, worldID, id string) error {
	if err := s.store.DeleteEntity(ctx, worldID, id); err != nil {
		return err
	}
	s.logger.Info("deleted entity", "world_id", worldID, "entity_id", id)
	return s.timeline.InvalidateWorld(ctx, worldID)
}

func emptyIfNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
