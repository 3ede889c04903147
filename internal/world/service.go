// Package world manages world lifecycles: the root records that scope every
// entity, relation, and timeline.
package world

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"worldloom/internal/store"
)

// Default vocabularies for worlds created without their own. Both are
// advisory: entities and relations may use types outside these lists.
var (
	DefaultEntityTypes = []string{
		"character", "location", "event", "item", "organization", "concept",
	}
	DefaultRelationTypes = []string{
		"ally_of", "enemy_of", "parent_of", "child_of",
		"located_in", "participated_in", "member_of",
	}
)

// Invalidator is the slice of the timeline service a world mutation needs:
// world metadata feeds every replayed state, so edits must flush the
// snapshot cache, and deletions must release per-world bookkeeping.
type Invalidator interface {
	InvalidateWorld(ctx context.Context, worldID string) error
	DropWorld(worldID string)
}

type Service struct {
	store    store.Store
	timeline Invalidator
	logger   *slog.Logger
}

func NewService(st store.Store, timeline Invalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, timeline: timeline, logger: logger}
}

type WorldCreate struct {
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	EntityTypes   []string `json:"entity_types,omitempty"`
	RelationTypes []string `json:"relation_types,omitempty"`
}

type WorldUpdate struct {
	Name          *string   `json:"name,omitempty"`
	Description   *string   `json:"description,omitempty"`
	EntityTypes   *[]string `json:"entity_types,omitempty"`
	RelationTypes *[]string `json:"relation_types,omitempty"`
}

// Create inserts a world, falling back to the default vocabularies when none
// are given.
func (s *Service) Create(ctx context.Context, in WorldCreate) (*store.World, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("world name is required: %w", store.ErrInvalidInput)
	}

	entityTypes := store.NormalizeTypes(in.EntityTypes)
	if len(entityTypes) == 0 {
		entityTypes = append([]string(nil), DefaultEntityTypes...)
	}
	relationTypes := store.NormalizeTypes(in.RelationTypes)
	if len(relationTypes) == 0 {
		relationTypes = append([]string(nil), DefaultRelationTypes...)
	}

	now := time.Now().UTC()
	w := store.World{
		ID:            uuid.NewString(),
		Name:          in.Name,
		Description:   in.Description,
		EntityTypes:   entityTypes,
		RelationTypes: relationTypes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateWorld(ctx, w); err != nil {
		return nil, err
	}
	s.logger.Info("created world", "world_id", w.ID, "name", w.Name)
	return &w, nil
}

func (s *Service) Get(ctx context.Context, id string) (*store.World, error) {
	return s.store.GetWorld(ctx, id)
}

// List returns all worlds, newest first.
func (s *Service) List(ctx context.Context) ([]store.World, error) {
	return s.store.ListWorlds(ctx)
}

// Update applies the provided fields. Any change flushes the world's snapshot
// cache: metadata is baked into every cached state.
func (s *Service) Update(ctx context.Context, id string, in WorldUpdate) (*store.World, error) {
	existing, err := s.store.GetWorld(ctx, id)
	if err != nil {
		return nil, err
	}

	w := *existing
	changed := false
	if in.Name != nil {
		if strings.TrimSpace(*in.Name) == "" {
			return nil, fmt.Errorf("world name is required: %w", store.ErrInvalidInput)
		}
		w.Name = *in.Name
		changed = true
	}
	if in.Description != nil {
		w.Description = *in.Description
		changed = true
	}
	if in.EntityTypes != nil {
		w.EntityTypes = store.NormalizeTypes(*in.EntityTypes)
		changed = true
	}
	if in.RelationTypes != nil {
		w.RelationTypes = store.NormalizeTypes(*in.RelationTypes)
		changed = true
	}
	if !changed {
		return existing, nil
	}

	w.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateWorld(ctx, w); err != nil {
		return nil, err
	}
	if err := s.timeline.InvalidateWorld(ctx, id); err != nil {
		return nil, err
	}
	return s.store.GetWorld(ctx, id)
}

// Delete removes a world and everything scoped to it.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteWorld(ctx, id); err != nil {
		return err
	}
	s.timeline.DropWorld(id)
	s.logger.Info("deleted world", "world_id", id)
	return nil
}
