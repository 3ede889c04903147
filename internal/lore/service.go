// Package lore manages the canonical knowledge graph of a world: entities,
// typed weighted relations, and the filtered graph view. Canonical records
// are the baseline every timeline replay starts from, so all mutations here
// flush the world's snapshot cache.
package lore

import (
	"context"
	"log/slog"

	"worldloom/internal/store"
)

// Invalidator is the slice of the timeline service canonical mutations need.
type Invalidator interface {
	InvalidateWorld(ctx context.Context, worldID string) error
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
