package lore

import (
	"context"

	"worldloom/internal/store"
)

// Graph is a filtered view of a world's canonical knowledge graph.
type Graph struct {
	WorldID   string           `json:"world_id"`
	Entities  []store.Entity   `json:"entities"`
	Relations []store.Relation `json:"relations"`
}

// GraphFilter narrows a graph query. Type lists are OR-ed within themselves;
// a relation survives only if both of its endpoints survive the entity
// filter. FocusEntityID reduces the result to that entity's immediate
// neighborhood within the already-filtered graph.
type GraphFilter struct {
	EntityTypes   []string `json:"entity_types,omitempty"`
	RelationTypes []string `json:"relation_types,omitempty"`
	FocusEntityID string   `json:"focus_entity_id,omitempty"`
}

// Graph assembles the canonical graph for a world, applying the filter.
// Entities keep their listing order (name, then id); relations keep creation
// order.
func (s *Service) Graph(ctx context.Context, worldID string, f GraphFilter) (*Graph, error) {
	if _, err := s.store.GetWorld(ctx, worldID); err != nil {
		return nil, err
	}
	if f.FocusEntityID != "" {
		if _, err := s.store.GetEntity(ctx, worldID, f.FocusEntityID); err != nil {
			return nil, err
		}
	}

	all, err := s.store.ListEntities(ctx, worldID, store.EntityFilter{})
	if err != nil {
		return nil, err
	}
	relations, err := s.store.ListRelations(ctx, worldID, store.RelationFilter{})
	if err != nil {
		return nil, err
	}

	entityTypes := typeSet(f.EntityTypes)
	relationTypes := typeSet(f.RelationTypes)

	entities := make([]store.Entity, 0, len(all))
	ids := make(map[string]bool, len(all))
	for _, e := range all {
		if entityTypes != nil && !entityTypes[e.Type] {
			continue
		}
		entities = append(entities, e)
		ids[e.ID] = true
	}

	kept := make([]store.Relation, 0, len(relations))
	for _, r := range relations {
		if relationTypes != nil && !relationTypes[r.Type] {
			continue
		}
		if !ids[r.SourceEntityID] || !ids[r.TargetEntityID] {
			continue
		}
		kept = append(kept, r)
	}

	if f.FocusEntityID != "" {
		entities, kept = focusNeighborhood(all, kept, f.FocusEntityID)
	}

	return &Graph{WorldID: worldID, Entities: entities, Relations: kept}, nil
}

// focusNeighborhood trims the filtered graph to the focus entity and its
// direct neighbors. The focus record itself is always returned, even when
// the entity type filter excluded it (in which case it has no surviving
// relations).
func focusNeighborhood(all []store.Entity, relations []store.Relation, focusID string) ([]store.Entity, []store.Relation) {
	touching := make([]store.Relation, 0, len(relations))
	wanted := map[string]bool{focusID: true}
	for _, r := range relations {
		if r.SourceEntityID != focusID && r.TargetEntityID != focusID {
			continue
		}
		touching = append(touching, r)
		wanted[r.SourceEntityID] = true
		wanted[r.TargetEntityID] = true
	}

	entities := make([]store.Entity, 0, len(wanted))
	for _, e := range all {
		if wanted[e.ID] {
			entities = append(entities, e)
		}
	}
	return entities, touching
}

func typeSet(values []string) map[string]bool {
	normalized := store.NormalizeTypes(values)
	if len(normalized) == 0 {
		return nil
	}
	set := make(map[string]bool, len(normalized))
	for _, v := range normalized {
		set[v] = true
	}
	return set
}
