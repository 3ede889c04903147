package timeline

import (
	"context"
	"time"

	"worldloom/internal/metrics"
	"worldloom/internal/store"
)

// RebuildResult reports what a snapshot rebuild touched.
type RebuildResult struct {
	Status        string    `json:"status"`
	WorldID       string    `json:"world_id"`
	MarkerCount   int       `json:"marker_count"`
	SnapshotCount int       `json:"snapshot_count"`
	RebuiltAt     time.Time `json:"rebuilt_at"`
}

// Rebuild recomputes the snapshot cache for a world by replaying the
// timeline cumulatively and writing one snapshot per placed marker. With
// full=false only the gaps are filled: fresh snapshots are decoded and
// reused as the running state instead of being recomputed. Ledger mutations
// block for the duration; state reads are served stale instead of waiting.
func (s *Service) Rebuild(ctx context.Context, worldID string, full bool) (*RebuildResult, error) {
	g := s.guard(worldID)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rebuilding.Store(true)
	defer g.rebuilding.Store(false)

	world, err := s.store.GetWorld(ctx, worldID)
	if err != nil {
		return nil, err
	}
	markers, err := s.store.ListMarkers(ctx, worldID)
	if err != nil {
		return nil, err
	}
	ops, err := s.store.ListWorldOperations(ctx, worldID)
	if err != nil {
		return nil, err
	}
	f := buildFeed(markers, ops)

	s.logger.Info("rebuilding timeline snapshots",
		"world_id", worldID, "full", full, "placed_markers", len(f.placed))

	// Drop snapshots whose markers are gone or no longer placed.
	pruned, err := s.store.PruneSnapshots(ctx, worldID)
	if err != nil {
		return nil, err
	}
	if pruned > 0 {
		s.logger.Info("pruned orphaned snapshots", "world_id", worldID, "count", pruned)
	}

	reusable := map[string]bool{}
	if !full {
		summaries, err := s.store.ListSnapshotSummaries(ctx, worldID)
		if err != nil {
			return nil, err
		}
		for _, sm := range summaries {
			if sm.LedgerVersion > world.TimelineVersion {
				if err := s.store.DeleteSnapshot(ctx, worldID, sm.MarkerID); err != nil {
					return nil, err
				}
				continue
			}
			reusable[sm.MarkerID] = true
		}
	}

	entities, err := s.store.ListEntities(ctx, worldID, store.EntityFilter{})
	if err != nil {
		return nil, err
	}
	relations, err := s.store.ListRelations(ctx, worldID, store.RelationFilter{})
	if err != nil {
		return nil, err
	}

	st := BaseState(world, entities, relations)
	written := 0
	start := 0
	for i := range f.placed {
		m := &f.placed[i]
		end := f.markerEnd[m.ID]
		if reusable[m.ID] {
			if cached, ok := s.loadSnapshotState(ctx, worldID, m.ID); ok {
				st = cached
				start = end
				continue
			}
		}
		res := Replay(st, f.ops[start:end])
		st = res.State
		start = end
		metrics.OpsReplayed.Add(int64(res.Applied))
		metrics.OpsSkipped.Add(int64(len(res.Skipped)))
		if err := s.persistSnapshot(ctx, world, m.ID, st, i+1); err != nil {
			return nil, err
		}
		written++
	}

	metrics.Inc(metrics.RebuildsTotal)
	s.logger.Info("timeline rebuild complete",
		"world_id", worldID, "placed_markers", len(f.placed), "snapshots_written", written)
	return &RebuildResult{
		Status:        "rebuilt",
		WorldID:       worldID,
		MarkerCount:   len(f.placed),
		SnapshotCount: written,
		RebuiltAt:     time.Now().UTC(),
	}, nil
}

// loadSnapshotState fetches and decodes a cached snapshot. Failures are
// logged and reported as a miss so the caller recomputes instead.
func (s *Service) loadSnapshotState(ctx context.Context, worldID, markerID string) (State, bool) {
	snap, err := s.store.GetSnapshot(ctx, worldID, markerID)
	if err != nil {
		s.logger.Warn("snapshot fetch failed during rebuild",
			"world_id", worldID, "marker_id", markerID, "error", err)
		return State{}, false
	}
	st, err := decodeState(snap.State)
	if err != nil {
		s.logger.Warn("evicting undecodable snapshot",
			"world_id", worldID, "marker_id", markerID, "error", err)
		_ = s.store.DeleteSnapshot(ctx, worldID, markerID)
		return State{}, false
	}
	return st, true
}
