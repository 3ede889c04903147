package timeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"worldloom/internal/metrics"
	"worldloom/internal/store"
)

const (
	noteComputed = "Baseline entities/relations come from canonical tables, " +
		"then timeline operations are replayed in marker order."
	noteSnapshot     = "Loaded from cached timeline snapshot."
	noteRebuildStale = "A full timeline rebuild is in progress; state may be stale."
)

// GetState returns the world state at a marker, or at the head of the
// timeline when markerID is empty. A deleted or unplaced marker degrades to
// the head with an explanatory note rather than failing. While a full
// rebuild is running the state is served from whatever is cached, without
// waiting for the guard.
func (s *Service) GetState(ctx context.Context, worldID, markerID string) (*WorldState, error) {
	g := s.guard(worldID)
	if g.rebuilding.Load() {
		metrics.Inc(metrics.StaleStateReads)
		return s.computeState(ctx, worldID, markerID, false, noteRebuildStale)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return s.computeState(ctx, worldID, markerID, true, "")
}

// computeState resolves the target marker, serves a fresh snapshot when one
// exists, and otherwise replays from the nearest earlier snapshot or the
// canonical base state. writeThrough persists the computed snapshot; the
// rebuild-stale path disables it so concurrent rebuild writes stay
// authoritative.
func (s *Service) computeState(ctx context.Context, worldID, markerID string, writeThrough bool, baseNote string) (*WorldState, error) {
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

	notes := newNotes(baseNote)
	resolvedID := ""
	if markerID != "" {
		switch m := findMarker(markers, markerID); {
		case m == nil:
			notes.add(fmt.Sprintf("Marker %s no longer exists; showing the latest timeline state.", markerID))
		case m.PlacementStatus != PlacementPlaced:
			notes.add(fmt.Sprintf("Marker %s is not placed on the timeline; showing the latest timeline state.", markerID))
		default:
			resolvedID = markerID
		}
		if resolvedID == "" {
			if h := f.head(); h != nil {
				resolvedID = h.ID
			}
		}
	}

	cut, applied, ok := f.cutAt(resolvedID)
	if !ok {
		return nil, fmt.Errorf("marker %s: %w", resolvedID, store.ErrNotFound)
	}

	// Fresh snapshot at the resolved marker: decode and serve.
	if resolvedID != "" {
		if snap := s.freshSnapshot(ctx, world, resolvedID); snap != nil {
			st, err := decodeState(snap.State)
			if err == nil {
				metrics.Inc(metrics.SnapshotHits)
				notes.add(noteSnapshot)
				entFirst, relFirst := f.firstCreatePositions()
				applyExistenceCut(st, entFirst, relFirst, cut)
				entities, relations := assembleView(st)
				return &WorldState{
					WorldID:              worldID,
					MarkerID:             resolvedID,
					AppliedMarkerCount:   applied,
					World:                st.World,
					Entities:             entities,
					Relations:            relations,
					FromSnapshotMarkerID: resolvedID,
					Note:                 notes.String(),
				}, nil
			}
			s.logger.Warn("evicting undecodable snapshot",
				"world_id", worldID, "marker_id", resolvedID, "error", err)
			if err := s.store.DeleteSnapshot(ctx, worldID, resolvedID); err != nil {
				return nil, err
			}
		}
	}
	metrics.Inc(metrics.SnapshotMisses)

	// Miss: seed from the nearest earlier fresh snapshot, else the base state.
	seedID, startCut, base, err := s.replayBase(ctx, world, f, applied-1)
	if err != nil {
		return nil, err
	}

	res := Replay(base, f.ops[startCut:cut])
	metrics.OpsReplayed.Add(int64(res.Applied))
	metrics.OpsSkipped.Add(int64(len(res.Skipped)))
	metrics.Inc(metrics.StatesComputed)
	notes.add(noteComputed)

	snapshotKey := resolvedID
	if snapshotKey == "" {
		if h := f.head(); h != nil {
			snapshotKey = h.ID
		}
	}
	if writeThrough && snapshotKey != "" && seedID != snapshotKey {
		if err := s.persistSnapshot(ctx, world, snapshotKey, res.State, applied); err != nil {
			return nil, err
		}
	}

	entFirst, relFirst := f.firstCreatePositions()
	applyExistenceCut(res.State, entFirst, relFirst, cut)
	entities, relations := assembleView(res.State)
	return &WorldState{
		WorldID:              worldID,
		MarkerID:             resolvedID,
		AppliedMarkerCount:   applied,
		World:                res.State.World,
		Entities:             entities,
		Relations:            relations,
		FromSnapshotMarkerID: seedID,
		Note:                 notes.String(),
		Skipped:              res.Skipped,
	}, nil
}

// replayBase picks the replay starting point for a target at targetPos in
// the placed ordering: the latest fresh snapshot at or before the target, or
// the canonical base state when none qualifies.
func (s *Service) replayBase(ctx context.Context, world *store.World, f feed, targetPos int) (seedID string, startCut int, base State, err error) {
	summaries, err := s.store.ListSnapshotSummaries(ctx, world.ID)
	if err != nil {
		return "", 0, State{}, err
	}

	for i := len(summaries) - 1; i >= 0; i-- {
		sm := summaries[i]
		pos, placed := f.markerPos[sm.MarkerID]
		if !placed || pos > targetPos {
			continue
		}
		if sm.LedgerVersion > world.TimelineVersion {
			// Written out-of-band; evict rather than trust it.
			if err := s.store.DeleteSnapshot(ctx, world.ID, sm.MarkerID); err != nil {
				return "", 0, State{}, err
			}
			continue
		}
		snap, err := s.store.GetSnapshot(ctx, world.ID, sm.MarkerID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return "", 0, State{}, err
		}
		st, err := decodeState(snap.State)
		if err != nil {
			s.logger.Warn("evicting undecodable snapshot",
				"world_id", world.ID, "marker_id", sm.MarkerID, "error", err)
			if err := s.store.DeleteSnapshot(ctx, world.ID, sm.MarkerID); err != nil {
				return "", 0, State{}, err
			}
			continue
		}
		return sm.MarkerID, f.markerEnd[sm.MarkerID], st, nil
	}

	entities, err := s.store.ListEntities(ctx, world.ID, store.EntityFilter{})
	if err != nil {
		return "", 0, State{}, err
	}
	relations, err := s.store.ListRelations(ctx, world.ID, store.RelationFilter{})
	if err != nil {
		return "", 0, State{}, err
	}
	return "", 0, BaseState(world, entities, relations), nil
}

// freshSnapshot fetches the cached snapshot for a marker if it passes the
// version check. A snapshot recording a version beyond the world's counter
// was written out-of-band and is evicted.
func (s *Service) freshSnapshot(ctx context.Context, world *store.World, markerID string) *store.Snapshot {
	snap, err := s.store.GetSnapshot(ctx, world.ID, markerID)
	if err != nil {
		return nil
	}
	if snap.LedgerVersion > world.TimelineVersion {
		s.logger.Warn("evicting out-of-band snapshot",
			"world_id", world.ID, "marker_id", markerID,
			"snapshot_version", snap.LedgerVersion, "world_version", world.TimelineVersion)
		_ = s.store.DeleteSnapshot(ctx, world.ID, markerID)
		return nil
	}
	return snap
}

// persistSnapshot encodes pure replay state and upserts it under the marker.
func (s *Service) persistSnapshot(ctx context.Context, world *store.World, markerID string, st State, appliedMarkers int) error {
	blob, err := encodeState(st)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	return s.store.UpsertSnapshot(ctx, store.Snapshot{
		ID:                 uuid.NewString(),
		WorldID:            world.ID,
		MarkerID:           markerID,
		State:              blob,
		StateHash:          stateHash(blob),
		LedgerVersion:      world.TimelineVersion,
		AppliedMarkerCount: appliedMarkers,
		EntityCount:        len(st.Entities),
		RelationCount:      len(st.Relations),
		CreatedAt:          now,
		UpdatedAt:          now,
	})
}

func findMarker(markers []store.Marker, id string) *store.Marker {
	for i := range markers {
		if markers[i].ID == id {
			return &markers[i]
		}
	}
	return nil
}

// notes accumulates state annotations in presentation order.
type notes []string

func newNotes(initial string) notes {
	if initial == "" {
		return nil
	}
	return notes{initial}
}

func (n *notes) add(note string) {
	*n = append(*n, note)
}

func (n notes) String() string {
	out := ""
	for i, note := range n {
		if i > 0 {
			out += " "
		}
		out += note
	}
	return out
}
