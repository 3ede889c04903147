package timeline

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"worldloom/internal/store"
)

// WorldMeta is the world-level metadata carried inside replay state so
// world_patch operations have an observable effect.
type WorldMeta struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	EntityTypes   []string `json:"entity_types"`
	RelationTypes []string `json:"relation_types"`
}

// EntityState is an entity record plus its existence flag at the replay
// point. Deleted records keep their place in the id space with the flag
// cleared so clients can render them greyed out.
type EntityState struct {
	store.Entity
	ExistsAtMarker bool `json:"exists_at_marker"`
}

// RelationState is a relation record plus its raw existence flag. The
// endpoint cascade (a relation only exists while both endpoints do) is
// derived at assembly time, never stored.
type RelationState struct {
	store.Relation
	ExistsAtMarker bool `json:"exists_at_marker"`
}

// State is the mutable replay working set for one world at one point.
type State struct {
	World     WorldMeta
	Entities  map[string]*EntityState
	Relations map[string]*RelationState
}

// NewState returns an empty state carrying the given world metadata.
func NewState(meta WorldMeta) State {
	return State{
		World:     meta,
		Entities:  map[string]*EntityState{},
		Relations: map[string]*RelationState{},
	}
}

// BaseState seeds replay from the canonical entity/relation tables, every
// record present and existing.
func BaseState(world *store.World, entities []store.Entity, relations []store.Relation) State {
	st := NewState(WorldMeta{
		ID:            world.ID,
		Name:          world.Name,
		Description:   world.Description,
		EntityTypes:   append([]string(nil), world.EntityTypes...),
		RelationTypes: append([]string(nil), world.RelationTypes...),
	})
	for _, e := range entities {
		st.Entities[e.ID] = &EntityState{Entity: e, ExistsAtMarker: true}
	}
	for _, r := range relations {
		st.Relations[r.ID] = &RelationState{Relation: r, ExistsAtMarker: true}
	}
	return st
}

// Clone returns an independent copy of the state. Record structs are copied;
// replay only ever replaces slice fields, never mutates them in place.
func (s State) Clone() State {
	out := NewState(s.World)
	out.World.EntityTypes = append([]string(nil), s.World.EntityTypes...)
	out.World.RelationTypes = append([]string(nil), s.World.RelationTypes...)
	for id, e := range s.Entities {
		copied := *e
		out.Entities[id] = &copied
	}
	for id, r := range s.Relations {
		copied := *r
		out.Relations[id] = &copied
	}
	return out
}

func (s State) entityExists(id string) bool {
	e, ok := s.Entities[id]
	return ok && e.ExistsAtMarker
}

// SkippedOp records a ledger operation that could not apply during replay.
type SkippedOp struct {
	OperationID string `json:"operation_id"`
	MarkerID    string `json:"marker_id"`
	Reason      string `json:"reason"`
}

// WorldState is the assembled, client-facing world state at a timeline point.
type WorldState struct {
	WorldID              string          `json:"world_id"`
	MarkerID             string          `json:"marker_id,omitempty"`
	AppliedMarkerCount   int             `json:"applied_marker_count"`
	World                WorldMeta       `json:"world"`
	Entities             []EntityState   `json:"entities"`
	Relations            []RelationState `json:"relations"`
	FromSnapshotMarkerID string          `json:"from_snapshot_marker_id,omitempty"`
	Note                 string          `json:"note,omitempty"`
	Skipped              []SkippedOp     `json:"skipped_operations,omitempty"`
}

// snapshotState is the persisted snapshot blob: pure replay output with
// records sorted by id. Existence cuts and endpoint cascades are reapplied
// when the blob is served, so a cached state stays valid under suffix
// eviction.
type snapshotState struct {
	World     WorldMeta       `json:"world"`
	Entities  []EntityState   `json:"entities"`
	Relations []RelationState `json:"relations"`
}

func encodeState(s State) ([]byte, error) {
	blob := snapshotState{
		World:     s.World,
		Entities:  make([]EntityState, 0, len(s.Entities)),
		Relations: make([]RelationState, 0, len(s.Relations)),
	}
	for _, e := range s.Entities {
		blob.Entities = append(blob.Entities, *e)
	}
	for _, r := range s.Relations {
		blob.Relations = append(blob.Relations, *r)
	}
	sort.Slice(blob.Entities, func(i, j int) bool { return blob.Entities[i].ID < blob.Entities[j].ID })
	sort.Slice(blob.Relations, func(i, j int) bool { return blob.Relations[i].ID < blob.Relations[j].ID })

	data, err := json.Marshal(blob)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot state: %w", err)
	}
	return data, nil
}

func decodeState(data []byte) (State, error) {
	var blob snapshotState
	if err := json.Unmarshal(data, &blob); err != nil {
		return State{}, fmt.Errorf("decoding snapshot state: %w", err)
	}
	st := NewState(blob.World)
	for i := range blob.Entities {
		e := blob.Entities[i]
		st.Entities[e.ID] = &e
	}
	for i := range blob.Relations {
		r := blob.Relations[i]
		st.Relations[r.ID] = &r
	}
	return st, nil
}

// stateHash is the content hash of a canonical snapshot blob.
func stateHash(blob []byte) string {
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:])
}

// applyExistenceCut clears the existence flag on records whose first create
// operation lies beyond the replay cut, so scrubbing shows future records
// greyed out before their creation marker. Positions index into the placed
// operation feed; cut is the number of operations included.
func applyExistenceCut(st State, entityFirst, relationFirst map[string]int, cut int) {
	for id, e := range st.Entities {
		if pos, ok := entityFirst[id]; ok && pos >= cut {
			e.ExistsAtMarker = false
		}
	}
	for id, r := range st.Relations {
		if pos, ok := relationFirst[id]; ok && pos >= cut {
			r.ExistsAtMarker = false
		}
	}
}

// assembleView flattens a state for serving: relations whose endpoint
// records are missing are dropped, relation existence cascades from both
// endpoints, entities sort by case-folded name and relations by creation
// order.
func assembleView(st State) ([]EntityState, []RelationState) {
	entities := make([]EntityState, 0, len(st.Entities))
	for _, e := range st.Entities {
		entities = append(entities, *e)
	}
	sort.Slice(entities, func(i, j int) bool {
		ni, nj := strings.ToLower(entities[i].Name), strings.ToLower(entities[j].Name)
		if ni != nj {
			return ni < nj
		}
		return entities[i].ID < entities[j].ID
	})

	relations := make([]RelationState, 0, len(st.Relations))
	for _, r := range st.Relations {
		src, srcOK := st.Entities[r.SourceEntityID]
		dst, dstOK := st.Entities[r.TargetEntityID]
		if !srcOK || !dstOK {
			continue
		}
		copied := *r
		copied.ExistsAtMarker = r.ExistsAtMarker && src.ExistsAtMarker && dst.ExistsAtMarker
		relations = append(relations, copied)
	}
	sort.Slice(relations, func(i, j int) bool {
		if !relations[i].CreatedAt.Equal(relations[j].CreatedAt) {
			return relations[i].CreatedAt.Before(relations[j].CreatedAt)
		}
		return relations[i].ID < relations[j].ID
	})

	return entities, relations
}
