package timeline

import (
	"fmt"
	"time"

	"worldloom/internal/store"
)

// Result is the outcome of replaying a batch of operations.
type Result struct {
	State   State
	Applied int
	Skipped []SkippedOp
}

// Replay applies decoded operations over a base state and returns the new
// state. It is pure: no clock, no I/O, and the base is left untouched.
// Operations that cannot apply are skipped and recorded, never fatal.
func Replay(base State, ops []DecodedOp) Result {
	st := base.Clone()
	res := Result{}
	for _, op := range ops {
		if reason := applyOp(&st, op); reason != "" {
			res.Skipped = append(res.Skipped, SkippedOp{
				OperationID: op.ID,
				MarkerID:    op.MarkerID,
				Reason:      reason,
			})
			continue
		}
		res.Applied++
	}
	res.State = st
	return res
}

// applyOp mutates the state for one operation. A non-empty return is the
// skip reason.
func applyOp(st *State, op DecodedOp) string {
	if op.Err != "" {
		return op.Err
	}
	switch op.Kind {
	case OpEntityCreate:
		return applyEntityCreate(st, op)
	case OpEntityPatch:
		return applyEntityPatch(st, op)
	case OpEntityDelete:
		return applyEntityDelete(st, op)
	case OpRelationCreate:
		return applyRelationCreate(st, op)
	case OpRelationPatch:
		return applyRelationPatch(st, op)
	case OpRelationDelete:
		return applyRelationDelete(st, op)
	case OpWorldPatch:
		return applyWorldPatch(st, op)
	}
	return fmt.Sprintf("unrecognized operation kind %q", op.Kind)
}

// applyEntityCreate is idempotent: an existing target mutates in place as a
// patch-merge instead of being recreated.
func applyEntityCreate(st *State, op DecodedOp) string {
	if op.TargetID == "" {
		return "missing target id"
	}
	cur, ok := st.Entities[op.TargetID]
	if !ok {
		cur = newEntityState(st.World.ID, op)
		st.Entities[op.TargetID] = cur
	}
	patchEntity(cur, op.Entity, op.CreatedAt)
	cur.ExistsAtMarker = true
	return ""
}

func applyEntityPatch(st *State, op DecodedOp) string {
	if op.TargetID == "" {
		return "missing target id"
	}
	cur, ok := st.Entities[op.TargetID]
	if !ok {
		return fmt.Sprintf("entity %s does not exist at this point", op.TargetID)
	}
	// Patching never resurrects: the existence flag is left as-is.
	patchEntity(cur, op.Entity, op.CreatedAt)
	return ""
}

func applyEntityDelete(st *State, op DecodedOp) string {
	if op.TargetID == "" {
		return "missing target id"
	}
	cur, ok := st.Entities[op.TargetID]
	if !ok {
		return fmt.Sprintf("entity %s does not exist at this point", op.TargetID)
	}
	if op.Entity.Status != nil {
		cur.Status = *op.Entity.Status
	}
	cur.UpdatedAt = op.CreatedAt
	cur.ExistsAtMarker = false
	return ""
}

// applyRelationCreate is idempotent like entity create. A brand-new relation
// requires both endpoints to exist at this point in the timeline.
func applyRelationCreate(st *State, op DecodedOp) string {
	if op.TargetID == "" {
		return "missing target id"
	}
	p := op.Relation
	cur, ok := st.Relations[op.TargetID]
	if !ok {
		if p.SourceEntityID == nil || p.TargetEntityID == nil {
			return "relation endpoints missing from payload"
		}
		if !st.entityExists(*p.SourceEntityID) {
			return fmt.Sprintf("source entity %s does not exist at this point", *p.SourceEntityID)
		}
		if !st.entityExists(*p.TargetEntityID) {
			return fmt.Sprintf("target entity %s does not exist at this point", *p.TargetEntityID)
		}
		cur = newRelationState(st.World.ID, op)
		st.Relations[op.TargetID] = cur
	}
	if reason := patchRelation(st, cur, p, op.CreatedAt); reason != "" {
		return reason
	}
	cur.ExistsAtMarker = true
	return ""
}

func applyRelationPatch(st *State, op DecodedOp) string {
	if op.TargetID == "" {
		return "missing target id"
	}
	cur, ok := st.Relations[op.TargetID]
	if !ok {
		return fmt.Sprintf("relation %s does not exist at this point", op.TargetID)
	}
	return patchRelation(st, cur, op.Relation, op.CreatedAt)
}

func applyRelationDelete(st *State, op DecodedOp) string {
	if op.TargetID == "" {
		return "missing target id"
	}
	cur, ok := st.Relations[op.TargetID]
	if !ok {
		return fmt.Sprintf("relation %s does not exist at this point", op.TargetID)
	}
	cur.UpdatedAt = op.CreatedAt
	cur.ExistsAtMarker = false
	return ""
}

// applyWorldPatch merges metadata into the state's world meta. It never
// touches entity or relation existence.
func applyWorldPatch(st *State, op DecodedOp) string {
	p := op.World
	if p.Name != nil {
		st.World.Name = *p.Name
	}
	if p.Description != nil {
		st.World.Description = *p.Description
	}
	if p.EntityTypes != nil {
		st.World.EntityTypes = store.NormalizeTypes(*p.EntityTypes)
	}
	if p.RelationTypes != nil {
		st.World.RelationTypes = store.NormalizeTypes(*p.RelationTypes)
	}
	return ""
}

func newEntityState(worldID string, op DecodedOp) *EntityState {
	p := op.Entity
	e := EntityState{
		Entity: store.Entity{
			ID:        op.TargetID,
			WorldID:   worldID,
			Name:      "Unnamed",
			Type:      "concept",
			Aliases:   []string{},
			Tags:      []string{},
			Status:    "active",
			Source:    "user",
			CreatedAt: op.CreatedAt,
			UpdatedAt: op.CreatedAt,
		},
	}
	if p.Source != nil {
		e.Source = *p.Source
	}
	if p.SourceNoteID != nil {
		e.SourceNoteID = *p.SourceNoteID
	}
	if p.CreatedAt != nil {
		e.CreatedAt = *p.CreatedAt
	}
	return &e
}

// patchEntity merges present payload fields. Provenance fields are fixed at
// creation and never patched.
func patchEntity(cur *EntityState, p *EntityPatch, at time.Time) {
	if p.Name != nil && *p.Name != "" {
		cur.Name = *p.Name
	}
	if p.Type != nil {
		if t := store.NormalizeType(*p.Type); t != "" {
			cur.Type = t
		}
	}
	if p.Subtype != nil {
		cur.Subtype = store.NormalizeType(*p.Subtype)
	}
	if p.Aliases != nil {
		cur.Aliases = cloneStrings(*p.Aliases)
	}
	if p.Context != nil {
		cur.Context = *p.Context
	}
	if p.Summary != nil {
		cur.Summary = *p.Summary
	}
	if p.Tags != nil {
		cur.Tags = cloneStrings(*p.Tags)
	}
	if p.Status != nil && *p.Status != "" {
		cur.Status = *p.Status
	}
	cur.UpdatedAt = at
}

func newRelationState(worldID string, op DecodedOp) *RelationState {
	p := op.Relation
	r := RelationState{
		Relation: store.Relation{
			ID:        op.TargetID,
			WorldID:   worldID,
			Type:      "related_to",
			Weight:    0.5,
			Source:    "user",
			CreatedAt: op.CreatedAt,
			UpdatedAt: op.CreatedAt,
		},
	}
	if p.Source != nil {
		r.Source = *p.Source
	}
	if p.SourceNoteID != nil {
		r.SourceNoteID = *p.SourceNoteID
	}
	if p.CreatedAt != nil {
		r.CreatedAt = *p.CreatedAt
	}
	return &r
}

// patchRelation merges present payload fields. Endpoint moves are validated
// up front so a rejected op leaves the relation untouched.
func patchRelation(st *State, cur *RelationState, p *RelationPatch, at time.Time) string {
	if p.SourceEntityID != nil && !st.entityExists(*p.SourceEntityID) {
		return fmt.Sprintf("source entity %s does not exist at this point", *p.SourceEntityID)
	}
	if p.TargetEntityID != nil && !st.entityExists(*p.TargetEntityID) {
		return fmt.Sprintf("target entity %s does not exist at this point", *p.TargetEntityID)
	}
	if p.SourceEntityID != nil {
		cur.SourceEntityID = *p.SourceEntityID
	}
	if p.TargetEntityID != nil {
		cur.TargetEntityID = *p.TargetEntityID
	}
	if p.Type != nil {
		if t := store.NormalizeType(*p.Type); t != "" {
			cur.Type = t
		}
	}
	if p.Context != nil {
		cur.Context = *p.Context
	}
	if p.Weight != nil {
		cur.Weight = store.ClampWeight(*p.Weight)
	}
	cur.UpdatedAt = at
	return ""
}

func cloneStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return append([]string(nil), values...)
}
