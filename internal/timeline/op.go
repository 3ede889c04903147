package timeline

import (
	"encoding/json"
	"fmt"
	"time"

	"worldloom/internal/store"
)

// OpKind identifies a replayable mutation. Raw op_type strings from the
// ledger, including legacy alias spellings, fold into one of these at decode.
type OpKind string

const (
	OpEntityCreate   OpKind = "entity_create"
	OpEntityPatch    OpKind = "entity_patch"
	OpEntityDelete   OpKind = "entity_delete"
	OpRelationCreate OpKind = "relation_create"
	OpRelationPatch  OpKind = "relation_patch"
	OpRelationDelete OpKind = "relation_delete"
	OpWorldPatch     OpKind = "world_patch"
	OpUnknown        OpKind = "unknown"
)

var opKinds = map[string]OpKind{
	"entity_create":   OpEntityCreate,
	"entity_add":      OpEntityCreate,
	"entity_update":   OpEntityPatch,
	"entity_patch":    OpEntityPatch,
	"entity_modify":   OpEntityPatch,
	"entity_delete":   OpEntityDelete,
	"entity_remove":   OpEntityDelete,
	"relation_create": OpRelationCreate,
	"relation_add":    OpRelationCreate,
	"relation_update": OpRelationPatch,
	"relation_patch":  OpRelationPatch,
	"relation_modify": OpRelationPatch,
	"relation_delete": OpRelationDelete,
	"relation_remove": OpRelationDelete,
	"world_patch":     OpWorldPatch,
	"world_update":    OpWorldPatch,
	"world_modify":    OpWorldPatch,
}

var kindTargets = map[OpKind]string{
	OpEntityCreate:   "entity",
	OpEntityPatch:    "entity",
	OpEntityDelete:   "entity",
	OpRelationCreate: "relation",
	OpRelationPatch:  "relation",
	OpRelationDelete: "relation",
	OpWorldPatch:     "world",
}

// KindOf folds an op_type/target_kind pair into a kind. A recognized op_type
// whose family disagrees with the stored target_kind is unknown: the ledger
// row is ambiguous and replay must not guess.
func KindOf(opType, targetKind string) OpKind {
	kind, ok := opKinds[store.NormalizeType(opType)]
	if !ok {
		return OpUnknown
	}
	if kindTargets[kind] != store.NormalizeType(targetKind) {
		return OpUnknown
	}
	return kind
}

// EntityPatch is the decoded payload of an entity operation. Nil fields were
// absent. At create time nil fields take defaults; at patch time they are
// left untouched.
type EntityPatch struct {
	Name         *string
	Type         *string
	Subtype      *string
	Aliases      *[]string
	Context      *string
	Summary      *string
	Tags         *[]string
	Status       *string
	Source       *string
	SourceNoteID *string
	CreatedAt    *time.Time
}

type entityPatchJSON struct {
	ID           *string    `json:"id"`
	Name         *string    `json:"name"`
	Type         *string    `json:"type"`
	EntityType   *string    `json:"entity_type"`
	Kind         *string    `json:"kind"`
	Subtype      *string    `json:"subtype"`
	Aliases      *[]string  `json:"aliases"`
	Context      *string    `json:"context"`
	Summary      *string    `json:"summary"`
	Tags         *[]string  `json:"tags"`
	Status       *string    `json:"status"`
	Source       *string    `json:"source"`
	SourceNoteID *string    `json:"source_note_id"`
	CreatedAt    *time.Time `json:"created_at"`
}

// RelationPatch is the decoded payload of a relation operation.
type RelationPatch struct {
	SourceEntityID *string
	TargetEntityID *string
	Type           *string
	Context        *string
	Weight         *float64
	Source         *string
	SourceNoteID   *string
	CreatedAt      *time.Time
}

type relationPatchJSON struct {
	ID             *string    `json:"id"`
	SourceEntityID *string    `json:"source_entity_id"`
	TargetEntityID *string    `json:"target_entity_id"`
	Type           *string    `json:"type"`
	RelationType   *string    `json:"relation_type"`
	Kind           *string    `json:"kind"`
	Context        *string    `json:"context"`
	Weight         *float64   `json:"weight"`
	Source         *string    `json:"source"`
	SourceNoteID   *string    `json:"source_note_id"`
	CreatedAt      *time.Time `json:"created_at"`
}

// WorldPatch is the decoded payload of a world metadata operation.
type WorldPatch struct {
	Name          *string   `json:"name"`
	Description   *string   `json:"description"`
	EntityTypes   *[]string `json:"entity_types"`
	RelationTypes *[]string `json:"relation_types"`
}

// DecodedOp is a ledger operation folded into its typed form, ready for
// replay. Exactly one of Entity/Relation/World is set for recognized kinds.
// Err carries a decode failure; replay skips the op and records the reason.
type DecodedOp struct {
	ID        string
	MarkerID  string
	Kind      OpKind
	OpType    string
	TargetID  string
	Entity    *EntityPatch
	Relation  *RelationPatch
	World     *WorldPatch
	CreatedAt time.Time
	Err       string
}

// DecodeOperation folds a stored operation into its typed form. Decode
// failures are soft: the result carries the reason instead of an error so a
// malformed ledger row degrades to a skipped op rather than poisoning the
// whole replay.
func DecodeOperation(op store.Operation) DecodedOp {
	d := DecodedOp{
		ID:        op.ID,
		MarkerID:  op.MarkerID,
		Kind:      KindOf(op.OpType, op.TargetKind),
		OpType:    op.OpType,
		TargetID:  op.TargetID,
		CreatedAt: op.CreatedAt,
	}
	if d.Kind == OpUnknown {
		d.Err = fmt.Sprintf("unrecognized op_type %q for target_kind %q", op.OpType, op.TargetKind)
		return d
	}

	payload := op.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	switch kindTargets[d.Kind] {
	case "entity":
		var raw entityPatchJSON
		if err := json.Unmarshal(payload, &raw); err != nil {
			d.Err = fmt.Sprintf("decoding entity payload: %v", err)
			return d
		}
		if d.TargetID == "" && raw.ID != nil {
			d.TargetID = *raw.ID
		}
		d.Entity = &EntityPatch{
			Name:         raw.Name,
			Type:         firstString(raw.Type, raw.EntityType, raw.Kind),
			Subtype:      raw.Subtype,
			Aliases:      raw.Aliases,
			Context:      raw.Context,
			Summary:      raw.Summary,
			Tags:         raw.Tags,
			Status:       raw.Status,
			Source:       raw.Source,
			SourceNoteID: raw.SourceNoteID,
			CreatedAt:    raw.CreatedAt,
		}
	case "relation":
		var raw relationPatchJSON
		if err := json.Unmarshal(payload, &raw); err != nil {
			d.Err = fmt.Sprintf("decoding relation payload: %v", err)
			return d
		}
		if d.TargetID == "" && raw.ID != nil {
			d.TargetID = *raw.ID
		}
		d.Relation = &RelationPatch{
			SourceEntityID: raw.SourceEntityID,
			TargetEntityID: raw.TargetEntityID,
			Type:           firstString(raw.Type, raw.RelationType, raw.Kind),
			Context:        raw.Context,
			Weight:         raw.Weight,
			Source:         raw.Source,
			SourceNoteID:   raw.SourceNoteID,
			CreatedAt:      raw.CreatedAt,
		}
	case "world":
		var raw WorldPatch
		if err := json.Unmarshal(payload, &raw); err != nil {
			d.Err = fmt.Sprintf("decoding world payload: %v", err)
			return d
		}
		d.World = &raw
	}
	return d
}

// firstString returns the first non-nil alias spelling of a payload field.
func firstString(candidates ...*string) *string {
	for _, c := range candidates {
		if c != nil {
			return c
		}
	}
	return nil
}
