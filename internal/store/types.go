package store

import (
	"encoding/json"
	"time"
)

type World struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	EntityTypes     []string  `json:"entity_types"`
	RelationTypes   []string  `json:"relation_types"`
	TimelineVersion int64     `json:"timeline_version"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type Entity struct {
	ID           string    `json:"id"`
	WorldID      string    `json:"world_id"`
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	Subtype      string    `json:"subtype,omitempty"`
	Aliases      []string  `json:"aliases"`
	Context      string    `json:"context,omitempty"`
	Summary      string    `json:"summary,omitempty"`
	Tags         []string  `json:"tags"`
	Status       string    `json:"status"`
	Source       string    `json:"source"`
	SourceNoteID string    `json:"source_note_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Relation struct {
	ID             string    `json:"id"`
	WorldID        string    `json:"world_id"`
	SourceEntityID string    `json:"source_entity_id"`
	TargetEntityID string    `json:"target_entity_id"`
	Type           string    `json:"type"`
	Context        string    `json:"context,omitempty"`
	Weight         float64   `json:"weight"`
	Source         string    `json:"source"`
	SourceNoteID   string    `json:"source_note_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Marker is a point on a world's timeline. Placed markers participate in
// replay ordering by (sort_key, created_at, id); unplaced markers are parked
// until the user positions them.
type Marker struct {
	ID              string    `json:"id"`
	WorldID         string    `json:"world_id"`
	Title           string    `json:"title"`
	Summary         string    `json:"summary,omitempty"`
	MarkerKind      string    `json:"marker_kind"`
	PlacementStatus string    `json:"placement_status"`
	DateLabel       string    `json:"date_label,omitempty"`
	DateSortValue   *float64  `json:"date_sort_value,omitempty"`
	SortKey         float64   `json:"sort_key"`
	Source          string    `json:"source"`
	SourceNoteID    string    `json:"source_note_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type Operation struct {
	ID         string          `json:"id"`
	WorldID    string          `json:"world_id"`
	MarkerID   string          `json:"marker_id"`
	OpType     string          `json:"op_type"`
	TargetKind string          `json:"target_kind"`
	TargetID   string          `json:"target_id,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	OrderIndex int             `json:"order_index"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Snapshot caches the replayed world state at a marker. LedgerVersion records
// the world's timeline_version at compute time; a snapshot whose version
// exceeds the world's current counter was written out-of-band and is stale.
type Snapshot struct {
	ID                 string          `json:"id"`
	WorldID            string          `json:"world_id"`
	MarkerID           string          `json:"marker_id"`
	State              json.RawMessage `json:"state"`
	StateHash          string          `json:"state_hash,omitempty"`
	LedgerVersion      int64           `json:"ledger_version"`
	AppliedMarkerCount int             `json:"applied_marker_count"`
	EntityCount        int             `json:"entity_count"`
	RelationCount      int             `json:"relation_count"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// SnapshotSummary is the blob-free projection used to pick a replay base.
type SnapshotSummary struct {
	MarkerID           string  `json:"marker_id"`
	SortKey            float64 `json:"sort_key"`
	LedgerVersion      int64   `json:"ledger_version"`
	AppliedMarkerCount int     `json:"applied_marker_count"`
	StateHash          string  `json:"state_hash,omitempty"`
}

type EntityFilter struct {
	Type    string
	Subtype string
	Tag     string
	Search  string
}

type RelationFilter struct {
	EntityID string
	Type     string
}
