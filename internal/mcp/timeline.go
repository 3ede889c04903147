package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"worldloom/internal/store"
	"worldloom/internal/timeline"
)

type ListMarkersInput struct {
	WorldID           string `json:"world_id" jsonschema:"world id"`
	IncludeOperations bool   `json:"include_operations,omitempty" jsonschema:"attach each marker's operations"`
}

// OperationInput is one mutation op, inline in create_marker or standalone
// in create_operation.
type OperationInput struct {
	OpType     string         `json:"op_type" jsonschema:"entity_create, entity_patch, entity_delete, relation_create, relation_patch, relation_delete, or world_patch (aliases accepted)"`
	TargetKind string         `json:"target_kind" jsonschema:"entity, relation, or world"`
	TargetID   string         `json:"target_id,omitempty" jsonschema:"id of the record the op targets"`
	Payload    map[string]any `json:"payload,omitempty" jsonschema:"op payload object"`
	OrderIndex *int           `json:"order_index,omitempty" jsonschema:"application order within the marker"`
}

type CreateMarkerInput struct {
	WorldID         string           `json:"world_id" jsonschema:"world id"`
	Title           string           `json:"title" jsonschema:"marker title"`
	Summary         string           `json:"summary,omitempty" jsonschema:"what happens at this point"`
	MarkerKind      string           `json:"marker_kind,omitempty" jsonschema:"explicit (dated) or semantic (era), defaults to explicit"`
	PlacementStatus string           `json:"placement_status,omitempty" jsonschema:"placed or unplaced, defaults to placed"`
	DateLabel       string           `json:"date_label,omitempty" jsonschema:"display date, e.g. 'Year 312, spring'"`
	DateSortValue   *float64         `json:"date_sort_value,omitempty" jsonschema:"numeric anchor derived from the date"`
	SortKey         *float64         `json:"sort_key,omitempty" jsonschema:"explicit timeline position, wins over date_sort_value"`
	Source          string           `json:"source,omitempty" jsonschema:"provenance, user or ai, defaults to user"`
	SourceNoteID    string           `json:"source_note_id,omitempty" jsonschema:"originating note id"`
	Operations      []OperationInput `json:"operations,omitempty" jsonschema:"mutation ops recorded at this marker"`
}

type UpdateMarkerInput struct {
	WorldID         string   `json:"world_id" jsonschema:"world id"`
	MarkerID        string   `json:"marker_id" jsonschema:"marker id"`
	Title           *string  `json:"title,omitempty" jsonschema:"new title"`
	Summary         *string  `json:"summary,omitempty" jsonschema:"new summary"`
	MarkerKind      *string  `json:"marker_kind,omitempty" jsonschema:"explicit or semantic"`
	PlacementStatus *string  `json:"placement_status,omitempty" jsonschema:"placed or unplaced"`
	DateLabel       *string  `json:"date_label,omitempty" jsonschema:"new display date"`
	DateSortValue   *float64 `json:"date_sort_value,omitempty" jsonschema:"new numeric date anchor"`
	SortKey         *float64 `json:"sort_key,omitempty" jsonschema:"new timeline position"`
	SourceNoteID    *string  `json:"source_note_id,omitempty" jsonschema:"new originating note id"`
}

type RepositionMarkerInput struct {
	WorldID         string   `json:"world_id" jsonschema:"world id"`
	MarkerID        string   `json:"marker_id" jsonschema:"marker id"`
	SortKey         *float64 `json:"sort_key,omitempty" jsonschema:"explicit new position, wins over insert_index"`
	InsertIndex     *int     `json:"insert_index,omitempty" jsonschema:"position among placed markers to insert at"`
	PlacementStatus string   `json:"placement_status,omitempty" jsonschema:"placed or unplaced"`
}

type DeleteMarkerInput struct {
	WorldID  string `json:"world_id" jsonschema:"world id"`
	MarkerID string `json:"marker_id" jsonschema:"marker id"`
}

type CreateOperationInput struct {
	WorldID  string `json:"world_id" jsonschema:"world id"`
	MarkerID string `json:"marker_id" jsonschema:"marker the op belongs to"`
	OperationInput
}

type UpdateOperationInput struct {
	WorldID     string         `json:"world_id" jsonschema:"world id"`
	MarkerID    string         `json:"marker_id" jsonschema:"marker the op belongs to"`
	OperationID string         `json:"operation_id" jsonschema:"operation id"`
	OpType      *string        `json:"op_type,omitempty" jsonschema:"new op type"`
	TargetKind  *string        `json:"target_kind,omitempty" jsonschema:"new target kind"`
	TargetID    *string        `json:"target_id,omitempty" jsonschema:"new target id"`
	Payload     map[string]any `json:"payload,omitempty" jsonschema:"replacement payload object"`
	OrderIndex  *int           `json:"order_index,omitempty" jsonschema:"new application order"`
}

type DeleteOperationInput struct {
	WorldID     string `json:"world_id" jsonschema:"world id"`
	MarkerID    string `json:"marker_id" jsonschema:"marker the op belongs to"`
	OperationID string `json:"operation_id" jsonschema:"operation id"`
}

type GetWorldStateInput struct {
	WorldID  string `json:"world_id" jsonschema:"world id"`
	MarkerID string `json:"marker_id,omitempty" jsonschema:"reconstruct the state at this marker; empty means the timeline head"`
}

type RebuildTimelineInput struct {
	WorldID string `json:"world_id" jsonschema:"world id"`
	Full    bool   `json:"full,omitempty" jsonschema:"recompute every snapshot instead of filling gaps"`
}

type MarkerOutput struct {
	ID              string            `json:"id"`
	WorldID         string            `json:"world_id"`
	Title           string            `json:"title"`
	Summary         string            `json:"summary,omitempty"`
	MarkerKind      string            `json:"marker_kind"`
	PlacementStatus string            `json:"placement_status"`
	DateLabel       string            `json:"date_label,omitempty"`
	DateSortValue   *float64          `json:"date_sort_value,omitempty"`
	SortKey         float64           `json:"sort_key"`
	Source          string            `json:"source"`
	SourceNoteID    string            `json:"source_note_id,omitempty"`
	CreatedAt       string            `json:"created_at" jsonschema:"RFC 3339 timestamp"`
	UpdatedAt       string            `json:"updated_at" jsonschema:"RFC 3339 timestamp"`
	Operations      []OperationOutput `json:"operations,omitempty"`
}

type OperationOutput struct {
	ID         string         `json:"id"`
	MarkerID   string         `json:"marker_id"`
	OpType     string         `json:"op_type"`
	TargetKind string         `json:"target_kind"`
	TargetID   string         `json:"target_id,omitempty"`
	Payload    map[string]any `json:"payload"`
	OrderIndex int            `json:"order_index"`
	CreatedAt  string         `json:"created_at" jsonschema:"RFC 3339 timestamp"`
	UpdatedAt  string         `json:"updated_at" jsonschema:"RFC 3339 timestamp"`
}

type ListMarkersOutput struct {
	Markers []MarkerOutput `json:"markers"`
}

type WorldMetaOutput struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	EntityTypes   []string `json:"entity_types"`
	RelationTypes []string `json:"relation_types"`
}

type EntityStateOutput struct {
	EntityOutput
	ExistsAtMarker bool `json:"exists_at_marker" jsonschema:"false when the record has not yet been created or is deleted at this point"`
}

type RelationStateOutput struct {
	RelationOutput
	ExistsAtMarker bool `json:"exists_at_marker" jsonschema:"false when the relation or either endpoint does not exist at this point"`
}

type SkippedOpOutput struct {
	OperationID string `json:"operation_id"`
	MarkerID    string `json:"marker_id"`
	Reason      string `json:"reason"`
}

type WorldStateOutput struct {
	WorldID              string                `json:"world_id"`
	MarkerID             string                `json:"marker_id,omitempty" jsonschema:"marker the state was reconstructed at; empty for the head"`
	AppliedMarkerCount   int                   `json:"applied_marker_count"`
	World                WorldMetaOutput       `json:"world"`
	Entities             []EntityStateOutput   `json:"entities"`
	Relations            []RelationStateOutput `json:"relations"`
	FromSnapshotMarkerID string                `json:"from_snapshot_marker_id,omitempty" jsonschema:"set when the state was served from a cached snapshot"`
	Note                 string                `json:"note,omitempty"`
	SkippedOperations    []SkippedOpOutput     `json:"skipped_operations,omitempty"`
}

type RebuildOutput struct {
	Status        string `json:"status"`
	WorldID       string `json:"world_id"`
	MarkerCount   int    `json:"marker_count"`
	SnapshotCount int    `json:"snapshot_count"`
	RebuiltAt     string `json:"rebuilt_at" jsonschema:"RFC 3339 timestamp"`
}

func (s *Server) handleListMarkers(ctx context.Context, req *sdk.CallToolRequest, input ListMarkersInput) (*sdk.CallToolResult, ListMarkersOutput, error) {
	if input.WorldID == "" {
		return nil, ListMarkersOutput{}, fmt.Errorf("world_id is required")
	}
	markers, err := s.timeline.ListMarkers(ctx, input.WorldID, input.IncludeOperations)
	if err != nil {
		return nil, ListMarkersOutput{}, err
	}
	out := make([]MarkerOutput, 0, len(markers))
	for i := range markers {
		out = append(out, markerOutputFrom(&markers[i]))
	}
	return nil, ListMarkersOutput{Markers: out}, nil
}

func (s *Server) handleCreateMarker(ctx context.Context, req *sdk.CallToolRequest, input CreateMarkerInput) (*sdk.CallToolResult, MarkerOutput, error) {
	if input.WorldID == "" {
		return nil, MarkerOutput{}, fmt.Errorf("world_id is required")
	}
	if input.Title == "" {
		return nil, MarkerOutput{}, fmt.Errorf("title is required")
	}
	ops := make([]timeline.OperationCreate, 0, len(input.Operations))
	for _, op := range input.Operations {
		oc, err := operationCreateFrom(op)
		if err != nil {
			return nil, MarkerOutput{}, err
		}
		ops = append(ops, oc)
	}
	m, err := s.timeline.CreateMarker(ctx, input.WorldID, timeline.MarkerCreate{
		Title:           input.Title,
		Summary:         input.Summary,
		MarkerKind:      input.MarkerKind,
		PlacementStatus: input.PlacementStatus,
		DateLabel:       input.DateLabel,
		DateSortValue:   input.DateSortValue,
		SortKey:         input.SortKey,
		Source:          input.Source,
		SourceNoteID:    input.SourceNoteID,
		Operations:      ops,
	})
	if err != nil {
		return nil, MarkerOutput{}, err
	}
	return nil, markerOutputFrom(m), nil
}

func (s *Server) handleUpdateMarker(ctx context.Context, req *sdk.CallToolRequest, input UpdateMarkerInput) (*sdk.CallToolResult, MarkerOutput, error) {
	if input.WorldID == "" || input.MarkerID == "" {
		return nil, MarkerOutput{}, fmt.Errorf("world_id and marker_id are required")
	}
	m, err := s.timeline.UpdateMarker(ctx, input.WorldID, input.MarkerID, timeline.MarkerUpdate{
		Title:           input.Title,
		Summary:         input.Summary,
		MarkerKind:      input.MarkerKind,
		PlacementStatus: input.PlacementStatus,
		DateLabel:       input.DateLabel,
		DateSortValue:   input.DateSortValue,
		SortKey:         input.SortKey,
		SourceNoteID:    input.SourceNoteID,
	})
	if err != nil {
		return nil, MarkerOutput{}, err
	}
	return nil, markerOutputFrom(m), nil
}

func (s *Server) handleRepositionMarker(ctx context.Context, req *sdk.CallToolRequest, input RepositionMarkerInput) (*sdk.CallToolResult, MarkerOutput, error) {
	if input.WorldID == "" || input.MarkerID == "" {
		return nil, MarkerOutput{}, fmt.Errorf("world_id and marker_id are required")
	}
	m, err := s.timeline.RepositionMarker(ctx, input.WorldID, input.MarkerID, timeline.Reposition{
		SortKey:         input.SortKey,
		InsertIndex:     input.InsertIndex,
		PlacementStatus: input.PlacementStatus,
	})
	if err != nil {
		return nil, MarkerOutput{}, err
	}
	return nil, markerOutputFrom(m), nil
}

func (s *Server) handleDeleteMarker(ctx context.Context, req *sdk.CallToolRequest, input DeleteMarkerInput) (*sdk.CallToolResult, DeletedOutput, error) {
	if input.WorldID == "" || input.MarkerID == "" {
		return nil, DeletedOutput{}, fmt.Errorf("world_id and marker_id are required")
	}
	if err := s.timeline.DeleteMarker(ctx, input.WorldID, input.MarkerID); err != nil {
		return nil, DeletedOutput{}, err
	}
	return nil, DeletedOutput{ID: input.MarkerID, Deleted: true}, nil
}

func (s *Server) handleCreateOperation(ctx context.Context, req *sdk.CallToolRequest, input CreateOperationInput) (*sdk.CallToolResult, OperationOutput, error) {
	if input.WorldID == "" || input.MarkerID == "" {
		return nil, OperationOutput{}, fmt.Errorf("world_id and marker_id are required")
	}
	oc, err := operationCreateFrom(input.OperationInput)
	if err != nil {
		return nil, OperationOutput{}, err
	}
	op, err := s.timeline.CreateOperation(ctx, input.WorldID, input.MarkerID, oc)
	if err != nil {
		return nil, OperationOutput{}, err
	}
	return nil, operationOutputFrom(*op), nil
}

func (s *Server) handleUpdateOperation(ctx context.Context, req *sdk.CallToolRequest, input UpdateOperationInput) (*sdk.CallToolResult, OperationOutput, error) {
	if input.WorldID == "" || input.MarkerID == "" || input.OperationID == "" {
		return nil, OperationOutput{}, fmt.Errorf("world_id, marker_id, and operation_id are required")
	}
	payload, err := payloadBytes(input.Payload)
	if err != nil {
		return nil, OperationOutput{}, err
	}
	op, err := s.timeline.UpdateOperation(ctx, input.WorldID, input.MarkerID, input.OperationID, timeline.OperationUpdate{
		OpType:     input.OpType,
		TargetKind: input.TargetKind,
		TargetID:   input.TargetID,
		Payload:    payload,
		OrderIndex: input.OrderIndex,
	})
	if err != nil {
		return nil, OperationOutput{}, err
	}
	return nil, operationOutputFrom(*op), nil
}

func (s *Server) handleDeleteOperation(ctx context.Context, req *sdk.CallToolRequest, input DeleteOperationInput) (*sdk.CallToolResult, DeletedOutput, error) {
	if input.WorldID == "" || input.MarkerID == "" || input.OperationID == "" {
		return nil, DeletedOutput{}, fmt.Errorf("world_id, marker_id, and operation_id are required")
	}
	if err := s.timeline.DeleteOperation(ctx, input.WorldID, input.MarkerID, input.OperationID); err != nil {
		return nil, DeletedOutput{}, err
	}
	return nil, DeletedOutput{ID: input.OperationID, Deleted: true}, nil
}

func (s *Server) handleGetWorldState(ctx context.Context, req *sdk.CallToolRequest, input GetWorldStateInput) (*sdk.CallToolResult, WorldStateOutput, error) {
	if input.WorldID == "" {
		return nil, WorldStateOutput{}, fmt.Errorf("world_id is required")
	}
	ws, err := s.timeline.GetState(ctx, input.WorldID, input.MarkerID)
	if err != nil {
		return nil, WorldStateOutput{}, err
	}
	return nil, worldStateOutputFrom(ws), nil
}

func (s *Server) handleRebuildTimeline(ctx context.Context, req *sdk.CallToolRequest, input RebuildTimelineInput) (*sdk.CallToolResult, RebuildOutput, error) {
	if input.WorldID == "" {
		return nil, RebuildOutput{}, fmt.Errorf("world_id is required")
	}
	res, err := s.timeline.Rebuild(ctx, input.WorldID, input.Full)
	if err != nil {
		return nil, RebuildOutput{}, err
	}
	return nil, RebuildOutput{
		Status:        res.Status,
		WorldID:       res.WorldID,
		MarkerCount:   res.MarkerCount,
		SnapshotCount: res.SnapshotCount,
		RebuiltAt:     rfc3339(res.RebuiltAt),
	}, nil
}

func operationCreateFrom(in OperationInput) (timeline.OperationCreate, error) {
	payload, err := payloadBytes(in.Payload)
	if err != nil {
		return timeline.OperationCreate{}, err
	}
	return timeline.OperationCreate{
		OpType:     in.OpType,
		TargetKind: in.TargetKind,
		TargetID:   in.TargetID,
		Payload:    payload,
		OrderIndex: in.OrderIndex,
	}, nil
}

// payloadBytes keeps absent payloads absent: a nil map means the caller did
// not send one.
func payloadBytes(payload map[string]any) (json.RawMessage, error) {
	if payload == nil {
		return nil, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}
	return data, nil
}

func payloadObject(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return map[string]any{}
	}
	return payload
}

func markerOutputFrom(m *timeline.MarkerDetail) MarkerOutput {
	out := MarkerOutput{
		ID:              m.ID,
		WorldID:         m.WorldID,
		Title:           m.Title,
		Summary:         m.Summary,
		MarkerKind:      m.MarkerKind,
		PlacementStatus: m.PlacementStatus,
		DateLabel:       m.DateLabel,
		DateSortValue:   m.DateSortValue,
		SortKey:         m.SortKey,
		Source:          m.Source,
		SourceNoteID:    m.SourceNoteID,
		CreatedAt:       rfc3339(m.CreatedAt),
		UpdatedAt:       rfc3339(m.UpdatedAt),
	}
	for _, op := range m.Operations {
		out.Operations = append(out.Operations, operationOutputFrom(op))
	}
	return out
}

func operationOutputFrom(op store.Operation) OperationOutput {
	return OperationOutput{
		ID:         op.ID,
		MarkerID:   op.MarkerID,
		OpType:     op.OpType,
		TargetKind: op.TargetKind,
		TargetID:   op.TargetID,
		Payload:    payloadObject(op.Payload),
		OrderIndex: op.OrderIndex,
		CreatedAt:  rfc3339(op.CreatedAt),
		UpdatedAt:  rfc3339(op.UpdatedAt),
	}
}

func worldStateOutputFrom(ws *timeline.WorldState) WorldStateOutput {
	out := WorldStateOutput{
		WorldID:            ws.WorldID,
		MarkerID:           ws.MarkerID,
		AppliedMarkerCount: ws.AppliedMarkerCount,
		World: WorldMetaOutput{
			ID:            ws.World.ID,
			Name:          ws.World.Name,
			Description:   ws.World.Description,
			EntityTypes:   append([]string{}, ws.World.EntityTypes...),
			RelationTypes: append([]string{}, ws.World.RelationTypes...),
		},
		Entities:             make([]EntityStateOutput, 0, len(ws.Entities)),
		Relations:            make([]RelationStateOutput, 0, len(ws.Relations)),
		FromSnapshotMarkerID: ws.FromSnapshotMarkerID,
		Note:                 ws.Note,
	}
	for _, e := range ws.Entities {
		out.Entities = append(out.Entities, EntityStateOutput{
			EntityOutput:   entityOutputFrom(e.Entity),
			ExistsAtMarker: e.ExistsAtMarker,
		})
	}
	for _, r := range ws.Relations {
		out.Relations = append(out.Relations, RelationStateOutput{
			RelationOutput: relationOutputFrom(r.Relation),
			ExistsAtMarker: r.ExistsAtMarker,
		})
	}
	for _, sk := range ws.Skipped {
		out.SkippedOperations = append(out.SkippedOperations, SkippedOpOutput{
			OperationID: sk.OperationID,
			MarkerID:    sk.MarkerID,
			Reason:      sk.Reason,
		})
	}
	return out
}
