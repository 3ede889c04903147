package mcp

import (
	"context"
	"fmt"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"worldloom/internal/lore"
	"worldloom/internal/store"
)

type GetEntityInput struct {
	WorldID  string `json:"world_id" jsonschema:"world id"`
	EntityID string `json:"entity_id" jsonschema:"entity id"`
}

type ListEntitiesInput struct {
	WorldID string `json:"world_id" jsonschema:"world id"`
	Type    string `json:"type,omitempty" jsonschema:"entity type filter"`
	Subtype string `json:"subtype,omitempty" jsonschema:"entity subtype filter"`
	Tag     string `json:"tag,omitempty" jsonschema:"tag filter"`
	Search  string `json:"search,omitempty" jsonschema:"name and alias substring search"`
}

type CreateEntityInput struct {
	WorldID      string   `json:"world_id" jsonschema:"world id"`
	Name         string   `json:"name" jsonschema:"entity name"`
	Type         string   `json:"type,omitempty" jsonschema:"entity type, defaults to concept"`
	Subtype      string   `json:"subtype,omitempty" jsonschema:"optional subtype"`
	Aliases      []string `json:"aliases,omitempty" jsonschema:"alternative names"`
	Context      string   `json:"context,omitempty" jsonschema:"free-form lore context"`
	Summary      string   `json:"summary,omitempty" jsonschema:"short summary"`
	Tags         []string `json:"tags,omitempty" jsonschema:"tags"`
	Source       string   `json:"source,omitempty" jsonschema:"provenance, user or ai, defaults to user"`
	SourceNoteID string   `json:"source_note_id,omitempty" jsonschema:"originating note id"`
}

type UpdateEntityInput struct {
	WorldID  string    `json:"world_id" jsonschema:"world id"`
	EntityID string    `json:"entity_id" jsonschema:"entity id"`
	Name     *string   `json:"name,omitempty" jsonschema:"new name"`
	Type     *string   `json:"type,omitempty" jsonschema:"new type"`
	Subtype  *string   `json:"subtype,omitempty" jsonschema:"new subtype"`
	Aliases  *[]string `json:"aliases,omitempty" jsonschema:"replacement alias list"`
	Context  *string   `json:"context,omitempty" jsonschema:"new context"`
	Summary  *string   `json:"summary,omitempty" jsonschema:"new summary"`
	Tags     *[]string `json:"tags,omitempty" jsonschema:"replacement tag list"`
	Status   *string   `json:"status,omitempty" jsonschema:"new status, e.g. active or dead"`
	Source   *string   `json:"source,omitempty" jsonschema:"provenance override, user or ai"`
}

type DeleteEntityInput struct {
	WorldID  string `json:"world_id" jsonschema:"world id"`
	EntityID string `json:"entity_id" jsonschema:"entity id"`
}

type CreateRelationInput struct {
	WorldID        string   `json:"world_id" jsonschema:"world id"`
	SourceEntityID string   `json:"source_entity_id" jsonschema:"source entity id"`
	TargetEntityID string   `json:"target_entity_id" jsonschema:"target entity id"`
	Type           string   `json:"type,omitempty" jsonschema:"relation type, defaults to related_to"`
	Context        string   `json:"context,omitempty" jsonschema:"free-form context"`
	Weight         *float64 `json:"weight,omitempty" jsonschema:"strength in [0,1], defaults to 0.5"`
	Source         string   `json:"source,omitempty" jsonschema:"provenance, user or ai, defaults to user"`
	SourceNoteID   string   `json:"source_note_id,omitempty" jsonschema:"originating note id"`
}

type ListRelationsInput struct {
	WorldID  string `json:"world_id" jsonschema:"world id"`
	EntityID string `json:"entity_id,omitempty" jsonschema:"only relations touching this entity"`
	Type     string `json:"type,omitempty" jsonschema:"relation type filter"`
}

type DeleteRelationInput struct {
	WorldID    string `json:"world_id" jsonschema:"world id"`
	RelationID string `json:"relation_id" jsonschema:"relation id"`
}

type GetGraphInput struct {
	WorldID       string   `json:"world_id" jsonschema:"world id"`
	EntityTypes   []string `json:"entity_types,omitempty" jsonschema:"keep only entities of these types"`
	RelationTypes []string `json:"relation_types,omitempty" jsonschema:"keep only relations of these types"`
	FocusEntityID string   `json:"focus_entity_id,omitempty" jsonschema:"narrow to this entity's direct neighborhood"`
}

type EntityOutput struct {
	ID           string   `json:"id"`
	WorldID      string   `json:"world_id"`
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Subtype      string   `json:"subtype,omitempty"`
	Aliases      []string `json:"aliases"`
	Context      string   `json:"context,omitempty"`
	Summary      string   `json:"summary,omitempty"`
	Tags         []string `json:"tags"`
	Status       string   `json:"status"`
	Source       string   `json:"source"`
	SourceNoteID string   `json:"source_note_id,omitempty"`
	CreatedAt    string   `json:"created_at" jsonschema:"RFC 3339 timestamp"`
	UpdatedAt    string   `json:"updated_at" jsonschema:"RFC 3339 timestamp"`
}

type RelationOutput struct {
	ID             string  `json:"id"`
	WorldID        string  `json:"world_id"`
	SourceEntityID string  `json:"source_entity_id"`
	TargetEntityID string  `json:"target_entity_id"`
	Type           string  `json:"type"`
	Context        string  `json:"context,omitempty"`
	Weight         float64 `json:"weight"`
	Source         string  `json:"source"`
	SourceNoteID   string  `json:"source_note_id,omitempty"`
	CreatedAt      string  `json:"created_at" jsonschema:"RFC 3339 timestamp"`
	UpdatedAt      string  `json:"updated_at" jsonschema:"RFC 3339 timestamp"`
}

type ListEntitiesOutput struct {
	Entities []EntityOutput `json:"entities"`
}

type ListRelationsOutput struct {
	Relations []RelationOutput `json:"relations"`
}

type GraphOutput struct {
	WorldID   string           `json:"world_id"`
	Entities  []EntityOutput   `json:"entities"`
	Relations []RelationOutput `json:"relations"`
}

func (s *Server) handleGetEntity(ctx context.Context, req *sdk.CallToolRequest, input GetEntityInput) (*sdk.CallToolResult, EntityOutput, error) {
	if input.WorldID == "" || input.EntityID == "" {
		return nil, EntityOutput{}, fmt.Errorf("world_id and entity_id are required")
	}
	e, err := s.lore.GetEntity(ctx, input.WorldID, input.EntityID)
	if err != nil {
		return nil, EntityOutput{}, err
	}
	return nil, entityOutputFrom(*e), nil
}

func (s *Server) handleListEntities(ctx context.Context, req *sdk.CallToolRequest, input ListEntitiesInput) (*sdk.CallToolResult, ListEntitiesOutput, error) {
	if input.WorldID == "" {
		return nil, ListEntitiesOutput{}, fmt.Errorf("world_id is required")
	}
	entities, err := s.lore.ListEntities(ctx, input.WorldID, store.EntityFilter{
		Type:    input.Type,
		Subtype: input.Subtype,
		Tag:     input.Tag,
		Search:  input.Search,
	})
	if err != nil {
		return nil, ListEntitiesOutput{}, err
	}
	return nil, ListEntitiesOutput{Entities: entityOutputsFrom(entities)}, nil
}

func (s *Server) handleCreateEntity(ctx context.Context, req *sdk.CallToolRequest, input CreateEntityInput) (*sdk.CallToolResult, EntityOutput, error) {
	if input.WorldID == "" {
		return nil, EntityOutput{}, fmt.Errorf("world_id is required")
	}
	if input.Name == "" {
		return nil, EntityOutput{}, fmt.Errorf("name is required")
	}
	e, err := s.lore.CreateEntity(ctx, input.WorldID, lore.EntityCreate{
		Name:         input.Name,
		Type:         input.Type,
		Subtype:      input.Subtype,
		Aliases:      input.Aliases,
		Context:      input.Context,
		Summary:      input.Summary,
		Tags:         input.Tags,
		Source:       input.Source,
		SourceNoteID: input.SourceNoteID,
	})
	if err != nil {
		return nil, EntityOutput{}, err
	}
	return nil, entityOutputFrom(*e), nil
}

func (s *Server) handleUpdateEntity(ctx context.Context, req *sdk.CallToolRequest, input UpdateEntityInput) (*sdk.CallToolResult, EntityOutput, error) {
	if input.WorldID == "" || input.EntityID == "" {
		return nil, EntityOutput{}, fmt.Errorf("world_id and entity_id are required")
	}
	e, err := s.lore.UpdateEntity(ctx, input.WorldID, input.EntityID, lore.EntityUpdate{
		Name:    input.Name,
		Type:    input.Type,
		Subtype: input.Subtype,
		Aliases: input.Aliases,
		Context: input.Context,
		Summary: input.Summary,
		Tags:    input.Tags,
		Status:  input.Status,
		Source:  input.Source,
	})
	if err != nil {
		return nil, EntityOutput{}, err
	}
	return nil, entityOutputFrom(*e), nil
}

func (s *Server) handleDeleteEntity(ctx context.Context, req *sdk.CallToolRequest, input DeleteEntityInput) (*sdk.CallToolResult, DeletedOutput, error) {
	if input.WorldID == "" || input.EntityID == "" {
		return nil, DeletedOutput{}, fmt.Errorf("world_id and entity_id are required")
	}
	if err := s.lore.DeleteEntity(ctx, input.WorldID, input.EntityID); err != nil {
		return nil, DeletedOutput{}, err
	}
	return nil, DeletedOutput{ID: input.EntityID, Deleted: true}, nil
}

func (s *Server) handleCreateRelation(ctx context.Context, req *sdk.CallToolRequest, input CreateRelationInput) (*sdk.CallToolResult, RelationOutput, error) {
	if input.WorldID == "" {
		return nil, RelationOutput{}, fmt.Errorf("world_id is required")
	}
	r, err := s.lore.CreateRelation(ctx, input.WorldID, lore.RelationCreate{
		SourceEntityID: input.SourceEntityID,
		TargetEntityID: input.TargetEntityID,
		Type:           input.Type,
		Context:        input.Context,
		Weight:         input.Weight,
		Source:         input.Source,
		SourceNoteID:   input.SourceNoteID,
	})
	if err != nil {
		return nil, RelationOutput{}, err
	}
	return nil, relationOutputFrom(*r), nil
}

func (s *Server) handleListRelations(ctx context.Context, req *sdk.CallToolRequest, input ListRelationsInput) (*sdk.CallToolResult, ListRelationsOutput, error) {
	if input.WorldID == "" {
		return nil, ListRelationsOutput{}, fmt.Errorf("world_id is required")
	}
	relations, err := s.lore.ListRelations(ctx, input.WorldID, store.RelationFilter{
		EntityID: input.EntityID,
		Type:     input.Type,
	})
	if err != nil {
		return nil, ListRelationsOutput{}, err
	}
	return nil, ListRelationsOutput{Relations: relationOutputsFrom(relations)}, nil
}

func (s *Server) handleDeleteRelation(ctx context.Context, req *sdk.CallToolRequest, input DeleteRelationInput) (*sdk.CallToolResult, DeletedOutput, error) {
	if input.WorldID == "" || input.RelationID == "" {
		return nil, DeletedOutput{}, fmt.Errorf("world_id and relation_id are required")
	}
	if err := s.lore.DeleteRelation(ctx, input.WorldID, input.RelationID); err != nil {
		return nil, DeletedOutput{}, err
	}
	return nil, DeletedOutput{ID: input.RelationID, Deleted: true}, nil
}

func (s *Server) handleGetGraph(ctx context.Context, req *sdk.CallToolRequest, input GetGraphInput) (*sdk.CallToolResult, GraphOutput, error) {
	if input.WorldID == "" {
		return nil, GraphOutput{}, fmt.Errorf("world_id is required")
	}
	g, err := s.lore.Graph(ctx, input.WorldID, lore.GraphFilter{
		EntityTypes:   input.EntityTypes,
		RelationTypes: input.RelationTypes,
		FocusEntityID: input.FocusEntityID,
	})
	if err != nil {
		return nil, GraphOutput{}, err
	}
	return nil, GraphOutput{
		WorldID:   g.WorldID,
		Entities:  entityOutputsFrom(g.Entities),
		Relations: relationOutputsFrom(g.Relations),
	}, nil
}

func entityOutputFrom(e store.Entity) EntityOutput {
	return EntityOutput{
		ID:           e.ID,
		WorldID:      e.WorldID,
		Name:         e.Name,
		Type:         e.Type,
		Subtype:      e.Subtype,
		Aliases:      append([]string{}, e.Aliases...),
		Context:      e.Context,
		Summary:      e.Summary,
		Tags:         append([]string{}, e.Tags...),
		Status:       e.Status,
		Source:       e.Source,
		SourceNoteID: e.SourceNoteID,
		CreatedAt:    rfc3339(e.CreatedAt),
		UpdatedAt:    rfc3339(e.UpdatedAt),
	}
}

func entityOutputsFrom(entities []store.Entity) []EntityOutput {
	out := make([]EntityOutput, 0, len(entities))
	for _, e := range entities {
		out = append(out, entityOutputFrom(e))
	}
	return out
}

func relationOutputFrom(r store.Relation) RelationOutput {
	return RelationOutput{
		ID:             r.ID,
		WorldID:        r.WorldID,
		SourceEntityID: r.SourceEntityID,
		TargetEntityID: r.TargetEntityID,
		Type:           r.Type,
		Context:        r.Context,
		Weight:         r.Weight,
		Source:         r.Source,
		SourceNoteID:   r.SourceNoteID,
		CreatedAt:      rfc3339(r.CreatedAt),
		UpdatedAt:      rfc3339(r.UpdatedAt),
	}
}

func relationOutputsFrom(relations []store.Relation) []RelationOutput {
	out := make([]RelationOutput, 0, len(relations))
	for _, r := range relations {
		out = append(out, relationOutputFrom(r))
	}
	return out
}
