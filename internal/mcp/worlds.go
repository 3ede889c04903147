package mcp

import (
	"context"
	"fmt"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"worldloom/internal/store"
	"worldloom/internal/world"
)

type CreateWorldInput struct {
	Name          string   `json:"name" jsonschema:"world name"`
	Description   string   `json:"description,omitempty" jsonschema:"optional description"`
	EntityTypes   []string `json:"entity_types,omitempty" jsonschema:"entity type vocabulary, built-in defaults when empty"`
	RelationTypes []string `json:"relation_types,omitempty" jsonschema:"relation type vocabulary, built-in defaults when empty"`
}

type ListWorldsInput struct{}

type WorldOutput struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Description     string   `json:"description,omitempty"`
	EntityTypes     []string `json:"entity_types"`
	RelationTypes   []string `json:"relation_types"`
	TimelineVersion int64    `json:"timeline_version" jsonschema:"change counter bumped by every timeline or canonical mutation"`
	CreatedAt       string   `json:"created_at" jsonschema:"RFC 3339 timestamp"`
	UpdatedAt       string   `json:"updated_at" jsonschema:"RFC 3339 timestamp"`
}

type ListWorldsOutput struct {
	Worlds []WorldOutput `json:"worlds"`
}

func (s *Server) handleCreateWorld(ctx context.Context, req *sdk.CallToolRequest, input CreateWorldInput) (*sdk.CallToolResult, WorldOutput, error) {
	if input.Name == "" {
		return nil, WorldOutput{}, fmt.Errorf("name is required")
	}
	w, err := s.worlds.Create(ctx, world.WorldCreate{
		Name:          input.Name,
		Description:   input.Description,
		EntityTypes:   input.EntityTypes,
		RelationTypes: input.RelationTypes,
	})
	if err != nil {
		return nil, WorldOutput{}, err
	}
	return nil, worldOutputFrom(*w), nil
}

func (s *Server) handleListWorlds(ctx context.Context, req *sdk.CallToolRequest, input ListWorldsInput) (*sdk.CallToolResult, ListWorldsOutput, error) {
	worlds, err := s.worlds.List(ctx)
	if err != nil {
		return nil, ListWorldsOutput{}, err
	}
	out := make([]WorldOutput, 0, len(worlds))
	for _, w := range worlds {
		out = append(out, worldOutputFrom(w))
	}
	return nil, ListWorldsOutput{Worlds: out}, nil
}

func worldOutputFrom(w store.World) WorldOutput {
	return WorldOutput{
		ID:              w.ID,
		Name:            w.Name,
		Description:     w.Description,
		EntityTypes:     append([]string{}, w.EntityTypes...),
		RelationTypes:   append([]string{}, w.RelationTypes...),
		TimelineVersion: w.TimelineVersion,
		CreatedAt:       rfc3339(w.CreatedAt),
		UpdatedAt:       rfc3339(w.UpdatedAt),
	}
}
