package mcp

import (
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// DeletedOutput acknowledges a successful delete.
type DeletedOutput struct {
	ID      string `json:"id" jsonschema:"id of the deleted record"`
	Deleted bool   `json:"deleted"`
}

func rfc3339(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func (s *Server) registerTools() {
	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "create_world",
		Description: "Create a new world with optional type vocabularies",
	}, s.handleCreateWorld)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "list_worlds",
		Description: "List all worlds, newest first",
	}, s.handleListWorlds)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "get_entity",
		Description: "Retrieve one entity from a world's canonical graph",
	}, s.handleGetEntity)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "list_entities",
		Description: "List a world's entities with optional filters",
	}, s.handleListEntities)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "create_entity",
		Description: "Create a canonical entity",
	}, s.handleCreateEntity)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "update_entity",
		Description: "Update fields of a canonical entity",
	}, s.handleUpdateEntity)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "delete_entity",
		Description: "Delete a canonical entity",
	}, s.handleDeleteEntity)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "create_relation",
		Description: "Create a typed, weighted relation between two entities",
	}, s.handleCreateRelation)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "list_relations",
		Description: "List a world's relations with optional filters",
	}, s.handleListRelations)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "delete_relation",
		Description: "Delete a relation",
	}, s.handleDeleteRelation)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "get_graph",
		Description: "Return the canonical knowledge graph, optionally filtered by types or focused on one entity",
	}, s.handleGetGraph)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "list_markers",
		Description: "List a world's timeline markers in replay order",
	}, s.handleListMarkers)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "create_marker",
		Description: "Create a timeline marker, optionally with inline operations",
	}, s.handleCreateMarker)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "update_marker",
		Description: "Update fields of a timeline marker",
	}, s.handleUpdateMarker)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "reposition_marker",
		Description: "Move a marker to a new timeline position or change its placement",
	}, s.handleRepositionMarker)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "delete_marker",
		Description: "Delete a timeline marker and its operations",
	}, s.handleDeleteMarker)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "create_operation",
		Description: "Attach a mutation operation to a marker",
	}, s.handleCreateOperation)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "update_operation",
		Description: "Update an operation's type, target, payload, or order",
	}, s.handleUpdateOperation)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "delete_operation",
		Description: "Delete an operation from a marker",
	}, s.handleDeleteOperation)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "get_world_state",
		Description: "Reconstruct the world state at a marker (or the timeline head)",
	}, s.handleGetWorldState)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "rebuild_timeline",
		Description: "Rebuild a world's timeline snapshots (gap-fill or full)",
	}, s.handleRebuildTimeline)
}
