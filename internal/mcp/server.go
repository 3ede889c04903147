// Package mcp exposes the world, lore, and timeline services as MCP tools.
// Tool inputs and outputs are flat JSON structs; timestamps travel as RFC
// 3339 strings and operation payloads as plain JSON objects.
package mcp

import (
	"context"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"worldloom/internal/lore"
	"worldloom/internal/timeline"
	"worldloom/internal/world"
)

type Server struct {
	worlds   *world.Service
	lore     *lore.Service
	timeline *timeline.Service
	mcp      *sdk.Server
}

func NewServer(worlds *world.Service, lore *lore.Service, timeline *timeline.Service, version string) *Server {
	s := &Server{
		worlds:   worlds,
		lore:     lore,
		timeline: timeline,
		mcp: sdk.NewServer(&sdk.Implementation{
			Name:    "worldloom",
			Version: version,
		}, nil),
	}
	s.registerTools()
	return s
}

func (s *Server) Run(ctx context.Context, transport sdk.Transport) error {
	return s.mcp.Run(ctx, transport)
}
