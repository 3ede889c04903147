package main

import (
	"github.com/spf13/cobra"

	"worldloom/internal/config"
	"worldloom/internal/mcp"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server over stdio",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.LoadProjectConfig(configFile)
	if err != nil {
		return err
	}

	st, err := openStore(ctx, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer st.Close(ctx)

	worlds, loreSvc, tl := newServices(st, newLogger())

	server := mcp.NewServer(worlds, loreSvc, tl, version)
	return server.Run(ctx, &sdk.StdioTransport{})
}
