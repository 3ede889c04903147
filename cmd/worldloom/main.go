package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	root := &cobra.Command{
		Use:   "worldloom",
		Short: "Worldbuilding knowledge graphs with timeline replay",
	}
	root.Version = version
	root.SetVersionTemplate("{{.Version}}\n")
	root.AddCommand(initCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(apiCmd())
	root.AddCommand(worldsCmd())
	root.AddCommand(markersCmd())
	root.AddCommand(stateCmd())
	root.AddCommand(rebuildCmd())
	root.AddCommand(versionCmd())
	root.SetContext(ctx)

	err := root.Execute()
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}
