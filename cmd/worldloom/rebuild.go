package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"worldloom/internal/config"
)

func rebuildCmd() *cobra.Command {
	var full bool
	cmd := &cobra.Command{
		Use:   "rebuild <world-id>",
		Short: "Rebuild the timeline snapshot cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRebuild(cmd, args[0], full)
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "Recompute every snapshot instead of filling gaps")
	return cmd
}

func runRebuild(cmd *cobra.Command, worldID string, full bool) error {
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

	_, _, tl := newServices(st, newLogger())
	res, err := tl.Rebuild(ctx, worldID, full)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "Rebuilt %d snapshots over %d placed markers.\n", res.SnapshotCount, res.MarkerCount)
	return nil
}
