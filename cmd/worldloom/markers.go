package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"worldloom/internal/config"
)

func markersCmd() *cobra.Command {
	var withOps bool
	cmd := &cobra.Command{
		Use:   "markers <world-id>",
		Short: "List a world's timeline markers in replay order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMarkers(cmd, args[0], withOps)
		},
	}
	cmd.Flags().BoolVar(&withOps, "ops", false, "Include each marker's operations")
	return cmd
}

func runMarkers(cmd *cobra.Command, worldID string, withOps bool) error {
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
	markers, err := tl.ListMarkers(ctx, worldID, withOps)
	if err != nil {
		return err
	}
	if len(markers) == 0 {
		fmt.Fprintln(os.Stdout, "No markers found.")
		return nil
	}

	for i, m := range markers {
		line := fmt.Sprintf("[%d] %s (%s, %s)", i+1, m.Title, m.MarkerKind, m.PlacementStatus)
		if m.DateLabel != "" {
			line += " @ " + m.DateLabel
		}
		fmt.Fprintln(os.Stdout, line)
		fmt.Fprintf(os.Stdout, "    id: %s  sort_key: %g\n", m.ID, m.SortKey)
		for _, op := range m.Operations {
			fmt.Fprintf(os.Stdout, "    - %s %s %s\n", op.OpType, op.TargetKind, op.TargetID)
		}
	}
	return nil
}
