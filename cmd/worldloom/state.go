package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"worldloom/internal/config"
)

func stateCmd() *cobra.Command {
	var markerID string
	cmd := &cobra.Command{
		Use:   "state <world-id>",
		Short: "Render the replayed world state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runState(cmd, args[0], markerID)
		},
	}
	cmd.Flags().StringVar(&markerID, "marker", "", "Timeline marker to replay through (default: head)")
	return cmd
}

func runState(cmd *cobra.Command, worldID, markerID string) error {
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
	state, err := tl.GetState(ctx, worldID, markerID)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "World: %s\n", state.World.Name)
	if state.MarkerID != "" {
		fmt.Fprintf(os.Stdout, "Marker: %s (%d applied)\n", state.MarkerID, state.AppliedMarkerCount)
	} else {
		fmt.Fprintf(os.Stdout, "Head state (%d markers applied)\n", state.AppliedMarkerCount)
	}
	if state.Note != "" {
		fmt.Fprintf(os.Stdout, "Note: %s\n", state.Note)
	}
	fmt.Fprintln(os.Stdout, "")

	if len(state.Entities) == 0 {
		fmt.Fprintln(os.Stdout, "No entities.")
		return nil
	}

	// Records gone at this point are listed with an x so editors can still
	// see what the timeline removed.
	fmt.Fprintln(os.Stdout, "Entities:")
	for _, e := range state.Entities {
		mark := " "
		if !e.ExistsAtMarker {
			mark = "x"
		}
		fmt.Fprintf(os.Stdout, "  [%s] %s (%s) %s\n", mark, e.Name, e.Type, e.Status)
	}

	if len(state.Relations) > 0 {
		fmt.Fprintln(os.Stdout, "Relations:")
		for _, r := range state.Relations {
			mark := " "
			if !r.ExistsAtMarker {
				mark = "x"
			}
			fmt.Fprintf(os.Stdout, "  [%s] %s -%s-> %s\n", mark, r.SourceEntityID, r.Type, r.TargetEntityID)
		}
	}

	if len(state.Skipped) > 0 {
		fmt.Fprintln(os.Stdout, "Skipped operations:")
		for _, sk := range state.Skipped {
			fmt.Fprintf(os.Stdout, "  %s: %s\n", sk.OperationID, sk.Reason)
		}
	}
	return nil
}
