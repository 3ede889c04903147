package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"worldloom/internal/config"
	"worldloom/internal/world"
)

func worldsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worlds",
		Short: "Manage worlds from the CLI",
	}
	cmd.AddCommand(worldsListCmd())
	cmd.AddCommand(worldsCreateCmd())
	return cmd
}

func worldsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List worlds",
		Args:  cobra.NoArgs,
		RunE:  runWorldsList,
	}
}

func runWorldsList(cmd *cobra.Command, args []string) error {
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

	worlds, _, _ := newServices(st, newLogger())
	list, err := worlds.List(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(os.Stdout, "No worlds found.")
		return nil
	}

	for _, w := range list {
		fmt.Fprintf(os.Stdout, "%s  %s\n", w.ID, w.Name)
	}
	return nil
}

func worldsCreateCmd() *cobra.Command {
	var name string
	var description string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a world",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(name) == "" {
				return fmt.Errorf("--name is required")
			}
			return runWorldsCreate(cmd, name, description)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "World name")
	cmd.Flags().StringVar(&description, "description", "", "World description")
	return cmd
}

func runWorldsCreate(cmd *cobra.Command, name, description string) error {
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

	worlds, _, _ := newServices(st, newLogger())
	created, err := worlds.Create(ctx, world.WorldCreate{
		Name:          name,
		Description:   description,
		EntityTypes:   cfg.Defaults.EntityTypes,
		RelationTypes: cfg.Defaults.RelationTypes,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "Created world %s (%s)\n", created.Name, created.ID)
	return nil
}
