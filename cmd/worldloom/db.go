package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"worldloom/internal/lore"
	"worldloom/internal/store"
	"worldloom/internal/store/postgres"
	"worldloom/internal/store/sqlite"
	"worldloom/internal/timeline"
	"worldloom/internal/world"
)

const configFile = "worldloom.yaml"

// openStore picks the backend from the DSN scheme and prepares the schema.
// The DDL is idempotent, so a fresh database works without a separate
// migration step.
func openStore(ctx context.Context, dsn string) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
		st, err = sqlite.New(ctx, dsn)
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		st, err = postgres.New(ctx, dsn)
	default:
		return nil, fmt.Errorf("database dsn must use the sqlite:// or postgres:// scheme")
	}
	if err != nil {
		return nil, err
	}
	if err := st.EnsureSchema(ctx); err != nil {
		_ = st.Close(ctx)
		return nil, err
	}
	return st, nil
}

func newServices(st store.Store, logger *slog.Logger) (*world.Service, *lore.Service, *timeline.Service) {
	tl := timeline.NewService(st, logger)
	return world.NewService(st, tl, logger), lore.NewService(st, tl, logger), tl
}
