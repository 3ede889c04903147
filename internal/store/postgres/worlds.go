package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"worldloom/internal/store"
)

func (c *Client) CreateWorld(ctx context.Context, w store.World) error {
	query := `
INSERT INTO worlds (id, name, description, entity_types, relation_types, timeline_version, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := c.pool.Exec(ctx, query,
		w.ID,
		w.Name,
		w.Description,
		stringSlice(w.EntityTypes),
		stringSlice(w.RelationTypes),
		w.TimelineVersion,
		w.CreatedAt,
		w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting world: %w", err)
	}
	return nil
}

func (c *Client) GetWorld(ctx context.Context, id string) (*store.World, error) {
	query := `
SELECT id, name, description, entity_types, relation_types, timeline_version, created_at, updated_at
FROM worlds
WHERE id = $1`

	w, err := scanWorld(c.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("world %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting world: %w", err)
	}
	return w, nil
}

func (c *Client) ListWorlds(ctx context.Context) ([]store.World, error) {
	query := `
SELECT id, name, description, entity_types, relation_types, timeline_version, created_at, updated_at
FROM worlds
ORDER BY created_at DESC, id DESC`

	rows, err := c.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing worlds: %w", err)
	}
	defer rows.Close()

	worlds := []store.World{}
	for rows.Next() {
		w, err := scanWorld(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning world: %w", err)
		}
		worlds = append(worlds, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating world rows: %w", err)
	}
	return worlds, nil
}

func (c *Client) UpdateWorld(ctx context.Context, w store.World) error {
	query := `
UPDATE worlds
SET name = $1, description = $2, entity_types = $3, relation_types = $4, updated_at = $5
WHERE id = $6`

	ct, err := c.pool.Exec(ctx, query,
		w.Name,
		w.Description,
		stringSlice(w.EntityTypes),
		stringSlice(w.RelationTypes),
		w.UpdatedAt,
		w.ID,
	)
	if err != nil {
		return fmt.Errorf("updating world: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("world %s: %w", w.ID, store.ErrNotFound)
	}
	return nil
}

func (c *Client) DeleteWorld(ctx context.Context, id string) error {
	ct, err := c.pool.Exec(ctx, `DELETE FROM worlds WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting world: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("world %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (c *Client) BumpTimelineVersion(ctx context.Context, worldID string) (int64, error) {
	query := `
UPDATE worlds
SET timeline_version = timeline_version + 1, updated_at = $1
WHERE id = $2
RETURNING timeline_version`

	var version int64
	err := c.pool.QueryRow(ctx, query, time.Now().UTC(), worldID).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("world %s: %w", worldID, store.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("bumping timeline version: %w", err)
	}
	return version, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// stringSlice keeps TEXT[] columns non-null for empty Go slices.
func stringSlice(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func scanWorld(row rowScanner) (*store.World, error) {
	var w store.World
	err := row.Scan(
		&w.ID,
		&w.Name,
		&w.Description,
		&w.EntityTypes,
		&w.RelationTypes,
		&w.TimelineVersion,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	w.CreatedAt = w.CreatedAt.UTC()
	w.UpdatedAt = w.UpdatedAt.UTC()
	if w.EntityTypes == nil {
		w.EntityTypes = []string{}
	}
	if w.RelationTypes == nil {
		w.RelationTypes = []string{}
	}
	return &w, nil
}
