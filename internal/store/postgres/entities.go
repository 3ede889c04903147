package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"worldloom/internal/store"
)

const entityColumns = `id, world_id, name, type, subtype, aliases, context, summary, tags, status, source, source_note_id, created_at, updated_at`

func (c *Client) CreateEntity(ctx context.Context, e store.Entity) error {
	query := `
INSERT INTO entities (` + entityColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := c.pool.Exec(ctx, query,
		e.ID,
		e.WorldID,
		e.Name,
		e.Type,
		e.Subtype,
		stringSlice(e.Aliases),
		e.Context,
		e.Summary,
		stringSlice(e.Tags),
		e.Status,
		e.Source,
		e.SourceNoteID,
		e.CreatedAt,
		e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting entity: %w", err)
	}
	return nil
}

func (c *Client) GetEntity(ctx context.Context, worldID, id string) (*store.Entity, error) {
	query := `
SELECT ` + entityColumns + `
FROM entities
WHERE world_id = $1 AND id = $2`

	e, err := scanEntity(c.pool.QueryRow(ctx, query, worldID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("entity %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting entity: %w", err)
	}
	return e, nil
}

func (c *Client) ListEntities(ctx context.Context, worldID string, f store.EntityFilter) ([]store.Entity, error) {
	query := `
SELECT ` + entityColumns + `
FROM entities
WHERE world_id = $1
  AND ($2 = '' OR type = $2)
  AND ($3 = '' OR subtype = $3)
  AND ($4 = '' OR name ILIKE '%' || $4 || '%' OR array_to_string(aliases, ' ') ILIKE '%' || $4 || '%')
ORDER BY name ASC, id ASC`

	rows, err := c.pool.Query(ctx, query, worldID, f.Type, f.Subtype, f.Search)
	if err != nil {
		return nil, fmt.Errorf("listing entities: %w", err)
	}
	defer rows.Close()

	entities := []store.Entity{}
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning entity: %w", err)
		}
		if f.Tag != "" && !containsTag(e.Tags, f.Tag) {
			continue
		}
		entities = append(entities, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entity rows: %w", err)
	}
	return entities, nil
}

func (c *Client) UpdateEntity(ctx context.Context, e store.Entity) error {
	query := `
UPDATE entities
SET name = $1, type = $2, subtype = $3, aliases = $4, context = $5, summary = $6,
    tags = $7, status = $8, source = $9, source_note_id = $10, updated_at = $11
WHERE world_id = $12 AND id = $13`

	ct, err := c.pool.Exec(ctx, query,
		e.Name,
		e.Type,
		e.Subtype,
		stringSlice(e.Aliases),
		e.Context,
		e.Summary,
		stringSlice(e.Tags),
		e.Status,
		e.Source,
		e.SourceNoteID,
		e.UpdatedAt,
		e.WorldID,
		e.ID,
	)
	if err != nil {
		return fmt.Errorf("updating entity: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("entity %s: %w", e.ID, store.ErrNotFound)
	}
	return nil
}

func (c *Client) DeleteEntity(ctx context.Context, worldID, id string) error {
	ct, err := c.pool.Exec(ctx, `DELETE FROM entities WHERE world_id = $1 AND id = $2`, worldID, id)
	if err != nil {
		return fmt.Errorf("deleting entity: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("entity %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func scanEntity(row rowScanner) (*store.Entity, error) {
	var e store.Entity
	err := row.Scan(
		&e.ID,
		&e.WorldID,
		&e.Name,
		&e.Type,
		&e.Subtype,
		&e.Aliases,
		&e.Context,
		&e.Summary,
		&e.Tags,
		&e.Status,
		&e.Source,
		&e.SourceNoteID,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	if e.Aliases == nil {
		e.Aliases = []string{}
	}
	if e.Tags == nil {
		e.Tags = []string{}
	}
	return &e, nil
}

func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}
