package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"worldloom/internal/store"
)

const relationColumns = `id, world_id, source_entity_id, target_entity_id, type, context, weight, source, source_note_id, created_at, updated_at`

func (c *Client) CreateRelation(ctx context.Context, r store.Relation) error {
	query := `
INSERT INTO relations (` + relationColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := c.pool.Exec(ctx, query,
		r.ID,
		r.WorldID,
		r.SourceEntityID,
		r.TargetEntityID,
		r.Type,
		r.Context,
		r.Weight,
		r.Source,
		r.SourceNoteID,
		r.CreatedAt,
		r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting relation: %w", err)
	}
	return nil
}

func (c *Client) GetRelation(ctx context.Context, worldID, id string) (*store.Relation, error) {
	query := `
SELECT ` + relationColumns + `
FROM relations
WHERE world_id = $1 AND id = $2`

	r, err := scanRelation(c.pool.QueryRow(ctx, query, worldID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("relation %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting relation: %w", err)
	}
	return r, nil
}

func (c *Client) ListRelations(ctx context.Context, worldID string, f store.RelationFilter) ([]store.Relation, error) {
	query := `
SELECT ` + relationColumns + `
FROM relations
WHERE world_id = $1
  AND ($2 = '' OR source_entity_id = $2 OR target_entity_id = $2)
  AND ($3 = '' OR type = $3)
ORDER BY created_at ASC, id ASC`

	rows, err := c.pool.Query(ctx, query, worldID, f.EntityID, f.Type)
	if err != nil {
		return nil, fmt.Errorf("listing relations: %w", err)
	}
	defer rows.Close()

	relations := []store.Relation{}
	for rows.Next() {
		r, err := scanRelation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning relation: %w", err)
		}
		relations = append(relations, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating relation rows: %w", err)
	}
	return relations, nil
}

func (c *Client) UpdateRelation(ctx context.Context, r store.Relation) error {
	query := `
UPDATE relations
SET source_entity_id = $1, target_entity_id = $2, type = $3, context = $4, weight = $5,
    source = $6, source_note_id = $7, updated_at = $8
WHERE world_id = $9 AND id = $10`

	ct, err := c.pool.Exec(ctx, query,
		r.SourceEntityID,
		r.TargetEntityID,
		r.Type,
		r.Context,
		r.Weight,
		r.Source,
		r.SourceNoteID,
		r.UpdatedAt,
		r.WorldID,
		r.ID,
	)
	if err != nil {
		return fmt.Errorf("updating relation: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("relation %s: %w", r.ID, store.ErrNotFound)
	}
	return nil
}

func (c *Client) DeleteRelation(ctx context.Context, worldID, id string) error {
	ct, err := c.pool.Exec(ctx, `DELETE FROM relations WHERE world_id = $1 AND id = $2`, worldID, id)
	if err != nil {
		return fmt.Errorf("deleting relation: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("relation %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func scanRelation(row rowScanner) (*store.Relation, error) {
	var r store.Relation
	err := row.Scan(
		&r.ID,
		&r.WorldID,
		&r.SourceEntityID,
		&r.TargetEntityID,
		&r.Type,
		&r.Context,
		&r.Weight,
		&r.Source,
		&r.SourceNoteID,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return &r, nil
}
