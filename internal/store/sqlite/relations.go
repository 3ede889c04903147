package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"worldloom/internal/store"
)

const relationColumns = `id, world_id, source_entity_id, target_entity_id, type, context, weight, source, source_note_id, created_at, updated_at`

func (c *Client) CreateRelation(ctx context.Context, r store.Relation) error {
	query := `
	INSERT INTO relations (` + relationColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.ExecContext(ctx, query,
		r.ID,
		r.WorldID,
		r.SourceEntityID,
		r.TargetEntityID,
		r.Type,
		r.Context,
		r.Weight,
		r.Source,
		r.SourceNoteID,
		formatTime(r.CreatedAt),
		formatTime(r.UpdatedAt),
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
	WHERE world_id = ? AND id = ?
	`

	r, err := scanRelation(c.db.QueryRowContext(ctx, query, worldID, id))
	if errors.Is(err, sql.ErrNoRows) {
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
	WHERE world_id = ?
	  AND (? = '' OR source_entity_id = ? OR target_entity_id = ?)
	  AND (? = '' OR type = ?)
	ORDER BY created_at ASC, id ASC
	`

	rows, err := c.db.QueryContext(ctx, query,
		worldID,
		f.EntityID, f.EntityID, f.EntityID,
		f.Type, f.Type,
	)
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
	SET source_entity_id = ?, target_entity_id = ?, type = ?, context = ?, weight = ?,
	    source = ?, source_note_id = ?, updated_at = ?
	WHERE world_id = ? AND id = ?
	`

	res, err := c.db.ExecContext(ctx, query,
		r.SourceEntityID,
		r.TargetEntityID,
		r.Type,
		r.Context,
		r.Weight,
		r.Source,
		r.SourceNoteID,
		formatTime(r.UpdatedAt),
		r.WorldID,
		r.ID,
	)
	if err != nil {
		return fmt.Errorf("updating relation: %w", err)
	}
	return affectOne(res, "relation", r.ID)
}

func (c *Client) DeleteRelation(ctx context.Context, worldID, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM relations WHERE world_id = ? AND id = ?`, worldID, id)
	if err != nil {
		return fmt.Errorf("deleting relation: %w", err)
	}
	return affectOne(res, "relation", id)
}

func scanRelation(row rowScanner) (*store.Relation, error) {
	var r store.Relation
	var createdAt, updatedAt string

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
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}
