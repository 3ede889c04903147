package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"worldloom/internal/store"
)

func (c *Client) CreateWorld(ctx context.Context, w store.World) error {
	entityTypes, err := marshalStrings(w.EntityTypes)
	if err != nil {
		return fmt.Errorf("marshaling entity types: %w", err)
	}
	relationTypes, err := marshalStrings(w.RelationTypes)
	if err != nil {
		return fmt.Errorf("marshaling relation types: %w", err)
	}

	query := `
	INSERT INTO worlds (id, name, description, entity_types, relation_types, timeline_version, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = c.db.ExecContext(ctx, query,
		w.ID,
		w.Name,
		w.Description,
		entityTypes,
		relationTypes,
		w.TimelineVersion,
		formatTime(w.CreatedAt),
		formatTime(w.UpdatedAt),
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
	WHERE id = ?
	`

	w, err := scanWorld(c.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
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
	ORDER BY created_at DESC, id DESC
	`

	rows, err := c.db.QueryContext(ctx, query)
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
	entityTypes, err := marshalStrings(w.EntityTypes)
	if err != nil {
		return fmt.Errorf("marshaling entity types: %w", err)
	}
	relationTypes, err := marshalStrings(w.RelationTypes)
	if err != nil {
		return fmt.Errorf("marshaling relation types: %w", err)
	}

	query := `
	UPDATE worlds
	SET name = ?, description = ?, entity_types = ?, relation_types = ?, updated_at = ?
	WHERE id = ?
	`

	res, err := c.db.ExecContext(ctx, query,
		w.Name,
		w.Description,
		entityTypes,
		relationTypes,
		formatTime(w.UpdatedAt),
		w.ID,
	)
	if err != nil {
		return fmt.Errorf("updating world: %w", err)
	}
	return affectOne(res, "world", w.ID)
}

func (c *Client) DeleteWorld(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM worlds WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting world: %w", err)
	}
	return affectOne(res, "world", id)
}

func (c *Client) BumpTimelineVersion(ctx context.Context, worldID string) (int64, error) {
	query := `
	UPDATE worlds
	SET timeline_version = timeline_version + 1, updated_at = ?
	WHERE id = ?
	RETURNING timeline_version
	`

	var version int64
	err := c.db.QueryRowContext(ctx, query, formatTime(time.Now()), worldID).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
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

func scanWorld(row rowScanner) (*store.World, error) {
	var w store.World
	var entityTypes, relationTypes []byte
	var createdAt, updatedAt string

	err := row.Scan(
		&w.ID,
		&w.Name,
		&w.Description,
		&entityTypes,
		&relationTypes,
		&w.TimelineVersion,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if w.EntityTypes, err = unmarshalStrings(entityTypes); err != nil {
		return nil, err
	}
	if w.RelationTypes, err = unmarshalStrings(relationTypes); err != nil {
		return nil, err
	}
	if w.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if w.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &w, nil
}
