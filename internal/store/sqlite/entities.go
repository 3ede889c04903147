package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"worldloom/internal/store"
)

const entityColumns = `id, world_id, name, type, subtype, aliases, context, summary, tags, status, source, source_note_id, created_at, updated_at`

func (c *Client) CreateEntity(ctx context.Context, e store.Entity) error {
	aliases, err := marshalStrings(e.Aliases)
	if err != nil {
		return fmt.Errorf("marshaling aliases: %w", err)
	}
	tags, err := marshalStrings(e.Tags)
	if err != nil {
		return fmt.Errorf("marshaling tags: %w", err)
	}

	query := `
	INSERT INTO entities (` + entityColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = c.db.ExecContext(ctx, query,
		e.ID,
		e.WorldID,
		e.Name,
		e.Type,
		e.Subtype,
		aliases,
		e.Context,
		e.Summary,
		tags,
		e.Status,
		e.Source,
		e.SourceNoteID,
		formatTime(e.CreatedAt),
		formatTime(e.UpdatedAt),
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
	WHERE world_id = ? AND id = ?
	`

	e, err := scanEntity(c.db.QueryRowContext(ctx, query, worldID, id))
	if errors.Is(err, sql.ErrNoRows) {
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
	WHERE world_id = ?
	  AND (? = '' OR type = ?)
	  AND (? = '' OR subtype = ?)
	  AND (? = '' OR name LIKE '%' || ? || '%' OR aliases LIKE '%' || ? || '%')
	ORDER BY name ASC, id ASC
	`

	rows, err := c.db.QueryContext(ctx, query,
		worldID,
		f.Type, f.Type,
		f.Subtype, f.Subtype,
		f.Search, f.Search, f.Search,
	)
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
	aliases, err := marshalStrings(e.Aliases)
	if err != nil {
		return fmt.Errorf("marshaling aliases: %w", err)
	}
	tags, err := marshalStrings(e.Tags)
	if err != nil {
		return fmt.Errorf("marshaling tags: %w", err)
	}

	query := `
	UPDATE entities
	SET name = ?, type = ?, subtype = ?, aliases = ?, context = ?, summary = ?,
	    tags = ?, status = ?, source = ?, source_note_id = ?, updated_at = ?
	WHERE world_id = ? AND id = ?
	`

	res, err := c.db.ExecContext(ctx, query,
		e.Name,
		e.Type,
		e.Subtype,
		aliases,
		e.Context,
		e.Summary,
		tags,
		e.Status,
		e.Source,
		e.SourceNoteID,
		formatTime(e.UpdatedAt),
		e.WorldID,
		e.ID,
	)
	if err != nil {
		return fmt.Errorf("updating entity: %w", err)
	}
	return affectOne(res, "entity", e.ID)
}

func (c *Client) DeleteEntity(ctx context.Context, worldID, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM entities WHERE world_id = ? AND id = ?`, worldID, id)
	if err != nil {
		return fmt.Errorf("deleting entity: %w", err)
	}
	return affectOne(res, "entity", id)
}

func scanEntity(row rowScanner) (*store.Entity, error) {
	var e store.Entity
	var aliases, tags []byte
	var createdAt, updatedAt string

	err := row.Scan(
		&e.ID,
		&e.WorldID,
		&e.Name,
		&e.Type,
		&e.Subtype,
		&aliases,
		&e.Context,
		&e.Summary,
		&tags,
		&e.Status,
		&e.Source,
		&e.SourceNoteID,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if e.Aliases, err = unmarshalStrings(aliases); err != nil {
		return nil, err
	}
	if e.Tags, err = unmarshalStrings(tags); err != nil {
		return nil, err
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
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
