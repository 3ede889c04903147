package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"worldloom/internal/store"
)

const markerColumns = `id, world_id, title, summary, marker_kind, placement_status, date_label, date_sort_value, sort_key, source, source_note_id, created_at, updated_at`

// CreateMarker inserts the marker and its inline operations in one
// transaction so a half-created change set never becomes visible.
func (c *Client) CreateMarker(ctx context.Context, m store.Marker, ops []store.Operation) error {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	markerQuery := `
INSERT INTO timeline_markers (` + markerColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err = tx.Exec(ctx, markerQuery,
		m.ID,
		m.WorldID,
		m.Title,
		m.Summary,
		m.MarkerKind,
		m.PlacementStatus,
		m.DateLabel,
		m.DateSortValue,
		m.SortKey,
		m.Source,
		m.SourceNoteID,
		m.CreatedAt,
		m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting marker: %w", err)
	}

	opQuery := `
INSERT INTO timeline_operations (` + operationColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	for _, op := range ops {
		_, err = tx.Exec(ctx, opQuery,
			op.ID,
			op.WorldID,
			op.MarkerID,
			op.OpType,
			op.TargetKind,
			op.TargetID,
			payloadJSON(op.Payload),
			op.OrderIndex,
			op.CreatedAt,
			op.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting marker operation: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing marker transaction: %w", err)
	}
	return nil
}

func (c *Client) GetMarker(ctx context.Context, worldID, id string) (*store.Marker, error) {
	query := `
SELECT ` + markerColumns + `
FROM timeline_markers
WHERE world_id = $1 AND id = $2`

	m, err := scanMarker(c.pool.QueryRow(ctx, query, worldID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("marker %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting marker: %w", err)
	}
	return m, nil
}

func (c *Client) ListMarkers(ctx context.Context, worldID string) ([]store.Marker, error) {
	query := `
SELECT ` + markerColumns + `
FROM timeline_markers
WHERE world_id = $1
ORDER BY sort_key ASC, created_at ASC, id ASC`

	rows, err := c.pool.Query(ctx, query, worldID)
	if err != nil {
		return nil, fmt.Errorf("listing markers: %w", err)
	}
	defer rows.Close()

	markers := []store.Marker{}
	for rows.Next() {
		m, err := scanMarker(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning marker: %w", err)
		}
		markers = append(markers, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating marker rows: %w", err)
	}
	return markers, nil
}

func (c *Client) UpdateMarker(ctx context.Context, m store.Marker) error {
	query := `
UPDATE timeline_markers
SET title = $1, summary = $2, marker_kind = $3, placement_status = $4, date_label = $5,
    date_sort_value = $6, sort_key = $7, source_note_id = $8, updated_at = $9
WHERE world_id = $10 AND id = $11`

	ct, err := c.pool.Exec(ctx, query,
		m.Title,
		m.Summary,
		m.MarkerKind,
		m.PlacementStatus,
		m.DateLabel,
		m.DateSortValue,
		m.SortKey,
		m.SourceNoteID,
		m.UpdatedAt,
		m.WorldID,
		m.ID,
	)
	if err != nil {
		return fmt.Errorf("updating marker: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("marker %s: %w", m.ID, store.ErrNotFound)
	}
	return nil
}

func (c *Client) DeleteMarker(ctx context.Context, worldID, id string) error {
	ct, err := c.pool.Exec(ctx, `DELETE FROM timeline_markers WHERE world_id = $1 AND id = $2`, worldID, id)
	if err != nil {
		return fmt.Errorf("deleting marker: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("marker %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (c *Client) MaxSortKey(ctx context.Context, worldID string) (float64, error) {
	var max float64
	err := c.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(sort_key), 0) FROM timeline_markers WHERE world_id = $1`,
		worldID,
	).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("querying max sort key: %w", err)
	}
	return max, nil
}

func scanMarker(row rowScanner) (*store.Marker, error) {
	var m store.Marker
	err := row.Scan(
		&m.ID,
		&m.WorldID,
		&m.Title,
		&m.Summary,
		&m.MarkerKind,
		&m.PlacementStatus,
		&m.DateLabel,
		&m.DateSortValue,
		&m.SortKey,
		&m.Source,
		&m.SourceNoteID,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()
	return &m, nil
}
