package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"worldloom/internal/store"
)

const markerColumns = `id, world_id, title, summary, marker_kind, placement_status, date_label, date_sort_value, sort_key, source, source_note_id, created_at, updated_at`

// CreateMarker inserts the marker and its inline operations in one
// transaction so a half-created change set never becomes visible.
func (c *Client) CreateMarker(ctx context.Context, m store.Marker, ops []store.Operation) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	markerQuery := `
	INSERT INTO timeline_markers (` + markerColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var dateSortValue sql.NullFloat64
	if m.DateSortValue != nil {
		dateSortValue = sql.NullFloat64{Float64: *m.DateSortValue, Valid: true}
	}

	_, err = tx.ExecContext(ctx, markerQuery,
		m.ID,
		m.WorldID,
		m.Title,
		m.Summary,
		m.MarkerKind,
		m.PlacementStatus,
		m.DateLabel,
		dateSortValue,
		m.SortKey,
		m.Source,
		m.SourceNoteID,
		formatTime(m.CreatedAt),
		formatTime(m.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting marker: %w", err)
	}

	opQuery := `
	INSERT INTO timeline_operations (` + operationColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, op := range ops {
		_, err = tx.ExecContext(ctx, opQuery,
			op.ID,
			op.WorldID,
			op.MarkerID,
			op.OpType,
			op.TargetKind,
			op.TargetID,
			payloadText(op.Payload),
			op.OrderIndex,
			formatTime(op.CreatedAt),
			formatTime(op.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("inserting marker operation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing marker transaction: %w", err)
	}
	return nil
}

func (c *Client) GetMarker(ctx context.Context, worldID, id string) (*store.Marker, error) {
	query := `
	SELECT ` + markerColumns + `
	FROM timeline_markers
	WHERE world_id = ? AND id = ?
	`

	m, err := scanMarker(c.db.QueryRowContext(ctx, query, worldID, id))
	if errors.Is(err, sql.ErrNoRows) {
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
	WHERE world_id = ?
	ORDER BY sort_key ASC, created_at ASC, id ASC
	`

	rows, err := c.db.QueryContext(ctx, query, worldID)
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
	var dateSortValue sql.NullFloat64
	if m.DateSortValue != nil {
		dateSortValue = sql.NullFloat64{Float64: *m.DateSortValue, Valid: true}
	}

	query := `
	UPDATE timeline_markers
	SET title = ?, summary = ?, marker_kind = ?, placement_status = ?, date_label = ?,
	    date_sort_value = ?, sort_key = ?, source_note_id = ?, updated_at = ?
	WHERE world_id = ? AND id = ?
	`

	res, err := c.db.ExecContext(ctx, query,
		m.Title,
		m.Summary,
		m.MarkerKind,
		m.PlacementStatus,
		m.DateLabel,
		dateSortValue,
		m.SortKey,
		m.SourceNoteID,
		formatTime(m.UpdatedAt),
		m.WorldID,
		m.ID,
	)
	if err != nil {
		return fmt.Errorf("updating marker: %w", err)
	}
	return affectOne(res, "marker", m.ID)
}

func (c *Client) DeleteMarker(ctx context.Context, worldID, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM timeline_markers WHERE world_id = ? AND id = ?`, worldID, id)
	if err != nil {
		return fmt.Errorf("deleting marker: %w", err)
	}
	return affectOne(res, "marker", id)
}

func (c *Client) MaxSortKey(ctx context.Context, worldID string) (float64, error) {
	var max float64
	err := c.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sort_key), 0) FROM timeline_markers WHERE world_id = ?`,
		worldID,
	).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("querying max sort key: %w", err)
	}
	return max, nil
}

func scanMarker(row rowScanner) (*store.Marker, error) {
	var m store.Marker
	var dateSortValue sql.NullFloat64
	var createdAt, updatedAt string

	err := row.Scan(
		&m.ID,
		&m.WorldID,
		&m.Title,
		&m.Summary,
		&m.MarkerKind,
		&m.PlacementStatus,
		&m.DateLabel,
		&dateSortValue,
		&m.SortKey,
		&m.Source,
		&m.SourceNoteID,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if dateSortValue.Valid {
		v := dateSortValue.Float64
		m.DateSortValue = &v
	}
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if m.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}
