package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"worldloom/internal/store"
)

const operationColumns = `id, world_id, marker_id, op_type, target_kind, target_id, payload, order_index, created_at, updated_at`

func (c *Client) CreateOperation(ctx context.Context, op store.Operation) error {
	query := `
	INSERT INTO timeline_operations (` + operationColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.ExecContext(ctx, query,
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
		return fmt.Errorf("inserting operation: %w", err)
	}
	return nil
}

func (c *Client) GetOperation(ctx context.Context, worldID, markerID, id string) (*store.Operation, error) {
	query := `
	SELECT ` + operationColumns + `
	FROM timeline_operations
	WHERE world_id = ? AND marker_id = ? AND id = ?
	`

	op, err := scanOperation(c.db.QueryRowContext(ctx, query, worldID, markerID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("operation %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting operation: %w", err)
	}
	return op, nil
}

func (c *Client) ListOperations(ctx context.Context, worldID, markerID string) ([]store.Operation, error) {
	query := `
	SELECT ` + operationColumns + `
	FROM timeline_operations
	WHERE world_id = ? AND marker_id = ?
	ORDER BY order_index ASC, created_at ASC, id ASC
	`
	return c.queryOperations(ctx, query, worldID, markerID)
}

// ListWorldOperations returns every operation in the world grouped by marker,
// each marker's operations in application order. Callers interleave the
// groups with the marker ordering to obtain the global replay feed.
func (c *Client) ListWorldOperations(ctx context.Context, worldID string) ([]store.Operation, error) {
	query := `
	SELECT ` + operationColumns + `
	FROM timeline_operations
	WHERE world_id = ?
	ORDER BY marker_id ASC, order_index ASC, created_at ASC, id ASC
	`
	return c.queryOperations(ctx, query, worldID)
}

func (c *Client) queryOperations(ctx context.Context, query string, args ...any) ([]store.Operation, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	defer rows.Close()

	ops := []store.Operation{}
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning operation: %w", err)
		}
		ops = append(ops, *op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating operation rows: %w", err)
	}
	return ops, nil
}

func (c *Client) UpdateOperation(ctx context.Context, op store.Operation) error {
	query := `
	UPDATE timeline_operations
	SET op_type = ?, target_kind = ?, target_id = ?, payload = ?, order_index = ?, updated_at = ?
	WHERE world_id = ? AND marker_id = ? AND id = ?
	`

	res, err := c.db.ExecContext(ctx, query,
		op.OpType,
		op.TargetKind,
		op.TargetID,
		payloadText(op.Payload),
		op.OrderIndex,
		formatTime(op.UpdatedAt),
		op.WorldID,
		op.MarkerID,
		op.ID,
	)
	if err != nil {
		return fmt.Errorf("updating operation: %w", err)
	}
	return affectOne(res, "operation", op.ID)
}

func (c *Client) DeleteOperation(ctx context.Context, worldID, markerID, id string) error {
	query := `DELETE FROM timeline_operations WHERE world_id = ? AND marker_id = ? AND id = ?`
	res, err := c.db.ExecContext(ctx, query, worldID, markerID, id)
	if err != nil {
		return fmt.Errorf("deleting operation: %w", err)
	}
	return affectOne(res, "operation", id)
}

func scanOperation(row rowScanner) (*store.Operation, error) {
	var op store.Operation
	var payload []byte
	var createdAt, updatedAt string

	err := row.Scan(
		&op.ID,
		&op.WorldID,
		&op.MarkerID,
		&op.OpType,
		&op.TargetKind,
		&op.TargetID,
		&payload,
		&op.OrderIndex,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(payload) > 0 {
		op.Payload = append([]byte(nil), payload...)
	} else {
		op.Payload = []byte("{}")
	}
	if op.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if op.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &op, nil
}
