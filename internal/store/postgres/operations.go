package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"worldloom/internal/store"
)

const operationColumns = `id, world_id, marker_id, op_type, target_kind, target_id, payload, order_index, created_at, updated_at`

func (c *Client) CreateOperation(ctx context.Context, op store.Operation) error {
	query := `
INSERT INTO timeline_operations (` + operationColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := c.pool.Exec(ctx, query,
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
		return fmt.Errorf("inserting operation: %w", err)
	}
	return nil
}

func (c *Client) GetOperation(ctx context.Context, worldID, markerID, id string) (*store.Operation, error) {
	query := `
SELECT ` + operationColumns + `
FROM timeline_operations
WHERE world_id = $1 AND marker_id = $2 AND id = $3`

	op, err := scanOperation(c.pool.QueryRow(ctx, query, worldID, markerID, id))
	if errors.Is(err, pgx.ErrNoRows) {
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
WHERE world_id = $1 AND marker_id = $2
ORDER BY order_index ASC, created_at ASC, id ASC`
	return c.queryOperations(ctx, query, worldID, markerID)
}

// ListWorldOperations returns every operation in the world grouped by marker,
// each marker's operations in application order.
func (c *Client) ListWorldOperations(ctx context.Context, worldID string) ([]store.Operation, error) {
	query := `
SELECT ` + operationColumns + `
FROM timeline_operations
WHERE world_id = $1
ORDER BY marker_id ASC, order_index ASC, created_at ASC, id ASC`
	return c.queryOperations(ctx, query, worldID)
}

func (c *Client) queryOperations(ctx context.Context, query string, args ...any) ([]store.Operation, error) {
	rows, err := c.pool.Query(ctx, query, args...)
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
SET op_type = $1, target_kind = $2, target_id = $3, payload = $4, order_index = $5, updated_at = $6
WHERE world_id = $7 AND marker_id = $8 AND id = $9`

	ct, err := c.pool.Exec(ctx, query,
		op.OpType,
		op.TargetKind,
		op.TargetID,
		payloadJSON(op.Payload),
		op.OrderIndex,
		op.UpdatedAt,
		op.WorldID,
		op.MarkerID,
		op.ID,
	)
	if err != nil {
		return fmt.Errorf("updating operation: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("operation %s: %w", op.ID, store.ErrNotFound)
	}
	return nil
}

func (c *Client) DeleteOperation(ctx context.Context, worldID, markerID, id string) error {
	query := `DELETE FROM timeline_operations WHERE world_id = $1 AND marker_id = $2 AND id = $3`
	ct, err := c.pool.Exec(ctx, query, worldID, markerID, id)
	if err != nil {
		return fmt.Errorf("deleting operation: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("operation %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// payloadJSON keeps JSONB parameters non-null for empty payloads.
func payloadJSON(payload json.RawMessage) []byte {
	if len(payload) == 0 {
		return []byte("{}")
	}
	return payload
}

func scanOperation(row rowScanner) (*store.Operation, error) {
	var op store.Operation
	var payload []byte
	err := row.Scan(
		&op.ID,
		&op.WorldID,
		&op.MarkerID,
		&op.OpType,
		&op.TargetKind,
		&op.TargetID,
		&payload,
		&op.OrderIndex,
		&op.CreatedAt,
		&op.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		op.Payload = append([]byte(nil), payload...)
	} else {
		op.Payload = []byte("{}")
	}
	op.CreatedAt = op.CreatedAt.UTC()
	op.UpdatedAt = op.UpdatedAt.UTC()
	return &op, nil
}
