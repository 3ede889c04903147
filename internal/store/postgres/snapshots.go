package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"worldloom/internal/store"
)

func (c *Client) GetSnapshot(ctx context.Context, worldID, markerID string) (*store.Snapshot, error) {
	query := `
SELECT id, world_id, marker_id, state, state_hash, ledger_version, applied_marker_count, entity_count, relation_count, created_at, updated_at
FROM timeline_snapshots
WHERE world_id = $1 AND marker_id = $2`

	var s store.Snapshot
	var state []byte

	err := c.pool.QueryRow(ctx, query, worldID, markerID).Scan(
		&s.ID,
		&s.WorldID,
		&s.MarkerID,
		&state,
		&s.StateHash,
		&s.LedgerVersion,
		&s.AppliedMarkerCount,
		&s.EntityCount,
		&s.RelationCount,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("snapshot for marker %s: %w", markerID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting snapshot: %w", err)
	}

	s.State = append([]byte(nil), state...)
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	return &s, nil
}

// ListSnapshotSummaries returns blob-free snapshot rows for placed markers in
// timeline order, for picking the nearest replay base without decoding state.
func (c *Client) ListSnapshotSummaries(ctx context.Context, worldID string) ([]store.SnapshotSummary, error) {
	query := `
SELECT s.marker_id, m.sort_key, s.ledger_version, s.applied_marker_count, s.state_hash
FROM timeline_snapshots s
JOIN timeline_markers m ON m.id = s.marker_id
WHERE s.world_id = $1 AND m.placement_status = 'placed'
ORDER BY m.sort_key ASC, m.created_at ASC, m.id ASC`

	rows, err := c.pool.Query(ctx, query, worldID)
	if err != nil {
		return nil, fmt.Errorf("listing snapshot summaries: %w", err)
	}
	defer rows.Close()

	summaries := []store.SnapshotSummary{}
	for rows.Next() {
		var s store.SnapshotSummary
		if err := rows.Scan(&s.MarkerID, &s.SortKey, &s.LedgerVersion, &s.AppliedMarkerCount, &s.StateHash); err != nil {
			return nil, fmt.Errorf("scanning snapshot summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshot rows: %w", err)
	}
	return summaries, nil
}

func (c *Client) UpsertSnapshot(ctx context.Context, s store.Snapshot) error {
	query := `
INSERT INTO timeline_snapshots
	(id, world_id, marker_id, state, state_hash, ledger_version, applied_marker_count, entity_count, relation_count, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (world_id, marker_id) DO UPDATE SET
	state = EXCLUDED.state,
	state_hash = EXCLUDED.state_hash,
	ledger_version = EXCLUDED.ledger_version,
	applied_marker_count = EXCLUDED.applied_marker_count,
	entity_count = EXCLUDED.entity_count,
	relation_count = EXCLUDED.relation_count,
	updated_at = EXCLUDED.updated_at`

	_, err := c.pool.Exec(ctx, query,
		s.ID,
		s.WorldID,
		s.MarkerID,
		payloadJSON(s.State),
		s.StateHash,
		s.LedgerVersion,
		s.AppliedMarkerCount,
		s.EntityCount,
		s.RelationCount,
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting snapshot: %w", err)
	}
	return nil
}

func (c *Client) DeleteSnapshot(ctx context.Context, worldID, markerID string) error {
	query := `DELETE FROM timeline_snapshots WHERE world_id = $1 AND marker_id = $2`
	if _, err := c.pool.Exec(ctx, query, worldID, markerID); err != nil {
		return fmt.Errorf("deleting snapshot: %w", err)
	}
	return nil
}

// DeleteSnapshotsFrom evicts cached states at or after a timeline position.
func (c *Client) DeleteSnapshotsFrom(ctx context.Context, worldID string, sortKey float64) error {
	query := `
DELETE FROM timeline_snapshots
WHERE world_id = $1
  AND marker_id IN (
	SELECT id FROM timeline_markers WHERE world_id = $1 AND sort_key >= $2
  )`
	if _, err := c.pool.Exec(ctx, query, worldID, sortKey); err != nil {
		return fmt.Errorf("deleting snapshots from sort key: %w", err)
	}
	return nil
}

func (c *Client) DeleteWorldSnapshots(ctx context.Context, worldID string) error {
	if _, err := c.pool.Exec(ctx, `DELETE FROM timeline_snapshots WHERE world_id = $1`, worldID); err != nil {
		return fmt.Errorf("deleting world snapshots: %w", err)
	}
	return nil
}

// PruneSnapshots removes snapshots whose marker is gone or no longer placed.
func (c *Client) PruneSnapshots(ctx context.Context, worldID string) (int64, error) {
	query := `
DELETE FROM timeline_snapshots
WHERE world_id = $1
  AND marker_id NOT IN (
	SELECT id FROM timeline_markers WHERE world_id = $1 AND placement_status = 'placed'
  )`
	ct, err := c.pool.Exec(ctx, query, worldID)
	if err != nil {
		return 0, fmt.Errorf("pruning snapshots: %w", err)
	}
	return ct.RowsAffected(), nil
}
