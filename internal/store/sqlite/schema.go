package sqlite

import (
	"context"
	"fmt"
	"strings"
)

func (c *Client) EnsureSchema(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS worlds (
		id               TEXT PRIMARY KEY,
		name             TEXT NOT NULL,
		description      TEXT NOT NULL DEFAULT '',
		entity_types     TEXT NOT NULL DEFAULT '[]',
		relation_types   TEXT NOT NULL DEFAULT '[]',
		timeline_version INTEGER NOT NULL DEFAULT 0,
		created_at       TEXT NOT NULL,
		updated_at       TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS entities (
		id             TEXT PRIMARY KEY,
		world_id       TEXT NOT NULL REFERENCES worlds(id) ON DELETE CASCADE,
		name           TEXT NOT NULL,
		type           TEXT NOT NULL,
		subtype        TEXT NOT NULL DEFAULT '',
		aliases        TEXT NOT NULL DEFAULT '[]',
		context        TEXT NOT NULL DEFAULT '',
		summary        TEXT NOT NULL DEFAULT '',
		tags           TEXT NOT NULL DEFAULT '[]',
		status         TEXT NOT NULL DEFAULT 'active',
		source         TEXT NOT NULL DEFAULT 'user',
		source_note_id TEXT NOT NULL DEFAULT '',
		created_at     TEXT NOT NULL,
		updated_at     TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS relations (
		id               TEXT PRIMARY KEY,
		world_id         TEXT NOT NULL REFERENCES worlds(id) ON DELETE CASCADE,
		source_entity_id TEXT NOT NULL,
		target_entity_id TEXT NOT NULL,
		type             TEXT NOT NULL,
		context          TEXT NOT NULL DEFAULT '',
		weight           REAL NOT NULL DEFAULT 0.5,
		source           TEXT NOT NULL DEFAULT 'user',
		source_note_id   TEXT NOT NULL DEFAULT '',
		created_at       TEXT NOT NULL,
		updated_at       TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS timeline_markers (
		id               TEXT PRIMARY KEY,
		world_id         TEXT NOT NULL REFERENCES worlds(id) ON DELETE CASCADE,
		title            TEXT NOT NULL,
		summary          TEXT NOT NULL DEFAULT '',
		marker_kind      TEXT NOT NULL DEFAULT 'explicit',
		placement_status TEXT NOT NULL DEFAULT 'placed',
		date_label       TEXT NOT NULL DEFAULT '',
		date_sort_value  REAL,
		sort_key         REAL NOT NULL,
		source           TEXT NOT NULL DEFAULT 'user',
		source_note_id   TEXT NOT NULL DEFAULT '',
		created_at       TEXT NOT NULL,
		updated_at       TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS timeline_operations (
		id          TEXT PRIMARY KEY,
		world_id    TEXT NOT NULL REFERENCES worlds(id) ON DELETE CASCADE,
		marker_id   TEXT NOT NULL REFERENCES timeline_markers(id) ON DELETE CASCADE,
		op_type     TEXT NOT NULL,
		target_kind TEXT NOT NULL,
		target_id   TEXT NOT NULL DEFAULT '',
		payload     TEXT NOT NULL DEFAULT '{}',
		order_index INTEGER NOT NULL DEFAULT 0,
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS timeline_snapshots (
		id                   TEXT PRIMARY KEY,
		world_id             TEXT NOT NULL REFERENCES worlds(id) ON DELETE CASCADE,
		marker_id            TEXT NOT NULL REFERENCES timeline_markers(id) ON DELETE CASCADE,
		state                TEXT NOT NULL DEFAULT '{}',
		state_hash           TEXT NOT NULL DEFAULT '',
		ledger_version       INTEGER NOT NULL DEFAULT 0,
		applied_marker_count INTEGER NOT NULL DEFAULT 0,
		entity_count         INTEGER NOT NULL DEFAULT 0,
		relation_count       INTEGER NOT NULL DEFAULT 0,
		created_at           TEXT NOT NULL,
		updated_at           TEXT NOT NULL,
		CONSTRAINT uq_snapshot_marker UNIQUE (world_id, marker_id)
	);

	CREATE INDEX IF NOT EXISTS idx_entities_world_name ON entities (world_id, name);
	CREATE INDEX IF NOT EXISTS idx_entities_world_type ON entities (world_id, type);
	CREATE INDEX IF NOT EXISTS idx_relations_world ON relations (world_id);
	CREATE INDEX IF NOT EXISTS idx_relations_source ON relations (world_id, source_entity_id);
	CREATE INDEX IF NOT EXISTS idx_relations_target ON relations (world_id, target_entity_id);
	CREATE INDEX IF NOT EXISTS idx_markers_world_order ON timeline_markers (world_id, sort_key, created_at, id);
	CREATE INDEX IF NOT EXISTS idx_operations_world ON timeline_operations (world_id);
	CREATE INDEX IF NOT EXISTS idx_operations_marker_order ON timeline_operations (marker_id, order_index, created_at, id);
	CREATE INDEX IF NOT EXISTS idx_snapshots_world ON timeline_snapshots (world_id);
	`

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	statements := splitStatements(ddl)
	for _, stmt := range statements {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing DDL: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing schema transaction: %w", err)
	}

	return nil
}

func splitStatements(ddl string) []string {
	var statements []string
	var current strings.Builder

	for _, line := range strings.Split(ddl, "\n") {
		stripped := strings.TrimSpace(line)
		if strings.HasPrefix(stripped, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")

		if strings.HasSuffix(stripped, ";") {
			statements = append(statements, current.String())
			current.Reset()
		}
	}

	if current.Len() > 0 {
		statements = append(statements, current.String())
	}

	return statements
}
