package metadb

import (
	"context"
	"fmt"
	"time"
)

// AppliedMigration is one row of the migration journal.
type AppliedMigration struct {
	Database  string
	Name      string
	Priority  int
	AppliedAt time.Time
}

// AppliedMigrations returns the migrations recorded for database,
// ordered by priority then name.
func (m *DB) AppliedMigrations(ctx context.Context, database string) ([]AppliedMigration, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT store_name, name, priority, applied_at
		FROM applied_migrations
		WHERE store_name = ?
		ORDER BY priority ASC, name ASC
	`, database)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	var out []AppliedMigration
	for rows.Next() {
		var am AppliedMigration
		var appliedAt int64
		if err := rows.Scan(&am.Database, &am.Name, &am.Priority, &appliedAt); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		am.AppliedAt = time.UnixMilli(appliedAt)
		out = append(out, am)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}
	return out, nil
}

// RecordMigration marks a migration as applied.
// Uses ON CONFLICT DO NOTHING for idempotency - recording twice keeps the first row.
func (m *DB) RecordMigration(ctx context.Context, am AppliedMigration) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO applied_migrations (store_name, name, priority, applied_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(store_name, name) DO NOTHING
	`, am.Database, am.Name, am.Priority, am.AppliedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("record migration %s: %w", am.Name, err)
	}
	return nil
}
