package metadb

import (
	"context"
	"fmt"
	"time"
)

// BlacklistPair is one stored merge-blacklist row.
type BlacklistPair struct {
	SourceRecordID string
	TargetRecordID string
	CreatedAt      time.Time
}

// InsertBlacklistPair stores a pair. Rows are not deduplicated.
func (m *DB) InsertBlacklistPair(ctx context.Context, p BlacklistPair) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO merge_blacklist (source_record_id, target_record_id, created_at)
		VALUES (?, ?, ?)
	`, p.SourceRecordID, p.TargetRecordID, p.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert blacklist pair: %w", err)
	}
	return nil
}

// HasBlacklistPair reports whether (a, b) or (b, a) is stored.
func (m *DB) HasBlacklistPair(ctx context.Context, a, b string) (bool, error) {
	var found int
	err := m.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM merge_blacklist
			WHERE (source_record_id = ? AND target_record_id = ?)
			   OR (source_record_id = ? AND target_record_id = ?)
		)
	`, a, b, b, a).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("check blacklist pair: %w", err)
	}
	return found == 1, nil
}

// BlacklistPairs returns every stored row in insertion order.
func (m *DB) BlacklistPairs(ctx context.Context) ([]BlacklistPair, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT source_record_id, target_record_id, created_at
		FROM merge_blacklist
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query blacklist pairs: %w", err)
	}
	defer rows.Close()

	var out []BlacklistPair
	for rows.Next() {
		var p BlacklistPair
		var createdAt int64
		if err := rows.Scan(&p.SourceRecordID, &p.TargetRecordID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan blacklist pair: %w", err)
		}
		p.CreatedAt = time.UnixMilli(createdAt)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate blacklist pairs: %w", err)
	}
	return out, nil
}
