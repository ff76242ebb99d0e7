package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Cursor returns the stored incremental-sync cursor for a project.
// The boolean is false when the project has never stored one.
func (m *MirrorDB) Cursor(ctx context.Context, projectID string) (string, bool, error) {
	row := m.QueryRowContext(ctx,
		"SELECT cursor FROM sync_cursors WHERE project_remote_id = "+m.Placeholder(1), projectID)

	var cursor string
	if err := row.Scan(&cursor); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get sync cursor for project %s: %w", projectID, err)
	}
	return cursor, true, nil
}

// SaveCursor replaces the project's cursor, creating its row on first use.
func (m *MirrorDB) SaveCursor(ctx context.Context, projectID, cursor string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := m.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO sync_cursors (project_remote_id, cursor, updated_at)
		VALUES (%s, %s, %s)
		ON CONFLICT (project_remote_id) DO UPDATE SET
			cursor = excluded.cursor,
			updated_at = excluded.updated_at
	`, m.Placeholder(1), m.Placeholder(2), m.Placeholder(3)), projectID, cursor, now)
	if err != nil {
		return fmt.Errorf("save sync cursor for project %s: %w", projectID, err)
	}
	return nil
}
