package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/randalmurphal/tasksync/internal/db/driver"
	"github.com/randalmurphal/tasksync/internal/model"
)

// webhookTimeLayout is fixed width so created_at sorts as text.
const webhookTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Webhooks lists the project's local webhook rows, oldest first.
func (m *MirrorDB) Webhooks(ctx context.Context, projectID string) ([]model.Webhook, error) {
	rows, err := m.QueryContext(ctx, `
		SELECT id, project_remote_id, remote_id, secret, created_at
		FROM webhooks WHERE project_remote_id = `+m.Placeholder(1)+`
		ORDER BY created_at, id
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list webhooks for project %s: %w", projectID, err)
	}
	defer func() { _ = rows.Close() }()

	var hooks []model.Webhook
	for rows.Next() {
		var w model.Webhook
		var remoteID sql.NullString
		var createdAt string
		if err := rows.Scan(&w.ID, &w.ProjectID, &remoteID, &w.Secret, &createdAt); err != nil {
			return nil, fmt.Errorf("scan webhook: %w", err)
		}
		w.RemoteID = remoteID.String
		if ts, err := time.Parse(webhookTimeLayout, createdAt); err == nil {
			w.CreatedAt = ts
		}
		hooks = append(hooks, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate webhooks: %w", err)
	}
	return hooks, nil
}

// DeleteWebhooks removes the local webhook rows with the given ids.
func (m *MirrorDB) DeleteWebhooks(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := fmt.Sprintf("DELETE FROM webhooks WHERE id IN (%s)", driver.Placeholders(m.Driver(), 1, len(ids)))
	if _, err := m.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete webhooks: %w", err)
	}
	return nil
}

// SaveWebhook inserts w when its ID is zero and updates it otherwise.
// On insert, w.ID and a zero w.CreatedAt are filled in.
func (m *MirrorDB) SaveWebhook(ctx context.Context, w *model.Webhook) error {
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	createdAt := w.CreatedAt.UTC().Format(webhookTimeLayout)

	if w.ID != 0 {
		_, err := m.ExecContext(ctx, fmt.Sprintf(`
			UPDATE webhooks SET project_remote_id = %s, remote_id = %s, secret = %s, created_at = %s
			WHERE id = %s
		`, m.Placeholder(1), m.Placeholder(2), m.Placeholder(3), m.Placeholder(4), m.Placeholder(5)),
			w.ProjectID, w.RemoteID, w.Secret, createdAt, w.ID)
		if err != nil {
			return fmt.Errorf("update webhook %d: %w", w.ID, err)
		}
		return nil
	}

	row := m.QueryRowContext(ctx, fmt.Sprintf(`
		INSERT INTO webhooks (project_remote_id, remote_id, secret, created_at)
		VALUES (%s) RETURNING id
	`, driver.Placeholders(m.Driver(), 1, 4)), w.ProjectID, w.RemoteID, w.Secret, createdAt)
	if err := row.Scan(&w.ID); err != nil {
		return fmt.Errorf("insert webhook for project %s: %w", w.ProjectID, err)
	}
	return nil
}
