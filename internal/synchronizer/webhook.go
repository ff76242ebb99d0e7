package synchronizer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/randalmurphal/tasksync/internal/model"
)

// webhookState classifies a project's push subscriptions.
type webhookState int

const (
	// webhookAbsent has no subscription on either side.
	webhookAbsent webhookState = iota
	// webhookReconciled has exactly one active remote subscription and one
	// local row.
	webhookReconciled
	// webhookDrifted is every other combination.
	webhookDrifted
)

func (s webhookState) String() string {
	switch s {
	case webhookAbsent:
		return "absent"
	case webhookReconciled:
		return "reconciled"
	default:
		return "drifted"
	}
}

func classifyWebhooks(remote []model.RemoteWebhook, local []model.Webhook) webhookState {
	switch {
	case len(remote) == 0 && len(local) == 0:
		return webhookAbsent
	case len(remote) == 1 && len(local) == 1 && remote[0].Active:
		return webhookReconciled
	default:
		return webhookDrifted
	}
}

// webhookTarget is the callback URL registered for a project.
func webhookTarget(base, projectID string) string {
	return strings.TrimRight(base, "/") + "/" + projectID
}

// reconcileWebhook leaves the project with exactly one active remote
// subscription and one local row. It does nothing in a dry run or when no
// callback URL is configured.
func (r *run) reconcileWebhook(ctx context.Context, workspaceID, projectID string) error {
	if !r.opts.Commit || r.opts.WebhookURL == "" {
		return nil
	}

	remote, err := r.remote.ListWebhooks(ctx, workspaceID, projectID)
	if err != nil {
		return fmt.Errorf("list webhooks of project %s: %w", projectID, err)
	}
	local, err := r.store.Webhooks(ctx, projectID)
	if err != nil {
		return err
	}

	state := classifyWebhooks(remote, local)
	r.log.Debug("webhook state", "project", projectID, "state", state,
		"remote", len(remote), "local", len(local))

	switch state {
	case webhookReconciled:
		return nil
	case webhookDrifted:
		for _, wh := range remote {
			if err := r.remote.DeleteWebhook(ctx, wh.GID); err != nil {
				return fmt.Errorf("delete webhook %s: %w", wh.GID, err)
			}
			if err := r.pace.wait(ctx); err != nil {
				return err
			}
		}
		if len(local) > 1 {
			ids := make([]int64, 0, len(local)-1)
			for _, wh := range local[1:] {
				ids = append(ids, wh.ID)
			}
			if err := r.store.DeleteWebhooks(ctx, ids); err != nil {
				return err
			}
		}
	}

	created, err := r.remote.CreateWebhook(ctx, projectID, webhookTarget(r.opts.WebhookURL, projectID))
	if err != nil {
		return fmt.Errorf("create webhook for project %s: %w", projectID, err)
	}

	row := &model.Webhook{ProjectID: projectID}
	if len(local) > 0 {
		row = &local[0]
	}
	row.RemoteID = created.GID
	// A reused row's secret belonged to the deleted subscription.
	row.Secret = created.Secret
	row.CreatedAt = time.Now().UTC()
	if err := r.store.SaveWebhook(ctx, row); err != nil {
		return err
	}
	r.report.Success("Webhook %s established for project %s.", created.GID, projectID)
	return nil
}
