package synchronizer

import (
	"context"

	"github.com/randalmurphal/tasksync/internal/model"
)

// Remote is the read/write surface of the remote work tracker that the
// synchronizer consumes. Implementations report missing, forbidden, expired
// cursor, and unavailable conditions as errors from internal/errors.
type Remote interface {
	ListWorkspaces(ctx context.Context) ([]model.Ref, error)
	FindWorkspace(ctx context.Context, id string) (model.Payload, error)

	ListUsers(ctx context.Context, workspaceID string) ([]model.Ref, error)
	FindUser(ctx context.Context, id string) (model.Payload, error)
	ListTags(ctx context.Context, workspaceID string) ([]model.Ref, error)
	FindTag(ctx context.Context, id string) (model.Payload, error)
	ListTeams(ctx context.Context, workspaceID string) ([]model.Ref, error)
	FindTeam(ctx context.Context, id string) (model.Payload, error)

	ListProjects(ctx context.Context, workspaceID string) ([]model.Ref, error)
	FindProject(ctx context.Context, id string) (model.Payload, error)

	ListTasksInProject(ctx context.Context, projectID string) ([]model.Ref, error)
	FindTask(ctx context.Context, id string) (model.Payload, error)
	ListSubtasks(ctx context.Context, taskID string) ([]model.Ref, error)

	ListAttachments(ctx context.Context, taskID string) ([]model.Ref, error)
	FindAttachment(ctx context.Context, id string) (model.Payload, error)
	ListStories(ctx context.Context, taskID string) ([]model.Ref, error)
	FindStory(ctx context.Context, id string) (model.Payload, error)

	Events(ctx context.Context, resource, cursor string) (*model.EventPage, error)

	ListWebhooks(ctx context.Context, workspaceID, resource string) ([]model.RemoteWebhook, error)
	CreateWebhook(ctx context.Context, resource, target string) (model.RemoteWebhook, error)
	DeleteWebhook(ctx context.Context, id string) error
}

// Store is the local mirror of synced entities. Each call is its own
// transaction.
type Store interface {
	Upsert(ctx context.Context, k model.Kind, remoteID string, fields map[string]any) (*model.Row, error)
	// Get returns a STORE_NOT_FOUND error when no row has remoteID.
	Get(ctx context.Context, k model.Kind, remoteID string) (*model.Row, error)
	Delete(ctx context.Context, k model.Kind, remoteID string) (bool, error)
	Filter(ctx context.Context, q model.Query) ([]model.Row, error)
	SetRelation(ctx context.Context, row *model.Row, rel string, related []model.Row) error
	AddRelation(ctx context.Context, row *model.Row, rel string, related *model.Row) error
}

// CursorStore keeps one incremental-sync cursor per project.
type CursorStore interface {
	Cursor(ctx context.Context, projectID string) (string, bool, error)
	SaveCursor(ctx context.Context, projectID, cursor string) error
}

// WebhookStore keeps the local records of push subscriptions.
type WebhookStore interface {
	// Webhooks returns the project's rows oldest first.
	Webhooks(ctx context.Context, projectID string) ([]model.Webhook, error)
	DeleteWebhooks(ctx context.Context, ids []int64) error
	SaveWebhook(ctx context.Context, w *model.Webhook) error
}

// Mirror is everything the synchronizer persists.
type Mirror interface {
	Store
	CursorStore
	WebhookStore
}
