package remote

import (
	"context"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"

	"github.com/randalmurphal/tasksync/internal/model"
)

func (c *Client) find(ctx context.Context, path string) (model.Payload, error) {
	res, err := c.get(ctx, path, nil)
	if err != nil {
		return nil, err
	}
	return toPayload(res), nil
}

func (c *Client) refs(ctx context.Context, path string, query url.Values) ([]model.Ref, error) {
	items, err := c.list(ctx, path, query)
	if err != nil {
		return nil, err
	}
	return toRefs(items), nil
}

// ListWorkspaces lists every workspace visible to the token.
func (c *Client) ListWorkspaces(ctx context.Context) ([]model.Ref, error) {
	return c.refs(ctx, "/workspaces", nil)
}

// FindWorkspace fetches a workspace by remote id.
func (c *Client) FindWorkspace(ctx context.Context, id string) (model.Payload, error) {
	return c.find(ctx, "/workspaces/"+url.PathEscape(id))
}

// ListUsers lists the users of a workspace.
func (c *Client) ListUsers(ctx context.Context, workspaceID string) ([]model.Ref, error) {
	return c.refs(ctx, "/users", url.Values{"workspace": {workspaceID}})
}

// FindUser fetches a user by remote id.
func (c *Client) FindUser(ctx context.Context, id string) (model.Payload, error) {
	return c.find(ctx, "/users/"+url.PathEscape(id))
}

// ListTags lists the tags of a workspace.
func (c *Client) ListTags(ctx context.Context, workspaceID string) ([]model.Ref, error) {
	return c.refs(ctx, "/tags", url.Values{"workspace": {workspaceID}})
}

// FindTag fetches a tag by remote id.
func (c *Client) FindTag(ctx context.Context, id string) (model.Payload, error) {
	return c.find(ctx, "/tags/"+url.PathEscape(id))
}

// ListTeams lists the teams of an organization workspace.
func (c *Client) ListTeams(ctx context.Context, workspaceID string) ([]model.Ref, error) {
	return c.refs(ctx, "/organizations/"+url.PathEscape(workspaceID)+"/teams", nil)
}

// FindTeam fetches a team by remote id.
func (c *Client) FindTeam(ctx context.Context, id string) (model.Payload, error) {
	return c.find(ctx, "/teams/"+url.PathEscape(id))
}

// ListProjects lists the projects of a workspace, archived ones included.
func (c *Client) ListProjects(ctx context.Context, workspaceID string) ([]model.Ref, error) {
	return c.refs(ctx, "/projects", url.Values{"workspace": {workspaceID}})
}

// FindProject fetches a project by remote id.
func (c *Client) FindProject(ctx context.Context, id string) (model.Payload, error) {
	return c.find(ctx, "/projects/"+url.PathEscape(id))
}

// ListTasksInProject lists the top-level tasks of a project.
func (c *Client) ListTasksInProject(ctx context.Context, projectID string) ([]model.Ref, error) {
	return c.refs(ctx, "/tasks", url.Values{"project": {projectID}})
}

// FindTask fetches a task by remote id.
func (c *Client) FindTask(ctx context.Context, id string) (model.Payload, error) {
	return c.find(ctx, "/tasks/"+url.PathEscape(id))
}

// ListSubtasks lists the direct subtasks of a task.
func (c *Client) ListSubtasks(ctx context.Context, taskID string) ([]model.Ref, error) {
	return c.refs(ctx, "/tasks/"+url.PathEscape(taskID)+"/subtasks", nil)
}

// ListAttachments lists the attachments of a task.
func (c *Client) ListAttachments(ctx context.Context, taskID string) ([]model.Ref, error) {
	return c.refs(ctx, "/attachments", url.Values{"parent": {taskID}})
}

// FindAttachment fetches an attachment by remote id.
func (c *Client) FindAttachment(ctx context.Context, id string) (model.Payload, error) {
	return c.find(ctx, "/attachments/"+url.PathEscape(id))
}

// ListStories lists the stories of a task.
func (c *Client) ListStories(ctx context.Context, taskID string) ([]model.Ref, error) {
	return c.refs(ctx, "/tasks/"+url.PathEscape(taskID)+"/stories", nil)
}

// FindStory fetches a story by remote id.
func (c *Client) FindStory(ctx context.Context, id string) (model.Payload, error) {
	return c.find(ctx, "/stories/"+url.PathEscape(id))
}

// Events returns the changes to resource since cursor. An empty cursor asks
// for a fresh one, which the remote answers with a cursor-expired error.
func (c *Client) Events(ctx context.Context, resource, cursor string) (*model.EventPage, error) {
	q := url.Values{"resource": {resource}}
	if cursor != "" {
		q.Set("sync", cursor)
	}
	res, err := c.do(ctx, http.MethodGet, "/events", q, nil)
	if err != nil {
		return nil, err
	}

	page := &model.EventPage{
		Cursor:  res.Get("sync").String(),
		HasMore: res.Get("has_more").Bool(),
	}
	res.Get("data").ForEach(func(_, ev gjson.Result) bool {
		page.Events = append(page.Events, toEvent(ev))
		return true
	})
	return page, nil
}

// ListWebhooks lists the push subscriptions on resource in a workspace.
func (c *Client) ListWebhooks(ctx context.Context, workspaceID, resource string) ([]model.RemoteWebhook, error) {
	items, err := c.list(ctx, "/webhooks", url.Values{"workspace": {workspaceID}, "resource": {resource}})
	if err != nil {
		return nil, err
	}
	hooks := make([]model.RemoteWebhook, 0, len(items))
	for _, item := range items {
		hooks = append(hooks, toWebhook(item))
	}
	return hooks, nil
}

// CreateWebhook subscribes target to changes on resource. The remote
// completes the handshake with target before answering; the secret it
// issued comes back in the X-Hook-Secret header.
func (c *Client) CreateWebhook(ctx context.Context, resource, target string) (model.RemoteWebhook, error) {
	res, header, err := c.send(ctx, http.MethodPost, "/webhooks", nil, map[string]string{
		"resource": resource,
		"target":   target,
	})
	if err != nil {
		return model.RemoteWebhook{}, err
	}
	wh := toWebhook(res.Get("data"))
	wh.Secret = header.Get(hookSecretHeader)
	return wh, nil
}

// DeleteWebhook removes a push subscription.
func (c *Client) DeleteWebhook(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/webhooks/"+url.PathEscape(id), nil, nil)
	return err
}
