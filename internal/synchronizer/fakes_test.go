package synchronizer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/randalmurphal/tasksync/internal/db"
	syncerrors "github.com/randalmurphal/tasksync/internal/errors"
	"github.com/randalmurphal/tasksync/internal/model"
)

var _ Mirror = (*db.MirrorDB)(nil)

// fakeRemote is an in-memory remote work tracker.
type fakeRemote struct {
	workspaces []model.Ref
	// objects holds every fetchable payload by gid.
	objects map[string]model.Payload
	// failures makes Find calls for a gid fail.
	failures map[string]error

	users       map[string][]model.Ref
	tags        map[string][]model.Ref
	teams       map[string][]model.Ref
	projects    map[string][]model.Ref
	tasks       map[string][]model.Ref
	subtasks    map[string][]model.Ref
	attachments map[string][]model.Ref
	stories     map[string][]model.Ref

	// events answers Events calls. Nil answers every call with an empty page.
	events func(resource, cursor string) (*model.EventPage, error)

	webhooks  map[string][]model.RemoteWebhook
	webhookID int

	calls map[string]int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		objects:     make(map[string]model.Payload),
		failures:    make(map[string]error),
		users:       make(map[string][]model.Ref),
		tags:        make(map[string][]model.Ref),
		teams:       make(map[string][]model.Ref),
		projects:    make(map[string][]model.Ref),
		tasks:       make(map[string][]model.Ref),
		subtasks:    make(map[string][]model.Ref),
		attachments: make(map[string][]model.Ref),
		stories:     make(map[string][]model.Ref),
		webhooks:    make(map[string][]model.RemoteWebhook),
		calls:       make(map[string]int),
	}
}

// add registers a fetchable object and returns its ref.
func (f *fakeRemote) add(p model.Payload) model.Ref {
	f.objects[p.GID()] = p
	return model.Ref{GID: p.GID(), Name: p.Name()}
}

func (f *fakeRemote) addWorkspace(gid, name string) model.Ref {
	ref := f.add(model.Payload{"gid": gid, "name": name, "is_organization": true})
	f.workspaces = append(f.workspaces, ref)
	return ref
}

func (f *fakeRemote) addProject(ws, gid, name string) model.Ref {
	ref := f.add(model.Payload{
		"gid":       gid,
		"name":      name,
		"archived":  false,
		"workspace": map[string]any{"gid": ws},
	})
	f.projects[ws] = append(f.projects[ws], ref)
	return ref
}

// addTask registers a task. A non-empty parent makes it a subtask; a
// non-empty project lists it in that project.
func (f *fakeRemote) addTask(project, parent, gid string, deps ...string) model.Ref {
	p := model.Payload{"gid": gid, "name": "Task " + gid, "completed": false}
	if parent != "" {
		p["parent"] = map[string]any{"gid": parent}
		f.subtasks[parent] = append(f.subtasks[parent], model.Ref{GID: gid, Name: "Task " + gid})
	} else {
		p["parent"] = nil
	}
	var depRefs []any
	for _, d := range deps {
		depRefs = append(depRefs, map[string]any{"gid": d})
	}
	p["dependencies"] = depRefs
	ref := f.add(p)
	if project != "" {
		p["projects"] = []any{map[string]any{"gid": project}}
		f.tasks[project] = append(f.tasks[project], ref)
	}
	return ref
}

func (f *fakeRemote) find(method, id string) (model.Payload, error) {
	f.calls[method+":"+id]++
	if err := f.failures[id]; err != nil {
		return nil, err
	}
	p, ok := f.objects[id]
	if !ok {
		return nil, syncerrors.ErrRemoteNotFound(id)
	}
	cp := make(model.Payload, len(p))
	for k, v := range p {
		cp[k] = v
	}
	return cp, nil
}

func (f *fakeRemote) ListWorkspaces(context.Context) ([]model.Ref, error) {
	return f.workspaces, nil
}

func (f *fakeRemote) FindWorkspace(_ context.Context, id string) (model.Payload, error) {
	return f.find("FindWorkspace", id)
}

func (f *fakeRemote) ListUsers(_ context.Context, ws string) ([]model.Ref, error) {
	return f.users[ws], nil
}

func (f *fakeRemote) FindUser(_ context.Context, id string) (model.Payload, error) {
	return f.find("FindUser", id)
}

func (f *fakeRemote) ListTags(_ context.Context, ws string) ([]model.Ref, error) {
	return f.tags[ws], nil
}

func (f *fakeRemote) FindTag(_ context.Context, id string) (model.Payload, error) {
	return f.find("FindTag", id)
}

func (f *fakeRemote) ListTeams(_ context.Context, ws string) ([]model.Ref, error) {
	return f.teams[ws], nil
}

func (f *fakeRemote) FindTeam(_ context.Context, id string) (model.Payload, error) {
	return f.find("FindTeam", id)
}

func (f *fakeRemote) ListProjects(_ context.Context, ws string) ([]model.Ref, error) {
	return f.projects[ws], nil
}

func (f *fakeRemote) FindProject(_ context.Context, id string) (model.Payload, error) {
	return f.find("FindProject", id)
}

func (f *fakeRemote) ListTasksInProject(_ context.Context, project string) ([]model.Ref, error) {
	return f.tasks[project], nil
}

func (f *fakeRemote) FindTask(_ context.Context, id string) (model.Payload, error) {
	return f.find("FindTask", id)
}

func (f *fakeRemote) ListSubtasks(_ context.Context, id string) ([]model.Ref, error) {
	return f.subtasks[id], nil
}

func (f *fakeRemote) ListAttachments(_ context.Context, id string) ([]model.Ref, error) {
	return f.attachments[id], nil
}

func (f *fakeRemote) FindAttachment(_ context.Context, id string) (model.Payload, error) {
	return f.find("FindAttachment", id)
}

func (f *fakeRemote) ListStories(_ context.Context, id string) ([]model.Ref, error) {
	return f.stories[id], nil
}

func (f *fakeRemote) FindStory(_ context.Context, id string) (model.Payload, error) {
	return f.find("FindStory", id)
}

func (f *fakeRemote) Events(_ context.Context, resource, cursor string) (*model.EventPage, error) {
	f.calls["Events:"+resource]++
	if f.events == nil {
		return &model.EventPage{}, nil
	}
	return f.events(resource, cursor)
}

func (f *fakeRemote) ListWebhooks(_ context.Context, _, resource string) ([]model.RemoteWebhook, error) {
	return append([]model.RemoteWebhook(nil), f.webhooks[resource]...), nil
}

func (f *fakeRemote) CreateWebhook(_ context.Context, resource, target string) (model.RemoteWebhook, error) {
	f.calls["CreateWebhook:"+resource]++
	f.webhookID++
	gid := "wh" + strconv.Itoa(f.webhookID)
	wh := model.RemoteWebhook{GID: gid, Active: true, Target: target, Secret: "secret-" + gid}
	f.webhooks[resource] = append(f.webhooks[resource], wh)
	return wh, nil
}

func (f *fakeRemote) DeleteWebhook(_ context.Context, id string) error {
	f.calls["DeleteWebhook:"+id]++
	for resource, hooks := range f.webhooks {
		for i, wh := range hooks {
			if wh.GID == id {
				f.webhooks[resource] = append(hooks[:i:i], hooks[i+1:]...)
				return nil
			}
		}
	}
	return syncerrors.ErrRemoteNotFound(id)
}

// countingMirror records every mutation made through it.
type countingMirror struct {
	Mirror
	upserts   map[string]int
	mutations int
}

func newCountingMirror(m Mirror) *countingMirror {
	return &countingMirror{Mirror: m, upserts: make(map[string]int)}
}

func (c *countingMirror) Upsert(ctx context.Context, k model.Kind, remoteID string, fields map[string]any) (*model.Row, error) {
	c.upserts[string(k)+":"+remoteID]++
	c.mutations++
	return c.Mirror.Upsert(ctx, k, remoteID, fields)
}

func (c *countingMirror) Delete(ctx context.Context, k model.Kind, remoteID string) (bool, error) {
	c.mutations++
	return c.Mirror.Delete(ctx, k, remoteID)
}

func (c *countingMirror) SetRelation(ctx context.Context, row *model.Row, rel string, related []model.Row) error {
	c.mutations++
	return c.Mirror.SetRelation(ctx, row, rel, related)
}

func (c *countingMirror) AddRelation(ctx context.Context, row *model.Row, rel string, related *model.Row) error {
	c.mutations++
	return c.Mirror.AddRelation(ctx, row, rel, related)
}

func (c *countingMirror) SaveCursor(ctx context.Context, projectID, cursor string) error {
	c.mutations++
	return c.Mirror.SaveCursor(ctx, projectID, cursor)
}

func (c *countingMirror) DeleteWebhooks(ctx context.Context, ids []int64) error {
	c.mutations++
	return c.Mirror.DeleteWebhooks(ctx, ids)
}

func (c *countingMirror) SaveWebhook(ctx context.Context, w *model.Webhook) error {
	c.mutations++
	return c.Mirror.SaveWebhook(ctx, w)
}

// discardLogger keeps test output quiet.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// snapshot returns every row of every kind as comparable text.
func snapshot(ctx context.Context, m Mirror) (map[model.Kind][]string, error) {
	out := make(map[model.Kind][]string)
	for _, k := range model.AllKinds {
		rows, err := m.Filter(ctx, model.Query{Kind: k})
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			out[k] = append(out[k], fmt.Sprintf("%d %s %v", row.ID, row.RemoteID, row.Fields))
		}
	}
	return out, nil
}
