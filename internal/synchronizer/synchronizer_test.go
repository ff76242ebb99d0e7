package synchronizer

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/tasksync/internal/db"
	syncerrors "github.com/randalmurphal/tasksync/internal/errors"
	"github.com/randalmurphal/tasksync/internal/model"
)

const (
	testWorkspace = "1"
	testProject   = "10"
)

// newFixture returns a remote with one workspace holding one project, and an
// empty mirror that counts its mutations.
func newFixture(t *testing.T) (*fakeRemote, *db.MirrorDB, *countingMirror) {
	t.Helper()
	remote := newFakeRemote()
	remote.addWorkspace(testWorkspace, "Marketing")
	remote.addProject(testWorkspace, testProject, "Launch")
	mdb := db.NewTestMirrorDB(t)
	return remote, mdb, newCountingMirror(mdb)
}

func runSync(t *testing.T, remote Remote, store Mirror, opts Options) *Result {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = discardLogger()
	}
	res, err := New(remote, store, opts).Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

// seedProjectTasks stores the test project and links the given tasks to it.
func seedProjectTasks(t *testing.T, mdb *db.MirrorDB, gids ...string) *model.Row {
	t.Helper()
	ctx := context.Background()
	project, err := mdb.Upsert(ctx, model.KindProject, testProject, map[string]any{"name": "Launch"})
	require.NoError(t, err)
	for _, gid := range gids {
		task, err := mdb.Upsert(ctx, model.KindTask, gid, map[string]any{"name": "old " + gid})
		require.NoError(t, err)
		require.NoError(t, mdb.AddRelation(ctx, task, "projects", project))
	}
	return project
}

func mustGet(t *testing.T, mdb *db.MirrorDB, k model.Kind, gid string) *model.Row {
	t.Helper()
	row, err := mdb.Get(context.Background(), k, gid)
	require.NoError(t, err)
	return row
}

func assertMissing(t *testing.T, mdb *db.MirrorDB, k model.Kind, gid string) {
	t.Helper()
	_, err := mdb.Get(context.Background(), k, gid)
	assert.True(t, db.IsNotFound(err), "%s %s should not be stored, got %v", k, gid, err)
}

func TestResolveSelectors_NamesOnlyBadSelectors(t *testing.T) {
	refs := []model.Ref{{GID: "1", Name: "Marketing"}}

	_, err := resolveSelectors("workspace", refs, []string{"Marketing", "bad-name"})
	require.Error(t, err)
	assert.True(t, syncerrors.HasCode(err, syncerrors.CodeSelectorInvalid))
	assert.Contains(t, err.Error(), "bad-name")
	assert.NotContains(t, err.Error(), "Marketing")
}

func TestResolveSelectors_ListsSeveralBadSelectors(t *testing.T) {
	_, err := resolveSelectors("project", nil, []string{"a", "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a, b")
}

func TestResolveSelectors_OrderAndDedupe(t *testing.T) {
	refs := []model.Ref{
		{GID: "9", Name: "Old"},
		{GID: "100", Name: "Newest"},
		{GID: "12", Name: "Newer"},
	}

	all, err := resolveSelectors("workspace", refs, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"100", "12", "9"}, all)

	picked, err := resolveSelectors("workspace", refs, []string{"Old", "9", "12"})
	require.NoError(t, err)
	assert.Equal(t, []string{"12", "9"}, picked)
}

func TestProjectFields(t *testing.T) {
	p := model.Payload{"gid": "1", "name": "Ship it", "followers": []any{}, "completed": true}
	projectFields(model.KindTask, p)
	assert.Equal(t, model.Payload{"name": "Ship it", "completed": true}, p)

	other := model.Payload{"anything": 1}
	projectFields(model.Kind("widget"), other)
	assert.Equal(t, model.Payload{"anything": 1}, other)
}

func TestRun_FullPollStoresGraph(t *testing.T) {
	remote, mdb, store := newFixture(t)
	remote.users[testWorkspace] = []model.Ref{remote.add(model.Payload{
		"gid":        "5",
		"name":       "Ann",
		"email":      "ann@example.com",
		"photo":      map[string]any{"image_128x128": "https://img/ann.png"},
		"workspaces": []any{map[string]any{"gid": testWorkspace}},
	})}
	remote.tags[testWorkspace] = []model.Ref{remote.add(model.Payload{
		"gid":       "7",
		"name":      "urgent",
		"followers": []any{map[string]any{"gid": "5"}},
	})}
	remote.teams[testWorkspace] = []model.Ref{remote.add(model.Payload{
		"gid":          "8",
		"name":         "Growth",
		"organization": map[string]any{"gid": testWorkspace, "name": "Marketing"},
	})}
	remote.addTask(testProject, "", "100")
	remote.objects["100"]["assignee"] = map[string]any{"gid": "5"}
	remote.objects["100"]["tags"] = []any{map[string]any{"gid": "7", "name": "urgent"}}
	remote.addTask("", "100", "101")
	remote.addTask(testProject, "", "102", "100")
	remote.stories["100"] = []model.Ref{remote.add(model.Payload{
		"gid":        "s1",
		"text":       "moved to Doing",
		"target":     map[string]any{"gid": "100"},
		"created_by": map[string]any{"gid": "5"},
	})}
	remote.attachments["100"] = []model.Ref{remote.add(model.Payload{
		"gid":    "a1",
		"name":   "brief.pdf",
		"parent": map[string]any{"gid": "100"},
	})}

	var out bytes.Buffer
	res := runSync(t, remote, store, Options{Commit: true, Out: &out})
	assert.Empty(t, res.Errors)
	assert.Equal(t, 1, res.Workspaces)
	assert.Equal(t, 1, res.Projects)
	assert.Equal(t, 3, res.Synced[model.KindTask])

	ctx := context.Background()
	user := mustGet(t, mdb, model.KindUser, "5")
	assert.Equal(t, "https://img/ann.png", user.Fields["photo"])
	team := mustGet(t, mdb, model.KindTeam, "8")
	assert.Equal(t, "Marketing", team.Fields["organization_name"])

	parent := mustGet(t, mdb, model.KindTask, "100")
	child := mustGet(t, mdb, model.KindTask, "101")
	assert.EqualValues(t, parent.ID, child.Fields["parent_id"])
	assert.EqualValues(t, user.ID, parent.Fields["assignee_id"])

	dependents, err := mdb.Filter(ctx, model.Query{Kind: model.KindTask, Relation: "dependencies", RelatedID: parent.ID})
	require.NoError(t, err)
	require.Len(t, dependents, 1)
	assert.Equal(t, "102", dependents[0].RemoteID)

	tag := mustGet(t, mdb, model.KindTag, "7")
	tagged, err := mdb.Filter(ctx, model.Query{Kind: model.KindTask, Relation: "tags", RelatedID: tag.ID})
	require.NoError(t, err)
	assert.Len(t, tagged, 1)

	project := mustGet(t, mdb, model.KindProject, testProject)
	inProject, err := mdb.Filter(ctx, model.Query{Kind: model.KindTask, Relation: "projects", RelatedID: project.ID})
	require.NoError(t, err)
	assert.Len(t, inProject, 3)

	story := mustGet(t, mdb, model.KindStory, "s1")
	assert.EqualValues(t, parent.ID, story.Fields["target_id"])
	attachment := mustGet(t, mdb, model.KindAttachment, "a1")
	assert.EqualValues(t, parent.ID, attachment.Fields["parent_id"])

	assert.Contains(t, out.String(), "Successfully synced project Launch.")
	assert.Contains(t, out.String(), "Successfully synced workspace Marketing.")
}

func TestRun_FullPollIsIdempotent(t *testing.T) {
	remote, mdb, _ := newFixture(t)
	remote.addTask(testProject, "", "100")
	remote.addTask("", "100", "101")
	remote.addTask(testProject, "", "102", "100")
	ctx := context.Background()

	runSync(t, remote, mdb, Options{Commit: true})
	first, err := snapshot(ctx, mdb)
	require.NoError(t, err)

	// Without a stored cursor the second run full-polls again.
	runSync(t, remote, mdb, Options{Commit: true})
	second, err := snapshot(ctx, mdb)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRun_DependencyCycleVisitsEachTaskOnce(t *testing.T) {
	remote, mdb, store := newFixture(t)
	remote.addTask(testProject, "", "20", "21")
	remote.addTask(testProject, "", "21", "20")

	res := runSync(t, remote, store, Options{Commit: true})
	assert.Empty(t, res.Errors)

	assert.Equal(t, 1, store.upserts["task:20"])
	assert.Equal(t, 1, store.upserts["task:21"])
	assert.Equal(t, 1, remote.calls["FindTask:20"])
	assert.Equal(t, 1, remote.calls["FindTask:21"])

	a := mustGet(t, mdb, model.KindTask, "20")
	dependents, err := mdb.Filter(context.Background(), model.Query{Kind: model.KindTask, Relation: "dependencies", RelatedID: a.ID})
	require.NoError(t, err)
	require.Len(t, dependents, 1)
	assert.Equal(t, "21", dependents[0].RemoteID)
}

func TestRun_ParentCycleTerminates(t *testing.T) {
	remote, mdb, store := newFixture(t)
	remote.addTask(testProject, "31", "30")
	remote.addTask("", "30", "31")

	res := runSync(t, remote, store, Options{Commit: true})
	assert.Empty(t, res.Errors)
	assert.Equal(t, 1, store.upserts["task:30"])
	assert.Equal(t, 1, store.upserts["task:31"])

	// 31 was stored first, without waiting on 30 which was waiting on it.
	a := mustGet(t, mdb, model.KindTask, "30")
	b := mustGet(t, mdb, model.KindTask, "31")
	assert.EqualValues(t, b.ID, a.Fields["parent_id"])
}

func TestRun_ParentStoredBeforeSubtask(t *testing.T) {
	remote, mdb, store := newFixture(t)
	remote.addTask("", "", "30")
	remote.addTask(testProject, "30", "31")
	remote.addTask("", "30", "32")

	res := runSync(t, remote, store, Options{Commit: true})
	assert.Empty(t, res.Errors)

	parent := mustGet(t, mdb, model.KindTask, "30")
	child := mustGet(t, mdb, model.KindTask, "31")
	assert.EqualValues(t, parent.ID, child.Fields["parent_id"])
	assert.Equal(t, 1, remote.calls["FindTask:30"])

	// The parent was synced without its subtree.
	assert.Zero(t, remote.calls["FindTask:32"])
	assertMissing(t, mdb, model.KindTask, "32")
}

func TestRun_ExpandsParentReachedLater(t *testing.T) {
	remote, mdb, store := newFixture(t)
	parent := remote.addTask("", "", "30")
	remote.addTask(testProject, "30", "31")
	remote.addTask("", "30", "32")
	remote.tasks[testProject] = append(remote.tasks[testProject], parent)

	res := runSync(t, remote, store, Options{Commit: true})
	assert.Empty(t, res.Errors)

	assert.Equal(t, 1, remote.calls["FindTask:30"])
	assert.Equal(t, 1, remote.calls["FindTask:31"])
	assert.Equal(t, 1, remote.calls["FindTask:32"])
	assert.Equal(t, 1, store.upserts["task:30"])

	p := mustGet(t, mdb, model.KindTask, "30")
	sibling := mustGet(t, mdb, model.KindTask, "32")
	assert.EqualValues(t, p.ID, sibling.Fields["parent_id"])
}

func TestRun_PrunesTasksNotSeen(t *testing.T) {
	remote, mdb, _ := newFixture(t)
	project := seedProjectTasks(t, mdb, "1", "2", "3")
	remote.addTask(testProject, "", "1")
	remote.addTask(testProject, "", "2")

	ctx := context.Background()
	var localID int64
	require.NoError(t, mdb.QueryRowContext(ctx, "INSERT INTO tasks (name) VALUES ('local only') RETURNING id").Scan(&localID))
	_, err := mdb.ExecContext(ctx, "INSERT INTO task_projects (task_id, project_id) VALUES (?, ?)", localID, project.ID)
	require.NoError(t, err)

	var out bytes.Buffer
	res := runSync(t, remote, mdb, Options{Commit: true, Out: &out})

	assert.Equal(t, []string{"3"}, res.Pruned)
	assert.Equal(t, 1, res.Deleted[model.KindTask])
	mustGet(t, mdb, model.KindTask, "1")
	mustGet(t, mdb, model.KindTask, "2")
	assertMissing(t, mdb, model.KindTask, "3")

	rows, err := mdb.Filter(ctx, model.Query{Kind: model.KindTask, Relation: "projects", RelatedID: project.ID})
	require.NoError(t, err)
	assert.Len(t, rows, 3, "the task without a remote id stays")
	assert.Contains(t, out.String(), "Deleted 1 tasks no longer present: [3]")
}

func TestRun_FailedTaskIsRecordedAndKept(t *testing.T) {
	remote, mdb, _ := newFixture(t)
	seedProjectTasks(t, mdb, "1", "2")
	remote.addTask(testProject, "", "1")
	remote.addTask(testProject, "", "2")
	remote.failures["1"] = errors.New("boom")

	res := runSync(t, remote, mdb, Options{Commit: true})

	require.Len(t, res.Errors, 1)
	assert.Equal(t, model.KindTask, res.Errors[0].Kind)
	assert.Equal(t, "1", res.Errors[0].RemoteID)
	assert.Empty(t, res.Pruned)
	assert.Equal(t, "old 1", mustGet(t, mdb, model.KindTask, "1").Fields["name"])
	assert.Equal(t, "Task 2", mustGet(t, mdb, model.KindTask, "2").Fields["name"])
}

func TestRun_GoneTaskIsDeleted(t *testing.T) {
	remote, mdb, _ := newFixture(t)
	seedProjectTasks(t, mdb, "50")
	remote.tasks[testProject] = []model.Ref{{GID: "50"}}
	remote.failures["50"] = syncerrors.ErrRemoteForbidden("50")

	res := runSync(t, remote, mdb, Options{Commit: true})

	assert.Empty(t, res.Errors)
	assert.Equal(t, 1, res.Deleted[model.KindTask])
	assertMissing(t, mdb, model.KindTask, "50")
}

func TestRun_ExpiredCursorFallsBackToFullPoll(t *testing.T) {
	remote, mdb, _ := newFixture(t)
	seedProjectTasks(t, mdb)
	ctx := context.Background()
	require.NoError(t, mdb.SaveCursor(ctx, testProject, "old"))
	remote.addTask(testProject, "", "100")
	remote.events = func(resource, cursor string) (*model.EventPage, error) {
		if cursor == "old" {
			return nil, syncerrors.ErrCursorExpired(resource, "X")
		}
		return &model.EventPage{}, nil
	}

	res := runSync(t, remote, mdb, Options{Commit: true})
	assert.Empty(t, res.Errors)

	assert.Equal(t, 1, remote.calls["FindProject:"+testProject])
	mustGet(t, mdb, model.KindTask, "100")
	cursor, ok, err := mdb.Cursor(ctx, testProject)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "X", cursor)
}

func TestRun_FirstSyncKeepsProbedCursor(t *testing.T) {
	remote, mdb, _ := newFixture(t)
	remote.events = func(resource, cursor string) (*model.EventPage, error) {
		return nil, syncerrors.ErrCursorExpired(resource, "fresh")
	}

	runSync(t, remote, mdb, Options{Commit: true})

	assert.Equal(t, 1, remote.calls["FindProject:"+testProject])
	cursor, ok, err := mdb.Cursor(context.Background(), testProject)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "fresh", cursor)
}

func TestRun_ProbeWithoutExpiryStoresNoCursor(t *testing.T) {
	remote, mdb, _ := newFixture(t)

	runSync(t, remote, mdb, Options{Commit: true})

	assert.Equal(t, 1, remote.calls["FindProject:"+testProject])
	_, ok, err := mdb.Cursor(context.Background(), testProject)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRun_AppliesEventsSinceCursor(t *testing.T) {
	remote, mdb, _ := newFixture(t)
	seedProjectTasks(t, mdb, "40")
	ctx := context.Background()
	require.NoError(t, mdb.SaveCursor(ctx, testProject, "c1"))
	remote.addTask(testProject, "", "41")
	remote.events = func(resource, cursor string) (*model.EventPage, error) {
		switch cursor {
		case "c1":
			return &model.EventPage{
				Events: []model.Event{
					{Type: model.EventTask, Action: "changed", Resource: model.Ref{GID: "41"}},
					{Type: model.EventTask, Action: model.ActionRemoved, Resource: model.Ref{GID: "40"}},
					{Type: model.EventStory, Action: "added", Resource: model.Ref{GID: "s9"}},
				},
				Cursor:  "c2",
				HasMore: true,
			}, nil
		case "c2":
			return &model.EventPage{
				Events: []model.Event{{Type: "section", Action: "changed", Resource: model.Ref{GID: "77"}}},
				Cursor: "c3",
			}, nil
		}
		return nil, errors.New("unexpected cursor " + cursor)
	}
	kinds, err := model.SelectKinds(nil, []string{"story"})
	require.NoError(t, err)

	var out bytes.Buffer
	res := runSync(t, remote, mdb, Options{Commit: true, Kinds: kinds, Out: &out})

	assert.Empty(t, res.Errors)
	assert.Equal(t, 2, res.EventsProcessed)
	assert.Equal(t, 2, res.EventsIgnored)
	assert.Zero(t, remote.calls["FindProject:"+testProject], "no full poll")
	mustGet(t, mdb, model.KindTask, "41")
	assertMissing(t, mdb, model.KindTask, "40")
	assert.Zero(t, remote.calls["FindStory:s9"])

	cursor, _, err := mdb.Cursor(ctx, testProject)
	require.NoError(t, err)
	assert.Equal(t, "c3", cursor)
	assert.Contains(t, out.String(),
		"Successfully synced 2 events for project 10. 1 events ignored for excluded models.")
}

func TestRun_CursorWithoutLocalProjectPolls(t *testing.T) {
	remote, mdb, _ := newFixture(t)
	require.NoError(t, mdb.SaveCursor(context.Background(), testProject, "c1"))

	runSync(t, remote, mdb, Options{Commit: true})

	assert.Equal(t, 1, remote.calls["FindProject:"+testProject])
	mustGet(t, mdb, model.KindProject, testProject)
}

func TestRun_WebhookSingleton(t *testing.T) {
	remote, mdb, _ := newFixture(t)
	remote.webhooks[testProject] = []model.RemoteWebhook{
		{GID: "old1", Active: true},
		{GID: "old2", Active: false},
	}
	opts := Options{Commit: true, WebhookURL: "https://hooks.example.com/tracker/"}

	runSync(t, remote, mdb, opts)

	require.Len(t, remote.webhooks[testProject], 1)
	created := remote.webhooks[testProject][0]
	assert.Equal(t, "https://hooks.example.com/tracker/"+testProject, created.Target)
	local, err := mdb.Webhooks(context.Background(), testProject)
	require.NoError(t, err)
	require.Len(t, local, 1)
	assert.Equal(t, created.GID, local[0].RemoteID)
	assert.NotEmpty(t, local[0].Secret)
	assert.Equal(t, created.Secret, local[0].Secret)

	// Already consistent: nothing is recreated.
	runSync(t, remote, mdb, opts)
	assert.Equal(t, 1, remote.calls["CreateWebhook:"+testProject])
}

func TestRun_ArchivedProjectSkipsTasksAndWebhook(t *testing.T) {
	remote, mdb, _ := newFixture(t)
	remote.objects[testProject]["archived"] = true
	remote.addTask(testProject, "", "100")

	runSync(t, remote, mdb, Options{Commit: true, WebhookURL: "https://hooks.example.com"})

	assert.Zero(t, remote.calls["FindTask:100"])
	assert.Zero(t, remote.calls["CreateWebhook:"+testProject])
	assert.EqualValues(t, 1, mustGet(t, mdb, model.KindProject, testProject).Fields["archived"])

	runSync(t, remote, mdb, Options{Commit: true, ProcessArchived: true})
	assert.Equal(t, 1, remote.calls["FindTask:100"])
}

func TestRun_DryRunMakesNoMutations(t *testing.T) {
	remote, _, store := newFixture(t)
	remote.users[testWorkspace] = []model.Ref{remote.add(model.Payload{"gid": "5", "name": "Ann"})}
	remote.addTask(testProject, "", "100")
	remote.addTask(testProject, "", "101", "100")
	remote.webhooks[testProject] = []model.RemoteWebhook{{GID: "a"}, {GID: "b"}}
	remote.events = func(resource, cursor string) (*model.EventPage, error) {
		return nil, syncerrors.ErrCursorExpired(resource, "fresh")
	}

	res := runSync(t, remote, store, Options{WebhookURL: "https://hooks.example.com"})

	assert.True(t, res.DryRun)
	assert.Zero(t, store.mutations)
	assert.Equal(t, 1, res.Synced[model.KindWorkspace])
	assert.Equal(t, 1, res.Synced[model.KindUser])
	assert.Equal(t, 1, res.Synced[model.KindProject])
	assert.Equal(t, 2, res.Synced[model.KindTask])
	assert.Len(t, remote.webhooks[testProject], 2)
}

func TestRun_InvalidWorkspaceSelector(t *testing.T) {
	remote, _, store := newFixture(t)

	res, err := New(remote, store, Options{
		Commit:     true,
		Workspaces: []string{"Marketing", "Sales"},
		Logger:     discardLogger(),
	}).Run(context.Background())

	require.Error(t, err)
	assert.True(t, syncerrors.HasCode(err, syncerrors.CodeSelectorInvalid))
	assert.Contains(t, err.Error(), "Sales")
	require.NotNil(t, res)
	assert.Zero(t, store.mutations)
}

func TestRun_DefaultWorkspaceSelectsOnly(t *testing.T) {
	remote, mdb, _ := newFixture(t)
	remote.addWorkspace("2", "Sales")

	res := runSync(t, remote, mdb, Options{Commit: true, DefaultWorkspace: "Sales"})

	assert.Equal(t, 1, res.Workspaces)
	mustGet(t, mdb, model.KindWorkspace, "2")
	assertMissing(t, mdb, model.KindWorkspace, testWorkspace)
}

func TestRun_RemoteUnavailableAborts(t *testing.T) {
	remote, mdb, _ := newFixture(t)
	remote.addTask(testProject, "", "100")
	remote.addTask(testProject, "", "101")
	remote.failures["100"] = syncerrors.ErrRemoteUnavailable(errors.New("connection refused"))

	_, err := New(remote, mdb, Options{Commit: true, Logger: discardLogger()}).Run(context.Background())

	require.Error(t, err)
	assert.True(t, syncerrors.HasCode(err, syncerrors.CodeRemoteUnavailable))
	assert.Zero(t, remote.calls["FindTask:101"])
}

func TestRun_StoryGoneIsSkipped(t *testing.T) {
	remote, mdb, _ := newFixture(t)
	remote.addTask(testProject, "", "100")
	remote.stories["100"] = []model.Ref{{GID: "s404"}}

	res := runSync(t, remote, mdb, Options{Commit: true})

	assert.Empty(t, res.Errors)
	assert.Equal(t, 1, remote.calls["FindStory:s404"])
	assertMissing(t, mdb, model.KindStory, "s404")
}

// projectTasks lists the remote ids of the tasks linked to a project.
func projectTasks(t *testing.T, mdb *db.MirrorDB, projectID string) []string {
	t.Helper()
	project := mustGet(t, mdb, model.KindProject, projectID)
	rows, err := mdb.Filter(context.Background(), model.Query{Kind: model.KindTask, Relation: "projects", RelatedID: project.ID})
	require.NoError(t, err)
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.RemoteID)
	}
	return ids
}

func TestRun_TaskInTwoProjectsLinkedToBoth(t *testing.T) {
	remote, mdb, store := newFixture(t)
	// "20" is newer, so it is polled before the test project.
	remote.addProject(testWorkspace, "20", "Follow-up")
	remote.addTask("20", "", "7")
	remote.tasks[testProject] = append(remote.tasks[testProject], model.Ref{GID: "7"})
	remote.objects["7"]["projects"] = []any{
		map[string]any{"gid": "20"},
		map[string]any{"gid": testProject},
	}

	res := runSync(t, remote, store, Options{Commit: true})
	assert.Empty(t, res.Errors)
	assert.Equal(t, []string{"7"}, projectTasks(t, mdb, "20"))
	assert.Equal(t, []string{"7"}, projectTasks(t, mdb, testProject))
	assert.Equal(t, 1, remote.calls["FindTask:7"])
	assert.Equal(t, 1, store.upserts["task:7"])

	// A second run neither adds nor loses links.
	res = runSync(t, remote, mdb, Options{Commit: true})
	assert.Empty(t, res.Errors)
	assert.Empty(t, res.Pruned)
	assert.Equal(t, []string{"7"}, projectTasks(t, mdb, "20"))
	assert.Equal(t, []string{"7"}, projectTasks(t, mdb, testProject))
}

func TestRun_RemovedProjectEventDeletesProject(t *testing.T) {
	remote, mdb, _ := newFixture(t)
	seedProjectTasks(t, mdb, "40")
	ctx := context.Background()
	require.NoError(t, mdb.SaveCursor(ctx, testProject, "c1"))
	remote.events = func(resource, cursor string) (*model.EventPage, error) {
		return &model.EventPage{
			Events: []model.Event{{Type: model.EventProject, Action: model.ActionRemoved, Resource: model.Ref{GID: testProject}}},
			Cursor: "c2",
		}, nil
	}

	res := runSync(t, remote, mdb, Options{Commit: true, WebhookURL: "https://hooks.example.com"})

	assert.Empty(t, res.Errors)
	assert.Equal(t, 1, res.EventsProcessed)
	assert.Equal(t, 1, res.Deleted[model.KindProject])
	assertMissing(t, mdb, model.KindProject, testProject)
	assert.Zero(t, remote.calls["FindProject:"+testProject])
	assert.Zero(t, remote.calls["CreateWebhook:"+testProject], "no subscription for a removed project")
}

func TestRun_ChangedProjectEventPollsProject(t *testing.T) {
	remote, mdb, _ := newFixture(t)
	seedProjectTasks(t, mdb, "40")
	ctx := context.Background()
	require.NoError(t, mdb.SaveCursor(ctx, testProject, "c1"))
	remote.objects[testProject]["name"] = "Launch v2"
	remote.addTask(testProject, "", "100")
	remote.events = func(resource, cursor string) (*model.EventPage, error) {
		return &model.EventPage{
			Events: []model.Event{{Type: model.EventProject, Action: "changed", Resource: model.Ref{GID: testProject}}},
			Cursor: "c2",
		}, nil
	}

	res := runSync(t, remote, mdb, Options{Commit: true, WebhookURL: "https://hooks.example.com"})

	assert.Empty(t, res.Errors)
	assert.Equal(t, 1, remote.calls["FindProject:"+testProject])
	assert.Equal(t, "Launch v2", mustGet(t, mdb, model.KindProject, testProject).Fields["name"])
	assert.Equal(t, []string{"100"}, projectTasks(t, mdb, testProject))
	assertMissing(t, mdb, model.KindTask, "40")
	assert.Equal(t, 1, remote.calls["CreateWebhook:"+testProject])

	cursor, _, err := mdb.Cursor(ctx, testProject)
	require.NoError(t, err)
	assert.Equal(t, "c2", cursor)
}

func TestRun_ArchivedByProjectEventSkipsWebhook(t *testing.T) {
	remote, mdb, _ := newFixture(t)
	seedProjectTasks(t, mdb)
	require.NoError(t, mdb.SaveCursor(context.Background(), testProject, "c1"))
	remote.objects[testProject]["archived"] = true
	remote.events = func(resource, cursor string) (*model.EventPage, error) {
		return &model.EventPage{
			Events: []model.Event{{Type: model.EventProject, Action: "changed", Resource: model.Ref{GID: testProject}}},
			Cursor: "c2",
		}, nil
	}

	runSync(t, remote, mdb, Options{Commit: true, WebhookURL: "https://hooks.example.com"})

	assert.Zero(t, remote.calls["CreateWebhook:"+testProject])
}

func TestProcessEvents_ExcludedProjectKindIgnored(t *testing.T) {
	remote, _, store := newFixture(t)
	kinds, err := model.SelectKinds(nil, []string{"project"})
	require.NoError(t, err)
	r := New(remote, store, Options{Commit: true, Kinds: kinds, Logger: discardLogger()}).newRun()
	ps := &projectSync{ws: &workspaceScope{id: testWorkspace}, id: testProject}

	err = r.processEvents(context.Background(), ps, nil, []model.Event{
		{Type: model.EventProject, Action: "changed", Resource: model.Ref{GID: testProject}},
		{Type: model.EventProject, Action: model.ActionRemoved, Resource: model.Ref{GID: testProject}},
	})

	require.NoError(t, err)
	assert.Zero(t, r.result.EventsProcessed)
	assert.Equal(t, 2, r.result.EventsIgnored)
	assert.Zero(t, remote.calls["FindProject:"+testProject])
	assert.Zero(t, store.mutations)
	assert.False(t, ps.inactive)
}
