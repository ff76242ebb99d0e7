package synchronizer

import (
	"context"
	"fmt"

	syncerrors "github.com/randalmurphal/tasksync/internal/errors"
	"github.com/randalmurphal/tasksync/internal/model"
)

// projectState is a step of the per-project sync decision.
type projectState int

const (
	stateNoCursor projectState = iota
	stateHasCursor
	stateCursorExpired
	stateFullPoll
	stateDone
)

func (s projectState) String() string {
	switch s {
	case stateNoCursor:
		return "no_cursor"
	case stateHasCursor:
		return "has_cursor"
	case stateCursorExpired:
		return "cursor_expired"
	case stateFullPoll:
		return "full_poll"
	case stateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// projectSync carries one project through the state machine.
type projectSync struct {
	ws *workspaceScope
	id string
	// cursor is the stored cursor, empty when there is none.
	cursor string
	// newCursor is a fresh cursor the remote issued on expiry. It is stored
	// after the full poll.
	newCursor string
	// inactive is set when the feed removed or archived the project, or it
	// is gone from the remote. No webhook is reconciled for it.
	inactive bool
}

// syncProject brings one project up to date, either from its change feed or
// by a full poll.
func (r *run) syncProject(ctx context.Context, ws *workspaceScope, projectID string) error {
	cursor, ok, err := r.store.Cursor(ctx, projectID)
	if err != nil {
		return fmt.Errorf("load cursor of project %s: %w", projectID, err)
	}
	ps := &projectSync{ws: ws, id: projectID, cursor: cursor}

	state := stateNoCursor
	if ok && cursor != "" {
		state = stateHasCursor
	}
	for state != stateDone {
		r.log.Debug("project sync", "project", projectID, "state", state)
		switch state {
		case stateNoCursor:
			state, err = r.probeCursor(ctx, ps)
		case stateHasCursor:
			state, err = r.syncEvents(ctx, ps)
		case stateCursorExpired:
			state, err = r.adoptCursor(ctx, ps)
		case stateFullPoll:
			state, err = r.fullPoll(ctx, ps)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// probeCursor asks the feed for a cursor. An expiry carries a fresh cursor
// which is kept for after the poll; a first sync is always a full poll.
func (r *run) probeCursor(ctx context.Context, ps *projectSync) (projectState, error) {
	_, err := r.remote.Events(ctx, ps.id, "")
	if err != nil {
		fresh, ok := syncerrors.FreshCursor(err)
		if !ok {
			return stateDone, fmt.Errorf("probe events of project %s: %w", ps.id, err)
		}
		ps.newCursor = fresh
	}
	if err := r.pace.wait(ctx); err != nil {
		return stateDone, err
	}
	return stateFullPoll, nil
}

// syncEvents applies every event since the stored cursor.
func (r *run) syncEvents(ctx context.Context, ps *projectSync) (projectState, error) {
	project, err := r.lookup(ctx, model.KindProject, ps.id)
	if err != nil {
		return stateDone, err
	}
	if r.opts.Commit && project == nil {
		r.log.Info("project has a cursor but no local row", "project", ps.id)
		return stateNoCursor, nil
	}

	cursor := ps.cursor
	for {
		page, err := r.remote.Events(ctx, ps.id, cursor)
		if err != nil {
			if fresh, ok := syncerrors.FreshCursor(err); ok {
				ps.newCursor = fresh
				return stateCursorExpired, nil
			}
			return stateDone, fmt.Errorf("fetch events of project %s: %w", ps.id, err)
		}
		if err := r.processEvents(ctx, ps, project, page.Events); err != nil {
			return stateDone, err
		}
		if page.Cursor != "" {
			cursor = page.Cursor
		}
		if err := r.pace.wait(ctx); err != nil {
			return stateDone, err
		}
		if !page.HasMore {
			break
		}
	}

	if r.opts.Commit && cursor != ps.cursor {
		if err := r.store.SaveCursor(ctx, ps.id, cursor); err != nil {
			return stateDone, err
		}
	}
	if ps.inactive {
		r.log.Info("project removed or archived by its feed, skipping webhook", "project", ps.id)
		return stateDone, nil
	}
	return stateDone, r.reconcileWebhook(ctx, ps.ws.id, ps.id)
}

// adoptCursor replaces an expired cursor with the fresh one.
func (r *run) adoptCursor(ctx context.Context, ps *projectSync) (projectState, error) {
	r.log.Info("cursor expired, falling back to full poll", "project", ps.id)
	if r.opts.Commit {
		if err := r.store.SaveCursor(ctx, ps.id, ps.newCursor); err != nil {
			return stateDone, err
		}
	}
	return stateFullPoll, nil
}

func (r *run) fullPoll(ctx context.Context, ps *projectSync) (projectState, error) {
	archived, err := r.pollProject(ctx, ps.ws, ps.id)
	if err != nil {
		return stateDone, err
	}
	if !archived {
		if err := r.reconcileWebhook(ctx, ps.ws.id, ps.id); err != nil {
			return stateDone, err
		}
	}
	// No fresh cursor leaves the stored one as it was.
	if r.opts.Commit && ps.newCursor != "" {
		if err := r.store.SaveCursor(ctx, ps.id, ps.newCursor); err != nil {
			return stateDone, err
		}
	}
	return stateDone, nil
}

// pollProject fetches the project, upserts it, walks its tasks and prunes
// local tasks the walk did not see. It reports whether the project is
// archived; a project gone from the remote counts as archived since there is
// nothing to subscribe to.
func (r *run) pollProject(ctx context.Context, ws *workspaceScope, projectID string) (bool, error) {
	p, err := r.remote.FindProject(ctx, projectID)
	if err != nil {
		if syncerrors.IsGone(err) {
			return true, r.gone(ctx, model.KindProject, projectID, err)
		}
		return false, fmt.Errorf("fetch project %s: %w", projectID, err)
	}
	archived, _ := p["archived"].(bool)
	name := p.Name()
	r.log.Debug("sync project", "project", name, "archived", archived, "payload", p)

	row, err := r.upsertProject(ctx, p)
	if err != nil {
		return archived, fmt.Errorf("save project %s: %w", projectID, err)
	}
	if err := r.pace.wait(ctx); err != nil {
		return archived, err
	}

	if r.opts.Kinds.Has(model.KindTask) && (!archived || r.opts.ProcessArchived) {
		refs, err := r.remote.ListTasksInProject(ctx, projectID)
		if err != nil {
			return archived, fmt.Errorf("list tasks of project %s: %w", projectID, err)
		}
		if err := r.walk(ctx, refs, row); err != nil {
			return archived, err
		}
		if row != nil {
			if err := r.prune(ctx, row); err != nil {
				return archived, err
			}
		}
	}

	if row != nil {
		r.report.Success("Successfully synced project %s.", name)
	}
	return archived, nil
}

// prune deletes the project's local tasks that this run did not see.
// Tasks without a remote id are never pruned, nor are tasks whose sync
// failed.
func (r *run) prune(ctx context.Context, project *model.Row) error {
	rows, err := r.store.Filter(ctx, model.Query{
		Kind:      model.KindTask,
		Relation:  "projects",
		RelatedID: project.ID,
	})
	if err != nil {
		return fmt.Errorf("list local tasks of project %s: %w", project.RemoteID, err)
	}

	var pruned []string
	for _, row := range rows {
		if row.RemoteID == "" || r.visited[row.RemoteID] || r.failed[row.RemoteID] {
			continue
		}
		if _, err := r.store.Delete(ctx, model.KindTask, row.RemoteID); err != nil {
			return err
		}
		pruned = append(pruned, row.RemoteID)
	}
	if len(pruned) == 0 {
		return nil
	}
	r.result.Deleted[model.KindTask] += len(pruned)
	r.result.Pruned = append(r.result.Pruned, pruned...)
	r.report.Info("Deleted %d tasks no longer present: %v", len(pruned), pruned)
	return nil
}
