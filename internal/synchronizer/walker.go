package synchronizer

import (
	"context"
	stderrors "errors"
	"fmt"

	syncerrors "github.com/randalmurphal/tasksync/internal/errors"
	"github.com/randalmurphal/tasksync/internal/model"
)

// taskStage is how far a task frame has progressed.
type taskStage int

const (
	// stageFetch fetches the task unless this run already has it.
	stageFetch taskStage = iota
	// stageSave upserts the fetched task once its parent is stored.
	stageSave
	// stageFinish links dependencies and syncs attachments and stories.
	stageFinish
)

// taskFrame is one unit of work on the walker's stack.
type taskFrame struct {
	ref   model.Ref
	stage taskStage
	// skip keeps the walk from descending into subtasks and dependencies.
	// Set when the task is synced as the missing parent of another task.
	skip bool

	// stageSave
	payload     model.Payload
	parent      *model.Ref
	deps        []model.Ref
	parentTried bool

	// stageFinish
	row      *model.Row
	setDeps  bool
	children bool
}

// walker syncs task graphs depth first with an explicit stack. Parents are
// stored before their children, and each task id is fetched and upserted at
// most once per run, cycles included.
type walker struct {
	r       *run
	project *model.Row
	stack   []*taskFrame
	// pending holds fetched tasks waiting on their parent.
	pending map[string]bool
}

// walk syncs the task graphs rooted at refs. project, when set, is linked
// to every task stored. Failures are recorded per task; only fatal errors
// are returned.
func (r *run) walk(ctx context.Context, refs []model.Ref, project *model.Row) error {
	w := &walker{
		r:       r,
		project: project,
		stack:   make([]*taskFrame, 0, len(refs)),
		pending: make(map[string]bool),
	}
	for i := len(refs) - 1; i >= 0; i-- {
		w.push(&taskFrame{ref: refs[i]})
	}
	return w.run(ctx)
}

func (w *walker) push(f *taskFrame) {
	w.stack = append(w.stack, f)
}

func (w *walker) pop() *taskFrame {
	f := w.stack[len(w.stack)-1]
	w.stack[len(w.stack)-1] = nil
	w.stack = w.stack[:len(w.stack)-1]
	return f
}

func (w *walker) run(ctx context.Context) error {
	for len(w.stack) > 0 {
		f := w.pop()

		var err error
		switch f.stage {
		case stageFetch:
			err = w.fetch(ctx, f)
		case stageSave:
			err = w.save(ctx, f)
		case stageFinish:
			err = w.finish(ctx, f)
		}
		if err == nil {
			continue
		}

		gid := f.ref.GID
		delete(w.pending, gid)
		w.r.failed[gid] = true
		if err := w.r.fail(model.KindTask, gid, err); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) fetch(ctx context.Context, f *taskFrame) error {
	r := w.r
	gid := f.ref.GID
	if w.pending[gid] {
		return nil
	}
	if r.visited[gid] {
		row := r.tasks[gid]
		if row == nil {
			return nil
		}
		// Already stored under another project this run. It still belongs
		// to this one.
		if w.project != nil {
			if err := r.store.AddRelation(ctx, row, "projects", w.project); err != nil {
				return fmt.Errorf("link task %s to project %s: %w", gid, w.project.RemoteID, err)
			}
		}
		// Stored earlier as a parent without its subtree.
		if !f.skip && !r.expanded[gid] {
			return w.expand(ctx, gid, row, r.deferred[gid], false)
		}
		return nil
	}

	p, err := r.remote.FindTask(ctx, gid)
	if perr := r.pace.wait(ctx); perr != nil {
		return perr
	}
	if err != nil {
		if syncerrors.IsGone(err) {
			r.visited[gid] = true
			r.expanded[gid] = true
		}
		return r.gone(ctx, model.KindTask, gid, err)
	}
	r.log.Debug("sync task", "remote_id", gid, "payload", p)

	if r.dryRun(model.KindTask) {
		r.visited[gid] = true
		r.expanded[gid] = true
		return nil
	}

	f.parent = p.Ref("parent")
	f.deps = p.Refs("dependencies")
	f.payload = p
	f.stage = stageSave
	w.pending[gid] = true
	w.push(f)
	return nil
}

func (w *walker) save(ctx context.Context, f *taskFrame) error {
	r := w.r
	gid := f.ref.GID

	var parentID any
	if f.parent != nil {
		pgid := f.parent.GID
		parent, err := r.lookup(ctx, model.KindTask, pgid)
		if err != nil {
			return err
		}
		if parent == nil && !f.parentTried && !r.visited[pgid] && !w.pending[pgid] {
			f.parentTried = true
			w.push(f)
			w.push(&taskFrame{ref: *f.parent, skip: true})
			return nil
		}
		if parent != nil {
			parentID = parent.ID
		} else {
			r.log.Debug("task parent not stored", "remote_id", gid, "parent", pgid)
		}
	}
	f.payload["parent_id"] = parentID

	row, err := r.upsertTask(ctx, f.payload, w.project)
	delete(w.pending, gid)
	if err != nil {
		return fmt.Errorf("save task %s: %w", gid, err)
	}
	r.visited[gid] = true
	r.tasks[gid] = row

	if f.skip {
		r.deferred[gid] = f.deps
		w.push(&taskFrame{ref: f.ref, stage: stageFinish, row: row, children: true})
		return nil
	}
	return w.expand(ctx, gid, row, f.deps, true)
}

// expand queues the subtasks and dependencies of a stored task, then a
// finish frame that runs after all of them.
func (w *walker) expand(ctx context.Context, gid string, row *model.Row, deps []model.Ref, children bool) error {
	r := w.r
	r.expanded[gid] = true
	delete(r.deferred, gid)

	w.push(&taskFrame{
		ref:      model.Ref{GID: gid},
		stage:    stageFinish,
		row:      row,
		deps:     deps,
		setDeps:  true,
		children: children,
	})
	for i := len(deps) - 1; i >= 0; i-- {
		if !r.expanded[deps[i].GID] {
			w.push(&taskFrame{ref: deps[i]})
		}
	}

	subtasks, err := r.remote.ListSubtasks(ctx, gid)
	if perr := r.pace.wait(ctx); perr != nil {
		return perr
	}
	if err != nil {
		return fmt.Errorf("list subtasks of %s: %w", gid, err)
	}
	for i := len(subtasks) - 1; i >= 0; i-- {
		if !r.expanded[subtasks[i].GID] {
			w.push(&taskFrame{ref: subtasks[i]})
		}
	}
	return nil
}

func (w *walker) finish(ctx context.Context, f *taskFrame) error {
	r := w.r
	var errs []error
	if f.setDeps {
		deps, err := r.lookupAll(ctx, model.KindTask, f.deps)
		if err == nil {
			err = r.store.SetRelation(ctx, f.row, "dependencies", deps)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("link dependencies of %s: %w", f.ref.GID, err))
		}
	}
	if f.children {
		if err := w.syncChildren(ctx, f.ref.GID, f.row); err != nil {
			return err
		}
	}
	return stderrors.Join(errs...)
}

// syncChildren syncs the attachments and stories of one task. Each is
// fetched and stored on its own; failures are recorded and skipped.
func (w *walker) syncChildren(ctx context.Context, gid string, task *model.Row) error {
	r := w.r
	if r.opts.Kinds.Has(model.KindAttachment) {
		refs, err := r.remote.ListAttachments(ctx, gid)
		if err := w.each(ctx, model.KindAttachment, gid, refs, err, func(ref model.Ref) error {
			return r.syncAttachment(ctx, ref, task)
		}); err != nil {
			return err
		}
	}
	if r.opts.Kinds.Has(model.KindStory) {
		refs, err := r.remote.ListStories(ctx, gid)
		if err := w.each(ctx, model.KindStory, gid, refs, err, func(ref model.Ref) error {
			return r.syncStory(ctx, ref)
		}); err != nil {
			return err
		}
	}
	return nil
}

// each runs sync over a listing of kind k under task gid. listErr is the
// error of the listing call itself. Only fatal errors are returned.
func (w *walker) each(ctx context.Context, k model.Kind, gid string, refs []model.Ref, listErr error, sync func(model.Ref) error) error {
	r := w.r
	if err := r.pace.wait(ctx); err != nil {
		return err
	}
	if listErr != nil {
		return r.fail(k, gid, fmt.Errorf("list %ss of task %s: %w", k, gid, listErr))
	}
	for _, ref := range refs {
		if err := sync(ref); err != nil {
			if err := r.fail(k, ref.GID, err); err != nil {
				return err
			}
		}
		if err := r.pace.wait(ctx); err != nil {
			return err
		}
	}
	return nil
}
