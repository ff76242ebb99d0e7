package synchronizer

import (
	"context"
	"fmt"

	syncerrors "github.com/randalmurphal/tasksync/internal/errors"
	"github.com/randalmurphal/tasksync/internal/model"
)

// dryRun counts a would-be upsert of kind k and reports whether the run is
// a dry run. Adapters return right after it in that case.
func (r *run) dryRun(k model.Kind) bool {
	if r.opts.Commit {
		return false
	}
	r.result.Synced[k]++
	return true
}

// save projects p onto the local schema of k and upserts it.
func (r *run) save(ctx context.Context, k model.Kind, p model.Payload) (*model.Row, error) {
	remoteID := p.GID()
	if remoteID == "" {
		return nil, fmt.Errorf("%s payload without gid", k)
	}
	row, err := r.store.Upsert(ctx, k, remoteID, projectFields(k, p))
	if err != nil {
		return nil, err
	}
	r.result.Synced[k]++
	r.log.Debug("upserted", "kind", k, "remote_id", remoteID, "id", row.ID)
	return row, nil
}

// remove deletes the local row of kind k with remoteID, if any.
func (r *run) remove(ctx context.Context, k model.Kind, remoteID string) error {
	if !r.opts.Commit {
		return nil
	}
	deleted, err := r.store.Delete(ctx, k, remoteID)
	if err != nil {
		return err
	}
	if deleted {
		r.result.Deleted[k]++
		r.log.Debug("deleted", "kind", k, "remote_id", remoteID)
	}
	if k == model.KindTask {
		delete(r.tasks, remoteID)
	}
	return nil
}

// lookup returns the local row of kind k with remoteID, or nil.
func (r *run) lookup(ctx context.Context, k model.Kind, remoteID string) (*model.Row, error) {
	if k == model.KindTask {
		if row := r.tasks[remoteID]; row != nil {
			return row, nil
		}
	}
	row, err := r.store.Get(ctx, k, remoteID)
	if syncerrors.HasCode(err, syncerrors.CodeStoreNotFound) {
		return nil, nil
	}
	return row, err
}

// lookupAll returns the local rows of refs that exist, in ref order.
func (r *run) lookupAll(ctx context.Context, k model.Kind, refs []model.Ref) ([]model.Row, error) {
	rows := make([]model.Row, 0, len(refs))
	for _, ref := range refs {
		row, err := r.lookup(ctx, k, ref.GID)
		if err != nil {
			return nil, err
		}
		if row != nil {
			rows = append(rows, *row)
		}
	}
	return rows, nil
}

// resolveRef replaces the nested reference p[field] with column, holding
// the local id of the referenced row of kind k. A null reference, or one to
// a row not mirrored locally, clears the column. An absent field leaves the
// column untouched.
func (r *run) resolveRef(ctx context.Context, p model.Payload, field, column string, k model.Kind) error {
	if _, ok := p[field]; !ok {
		return nil
	}
	ref := p.Ref(field)
	if ref == nil {
		p[column] = nil
		return nil
	}
	row, err := r.lookup(ctx, k, ref.GID)
	if err != nil {
		return err
	}
	if row == nil {
		p[column] = nil
		return nil
	}
	p[column] = row.ID
	return nil
}

func (r *run) upsertWorkspace(ctx context.Context, p model.Payload) (*model.Row, error) {
	if r.dryRun(model.KindWorkspace) {
		return nil, nil
	}
	row, err := r.save(ctx, model.KindWorkspace, p)
	if err != nil {
		return nil, fmt.Errorf("save workspace %s: %w", p.GID(), err)
	}
	return row, nil
}

func (r *run) syncUser(ctx context.Context, ref model.Ref, ws *workspaceScope) error {
	p, err := r.remote.FindUser(ctx, ref.GID)
	if err != nil {
		return r.gone(ctx, model.KindUser, ref.GID, err)
	}
	r.log.Debug("sync user", "remote_id", ref.GID, "payload", p)
	if r.dryRun(model.KindUser) {
		return nil
	}

	p.Refs("workspaces")
	if photo, ok := p["photo"].(map[string]any); ok {
		p["photo"] = photo["image_128x128"]
	}
	row, err := r.save(ctx, model.KindUser, p)
	if err != nil {
		return err
	}
	if ws.row != nil {
		return r.store.AddRelation(ctx, row, "workspaces", ws.row)
	}
	return nil
}

func (r *run) syncTag(ctx context.Context, ref model.Ref, ws *workspaceScope) error {
	p, err := r.remote.FindTag(ctx, ref.GID)
	if err != nil {
		return r.gone(ctx, model.KindTag, ref.GID, err)
	}
	r.log.Debug("sync tag", "remote_id", ref.GID, "payload", p)
	if r.dryRun(model.KindTag) {
		return nil
	}

	followers := p.Refs("followers")
	p.Ref("workspace")
	if ws.row != nil {
		p["workspace_id"] = ws.row.ID
	}
	row, err := r.save(ctx, model.KindTag, p)
	if err != nil {
		return err
	}
	users, err := r.lookupAll(ctx, model.KindUser, followers)
	if err != nil {
		return err
	}
	return r.store.SetRelation(ctx, row, "followers", users)
}

func (r *run) syncTeam(ctx context.Context, ref model.Ref) error {
	p, err := r.remote.FindTeam(ctx, ref.GID)
	if err != nil {
		return r.gone(ctx, model.KindTeam, ref.GID, err)
	}
	r.log.Debug("sync team", "remote_id", ref.GID, "payload", p)
	if r.dryRun(model.KindTeam) {
		return nil
	}

	if org := p.Ref("organization"); org != nil {
		p["organization_id"] = org.GID
		p["organization_name"] = org.Name
	}
	_, err = r.save(ctx, model.KindTeam, p)
	return err
}

func (r *run) upsertProject(ctx context.Context, p model.Payload) (*model.Row, error) {
	if r.dryRun(model.KindProject) {
		return nil, nil
	}
	if err := r.resolveRef(ctx, p, "workspace", "workspace_id", model.KindWorkspace); err != nil {
		return nil, err
	}
	if err := r.resolveRef(ctx, p, "team", "team_id", model.KindTeam); err != nil {
		return nil, err
	}
	if err := r.resolveRef(ctx, p, "owner", "owner_id", model.KindUser); err != nil {
		return nil, err
	}
	return r.save(ctx, model.KindProject, p)
}

// upsertTask saves a task whose parent and dependencies the walker has
// already taken out of p, and links it to project and its tags.
func (r *run) upsertTask(ctx context.Context, p model.Payload, project *model.Row) (*model.Row, error) {
	if err := r.resolveRef(ctx, p, "assignee", "assignee_id", model.KindUser); err != nil {
		return nil, err
	}
	projects := p.Refs("projects")
	tags := p.Refs("tags")

	row, err := r.save(ctx, model.KindTask, p)
	if err != nil {
		return nil, err
	}

	if project != nil {
		if err := r.store.AddRelation(ctx, row, "projects", project); err != nil {
			return nil, err
		}
	}
	others, err := r.lookupAll(ctx, model.KindProject, projects)
	if err != nil {
		return nil, err
	}
	for i := range others {
		if project != nil && others[i].ID == project.ID {
			continue
		}
		if err := r.store.AddRelation(ctx, row, "projects", &others[i]); err != nil {
			return nil, err
		}
	}

	if r.opts.Kinds.Has(model.KindTag) {
		tagRows := make([]model.Row, 0, len(tags))
		for _, tag := range tags {
			tagRow, err := r.store.Upsert(ctx, model.KindTag, tag.GID, map[string]any{"name": tag.Name})
			if err != nil {
				return nil, err
			}
			tagRows = append(tagRows, *tagRow)
		}
		if err := r.store.SetRelation(ctx, row, "tags", tagRows); err != nil {
			return nil, err
		}
	}
	return row, nil
}

// syncStory fetches and saves one story. Stories deleted remotely between
// notification and fetch are skipped.
func (r *run) syncStory(ctx context.Context, ref model.Ref) error {
	p, err := r.remote.FindStory(ctx, ref.GID)
	if err != nil {
		if syncerrors.IsGone(err) {
			r.log.Info("story no longer available", "remote_id", ref.GID, "error", err)
			return nil
		}
		return err
	}
	r.log.Debug("sync story", "remote_id", ref.GID, "payload", p)
	if r.dryRun(model.KindStory) {
		return nil
	}

	if err := r.resolveRef(ctx, p, "target", "target_id", model.KindTask); err != nil {
		return err
	}
	if err := r.resolveRef(ctx, p, "created_by", "created_by_id", model.KindUser); err != nil {
		return err
	}
	_, err = r.save(ctx, model.KindStory, p)
	return err
}

func (r *run) syncAttachment(ctx context.Context, ref model.Ref, task *model.Row) error {
	p, err := r.remote.FindAttachment(ctx, ref.GID)
	if err != nil {
		return r.gone(ctx, model.KindAttachment, ref.GID, err)
	}
	r.log.Debug("sync attachment", "remote_id", ref.GID, "payload", p)
	if r.dryRun(model.KindAttachment) {
		return nil
	}

	if task != nil {
		p.Ref("parent")
		p["parent_id"] = task.ID
	} else if err := r.resolveRef(ctx, p, "parent", "parent_id", model.KindTask); err != nil {
		return err
	}
	_, err = r.save(ctx, model.KindAttachment, p)
	return err
}

// gone handles a failed fetch. When the remote object is missing or
// forbidden, its local row is deleted and nil returned; other errors pass
// through.
func (r *run) gone(ctx context.Context, k model.Kind, remoteID string, err error) error {
	if !syncerrors.IsGone(err) {
		return err
	}
	r.log.Info("remote object gone", "kind", k, "remote_id", remoteID, "error", err)
	return r.remove(ctx, k, remoteID)
}
