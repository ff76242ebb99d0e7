package synchronizer

import (
	"context"

	"github.com/randalmurphal/tasksync/internal/model"
)

// eventKind maps an event resource type onto the kind it changes.
func eventKind(typ string) (model.Kind, bool) {
	switch typ {
	case model.EventProject:
		return model.KindProject, true
	case model.EventTask:
		return model.KindTask, true
	case model.EventStory:
		return model.KindStory, true
	default:
		return "", false
	}
}

// processEvents applies one page of a project's change feed in order.
// Events of excluded kinds and of types the mirror does not track are
// counted as ignored.
func (r *run) processEvents(ctx context.Context, ps *projectSync, project *model.Row, events []model.Event) error {
	processed, ignored := 0, 0
	for _, ev := range events {
		k, ok := eventKind(ev.Type)
		if !ok || !r.opts.Kinds.Has(k) {
			r.log.Debug("event ignored", "type", ev.Type, "action", ev.Action, "resource", ev.Resource.GID)
			ignored++
			continue
		}
		processed++
		if err := r.applyEvent(ctx, ps, project, k, ev); err != nil {
			if k == model.KindTask {
				r.failed[ev.Resource.GID] = true
			}
			if err := r.fail(k, ev.Resource.GID, err); err != nil {
				return err
			}
		}
	}

	r.result.EventsProcessed += processed
	r.result.EventsIgnored += ignored
	if r.opts.Commit && processed+ignored > 0 {
		msg := "Successfully synced %d events for project %s."
		args := []any{processed, ps.id}
		if ignored > 0 {
			msg += " %d events ignored for excluded models."
			args = append(args, ignored)
		}
		r.report.Success(msg, args...)
	}
	return nil
}

func (r *run) applyEvent(ctx context.Context, ps *projectSync, project *model.Row, k model.Kind, ev model.Event) error {
	r.log.Debug("event", "type", ev.Type, "action", ev.Action, "resource", ev.Resource.GID)
	removed := ev.Action == model.ActionRemoved

	switch k {
	case model.KindProject:
		self := ev.Resource.GID == ps.id
		if removed {
			if self {
				ps.inactive = true
			}
			return r.remove(ctx, model.KindProject, ev.Resource.GID)
		}
		archived, err := r.pollProject(ctx, ps.ws, ev.Resource.GID)
		if self {
			ps.inactive = archived
		}
		return err
	case model.KindTask:
		if removed {
			return r.remove(ctx, model.KindTask, ev.Resource.GID)
		}
		return r.walk(ctx, []model.Ref{ev.Resource}, project)
	default:
		if removed {
			return r.remove(ctx, model.KindStory, ev.Resource.GID)
		}
		return r.syncStory(ctx, ev.Resource)
	}
}
