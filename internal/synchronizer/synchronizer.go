// Package synchronizer mirrors a remote work tracker into the local store.
//
// One Run walks the selected workspaces and, within each, the selected
// projects. A project with a stored cursor is brought up to date from its
// change feed; any other project is fully polled, its task graph walked, and
// local tasks the poll did not see are pruned. Every project then has its
// push subscription reconciled so exactly one is active.
package synchronizer

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	syncerrors "github.com/randalmurphal/tasksync/internal/errors"
	"github.com/randalmurphal/tasksync/internal/model"
)

// Options controls one synchronization run.
type Options struct {
	// Workspaces and Projects select scopes by remote id or name. Empty
	// selects everything.
	Workspaces []string
	Projects   []string
	// DefaultWorkspace is appended to Workspaces when set.
	DefaultWorkspace string
	// Kinds are the entity kinds to sync. Nil syncs every kind.
	Kinds model.KindSet
	// Commit writes to the store. False is a dry run: remote reads happen,
	// store mutations do not.
	Commit bool
	// ProcessArchived walks the tasks of archived projects too.
	ProcessArchived bool
	// WebhookURL is the callback base for push subscriptions. Empty disables
	// webhook reconciliation.
	WebhookURL string
	// Delay is the fixed pause between remote calls in a loop.
	Delay time.Duration
	// Out receives human-readable progress lines. Optional.
	Out io.Writer
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Synchronizer runs synchronization passes.
type Synchronizer struct {
	remote Remote
	store  Mirror
	opts   Options
	logger *slog.Logger
}

// New creates a Synchronizer.
func New(remote Remote, store Mirror, opts Options) *Synchronizer {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Kinds == nil {
		opts.Kinds, _ = model.SelectKinds(nil, nil)
	}
	return &Synchronizer{
		remote: remote,
		store:  store,
		opts:   opts,
		logger: opts.Logger,
	}
}

// run is the state of one Run call. Nothing in it outlives the call.
type run struct {
	*Synchronizer
	log    *slog.Logger
	report *reporter
	pace   pacer
	result *Result

	// visited holds the remote ids of tasks upserted in this run.
	visited map[string]bool
	// expanded holds the tasks whose subtasks and dependencies were walked.
	expanded map[string]bool
	// deferred keeps the dependencies of tasks upserted without expansion.
	deferred map[string][]model.Ref
	// tasks caches the rows of visited tasks.
	tasks map[string]*model.Row
	// failed holds tasks whose sync errored. Pruning leaves them alone.
	failed map[string]bool
}

// Run executes one synchronization pass. The returned Result is non-nil even
// when the pass aborts, and reflects what was done up to that point.
func (s *Synchronizer) Run(ctx context.Context) (*Result, error) {
	r := s.newRun()
	log := r.log

	log.Info("sync started", "commit", s.opts.Commit, "kinds", s.opts.Kinds.Names())

	selectors := append([]string(nil), s.opts.Workspaces...)
	if s.opts.DefaultWorkspace != "" {
		selectors = append(selectors, s.opts.DefaultWorkspace)
	}
	workspaces, err := s.remote.ListWorkspaces(ctx)
	if err != nil {
		return r.result, fmt.Errorf("list workspaces: %w", err)
	}
	ids, err := resolveSelectors("workspace", workspaces, selectors)
	if err != nil {
		return r.result, err
	}

	for _, id := range ids {
		if err := r.syncWorkspace(ctx, id); err != nil {
			return r.result, err
		}
		r.result.Workspaces++
	}

	log.Info("sync finished",
		"synced", r.result.TotalSynced(),
		"events", r.result.EventsProcessed,
		"errors", len(r.result.Errors),
	)
	return r.result, nil
}

func (s *Synchronizer) newRun() *run {
	runID := uuid.NewString()
	log := s.logger.With("run_id", runID)
	return &run{
		Synchronizer: s,
		log:          log,
		report:       newReporter(s.opts.Out, log),
		pace:         pacer{delay: s.opts.Delay},
		result:       newResult(runID, !s.opts.Commit),
		visited:      make(map[string]bool),
		expanded:     make(map[string]bool),
		deferred:     make(map[string][]model.Ref),
		tasks:        make(map[string]*model.Row),
		failed:       make(map[string]bool),
	}
}

// resolveSelectors maps id-or-name selectors onto remote ids, newest first.
// With no selectors every ref is selected.
func resolveSelectors(scope string, refs []model.Ref, selectors []string) ([]string, error) {
	seen := make(map[string]bool)
	var ids []string
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	if len(selectors) == 0 {
		for _, ref := range refs {
			add(ref.GID)
		}
	} else {
		var bad []string
		for _, sel := range selectors {
			found := false
			for _, ref := range refs {
				if sel == ref.GID || sel == ref.Name {
					add(ref.GID)
					found = true
					break
				}
			}
			if !found {
				bad = append(bad, sel)
			}
		}
		if len(bad) > 0 {
			return nil, syncerrors.ErrSelectorInvalid(scope, bad)
		}
	}

	sortNewestFirst(ids)
	return ids, nil
}

// sortNewestFirst orders remote ids newest first. Ids are allocated in
// increasing numeric order, so longer ids are newer and equal lengths
// compare as text.
func sortNewestFirst(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		if len(ids[i]) != len(ids[j]) {
			return len(ids[i]) > len(ids[j])
		}
		return ids[i] > ids[j]
	})
}

// workspaceScope is the workspace being synced. row is nil when the
// Workspace kind is excluded or in a dry run.
type workspaceScope struct {
	id   string
	name string
	row  *model.Row
}

func (r *run) syncWorkspace(ctx context.Context, id string) error {
	payload, err := r.remote.FindWorkspace(ctx, id)
	if err != nil {
		return fmt.Errorf("fetch workspace %s: %w", id, err)
	}
	ws := &workspaceScope{id: id, name: payload.Name()}
	r.log.Debug("sync workspace", "workspace", ws.name, "payload", payload)

	if r.opts.Kinds.Has(model.KindWorkspace) {
		row, err := r.upsertWorkspace(ctx, payload)
		if err != nil {
			return err
		}
		ws.row = row
	}

	var projectIDs []string
	if r.opts.Kinds.Has(model.KindProject) {
		projects, err := r.remote.ListProjects(ctx, id)
		if err != nil {
			return fmt.Errorf("list projects of workspace %s: %w", id, err)
		}
		projectIDs, err = resolveSelectors("project", projects, r.opts.Projects)
		if err != nil {
			return err
		}
	}

	if r.opts.Kinds.Has(model.KindUser) {
		if err := r.syncListing(ctx, model.KindUser, id, r.remote.ListUsers, func(ref model.Ref) error {
			return r.syncUser(ctx, ref, ws)
		}); err != nil {
			return err
		}
	}
	if r.opts.Kinds.Has(model.KindTag) {
		if err := r.syncListing(ctx, model.KindTag, id, r.remote.ListTags, func(ref model.Ref) error {
			return r.syncTag(ctx, ref, ws)
		}); err != nil {
			return err
		}
	}
	if r.opts.Kinds.Has(model.KindTeam) {
		if err := r.syncListing(ctx, model.KindTeam, id, r.remote.ListTeams, func(ref model.Ref) error {
			return r.syncTeam(ctx, ref)
		}); err != nil {
			return err
		}
	}

	for _, projectID := range projectIDs {
		if err := r.syncProject(ctx, ws, projectID); err != nil {
			if err := r.fail(model.KindProject, projectID, err); err != nil {
				return err
			}
		}
		r.result.Projects++
	}

	if ws.row != nil {
		r.report.Success("Successfully synced workspace %s.", ws.name)
	}
	return nil
}

// syncListing lists one kind of a workspace and syncs each entry, pausing
// between entries. Failures of single entries are recorded and skipped.
func (r *run) syncListing(
	ctx context.Context,
	k model.Kind,
	workspaceID string,
	list func(context.Context, string) ([]model.Ref, error),
	sync func(model.Ref) error,
) error {
	refs, err := list(ctx, workspaceID)
	if err != nil {
		return r.fail(k, workspaceID, fmt.Errorf("list %ss: %w", k, err))
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

// fail records err against one entity and returns nil so the caller moves
// on, unless err must abort the run.
func (r *run) fail(k model.Kind, remoteID string, err error) error {
	if isFatal(err) {
		return err
	}
	r.log.Warn("sync failed", "kind", k, "remote_id", remoteID, "error", err)
	r.result.Errors = append(r.result.Errors, EntityError{Kind: k, RemoteID: remoteID, Err: err})
	return nil
}

// isFatal reports errors that abort the whole run: the remote being
// unreachable, cancellation, and invalid selectors.
func isFatal(err error) bool {
	return syncerrors.HasCode(err, syncerrors.CodeRemoteUnavailable) ||
		syncerrors.HasCode(err, syncerrors.CodeSelectorInvalid) ||
		stderrors.Is(err, context.Canceled) ||
		stderrors.Is(err, context.DeadlineExceeded)
}
