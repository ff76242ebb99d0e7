package synchronizer

import (
	"github.com/randalmurphal/tasksync/internal/model"
)

// Result summarizes one synchronization run. In a dry run the counts are
// what the run would have written.
type Result struct {
	RunID  string
	DryRun bool

	Workspaces int
	Projects   int
	// Synced counts upserts per kind.
	Synced map[model.Kind]int
	// Deleted counts rows removed per kind, pruning included.
	Deleted map[model.Kind]int
	// Pruned lists the remote ids of tasks deleted because a full poll no
	// longer saw them.
	Pruned []string

	EventsProcessed int
	EventsIgnored   int

	Errors []EntityError
}

func newResult(runID string, dryRun bool) *Result {
	return &Result{
		RunID:   runID,
		DryRun:  dryRun,
		Synced:  make(map[model.Kind]int),
		Deleted: make(map[model.Kind]int),
	}
}

// TotalSynced returns the number of upserts across kinds.
func (r *Result) TotalSynced() int {
	n := 0
	for _, c := range r.Synced {
		n += c
	}
	return n
}

// EntityError records a failure to sync one entity. The run continues past
// these.
type EntityError struct {
	Kind     model.Kind
	RemoteID string
	Err      error
}

func (e EntityError) Error() string {
	return string(e.Kind) + " " + e.RemoteID + ": " + e.Err.Error()
}

func (e EntityError) Unwrap() error {
	return e.Err
}
