package sync

import (
	"context"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/dodgybits/shuffle/internal/types"
)

// Gateways bundles the per-entity gateways a Processor drives.
type Gateways struct {
	Contexts Gateway[types.Context]
	Projects Gateway[types.Project]
	Tasks    Gateway[types.Task]
}

// RunRecorder persists the outcome of sync cycles.
type RunRecorder interface {
	RecordSyncRun(ctx context.Context, run types.SyncRun) error
	SetSyncMeta(ctx context.Context, key, value string) error
}

// AfterSyncFunc runs after a successful cycle. Its error is logged only.
type AfterSyncFunc func(ctx context.Context, result *Result) error

// Result describes one completed sync cycle.
type Result struct {
	SyncID     string `json:"sync_id"`
	Contexts   Stats  `json:"contexts"`
	Projects   Stats  `json:"projects"`
	Tasks      Stats  `json:"tasks"`
	DurationMS int64  `json:"duration_ms"`

	ContextLocator Locator[types.Context] `json:"-"`
	ProjectLocator Locator[types.Project] `json:"-"`
	TaskLocator    Locator[types.Task]    `json:"-"`
}

// Totals sums the stats of every entity type.
func (r *Result) Totals() Stats {
	return r.Contexts.Add(r.Projects).Add(r.Tasks)
}

// Processor runs sync cycles: contexts, then projects, then tasks, each
// pass resolving references through the directories of the passes before it.
// Cycles are serialized.
type Processor struct {
	mu gosync.Mutex

	gateways  Gateways
	mode      ResolveMode
	recorder  RunRecorder
	afterSync AfterSyncFunc
	now       func() time.Time

	contexts *Reconciler[ContextMessage, types.Context]
	projects *Reconciler[ProjectMessage, types.Project]
	tasks    *Reconciler[TaskMessage, types.Task]
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithResolveMode sets how new entities are matched to inserted rows.
func WithResolveMode(mode ResolveMode) ProcessorOption {
	return func(p *Processor) { p.mode = mode }
}

// WithRecorder records every cycle's outcome.
func WithRecorder(rec RunRecorder) ProcessorOption {
	return func(p *Processor) { p.recorder = rec }
}

// WithAfterSync registers a hook run after each successful cycle.
func WithAfterSync(fn AfterSyncFunc) ProcessorOption {
	return func(p *Processor) { p.afterSync = fn }
}

// NewProcessor creates a Processor over the given gateways.
func NewProcessor(gw Gateways, opts ...ProcessorOption) *Processor {
	p := &Processor{
		gateways: gw,
		mode:     ResolveReturned,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.contexts = NewReconciler[ContextMessage, types.Context]("contexts", gw.Contexts, p.mode)
	p.projects = NewReconciler[ProjectMessage, types.Project]("projects", gw.Projects, p.mode)
	p.tasks = NewReconciler[TaskMessage, types.Task]("tasks", gw.Tasks, p.mode)
	return p
}

// Process applies resp to the local store.
func (p *Processor) Process(ctx context.Context, resp *SyncResponse) (*Result, error) {
	if resp == nil {
		return nil, ErrNilResponse
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	start := p.now()
	result := &Result{SyncID: ulid.Make().String()}
	slog.Info("sync started",
		"component", "sync",
		"action", "sync_started",
		"sync_id", result.SyncID,
	)

	err := p.run(ctx, resp, result)
	result.DurationMS = p.now().Sub(start).Milliseconds()
	p.record(ctx, start, resp, result, err)

	if err != nil {
		slog.Error("sync failed",
			"component", "sync",
			"action", "sync_failed",
			"sync_id", result.SyncID,
			"duration_ms", result.DurationMS,
			"error", err,
		)
		return nil, err
	}

	if p.afterSync != nil {
		if hookErr := p.afterSync(ctx, result); hookErr != nil {
			slog.Warn("after-sync hook failed",
				"component", "sync",
				"sync_id", result.SyncID,
				"error", hookErr,
			)
		}
	}

	totals := result.Totals()
	slog.Info("sync completed",
		"component", "sync",
		"action", "sync_completed",
		"sync_id", result.SyncID,
		"added", totals.Added,
		"updated", totals.Updated,
		"reassigned", totals.Reassigned,
		"deleted", totals.Deleted,
		"unresolved_references", totals.Unresolved,
		"duration_ms", result.DurationMS,
	)
	return result, nil
}

func (p *Processor) run(ctx context.Context, resp *SyncResponse, result *Result) error {
	var err error

	result.ContextLocator, result.Contexts, err = p.contexts.Reconcile(ctx,
		resp.ContextDelta(), NewContextTranslator())
	if err != nil {
		return err
	}
	contexts := Chain(result.ContextLocator,
		Locator[types.Context](gatewayLocator[types.Context]{ctx: ctx, gateway: p.gateways.Contexts, kind: "contexts"}))

	result.ProjectLocator, result.Projects, err = p.projects.Reconcile(ctx,
		resp.ProjectDelta(), NewProjectTranslator(contexts))
	if err != nil {
		return err
	}
	projects := Chain(result.ProjectLocator,
		Locator[types.Project](gatewayLocator[types.Project]{ctx: ctx, gateway: p.gateways.Projects, kind: "projects"}))

	result.TaskLocator, result.Tasks, err = p.tasks.Reconcile(ctx,
		resp.TaskDelta(), NewTaskTranslator(projects, contexts))
	return err
}

func (p *Processor) record(ctx context.Context, start time.Time, resp *SyncResponse, result *Result, runErr error) {
	if p.recorder == nil {
		return
	}

	totals := result.Totals()
	run := types.SyncRun{
		ID:         result.SyncID,
		StartedAt:  start.UTC(),
		FinishedAt: p.now().UTC(),
		Status:     types.SyncStatusSucceeded,
		Added:      totals.Added,
		Updated:    totals.Updated,
		Reassigned: totals.Reassigned,
		Deleted:    totals.Deleted,
	}
	if runErr != nil {
		run.Status = types.SyncStatusFailed
		run.Error = runErr.Error()
	}
	if err := p.recorder.RecordSyncRun(ctx, run); err != nil {
		slog.Warn("failed to record sync run", "component", "sync", "sync_id", run.ID, "error", err)
	}
	if runErr != nil {
		return
	}

	if resp.SyncToken != "" {
		if err := p.recorder.SetSyncMeta(ctx, SyncMetaLastSyncToken, resp.SyncToken); err != nil {
			slog.Warn("failed to store sync token", "component", "sync", "sync_id", run.ID, "error", err)
		}
	}
	if err := p.recorder.SetSyncMeta(ctx, SyncMetaLastSyncAt, run.FinishedAt.Format(time.RFC3339Nano)); err != nil {
		slog.Warn("failed to store sync time", "component", "sync", "sync_id", run.ID, "error", err)
	}
}

// String summarizes the result for CLI output.
func (r *Result) String() string {
	t := r.Totals()
	return fmt.Sprintf("sync %s: %d added, %d updated, %d reassigned, %d deleted (%d already absent), %d unresolved references",
		r.SyncID, t.Added, t.Updated, t.Reassigned, t.Deleted, t.DeleteMissing, t.Unresolved)
}
