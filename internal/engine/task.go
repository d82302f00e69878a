package engine

import (
	"context"
	"fmt"

	"github.com/roach88/epsync/internal/catalog"
	"github.com/roach88/epsync/internal/compare"
	"github.com/roach88/epsync/internal/ir"
)

// Result is the outcome of one task.
type Result struct {
	// Entity is the remote entity after the task, nil when it does not
	// exist (deleted, vanished, or a dry-run create).
	Entity *ir.Snapshot

	// Action is the action recorded for the entity.
	Action ir.Action

	// Recovered is set when the entity vanished during apply.
	Recovered bool

	// Record is the entity's transaction record.
	Record ir.TransactionRecord

	// Versions holds one result per declared version, in declaration order.
	Versions []VersionResult
}

// Task reconciles one entity spec against the catalog:
// resolve, compare, apply, record, then reconcile declared versions.
type Task struct {
	run  *Run
	spec ir.EntitySpec

	// ParentID scopes resolution and creation. Empty for top-level types.
	parentID string

	// parentPending is set when the parent is planned but not yet created,
	// so the entity cannot exist remotely.
	parentPending bool

	// deferFailure leaves recording a failure to the caller.
	deferFailure bool

	sm *stateMachine
}

// TaskOption configures a Task.
type TaskOption func(*Task)

// WithParentID scopes the task to the parent entity id.
func WithParentID(id string) TaskOption {
	return func(t *Task) {
		t.parentID = id
	}
}

// WithPendingParent marks the parent as not yet created.
func WithPendingParent() TaskOption {
	return func(t *Task) {
		t.parentPending = true
	}
}

// WithDeferredFailure keeps a failed task out of the run's failure list.
// Callers that retry the task record the final failure themselves.
func WithDeferredFailure() TaskOption {
	return func(t *Task) {
		t.deferFailure = true
	}
}

// NewTask creates a task for spec within run.
func NewTask(run *Run, spec ir.EntitySpec, opts ...TaskOption) *Task {
	t := &Task{run: run, spec: spec, sm: newStateMachine()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// State returns the task's current lifecycle state.
func (t *Task) State() State {
	return t.sm.state
}

// Execute runs the task once. On error the task is FAILED, the failure is
// recorded in the run's log, and no further calls are made.
func (t *Task) Execute(ctx context.Context) (Result, error) {
	res, err := t.execute(ctx)
	if err != nil {
		if terr := t.sm.transition(StateFailed); terr != nil {
			return res, fmt.Errorf("%w (after %v)", terr, err)
		}
		if t.deferFailure {
			t.run.Logger.Debug("task failed, failure deferred", "entity_type", t.spec.Type, "name", t.spec.Name, "error", err)
			return res, err
		}
		t.run.Log.Fail(t.spec.Type, t.spec.Name, err)
		t.run.Logger.Error("task failed", "entity_type", t.spec.Type, "name", t.spec.Name, "error", err)
		return res, err
	}
	return res, nil
}

func (t *Task) execute(ctx context.Context) (Result, error) {
	comparator, err := compare.For(t.spec.Type)
	if err != nil {
		return Result{}, err
	}
	entities := t.run.Client.Entities(t.spec.Type)

	if err := t.sm.transition(StateResolving); err != nil {
		return Result{}, err
	}
	current, err := t.resolve(ctx, entities)
	if err != nil {
		return Result{}, err
	}

	if err := t.sm.transition(StateComparing); err != nil {
		return Result{}, err
	}
	action, err := comparator.Decide(t.spec, current)
	if err != nil {
		return Result{}, fmt.Errorf("%s %s: %w", t.spec.Type, t.spec.Name, err)
	}
	if action == ir.Update {
		if snap, ok := current.Get(); ok {
			if changes, err := comparator.Diff(t.spec.Settings, snap.Settings); err == nil {
				t.run.Logger.Debug("drift", "entity_type", t.spec.Type, "name", t.spec.Name, "diff", compare.Report(changes))
			}
		}
	}

	if err := t.sm.transition(StateApplying); err != nil {
		return Result{}, err
	}
	res, err := t.apply(ctx, entities, comparator, action, current)
	if err != nil {
		return res, err
	}
	res.Record = t.run.Log.Record(ir.TransactionRecord{
		EntityType: t.spec.Type,
		Name:       t.spec.Name,
		Action:     res.Action,
		RemoteID:   remoteID(res, current),
		Recovered:  res.Recovered,
	})
	t.run.Logger.Info("reconciled", "entity_type", t.spec.Type, "name", t.spec.Name,
		"action", res.Action, "dry_run", t.run.DryRun, "recovered", res.Recovered)

	if len(t.spec.Versions) > 0 && t.spec.TargetState != ir.Absent && (res.Entity != nil || res.Action == ir.Create) {
		parentID := ""
		if res.Entity != nil {
			parentID = res.Entity.ID
		}
		if vt, ok := newVersionTask(t.run, t.spec.Type, t.spec.Name, parentID); ok {
			versions, err := vt.execute(ctx, t.spec.Versions)
			res.Versions = versions
			if err != nil {
				return res, err
			}
		}
	}

	if err := t.sm.transition(StateDone); err != nil {
		return res, err
	}
	return res, nil
}

// resolve drains the name lookup before any mutation. More than one match
// is AMBIGUOUS_ENTITY.
func (t *Task) resolve(ctx context.Context, entities catalog.EntityClient) (ir.Lookup, error) {
	if t.parentPending {
		return ir.NotPresent, nil
	}
	matches, err := catalog.FindByName(ctx, entities, catalog.Filter{Name: t.spec.Name, ParentID: t.parentID})
	if err != nil {
		return ir.NotPresent, fmt.Errorf("resolve %s %s: %w", t.spec.Type, t.spec.Name, err)
	}
	switch len(matches) {
	case 0:
		return ir.NotPresent, nil
	case 1:
		return ir.Found(matches[0]), nil
	default:
		return ir.NotPresent, NewAmbiguousEntityError(t.spec.Type, t.spec.Name, t.parentID, len(matches))
	}
}

// apply performs the decided action. Calls run on a context detached from
// cancellation so an in-flight mutation completes before an abort.
func (t *Task) apply(ctx context.Context, entities catalog.EntityClient, c compare.Comparator, action ir.Action, current ir.Lookup) (Result, error) {
	snap, exists := current.Get()
	var existing *ir.Snapshot
	if exists {
		existing = &snap
	}

	if t.run.DryRun || (t.parentPending && action == ir.Create) {
		if action == ir.Create || action == ir.Delete {
			existing = nil
		}
		return Result{Action: action, Entity: existing}, nil
	}

	actx := context.WithoutCancel(ctx)
	switch action {
	case ir.NoOp:
		return Result{Action: ir.NoOp, Entity: existing}, nil

	case ir.Create:
		return t.create(actx, entities, c)

	case ir.Update:
		projected, err := c.Project(t.spec.Settings)
		if err != nil {
			return Result{}, err
		}
		updated, err := entities.Update(actx, snap.ID, projected)
		if catalog.IsNotFound(err) {
			return t.vanished(actx, entities, c, snap)
		}
		if err != nil {
			return Result{}, fmt.Errorf("update %s %s: %w", t.spec.Type, t.spec.Name, err)
		}
		return Result{Action: ir.Update, Entity: &updated}, nil

	case ir.Delete:
		err := entities.Delete(actx, snap.ID)
		if catalog.IsNotFound(err) {
			t.run.Logger.Warn("entity vanished before delete", "entity_type", t.spec.Type, "name", t.spec.Name, "id", snap.ID)
			return Result{Action: ir.NoOp, Recovered: true}, nil
		}
		if err != nil {
			return Result{}, fmt.Errorf("delete %s %s: %w", t.spec.Type, t.spec.Name, err)
		}
		return Result{Action: ir.Delete}, nil

	default:
		return Result{}, fmt.Errorf("unknown action %s", action)
	}
}

func (t *Task) create(ctx context.Context, entities catalog.EntityClient, c compare.Comparator) (Result, error) {
	projected, err := c.Project(t.spec.Settings)
	if err != nil {
		return Result{}, err
	}
	created, err := entities.Create(ctx, catalog.Draft{
		Name:     t.spec.Name,
		ParentID: t.parentID,
		Settings: stampRunID(t.run, projected),
	})
	if err != nil {
		return Result{}, fmt.Errorf("create %s %s: %w", t.spec.Type, t.spec.Name, err)
	}
	return Result{Action: ir.Create, Entity: &created}, nil
}

// vanished handles an UPDATE whose target was deleted after resolve.
func (t *Task) vanished(ctx context.Context, entities catalog.EntityClient, c compare.Comparator, snap ir.Snapshot) (Result, error) {
	t.run.Logger.Warn("entity vanished before update", "entity_type", t.spec.Type, "name", t.spec.Name,
		"id", snap.ID, "recreate", t.run.RecreateVanished)
	if t.run.RecreateVanished {
		return t.create(ctx, entities, c)
	}
	return Result{Action: ir.NoOp, Recovered: true}, nil
}

func remoteID(res Result, current ir.Lookup) string {
	if res.Entity != nil {
		return res.Entity.ID
	}
	if snap, ok := current.Get(); ok {
		return snap.ID
	}
	return ""
}

func stampRunID(run *Run, s ir.Settings) ir.Settings {
	if run.RunIDKey == "" {
		return s
	}
	out := s.Clone()
	if out == nil {
		out = ir.Settings{}
	}
	out[run.RunIDKey] = run.ID
	return out
}
