package engine

import (
	"context"
	"fmt"

	"github.com/roach88/epsync/internal/ir"
	"github.com/roach88/epsync/internal/ledger"
)

// Outcome is the result of one spec in a reconcile pass.
type Outcome struct {
	Spec   ir.EntitySpec
	Result Result
	Err    error
}

// Skipped reports whether the spec was not attempted.
func (o Outcome) Skipped() bool {
	return IsSkipped(o.Err)
}

// Report is the result of Reconciler.Apply.
type Report struct {
	Outcomes []Outcome
	Summary  ledger.Summary
}

// Skipped counts outcomes that were not attempted.
func (r Report) Skipped() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Skipped() {
			n++
		}
	}
	return n
}

// Reconciler applies an ordered list of specs, parents before children.
type Reconciler struct {
	run      *Run
	failFast bool
	history  *History
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithFailFast stops at the first failed spec.
func WithFailFast() ReconcilerOption {
	return func(r *Reconciler) {
		r.failFast = true
	}
}

// NewReconciler creates a reconciler for run.
func NewReconciler(run *Run, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{run: run, history: NewHistory()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Apply reconciles specs in order. Parents are resolved by (type, name)
// from specs already applied in this run. A child whose parent failed, was
// skipped, or is absent is skipped.
//
// Per-entity failures land in the ledger and the report; the returned
// error is non-nil only on cancellation or, with WithFailFast, on the
// first failure. Cancellation is checked between entities.
func (r *Reconciler) Apply(ctx context.Context, specs []ir.EntitySpec) (Report, error) {
	rep := Report{Outcomes: make([]Outcome, 0, len(specs))}
	var firstErr error

	for _, spec := range specs {
		if err := ctx.Err(); err != nil {
			firstErr = fmt.Errorf("reconcile aborted before %s: %w", spec.Key(), err)
			break
		}

		out := r.applyOne(ctx, spec)
		rep.Outcomes = append(rep.Outcomes, out)
		if out.Err != nil && !out.Skipped() && r.failFast {
			firstErr = out.Err
			break
		}
	}

	rep.Summary = r.run.Summary()
	return rep, firstErr
}

func (r *Reconciler) applyOne(ctx context.Context, spec ir.EntitySpec) Outcome {
	key := spec.Key()
	if r.history.Seen(key) {
		err := &TaskError{Code: ErrCodeDuplicateSpec, Message: "declared more than once", EntityType: spec.Type, Name: spec.Name}
		r.run.Log.Fail(spec.Type, spec.Name, err)
		return Outcome{Spec: spec, Err: err}
	}

	var opts []TaskOption
	if spec.Parent != nil {
		res, id, ok := r.history.Lookup(*spec.Parent)
		switch {
		case !ok:
			err := NewUnresolvedReferenceError(spec.Type, spec.Name, *spec.Parent)
			r.run.Log.Fail(spec.Type, spec.Name, err)
			r.history.Record(key, Failed, "")
			return Outcome{Spec: spec, Err: err}
		case res == Resolved:
			opts = append(opts, WithParentID(id))
		case res == Planned:
			opts = append(opts, WithPendingParent())
		default:
			err := &SkippedError{Ref: key, Parent: *spec.Parent, Reason: res.String()}
			r.run.Logger.Warn("skipping entity", "entity_type", spec.Type, "name", spec.Name, "parent", spec.Parent.String(), "reason", res.String())
			r.history.Record(key, Skipped, "")
			return Outcome{Spec: spec, Err: err}
		}
	}

	res, err := NewTask(r.run, spec, opts...).Execute(ctx)
	switch {
	case err != nil:
		r.history.Record(key, Failed, "")
	case spec.TargetState == ir.Absent || res.Action == ir.Delete:
		r.history.Record(key, Removed, "")
	case res.Entity != nil:
		r.history.Record(key, Resolved, res.Entity.ID)
	case res.Action == ir.Create:
		r.history.Record(key, Planned, "")
	default:
		// Vanished during apply and not recreated.
		r.history.Record(key, Removed, "")
	}
	return Outcome{Spec: spec, Result: res, Err: err}
}
