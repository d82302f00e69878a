package harness

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/epsync/internal/catalog"
	"github.com/roach88/epsync/internal/compiler"
	"github.com/roach88/epsync/internal/engine"
	"github.com/roach88/epsync/internal/ir"
	"github.com/roach88/epsync/internal/logging"
	"github.com/roach88/epsync/internal/migrate"
	"github.com/roach88/epsync/internal/testutil"
)

// Harness is the scenario execution state: both catalogs and the
// deterministic clock shared by every step.
type Harness struct {
	scenario *Scenario
	source   *catalog.Memory
	target   *catalog.Memory
	clock    *testutil.DeterministicClock
	logger   *slog.Logger
}

// Option configures Run.
type Option func(*Harness)

// WithLogger routes engine and migration logs to logger. Default discards.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = logger
	}
}

// Run executes a scenario and returns the result.
//
// Each scenario gets fresh catalogs. A step that fails its expectations
// marks the result failed but later steps still run. The returned error
// is set only when the scenario itself cannot run, e.g. a seed that
// references an unknown type.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	h := &Harness{
		scenario: scenario,
		source:   catalog.NewMemory(catalog.WithIDPrefix("s")),
		target:   catalog.NewMemory(catalog.WithIDPrefix("t")),
		clock:    testutil.NewDeterministicClock(),
		logger:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}

	if err := seed(h.target, scenario.Target); err != nil {
		return nil, fmt.Errorf("failed to seed target: %w", err)
	}
	if err := seed(h.source, scenario.Source); err != nil {
		return nil, fmt.Errorf("failed to seed source: %w", err)
	}

	result := NewResult()
	for i := range scenario.Steps {
		st := &scenario.Steps[i]
		rec := &recorder{step: st.Name}
		sr, err := h.runStep(ctx, st, scenario.StepRunID(i), rec)
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", st.Name, err)
		}
		result.Steps = append(result.Steps, sr)
		result.Trace = append(result.Trace, rec.events...)
		for _, msg := range checkStep(st, sr) {
			result.AddError(msg)
		}

		h.logger.Debug("scenario step completed",
			"scenario", scenario.Name, "step", st.Name, "kind", st.Kind,
			"run_id", sr.RunID, "outcome", sr.Outcome, "records", len(rec.events))
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions, h.target) {
		result.AddError(msg)
	}
	for _, msg := range h.checkPrinciples(ctx) {
		result.AddError(msg)
	}
	return result, nil
}

func seed(m *catalog.Memory, entities []SeedEntity) error {
	for i, e := range entities {
		t, err := ir.ParseEntityType(e.Type)
		if err != nil {
			return fmt.Errorf("entity %d: %w", i, err)
		}
		m.Seed(t, ir.Snapshot{
			Name:     e.Name,
			ParentID: e.Parent,
			Version:  e.Version,
			Settings: ir.Settings(e.Settings),
		})
	}
	return nil
}

// runStep executes one step. Errors the step itself returns are kept in
// the StepResult; the returned error means the step could not start.
func (h *Harness) runStep(ctx context.Context, st *Step, runID string, rec *recorder) (StepResult, error) {
	strategy, err := engine.ParseVersionStrategy(st.Strategy)
	if err != nil {
		return StepResult{}, err
	}
	sr := StepResult{Name: st.Name, Kind: st.Kind, RunID: runID}

	switch st.Kind {
	case KindReconcile:
		specs, err := st.Specs()
		if err != nil {
			return StepResult{}, err
		}
		ordered, err := compiler.Order(specs)
		if err != nil {
			return StepResult{}, err
		}
		run := engine.NewRun(h.target,
			engine.WithRunID(runID),
			engine.WithDryRun(st.DryRun),
			engine.WithLogger(h.logger),
			engine.WithNow(h.clock.Now),
			engine.WithSinks(rec),
			engine.WithVersionStrategy(strategy),
		)
		var ropts []engine.ReconcilerOption
		if st.FailFast {
			ropts = append(ropts, engine.WithFailFast())
		}
		rep, err := engine.NewReconciler(run, ropts...).Apply(ctx, ordered)
		sr.Summary = rep.Summary
		sr.Outcome = rep.Summary.Outcome()
		sr.Skipped = rep.Skipped()
		sr.Err = err

	case KindMigrate, KindAbsent:
		opts := migrate.DefaultOptions()
		opts.DryRun = st.DryRun
		opts.FailFast = st.FailFast
		opts.Prefix = st.Prefix
		opts.Absent = st.Kind == KindAbsent
		opts.AbsentRunID = st.AbsentRunID
		if st.Strategy != "" {
			opts.Strategy = strategy
		}
		m := migrate.New(h.source, h.target, opts,
			migrate.WithRunID(runID),
			migrate.WithIssueIDGenerator(testutil.NewSequenceGenerator("issue")),
			migrate.WithLogger(h.logger),
			migrate.WithNow(h.clock.Now),
			migrate.WithSinks(rec),
		)
		sum, err := m.Run(ctx)
		sr.Err = err
		if sum == nil {
			sr.Outcome = "error"
			break
		}
		sr.Summary = sum.Ledger
		sr.Outcome = sum.Ledger.Outcome()
		sr.Skipped = sum.Skipped()
		sr.Issues = sum.Issues
		sr.IDMap = sum.IDMap
		sr.Deleted = sum.Deleted

	default:
		return StepResult{}, fmt.Errorf("unknown kind %q", st.Kind)
	}
	return sr, nil
}

// checkStep compares a step result with the step's expect clause.
func checkStep(st *Step, sr StepResult) []string {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf("step %s: ", st.Name)+fmt.Sprintf(format, args...))
	}

	exp := st.Expect
	if exp == nil {
		exp = &StepExpect{}
	}
	switch {
	case exp.Error && sr.Err == nil:
		add("expected an error, got none")
	case !exp.Error && sr.Err != nil:
		add("unexpected error: %v", sr.Err)
	}
	if exp.Outcome != "" && exp.Outcome != sr.Outcome {
		add("outcome: expected %s, got %s", exp.Outcome, sr.Outcome)
	}
	if exp.Mutations != nil && *exp.Mutations != sr.Summary.Mutations() {
		add("mutations: expected %d, got %d", *exp.Mutations, sr.Summary.Mutations())
	}
	if exp.Failures != nil && *exp.Failures != len(sr.Summary.Failures) {
		add("failures: expected %d, got %d %v", *exp.Failures, len(sr.Summary.Failures), sr.Summary.Failures)
	}
	if exp.Skipped != nil && *exp.Skipped != sr.Skipped {
		add("skipped: expected %d, got %d", *exp.Skipped, sr.Skipped)
	}
	return errs
}
