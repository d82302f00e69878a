package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/epsync/internal/catalog"
	"github.com/roach88/epsync/internal/engine"
	"github.com/roach88/epsync/internal/ledger"
	"github.com/roach88/epsync/internal/migrate"
	"github.com/roach88/epsync/internal/store"
)

// ReconcileOptions holds flags for the reconcile command.
type ReconcileOptions struct {
	*RootOptions
	Config           string
	Database         string
	RunID            string
	Strategy         string
	DryRun           bool
	Offline          bool
	FailFast         bool
	RecreateVanished bool

	// IDGenerator overrides the run ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDGenerator engine.IDGenerator

	// Client overrides the target catalog (for testing).
	Client catalog.Client
}

// ReconcileResult is the output of a reconcile run.
type ReconcileResult struct {
	RunID   string         `json:"run_id"`
	Outcome string         `json:"outcome"`
	Skipped int            `json:"skipped"`
	Summary ledger.Summary `json:"summary"`
}

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReconcileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reconcile <desired-state-dir>",
		Short: "Converge the target catalog to the declared desired state",
		Long: `Reconcile the target catalog against the CUE and YAML desired state in
a directory.

Entities are applied parent-first. Each one is created, updated, deleted
or left alone (NOOP), and every step is recorded in the run ledger.
A second run against a converged catalog records only NOOPs.

Exit codes:
  0 - Run applied or converged
  1 - One or more entities failed or were skipped
  2 - Command error (invalid config, desired state, database)

Examples:
  epsync reconcile ./catalog --config epsync.yaml
  epsync reconcile ./catalog --config epsync.yaml --dry-run
  epsync reconcile ./catalog --offline --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "path to config file (.yaml, .yml or .toml)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite run database (overrides store.path)")
	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "fix the run ID instead of generating one")
	cmd.Flags().StringVar(&opts.Strategy, "strategy", "", "version strategy (exact|bump_patch|bump_minor)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "decide and record actions without mutating the catalog")
	cmd.Flags().BoolVar(&opts.Offline, "offline", false, "reconcile against an empty in-memory catalog")
	cmd.Flags().BoolVar(&opts.FailFast, "fail-fast", false, "stop at the first failed entity")
	cmd.Flags().BoolVar(&opts.RecreateVanished, "recreate-vanished", false, "create entities that vanish during apply")

	return cmd
}

func runReconcile(opts *ReconcileOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := loadConfig(opts.Config)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	strategy, err := engine.ParseVersionStrategy(opts.Strategy)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --strategy", err)
	}

	specs, verrs, err := LoadOrdered(dir)
	if err != nil {
		return outputLoadError(formatter, err)
	}
	if len(verrs) > 0 {
		return outputValidationErrors(formatter, ValidationResult{Errors: verrs}, ExitCommandError)
	}
	logger.Debug("desired state loaded", "dir", dir, "entities", len(specs))

	client := opts.Client
	switch {
	case client != nil:
	case opts.Offline:
		client = catalog.NewMemory()
	default:
		rc, err := newRESTClient(cfg, "target", logger)
		if err != nil {
			return err
		}
		client = rc
	}

	st, err := openStore(opts.Database, cfg)
	if err != nil {
		return err
	}
	defer closeStore(st, logger)

	runID := opts.RunID
	if runID == "" {
		gen := opts.IDGenerator
		if gen == nil {
			gen = engine.UUIDv7Generator{}
		}
		runID = gen.Generate()
	}

	ctx, cancel := signalContext(cmd, logger)
	defer cancel()

	metrics := newRunMetrics(cfg)
	sinks := metrics.sinks()
	if st != nil {
		if err := st.BeginRun(ctx, store.Run{ID: runID, Kind: store.KindReconcile, DryRun: opts.DryRun, StartedAt: time.Now()}); err != nil {
			return WrapExitError(ExitCommandError, "failed to record run", err)
		}
		sinks = append(sinks, st.Sink(ctx, runID))
	}

	runOpts := []engine.RunOption{
		engine.WithRunID(runID),
		engine.WithDryRun(opts.DryRun),
		engine.WithLogger(logger),
		engine.WithSinks(sinks...),
		engine.WithVersionStrategy(strategy),
		engine.WithRunIDKey(migrate.RunIDKey),
	}
	if opts.RecreateVanished {
		runOpts = append(runOpts, engine.WithRecreateVanished())
	}
	var recOpts []engine.ReconcilerOption
	if opts.FailFast {
		recOpts = append(recOpts, engine.WithFailFast())
	}

	run := engine.NewRun(client, runOpts...)
	report, runErr := engine.NewReconciler(run, recOpts...).Apply(ctx, specs)

	if st != nil {
		if err := st.FinishRun(context.WithoutCancel(ctx), runID, report.Summary, time.Now()); err != nil {
			logger.Error("recording run summary", "error", err)
		}
	}
	metrics.write(logger)

	result := ReconcileResult{
		RunID:   runID,
		Outcome: report.Summary.Outcome(),
		Skipped: report.Skipped(),
		Summary: report.Summary,
	}
	failed := ""
	switch {
	case runErr != nil:
		failed = fmt.Sprintf("reconcile aborted: %v", runErr)
	case report.Summary.HasFailures() || result.Skipped > 0:
		failed = fmt.Sprintf("%d failed, %d skipped", len(report.Summary.Failures), result.Skipped)
	}

	err = formatter.Report(runID, result, failed, func(w io.Writer) error {
		if err := report.Summary.Render(w); err != nil {
			return err
		}
		if result.Skipped > 0 {
			fmt.Fprintf(w, "Skipped: %d entities whose parent was not applied\n", result.Skipped)
		}
		_, err := fmt.Fprintf(w, "Outcome: %s\n", result.Outcome)
		return err
	})
	if err != nil {
		return err
	}

	if runErr != nil {
		return WrapExitError(ExitFailure, "reconcile aborted", runErr)
	}
	if failed != "" {
		return NewExitError(ExitFailure, "reconcile finished with failures: "+failed)
	}
	return nil
}
