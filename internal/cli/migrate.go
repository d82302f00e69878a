package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/epsync/internal/catalog"
	"github.com/roach88/epsync/internal/engine"
	"github.com/roach88/epsync/internal/migrate"
)

// MigrateOptions holds flags for the migrate and absent commands.
type MigrateOptions struct {
	*RootOptions
	Config   string
	Database string
	RunID    string
	Prefix   string
	DryRun   bool
	FailFast bool

	// AbsentRunID makes an absent run delete what that run created.
	AbsentRunID string

	// Source and Target override the configured catalogs (for testing).
	Source catalog.Client
	Target catalog.Client

	// IDGenerator and IssueIDGenerator override the generators (for testing).
	IDGenerator      engine.IDGenerator
	IssueIDGenerator migrate.IssueIDGenerator
}

// MigrateResult is the output of a migrate or absent run.
type MigrateResult struct {
	RunID   string           `json:"run_id"`
	Outcome string           `json:"outcome"`
	Summary *migrate.Summary `json:"summary"`
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MigrateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate the v1 source catalog into the v2 target",
		Long: `Migrate every domain, enum, schema, event, application and event API
of the source catalog into the target, in dependency order.

Source references are rewritten through the ID map built during the run.
An entity whose reference cannot be resolved is skipped and reported as a
run issue. The migrate section of the config drives the run; with
run_state: absent it deletes the previous migration instead.

Exit codes:
  0 - Migration applied or converged
  1 - One or more entities failed or were skipped
  2 - Command error (invalid config, database)

Examples:
  epsync migrate --config epsync.yaml
  epsync migrate --config epsync.yaml --dry-run --db runs.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(opts, false, cmd)
		},
	}

	addMigrateFlags(cmd, opts)
	cmd.Flags().BoolVar(&opts.FailFast, "fail-fast", false, "stop at the first failed entity")
	return cmd
}

// NewAbsentCommand creates the absent command.
func NewAbsentCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MigrateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "absent",
		Short: "Delete a previous migration from the target",
		Long: `Delete what a migration created on the target.

By default every application domain whose name starts with the migrate
prefix is emptied and deleted: applications, event APIs, events, schemas
and enums first, each version before its object.

With --absent-run-id only the entities stamped with that run ID are
deleted; their domains go too when nothing else is left in them.

Examples:
  epsync absent --config epsync.yaml
  epsync absent --config epsync.yaml --prefix "v1 "
  epsync absent --config epsync.yaml --absent-run-id 0190f6c2-...`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(opts, true, cmd)
		},
	}

	addMigrateFlags(cmd, opts)
	cmd.Flags().StringVar(&opts.AbsentRunID, "absent-run-id", "", "delete only what this run created")
	return cmd
}

func addMigrateFlags(cmd *cobra.Command, opts *MigrateOptions) {
	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "path to config file (.yaml, .yml or .toml)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite run database (overrides store.path)")
	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "fix the run ID instead of generating one")
	cmd.Flags().StringVar(&opts.Prefix, "prefix", "", "target domain name prefix (overrides migrate.prefix)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "decide and record actions without mutating the target")
}

func runMigrate(opts *MigrateOptions, absent bool, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := loadConfig(opts.Config)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	mopts, err := migrate.FromConfig(cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid config", err)
	}
	if absent {
		mopts.Absent = true
		mopts.AbsentRunID = opts.AbsentRunID
	}
	if opts.Prefix != "" {
		mopts.Prefix = opts.Prefix
	}
	if opts.DryRun {
		mopts.DryRun = true
	}
	if opts.FailFast {
		mopts.FailFast = true
	}

	source, target := opts.Source, opts.Target
	if target == nil {
		rc, err := newRESTClient(cfg, "target", logger)
		if err != nil {
			return err
		}
		target = rc
	}
	if source == nil && !mopts.Absent {
		rc, err := newRESTClient(cfg, "source", logger)
		if err != nil {
			return err
		}
		source = rc
	}

	st, err := openStore(opts.Database, cfg)
	if err != nil {
		return err
	}
	defer closeStore(st, logger)

	ctx, cancel := signalContext(cmd, logger)
	defer cancel()

	metrics := newRunMetrics(cfg)
	managerOpts := []migrate.Option{
		migrate.WithLogger(logger),
		migrate.WithSinks(metrics.sinks()...),
	}
	if opts.RunID != "" {
		managerOpts = append(managerOpts, migrate.WithRunID(opts.RunID))
	}
	if opts.IDGenerator != nil {
		managerOpts = append(managerOpts, migrate.WithIDGenerator(opts.IDGenerator))
	}
	if opts.IssueIDGenerator != nil {
		managerOpts = append(managerOpts, migrate.WithIssueIDGenerator(opts.IssueIDGenerator))
	}
	if st != nil {
		managerOpts = append(managerOpts, migrate.WithStore(st))
	}

	sum, runErr := migrate.New(source, target, mopts, managerOpts...).Run(ctx)
	if sum == nil {
		var prefixErr *migrate.InvalidPrefixError
		if errors.As(runErr, &prefixErr) {
			if err := formatter.Error(ErrCodeConfig, runErr.Error(), nil); err != nil {
				return err
			}
			return WrapExitError(ExitCommandError, "invalid prefix", runErr)
		}
		return WrapExitError(ExitCommandError, "migration did not start", runErr)
	}
	metrics.write(logger)

	result := MigrateResult{RunID: sum.RunID, Outcome: migrateOutcome(sum), Summary: sum}
	failed := ""
	switch {
	case runErr != nil:
		failed = fmt.Sprintf("migration aborted: %v", runErr)
	case sum.HasFailures():
		failed = fmt.Sprintf("%d failed, %d skipped, %d domains remaining", sum.Failed(), sum.Skipped(), len(sum.Remaining))
	}

	err = formatter.Report(sum.RunID, result, failed, func(w io.Writer) error {
		if err := sum.Render(w); err != nil {
			return err
		}
		_, err := fmt.Fprintf(w, "Outcome: %s\n", result.Outcome)
		return err
	})
	if err != nil {
		return err
	}

	if runErr != nil {
		return WrapExitError(ExitFailure, "migration aborted", runErr)
	}
	if failed != "" {
		return NewExitError(ExitFailure, "migration finished with failures: "+failed)
	}
	return nil
}

// migrateOutcome is the ledger outcome, except that skipped entities and
// remaining domains also make the run "failed".
func migrateOutcome(sum *migrate.Summary) string {
	if sum.HasFailures() {
		return "failed"
	}
	return sum.Ledger.Outcome()
}
