package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/rodaine/table"
	"github.com/spf13/cobra"

	"github.com/roach88/epsync/internal/ir"
	"github.com/roach88/epsync/internal/ledger"
	"github.com/roach88/epsync/internal/store"
)

// RunsOptions holds flags for the runs command.
type RunsOptions struct {
	*RootOptions
	Config   string
	Database string
}

// RunsResult lists persisted runs.
type RunsResult struct {
	Runs []store.Run `json:"runs"`
}

// RunDetail is one persisted run with everything recorded for it.
type RunDetail struct {
	Run          store.Run              `json:"run"`
	Transactions []ir.TransactionRecord `json:"transactions"`
	Failures     []ledger.Failure       `json:"failures"`
	Issues       []store.Issue          `json:"issues"`
	IDMap        map[string]string      `json:"id_map,omitempty"`
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List persisted runs, or show one",
		Long: `List the runs recorded in the run database, oldest first.

With a run ID, show that run's summary, its ledger records, failures,
run issues and ID map.

Examples:
  epsync runs --db runs.db
  epsync runs --db runs.db 0190f6c2-7d3e-7c4a-9b1e-0a1b2c3d4e5f
  epsync runs --config epsync.yaml --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := ""
			if len(args) == 1 {
				runID = args[0]
			}
			return runRuns(opts, runID, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "path to config file (.yaml, .yml or .toml)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite run database (overrides store.path)")

	return cmd
}

func runRuns(opts *RunsOptions, runID string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := loadConfig(opts.Config)
	if err != nil {
		return err
	}
	st, err := openStore(opts.Database, cfg)
	if err != nil {
		return err
	}
	if st == nil {
		return NewExitError(ExitCommandError, "no run database: pass --db or set store.path")
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if runID == "" {
		runs, err := st.ReadRuns(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read runs", err)
		}
		if formatter.IsJSON() {
			return formatter.Success(RunsResult{Runs: runs})
		}
		return writeRunList(formatter.Writer, runs)
	}

	detail, err := readRunDetail(ctx, st, runID)
	if errors.Is(err, sql.ErrNoRows) {
		if outErr := formatter.Error(ErrCodeNotFound, fmt.Sprintf("run %q not found", runID), nil); outErr != nil {
			return outErr
		}
		return NewExitError(ExitCommandError, fmt.Sprintf("run %q not found", runID))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}
	if formatter.IsJSON() {
		return formatter.Success(detail)
	}
	return writeRunDetail(formatter.Writer, detail, opts.Verbose)
}

func readRunDetail(ctx context.Context, st *store.Store, runID string) (RunDetail, error) {
	var d RunDetail
	var err error
	if d.Run, err = st.ReadRun(ctx, runID); err != nil {
		return d, err
	}
	if d.Transactions, err = st.ReadTransactions(ctx, runID); err != nil {
		return d, err
	}
	if d.Failures, err = st.ReadFailures(ctx, runID); err != nil {
		return d, err
	}
	if d.Issues, err = st.ReadIssues(ctx, runID); err != nil {
		return d, err
	}
	if d.IDMap, err = st.ReadIDMap(ctx, runID); err != nil {
		return d, err
	}
	return d, nil
}

func writeRunList(w io.Writer, runs []store.Run) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs recorded.")
		return err
	}
	headerFmt := color.New(color.FgGreen, color.Bold).SprintfFunc()
	tbl := table.New("Run", "Kind", "Dry run", "Started", "Outcome").
		WithHeaderFormatter(headerFmt).
		WithWriter(w)
	for _, r := range runs {
		outcome := r.Outcome
		if outcome == "" {
			outcome = "unfinished"
		}
		tbl.AddRow(r.ID, string(r.Kind), r.DryRun, r.StartedAt.Format(time.DateTime), outcome)
	}
	tbl.Print()
	return nil
}

func writeRunDetail(w io.Writer, d RunDetail, verbose bool) error {
	r := d.Run
	fmt.Fprintf(w, "Kind: %s\n", r.Kind)
	fmt.Fprintf(w, "Started: %s\n", r.StartedAt.Format(time.DateTime))
	if r.FinishedAt != nil {
		fmt.Fprintf(w, "Finished: %s\n", r.FinishedAt.Format(time.DateTime))
		fmt.Fprintf(w, "Outcome: %s\n", r.Outcome)
	} else {
		fmt.Fprintln(w, "Finished: never")
	}
	fmt.Fprintf(w, "Versions: tool %s, ledger %s\n", r.ToolVersion, r.LedgerVersion)

	if r.Summary != nil {
		if err := r.Summary.Render(w); err != nil {
			return err
		}
	} else if len(d.Failures) > 0 {
		fmt.Fprintln(w, "Failures:")
		for _, f := range d.Failures {
			fmt.Fprintf(w, "  %s/%s: %s\n", f.EntityType, f.Name, f.Message)
		}
	}

	if verbose {
		fmt.Fprintf(w, "Records (%d):\n", len(d.Transactions))
		for _, rec := range d.Transactions {
			fmt.Fprintf(w, "  %s\n", formatRecord(rec))
		}
	}
	if len(d.Issues) > 0 {
		fmt.Fprintln(w, "Issues:")
		for _, is := range d.Issues {
			fmt.Fprintf(w, "  [%s] %s %s: %s\n", is.ID, is.Type, is.SourceID, is.Message)
		}
	}
	if len(d.IDMap) > 0 {
		fmt.Fprintln(w, "ID map:")
		for _, k := range ir.SortedKeys(d.IDMap) {
			fmt.Fprintf(w, "  %s -> %s\n", k, d.IDMap[k])
		}
	}
	return nil
}

// formatRecord renders a ledger record on one line, e.g.
// "3 CREATE enum_version colors@1.0.0 -> 1b2c".
func formatRecord(rec ir.TransactionRecord) string {
	s := fmt.Sprintf("%d %s %s %s", rec.Seq, rec.Action, rec.EntityType, rec.Name)
	if rec.Version != "" {
		s += "@" + rec.Version
	}
	if rec.RemoteID != "" {
		s += " -> " + rec.RemoteID
	}
	if rec.Recovered {
		s += " (recovered)"
	}
	return s
}
