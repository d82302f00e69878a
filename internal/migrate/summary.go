package migrate

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/rodaine/table"

	"github.com/roach88/epsync/internal/ir"
	"github.com/roach88/epsync/internal/ledger"
)

// Counts tallies the source entities of one type.
type Counts struct {
	Migrated int `json:"migrated"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
}

// Summary is the result of one migration or absent run.
type Summary struct {
	RunID  string                   `json:"run_id"`
	DryRun bool                     `json:"dry_run"`
	Absent bool                     `json:"absent,omitempty"`
	Ledger ledger.Summary           `json:"ledger"`
	Counts map[ir.EntityType]Counts `json:"counts"`
	Issues []RunIssue               `json:"issues"`
	IDMap  map[string]string        `json:"id_map,omitempty"`

	// Deleted and Remaining list the domains an absent run removed and
	// could not remove.
	Deleted   []string `json:"deleted,omitempty"`
	Remaining []string `json:"remaining,omitempty"`

	// Err accumulates every failure of the run.
	Err error `json:"-"`
}

func (s Summary) total(f func(Counts) int) int {
	n := 0
	for _, c := range s.Counts {
		n += f(c)
	}
	return n
}

// Migrated is the number of source entities reconciled on the target.
func (s Summary) Migrated() int {
	return s.total(func(c Counts) int { return c.Migrated })
}

// Failed is the number of source entities that failed to reconcile.
func (s Summary) Failed() int {
	return s.total(func(c Counts) int { return c.Failed })
}

// Skipped is the number of source entities not attempted because a
// reference was unresolved.
func (s Summary) Skipped() int {
	return s.total(func(c Counts) int { return c.Skipped })
}

// HasFailures reports whether anything failed, was skipped, or was left
// behind by an absent run.
func (s Summary) HasFailures() bool {
	return s.Failed() > 0 || s.Skipped() > 0 || len(s.Remaining) > 0 || s.Ledger.HasFailures()
}

// Clean reports a converged run: nothing changed and nothing failed.
func (s Summary) Clean() bool {
	return s.Ledger.IsIdempotent() && !s.HasFailures()
}

// Render writes the per-type counts, the ledger summary and the issues.
func (s Summary) Render(w io.Writer) error {
	if err := s.Ledger.Render(w); err != nil {
		return err
	}

	if !s.Absent {
		headerFmt := color.New(color.FgCyan, color.Bold).SprintfFunc()
		tbl := table.New("Source", "Migrated", "Failed", "Skipped").
			WithHeaderFormatter(headerFmt).
			WithWriter(w)
		for _, t := range ir.EntityTypes {
			c, ok := s.Counts[t]
			if !ok {
				continue
			}
			tbl.AddRow(string(t), c.Migrated, c.Failed, c.Skipped)
		}
		tbl.Print()
	}

	for _, d := range s.Deleted {
		if _, err := fmt.Fprintf(w, "Deleted domain: %s\n", d); err != nil {
			return err
		}
	}
	for _, d := range s.Remaining {
		if _, err := fmt.Fprintf(w, "Remaining domain: %s\n", d); err != nil {
			return err
		}
	}
	if len(s.Issues) > 0 {
		if _, err := fmt.Fprintln(w, "Issues:"); err != nil {
			return err
		}
		for _, i := range s.Issues {
			kind := "failed"
			if i.Skipped {
				kind = "skipped"
			}
			if _, err := fmt.Fprintf(w, "  [%s] %s %s (%s) %s: %s\n", i.ID, i.Type, i.Name, i.SourceID, kind, i.Message); err != nil {
				return err
			}
		}
	}
	return nil
}
