package ledger

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/rodaine/table"

	"github.com/roach88/epsync/internal/ir"
)

// Summary aggregates a run's transaction log.
type Summary struct {
	RunID     string                              `json:"run_id"`
	DryRun    bool                                `json:"dry_run"`
	Counts    map[ir.EntityType]map[ir.Action]int `json:"counts"`
	Total     int                                 `json:"total"`
	Recovered int                                 `json:"recovered"`
	Failures  []Failure                           `json:"failures"`
}

func (s *Summary) add(t ir.EntityType, a ir.Action, n int) {
	if s.Counts == nil {
		s.Counts = map[ir.EntityType]map[ir.Action]int{}
	}
	if s.Counts[t] == nil {
		s.Counts[t] = map[ir.Action]int{}
	}
	s.Counts[t][a] += n
	s.Total += n
}

// Count returns the number of records with type t and action a.
func (s Summary) Count(t ir.EntityType, a ir.Action) int {
	return s.Counts[t][a]
}

// ActionCount returns the number of records with action a across types.
func (s Summary) ActionCount(a ir.Action) int {
	n := 0
	for _, byAction := range s.Counts {
		n += byAction[a]
	}
	return n
}

// Mutations is the number of CREATE, UPDATE and DELETE records.
func (s Summary) Mutations() int {
	return s.ActionCount(ir.Create) + s.ActionCount(ir.Update) + s.ActionCount(ir.Delete)
}

// IsIdempotent reports whether the run changed nothing.
func (s Summary) IsIdempotent() bool {
	return s.Mutations() == 0
}

// HasFailures reports whether any entity failed.
func (s Summary) HasFailures() bool {
	return len(s.Failures) > 0
}

// Clean reports a converged run: nothing changed and nothing failed.
func (s Summary) Clean() bool {
	return s.IsIdempotent() && !s.HasFailures()
}

// Merge adds o's counts and failures to s.
func (s *Summary) Merge(o Summary) {
	for t, byAction := range o.Counts {
		for a, n := range byAction {
			s.add(t, a, n)
		}
	}
	s.Recovered += o.Recovered
	s.Failures = append(s.Failures, o.Failures...)
}

// Outcome is a one-word description of the run.
func (s Summary) Outcome() string {
	switch {
	case s.HasFailures():
		return "failed"
	case s.IsIdempotent():
		return "converged"
	case s.DryRun:
		return "planned"
	default:
		return "applied"
	}
}

// Render writes the summary as a table, one row per entity type.
func (s Summary) Render(w io.Writer) error {
	header := "Run " + s.RunID
	if s.DryRun {
		header += " (dry run)"
	}
	if _, err := fmt.Fprintln(w, header); err != nil {
		return err
	}

	headerFmt := color.New(color.FgGreen, color.Bold).SprintfFunc()
	tbl := table.New("Entity", "Create", "Update", "Delete", "Noop").
		WithHeaderFormatter(headerFmt).
		WithWriter(w)
	for _, t := range ir.EntityTypes {
		byAction, ok := s.Counts[t]
		if !ok {
			continue
		}
		tbl.AddRow(string(t), byAction[ir.Create], byAction[ir.Update], byAction[ir.Delete], byAction[ir.NoOp])
	}
	tbl.Print()

	if s.Recovered > 0 {
		if _, err := fmt.Fprintf(w, "Recovered: %d entities vanished during apply\n", s.Recovered); err != nil {
			return err
		}
	}
	if s.HasFailures() {
		if _, err := fmt.Fprintln(w, "Failures:"); err != nil {
			return err
		}
		for _, f := range s.Failures {
			if _, err := fmt.Fprintf(w, "  %s/%s: %s\n", f.EntityType, f.Name, f.Message); err != nil {
				return err
			}
		}
	}
	_, err := fmt.Fprintf(w, "Result: %s (%d records, %d mutations)\n", s.Outcome(), s.Total, s.Mutations())
	return err
}
