package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/epsync/internal/ir"
	"github.com/roach88/epsync/internal/ledger"
	"github.com/roach88/epsync/internal/migrate"
)

// TraceEvent is one ledger record produced by a step.
type TraceEvent struct {
	Step       string        `json:"step"`
	Seq        int64         `json:"seq"`
	EntityType ir.EntityType `json:"entity_type"`
	Name       string        `json:"name"`
	Version    string        `json:"version,omitempty"`
	Action     ir.Action     `json:"action"`
	RemoteID   string        `json:"remote_id,omitempty"`
	Recovered  bool          `json:"recovered,omitempty"`
	DryRun     bool          `json:"dry_run,omitempty"`
}

// String renders the event on one line:
//
//	<seq> <ACTION> <entity_type> <name>[@version][ -> remote_id][ (recovered)]
func (e TraceEvent) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d %s %s %s", e.Seq, e.Action, e.EntityType, e.Name)
	if e.Version != "" {
		b.WriteString("@" + e.Version)
	}
	if e.RemoteID != "" {
		b.WriteString(" -> " + e.RemoteID)
	}
	if e.Recovered {
		b.WriteString(" (recovered)")
	}
	return b.String()
}

// StepResult is what one step did.
type StepResult struct {
	Name    string         `json:"name"`
	Kind    string         `json:"kind"`
	RunID   string         `json:"run_id"`
	Outcome string         `json:"outcome"`
	Summary ledger.Summary `json:"summary"`

	// Skipped counts specs or source entities that were not attempted.
	Skipped int `json:"skipped"`

	// Migrate and absent steps only.
	Issues  []migrate.RunIssue `json:"issues,omitempty"`
	IDMap   map[string]string  `json:"id_map,omitempty"`
	Deleted []string           `json:"deleted,omitempty"`

	// Err is the error the step returned, if it aborted.
	Err error `json:"-"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step expectation, assertion and principle held.
	Pass bool `json:"pass"`

	// Trace holds every record of every step, in order.
	Trace []TraceEvent `json:"trace"`

	Steps []StepResult `json:"steps"`

	// Errors describes each failed check. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Steps:  []StepResult{},
		Errors: []string{},
	}
}

// AddError adds a failed check and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// StepTrace returns the events of the named step.
func (r *Result) StepTrace(step string) []TraceEvent {
	var out []TraceEvent
	for _, e := range r.Trace {
		if e.Step == step {
			out = append(out, e)
		}
	}
	return out
}

// recorder is a ledger sink that appends each record to a trace.
type recorder struct {
	step   string
	events []TraceEvent
}

func (r *recorder) Record(rec ir.TransactionRecord) error {
	r.events = append(r.events, TraceEvent{
		Step:       r.step,
		Seq:        rec.Seq,
		EntityType: rec.EntityType,
		Name:       rec.Name,
		Version:    rec.Version,
		Action:     rec.Action,
		RemoteID:   rec.RemoteID,
		Recovered:  rec.Recovered,
		DryRun:     rec.DryRun,
	})
	return nil
}

func (r *recorder) Fail(ledger.Failure) error {
	return nil
}
