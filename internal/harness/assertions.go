package harness

import (
	"fmt"
	"strings"

	"github.com/google/go-cmp/cmp"

	"github.com/roach88/epsync/internal/catalog"
	"github.com/roach88/epsync/internal/ir"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Events the assertion looked at
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nTrace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%s] %s\n", event.Step, event)
		}
	}
	return buf.String()
}

// Matches reports whether e is selected by m. Empty fields match anything.
func (m TraceMatch) Matches(e TraceEvent) bool {
	return (m.Action == "" || m.Action == e.Action.String()) &&
		(m.Entity == "" || m.Entity == string(e.EntityType)) &&
		(m.Name == "" || m.Name == e.Name) &&
		(m.Version == "" || m.Version == e.Version)
}

func (m TraceMatch) String() string {
	parts := []string{}
	for _, p := range []string{m.Action, m.Entity, m.Name} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	s := strings.Join(parts, " ")
	if m.Version != "" {
		s += "@" + m.Version
	}
	return s
}

// assertTraceContains checks that at least one event matches.
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if assertion.Matches(event) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: assertion.TraceMatch.String(),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the entries match events in order. The
// events need not be consecutive; each entry takes the first match after
// the previous entry's event.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	pos := 0
	for i, m := range assertion.Order {
		found := false
		for ; pos < len(trace); pos++ {
			if m.Matches(trace[pos]) {
				found = true
				pos++
				break
			}
		}
		if !found {
			actual := fmt.Sprintf("no %s after entry %d", m, i)
			if i == 0 {
				actual = fmt.Sprintf("missing %s", m)
			}
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("in order: %s", joinMatches(assertion.Order)),
				Actual:   actual,
				Trace:    trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks that exactly Count events match.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if assertion.Matches(event) {
			count++
		}
	}
	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.TraceMatch),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState looks the entity up in the target catalog. With Absent
// no entity may match; otherwise exactly one must, and its settings must
// contain Expect after normalization.
func assertFinalState(target *catalog.Memory, assertion Assertion) error {
	t, err := ir.ParseEntityType(assertion.Entity)
	if err != nil {
		return err
	}
	var matches []ir.Snapshot
	for _, s := range target.Snapshots(t) {
		if (assertion.Name == "" || s.Name == assertion.Name) &&
			(assertion.Version == "" || s.Version == assertion.Version) &&
			(assertion.ParentID == "" || s.ParentID == assertion.ParentID) {
			matches = append(matches, s)
		}
	}

	what := assertion.TraceMatch.String()
	if assertion.ParentID != "" {
		what += " in " + assertion.ParentID
	}
	if assertion.Absent {
		if len(matches) > 0 {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: what + " to be absent",
				Actual:   fmt.Sprintf("found %s", matches[0].ID),
			}
		}
		return nil
	}
	if len(matches) != 1 {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: "exactly one " + what,
			Actual:   fmt.Sprintf("%d matches", len(matches)),
		}
	}

	want, err := ir.Normalize(ir.Settings(assertion.Expect))
	if err != nil {
		return fmt.Errorf("final_state expect: %w", err)
	}
	have, err := ir.Normalize(matches[0].Settings)
	if err != nil {
		return fmt.Errorf("final_state settings of %s: %w", matches[0].ID, err)
	}
	for _, key := range ir.SortedKeys(want) {
		actual, ok := have[key]
		if !ok {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s setting %q to exist", what, key),
				Actual:   fmt.Sprintf("keys %v", ir.SortedKeys(have)),
			}
		}
		if !cmp.Equal(want[key], actual) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s setting %q = %v", what, key, want[key]),
				Actual:   fmt.Sprintf("%v", actual),
			}
		}
	}
	return nil
}

func joinMatches(ms []TraceMatch) string {
	parts := make([]string, len(ms))
	for i, m := range ms {
		parts[i] = m.String()
	}
	return strings.Join(parts, ", ")
}

// EvaluateAssertions evaluates every assertion against the result and the
// final target catalog. It returns one message per failed assertion.
func EvaluateAssertions(result *Result, assertions []Assertion, target *catalog.Memory) []string {
	var errors []string

	for i, assertion := range assertions {
		trace := result.Trace
		if assertion.Step != "" {
			trace = result.StepTrace(assertion.Step)
		}

		var err error
		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(trace, assertion)
		case AssertFinalState:
			if target == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires a target catalog", i)
			} else {
				err = assertFinalState(target, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}
