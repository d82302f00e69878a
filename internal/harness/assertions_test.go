package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/epsync/internal/catalog"
	"github.com/roach88/epsync/internal/ir"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Step: "one", Seq: 1, EntityType: ir.TypeApplicationDomain, Name: "orders", Action: ir.Create, RemoteID: "t-1"},
		{Step: "one", Seq: 2, EntityType: ir.TypeEnum, Name: "colors", Action: ir.Create, RemoteID: "t-2"},
		{Step: "one", Seq: 3, EntityType: ir.TypeEnumVersion, Name: "colors", Version: "1.0.0", Action: ir.Create, RemoteID: "t-3"},
		{Step: "two", Seq: 1, EntityType: ir.TypeApplicationDomain, Name: "orders", Action: ir.Delete, RemoteID: "t-1"},
	}
}

func TestTraceEventString(t *testing.T) {
	trace := sampleTrace()
	assert.Equal(t, "1 CREATE application_domain orders -> t-1", trace[0].String())
	assert.Equal(t, "3 CREATE enum_version colors@1.0.0 -> t-3", trace[2].String())

	recovered := TraceEvent{Seq: 4, EntityType: ir.TypeEvent, Name: "created", Action: ir.NoOp, Recovered: true}
	assert.Equal(t, "4 NOOP event created (recovered)", recovered.String())
}

func TestTraceMatch(t *testing.T) {
	e := sampleTrace()[2]
	tests := []struct {
		name  string
		match TraceMatch
		want  bool
	}{
		{"empty matches anything", TraceMatch{}, true},
		{"action", TraceMatch{Action: "CREATE"}, true},
		{"wrong action", TraceMatch{Action: "DELETE"}, false},
		{"entity and name", TraceMatch{Entity: "enum_version", Name: "colors"}, true},
		{"wrong entity", TraceMatch{Entity: "enum", Name: "colors"}, false},
		{"version", TraceMatch{Version: "1.0.0"}, true},
		{"wrong version", TraceMatch{Version: "1.0.1"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.match.Matches(e))
		})
	}
}

func TestAssertTraceContains(t *testing.T) {
	trace := sampleTrace()

	err := assertTraceContains(trace, Assertion{Type: AssertTraceContains, TraceMatch: TraceMatch{Action: "DELETE", Name: "orders"}})
	assert.NoError(t, err)

	err = assertTraceContains(trace, Assertion{Type: AssertTraceContains, TraceMatch: TraceMatch{Action: "UPDATE", Name: "orders"}})
	require.Error(t, err)
	var aerr *AssertionError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "UPDATE orders", aerr.Expected)
	assert.Equal(t, "not found in trace", aerr.Actual)
	assert.Contains(t, err.Error(), "[two] 1 DELETE application_domain orders -> t-1")
}

func TestAssertTraceOrder(t *testing.T) {
	trace := sampleTrace()

	inOrder := Assertion{Type: AssertTraceOrder, Order: []TraceMatch{
		{Action: "CREATE", Entity: "application_domain"},
		{Entity: "enum_version"},
		{Action: "DELETE"},
	}}
	assert.NoError(t, assertTraceOrder(trace, inOrder))

	reversed := Assertion{Type: AssertTraceOrder, Order: []TraceMatch{
		{Action: "DELETE"},
		{Action: "CREATE", Entity: "enum"},
	}}
	err := assertTraceOrder(trace, reversed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no CREATE enum after entry 1")

	missing := Assertion{Type: AssertTraceOrder, Order: []TraceMatch{
		{Action: "UPDATE"},
		{Action: "DELETE"},
	}}
	err = assertTraceOrder(trace, missing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing UPDATE")
}

func TestAssertTraceOrder_SameMatchTwice(t *testing.T) {
	trace := sampleTrace()
	twice := Assertion{Type: AssertTraceOrder, Order: []TraceMatch{
		{Name: "orders"},
		{Name: "orders"},
	}}
	assert.NoError(t, assertTraceOrder(trace, twice))

	thrice := Assertion{Type: AssertTraceOrder, Order: []TraceMatch{
		{Name: "orders"},
		{Name: "orders"},
		{Name: "orders"},
	}}
	assert.Error(t, assertTraceOrder(trace, thrice))
}

func TestAssertTraceCount(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceCount(trace, Assertion{TraceMatch: TraceMatch{Action: "CREATE"}, Count: 3}))
	assert.NoError(t, assertTraceCount(trace, Assertion{TraceMatch: TraceMatch{Action: "UPDATE"}, Count: 0}))

	err := assertTraceCount(trace, Assertion{TraceMatch: TraceMatch{Name: "orders"}, Count: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Expected: 1 occurrences of orders")
	assert.Contains(t, err.Error(), "Actual: 2 occurrences")
}

func TestAssertFinalState(t *testing.T) {
	target := catalog.NewMemory(catalog.WithIDPrefix("t"))
	d := target.Seed(ir.TypeApplicationDomain, ir.Snapshot{Name: "orders", Settings: ir.Settings{"description": "A", "runId": "r-1"}})
	e := target.Seed(ir.TypeEnum, ir.Snapshot{Name: "colors", ParentID: d.ID, Settings: ir.Settings{"shared": true}})
	target.Seed(ir.TypeEnumVersion, ir.Snapshot{ParentID: e.ID, Version: "1.0.0", Settings: ir.Settings{
		"values": []any{map[string]any{"value": "red", "label": "red"}},
	}})
	target.Seed(ir.TypeApplicationDomain, ir.Snapshot{Name: "dup"})
	target.Seed(ir.TypeApplicationDomain, ir.Snapshot{Name: "dup"})

	tests := []struct {
		name      string
		assertion Assertion
		wantErr   string
	}{
		{
			name:      "subset of settings",
			assertion: Assertion{TraceMatch: TraceMatch{Entity: "application_domain", Name: "orders"}, Expect: map[string]any{"description": "A"}},
		},
		{
			name:      "numbers and nesting normalized",
			assertion: Assertion{TraceMatch: TraceMatch{Entity: "enum_version", Version: "1.0.0"}, ParentID: "t-2", Expect: map[string]any{"values": []any{map[string]any{"label": "red", "value": "red"}}}},
		},
		{
			name:      "absent",
			assertion: Assertion{TraceMatch: TraceMatch{Entity: "enum", Name: "sizes"}, Absent: true},
		},
		{
			name:      "present but expected absent",
			assertion: Assertion{TraceMatch: TraceMatch{Entity: "enum", Name: "colors"}, Absent: true},
			wantErr:   "found t-2",
		},
		{
			name:      "wrong value",
			assertion: Assertion{TraceMatch: TraceMatch{Entity: "application_domain", Name: "orders"}, Expect: map[string]any{"description": "B"}},
			wantErr:   `setting "description" = B`,
		},
		{
			name:      "missing key",
			assertion: Assertion{TraceMatch: TraceMatch{Entity: "application_domain", Name: "orders"}, Expect: map[string]any{"topicDomainEnforcementEnabled": true}},
			wantErr:   "to exist",
		},
		{
			name:      "not found",
			assertion: Assertion{TraceMatch: TraceMatch{Entity: "application_domain", Name: "billing"}},
			wantErr:   "0 matches",
		},
		{
			name:      "ambiguous",
			assertion: Assertion{TraceMatch: TraceMatch{Entity: "application_domain", Name: "dup"}},
			wantErr:   "2 matches",
		},
		{
			name:      "wrong parent",
			assertion: Assertion{TraceMatch: TraceMatch{Entity: "enum", Name: "colors"}, ParentID: "t-9"},
			wantErr:   "exactly one enum colors in t-9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.assertion.Type = AssertFinalState
			err := assertFinalState(target, tt.assertion)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEvaluateAssertions(t *testing.T) {
	result := NewResult()
	result.Trace = sampleTrace()

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertTraceContains, TraceMatch: TraceMatch{Action: "CREATE"}},
		{Type: AssertTraceCount, Step: "two", TraceMatch: TraceMatch{Action: "CREATE"}, Count: 0},
		{Type: AssertTraceCount, Step: "one", TraceMatch: TraceMatch{Action: "DELETE"}, Count: 1},
		{Type: AssertFinalState, TraceMatch: TraceMatch{Entity: "enum", Name: "colors"}},
		{Type: "trace_exists"},
	}, nil)

	require.Len(t, errs, 3)
	assert.Contains(t, errs[0], "Actual: 0 occurrences")
	assert.Contains(t, errs[1], "final_state requires a target catalog")
	assert.Contains(t, errs[2], `unknown assertion type "trace_exists"`)
}
