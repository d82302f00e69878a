package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/epsync/internal/compiler"
	"github.com/roach88/epsync/internal/engine"
	"github.com/roach88/epsync/internal/ir"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// RunID is the base of every step's run ID. Defaults to Name.
	RunID string `yaml:"run_id,omitempty"`

	// Target and Source are seeded, in order, before the first step.
	// Target IDs are t-1, t-2, ... and source IDs s-1, s-2, ...
	Target []SeedEntity `yaml:"target,omitempty"`
	Source []SeedEntity `yaml:"source,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions,omitempty"`

	// Principles are properties checked after the last step.
	Principles []string `yaml:"principles,omitempty"`
}

// SeedEntity is an entity present in a catalog before the scenario runs.
type SeedEntity struct {
	Type string `yaml:"type"`
	Name string `yaml:"name"`

	// Parent is the ID of an earlier seeded entity.
	Parent   string         `yaml:"parent,omitempty"`
	Version  string         `yaml:"version,omitempty"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// Step is one run against the catalogs.
type Step struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`

	DryRun   bool   `yaml:"dry_run,omitempty"`
	FailFast bool   `yaml:"fail_fast,omitempty"`
	Strategy string `yaml:"strategy,omitempty"`

	// Prefix and AbsentRunID configure migrate and absent steps.
	Prefix      string `yaml:"prefix,omitempty"`
	AbsentRunID string `yaml:"absent_run_id,omitempty"`

	// Entities is the desired state of a reconcile step, in the
	// desired-state YAML entity format.
	Entities yaml.Node `yaml:"entities,omitempty"`

	Expect *StepExpect `yaml:"expect,omitempty"`
}

// StepExpect checks a step's result. Unset fields are not checked.
type StepExpect struct {
	// Outcome is failed, converged, planned or applied.
	Outcome   string `yaml:"outcome,omitempty"`
	Mutations *int   `yaml:"mutations,omitempty"`
	Failures  *int   `yaml:"failures,omitempty"`
	Skipped   *int   `yaml:"skipped,omitempty"`

	// Error expects the step to abort with an error.
	Error bool `yaml:"error,omitempty"`
}

// Step kinds.
const (
	KindReconcile = "reconcile"
	KindMigrate   = "migrate"
	KindAbsent    = "absent"
)

// Assertion validates the trace or the final target state.
type Assertion struct {
	// Type is trace_contains, trace_order, trace_count or final_state.
	Type string `yaml:"type"`

	// Step limits trace assertions to one step.
	Step string `yaml:"step,omitempty"`

	// TraceMatch fields select records for trace_contains and trace_count.
	// For final_state, Entity and Name select the target entity.
	TraceMatch `yaml:",inline"`

	// Count is the expected number of matches (trace_count).
	Count int `yaml:"count,omitempty"`

	// Order lists matches that must appear in order (trace_order).
	Order []TraceMatch `yaml:"order,omitempty"`

	// ParentID narrows final_state to one parent.
	ParentID string `yaml:"parent_id,omitempty"`

	// Expect is a subset of the entity's settings (final_state).
	Expect map[string]any `yaml:"expect,omitempty"`

	// Absent asserts that no matching entity exists (final_state).
	Absent bool `yaml:"absent,omitempty"`
}

// TraceMatch selects trace events. Empty fields match anything.
type TraceMatch struct {
	Action  string `yaml:"action,omitempty"`
	Entity  string `yaml:"entity,omitempty"`
	Name    string `yaml:"name,omitempty"`
	Version string `yaml:"version,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// PrincipleIdempotent reruns the last step and expects nothing to change.
const PrincipleIdempotent = "idempotent"

var principles = []string{PrincipleIdempotent}

// LoadScenario reads and parses a scenario YAML file. Unknown fields,
// missing required fields and malformed steps are errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// BaseRunID returns the run ID prefix of the scenario's steps.
func (s *Scenario) BaseRunID() string {
	if s.RunID != "" {
		return s.RunID
	}
	return s.Name
}

// StepRunID returns the run ID of step i.
func (s *Scenario) StepRunID(i int) string {
	return fmt.Sprintf("%s-%d", s.BaseRunID(), i+1)
}

// Specs compiles the step's desired state.
func (st *Step) Specs() ([]ir.EntitySpec, error) {
	if st.Entities.Kind == 0 {
		return []ir.EntitySpec{}, nil
	}
	data, err := yaml.Marshal(map[string]*yaml.Node{"entities": &st.Entities})
	if err != nil {
		return nil, fmt.Errorf("step %s: %w", st.Name, err)
	}
	return compiler.CompileYAML(data, "step "+st.Name)
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, e := range s.Target {
		if err := validateSeed("target", i, e); err != nil {
			return err
		}
	}
	for i, e := range s.Source {
		if err := validateSeed("source", i, e); err != nil {
			return err
		}
	}

	names := map[string]bool{}
	for i := range s.Steps {
		if err := validateStep(i, &s.Steps[i]); err != nil {
			return err
		}
		if names[s.Steps[i].Name] {
			return fmt.Errorf("steps[%d]: duplicate step name %q", i, s.Steps[i].Name)
		}
		names[s.Steps[i].Name] = true
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a, names); err != nil {
			return err
		}
	}

	for i, p := range s.Principles {
		if !slices.Contains(principles, p) {
			return fmt.Errorf("principles[%d]: unknown principle %q", i, p)
		}
	}
	return nil
}

func validateSeed(list string, i int, e SeedEntity) error {
	if _, err := ir.ParseEntityType(e.Type); err != nil {
		return fmt.Errorf("%s[%d]: %w", list, i, err)
	}
	if e.Name == "" {
		return fmt.Errorf("%s[%d]: name is required", list, i)
	}
	return nil
}

func validateStep(i int, st *Step) error {
	if st.Name == "" {
		return fmt.Errorf("steps[%d]: name is required", i)
	}
	switch st.Kind {
	case KindReconcile:
		if st.Entities.Kind == 0 {
			return fmt.Errorf("steps[%d]: entities is required for reconcile", i)
		}
		specs, err := st.Specs()
		if err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
		if verrs := compiler.Validate(specs); len(verrs) > 0 {
			return fmt.Errorf("steps[%d]: %w", i, verrs[0])
		}
	case KindMigrate, KindAbsent:
		if st.Entities.Kind != 0 {
			return fmt.Errorf("steps[%d]: entities is only valid for reconcile", i)
		}
	default:
		return fmt.Errorf("steps[%d]: unknown kind %q: must be reconcile, migrate or absent", i, st.Kind)
	}
	if _, err := engine.ParseVersionStrategy(st.Strategy); err != nil {
		return fmt.Errorf("steps[%d]: %w", i, err)
	}
	return nil
}

func validateAssertion(index int, a *Assertion, steps map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Step != "" && !steps[a.Step] {
		return fmt.Errorf("assertions[%d]: unknown step %q", index, a.Step)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.TraceMatch == (TraceMatch{}) {
			return fmt.Errorf("assertions[%d]: action, entity or name is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Order) < 2 {
			return fmt.Errorf("assertions[%d]: order needs at least two entries for trace_order", index)
		}
		for j, m := range a.Order {
			if err := validateMatch(m); err != nil {
				return fmt.Errorf("assertions[%d].order[%d]: %w", index, j, err)
			}
		}
	case AssertTraceCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Entity == "" || (a.Name == "" && a.Version == "") {
			return fmt.Errorf("assertions[%d]: entity and a name or version are required for final_state", index)
		}
		if a.Absent && len(a.Expect) > 0 {
			return fmt.Errorf("assertions[%d]: expect and absent are exclusive for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	if err := validateMatch(a.TraceMatch); err != nil {
		return fmt.Errorf("assertions[%d]: %w", index, err)
	}
	return nil
}

func validateMatch(m TraceMatch) error {
	if m.Action != "" {
		if _, err := ir.ParseAction(m.Action); err != nil {
			return err
		}
	}
	if m.Entity != "" {
		if _, err := ir.ParseEntityType(m.Entity); err != nil {
			return err
		}
	}
	return nil
}
