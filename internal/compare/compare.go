package compare

import (
	"fmt"
	"slices"

	"github.com/google/go-cmp/cmp"

	"github.com/roach88/epsync/internal/ir"
)

// Comparator decides actions for one entity type. It only looks at the
// recognized keys; anything else the server returns is metadata.
type Comparator struct {
	Type ir.EntityType
	Keys []string
}

// Change is a single differing recognized key.
type Change struct {
	Key     string `json:"key"`
	Current any    `json:"current,omitempty"`
	Desired any    `json:"desired,omitempty"`
}

var registry = map[ir.EntityType][]string{
	ir.TypeApplicationDomain:  {"description", "uniqueTopicAddressEnforcementEnabled", "topicDomainEnforcementEnabled", "topicDomains"},
	ir.TypeEnum:               {"shared"},
	ir.TypeEnumVersion:        {"description", "displayName", "stateId", "values"},
	ir.TypeSchema:             {"shared", "contentType", "schemaType"},
	ir.TypeSchemaVersion:      {"description", "displayName", "stateId", "content"},
	ir.TypeEvent:              {"shared", "brokerType"},
	ir.TypeEventVersion:       {"description", "displayName", "stateId", "schemaVersionId", "deliveryDescriptor"},
	ir.TypeApplication:        {"applicationType", "brokerType"},
	ir.TypeApplicationVersion: {"description", "displayName", "stateId", "declaredProducedEventVersionIds", "declaredConsumedEventVersionIds"},
	ir.TypeEventAPI:           {"shared", "brokerType"},
	ir.TypeEventAPIVersion:    {"description", "displayName", "stateId", "producedEventVersionIds", "consumedEventVersionIds"},
}

// For returns the comparator registered for t.
func For(t ir.EntityType) (Comparator, error) {
	keys, ok := registry[t]
	if !ok {
		return Comparator{}, fmt.Errorf("no comparator for entity type %q", t)
	}
	return Comparator{Type: t, Keys: keys}, nil
}

// MustFor is For for callers holding a type from ir.EntityTypes.
func MustFor(t ir.EntityType) Comparator {
	c, err := For(t)
	if err != nil {
		panic(err)
	}
	return c
}

// Recognizes reports whether key takes part in comparison.
func (c Comparator) Recognizes(key string) bool {
	return slices.Contains(c.Keys, key)
}

// Project keeps only the recognized, non-nil keys of s, normalized.
// Create and update calls send exactly this, so a later Decide sees no drift.
func (c Comparator) Project(s ir.Settings) (ir.Settings, error) {
	n, err := ir.Normalize(s)
	if err != nil {
		return nil, err
	}
	out := make(ir.Settings, len(c.Keys))
	for _, k := range c.Keys {
		if v, ok := n[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

// Decide computes the action that converges current towards desired.
//
// Rules, in priority order:
//   - ABSENT: DELETE if current exists, else NOOP
//   - PRESENT and absent: CREATE
//   - PRESENT and found: UPDATE if any recognized desired key differs, else NOOP
func (c Comparator) Decide(desired ir.EntitySpec, current ir.Lookup) (ir.Action, error) {
	snap, exists := current.Get()
	switch desired.TargetState {
	case ir.Absent:
		if exists {
			return ir.Delete, nil
		}
		return ir.NoOp, nil
	case ir.Present, "":
		if !exists {
			return ir.Create, nil
		}
		changes, err := c.Diff(desired.Settings, snap.Settings)
		if err != nil {
			return ir.NoOp, err
		}
		if len(changes) > 0 {
			return ir.Update, nil
		}
		return ir.NoOp, nil
	default:
		return ir.NoOp, fmt.Errorf("invalid target state %q", desired.TargetState)
	}
}

// Diff lists the recognized keys present in desired whose normalized value
// differs from current. Keys missing from desired are not compared. Nested
// values are compared on the fields epsync sends, and id lists ignore order.
func (c Comparator) Diff(desired, current ir.Settings) ([]Change, error) {
	want, err := c.Project(desired)
	if err != nil {
		return nil, fmt.Errorf("desired settings: %w", err)
	}
	have, err := ir.Normalize(current)
	if err != nil {
		return nil, fmt.Errorf("current settings: %w", err)
	}

	var changes []Change
	for _, k := range c.Keys {
		w, ok := want[k]
		if !ok {
			continue
		}
		w, h := c.shaped(k, w), c.shaped(k, have[k])
		if !cmp.Equal(w, h) {
			changes = append(changes, Change{Key: k, Current: h, Desired: w})
		}
	}
	return changes, nil
}

// Report renders changes as a go-cmp diff for debug logs.
func Report(changes []Change) string {
	current := make(map[string]any, len(changes))
	desired := make(map[string]any, len(changes))
	for _, ch := range changes {
		current[ch.Key] = ch.Current
		desired[ch.Key] = ch.Desired
	}
	return cmp.Diff(current, desired)
}
