package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/epsync/internal/ir"
)

// GoldenDir is the directory, next to the scenario files, that holds the
// golden snapshots.
const GoldenDir = "golden"

// GoldenSuffix is the golden file extension.
const GoldenSuffix = ".golden"

// Snapshot renders what each step of a scenario did as canonical JSON:
//
//	{"scenario":"...","steps":[{"kind":"...","name":"...","outcome":"...",
//	  "records":["1 CREATE application_domain orders -> t-1"],"run_id":"..."}]}
//
// Steps also carry "issues", "id_map" and "deleted" when they have any.
// Timestamps and transaction IDs are left out, so the snapshot only
// changes when behavior does.
func Snapshot(scenario *Scenario, result *Result) ([]byte, error) {
	steps := make([]any, 0, len(result.Steps))
	for _, sr := range result.Steps {
		records := []any{}
		for _, e := range result.StepTrace(sr.Name) {
			records = append(records, e.String())
		}
		step := map[string]any{
			"name":    sr.Name,
			"kind":    sr.Kind,
			"run_id":  sr.RunID,
			"outcome": sr.Outcome,
			"records": records,
		}
		if len(sr.Issues) > 0 {
			issues := make([]any, len(sr.Issues))
			for i, is := range sr.Issues {
				kind := "failed"
				if is.Skipped {
					kind = "skipped"
				}
				issues[i] = fmt.Sprintf("%s %s %s %s: %s", is.ID, is.Type, is.SourceID, kind, is.Message)
			}
			step["issues"] = issues
		}
		if len(sr.IDMap) > 0 {
			ids := make(map[string]any, len(sr.IDMap))
			for k, v := range sr.IDMap {
				ids[k] = v
			}
			step["id_map"] = ids
		}
		if len(sr.Deleted) > 0 {
			deleted := make([]any, len(sr.Deleted))
			for i, d := range sr.Deleted {
				deleted[i] = d
			}
			step["deleted"] = deleted
		}
		steps = append(steps, step)
	}

	return ir.MarshalCanonical(map[string]any{
		"scenario": scenario.Name,
		"steps":    steps,
	})
}

// GoldenPath returns the golden file of the scenario loaded from
// scenarioPath.
func GoldenPath(scenarioPath string, scenario *Scenario) string {
	return filepath.Join(filepath.Dir(scenarioPath), GoldenDir, scenario.Name+GoldenSuffix)
}

// ErrGoldenMissing is returned by CompareGolden when there is no golden
// file yet.
var ErrGoldenMissing = errors.New("golden file missing")

// CompareGolden reports whether the golden file at path holds exactly
// got. With update it writes got instead and reports true.
func CompareGolden(path string, got []byte, update bool) (bool, error) {
	if update {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return false, err
		}
		return true, os.WriteFile(path, got, 0o644)
	}
	want, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("%w: %s", ErrGoldenMissing, path)
	}
	if err != nil {
		return false, err
	}
	return bytes.Equal(want, got), nil
}

// RunWithGolden executes a scenario and compares its snapshot against
// dir/<scenario.Name>.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario, dir string) *Result {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		t.Fatalf("run scenario %s: %v", scenario.Name, err)
	}
	AssertGolden(t, scenario, result, dir)
	return result
}

// AssertGolden compares the snapshot of an existing result against a
// golden file without re-running the scenario.
func AssertGolden(t *testing.T, scenario *Scenario, result *Result, dir string) {
	t.Helper()

	snapshot, err := Snapshot(scenario, result)
	if err != nil {
		t.Fatalf("snapshot scenario %s: %v", scenario.Name, err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(dir),
		goldie.WithNameSuffix(GoldenSuffix),
	)
	g.Assert(t, scenario.Name, snapshot)
}
