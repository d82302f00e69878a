package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/epsync/internal/catalog"
	"github.com/roach88/epsync/internal/ir"
	"github.com/roach88/epsync/internal/migrate"
)

func reconcileOpts(t *testing.T, client catalog.Client, runID string) *ReconcileOptions {
	t.Helper()
	return &ReconcileOptions{
		RootOptions: &RootOptions{Format: "text"},
		Config:      quietConfig(t, ""),
		RunID:       runID,
		Client:      client,
	}
}

func TestReconcileCommand_Offline(t *testing.T) {
	dir := desiredStateDir(t, map[string]string{"orders.yaml": ordersYAML})

	buf := &bytes.Buffer{}
	cmd := NewReconcileCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{dir, "--offline", "--run-id", "run-1", "--config", quietConfig(t, "")})

	require.NoError(t, cmd.Execute())
	out := buf.String()
	assert.Contains(t, out, "Run run-1")
	assert.Contains(t, out, "application_domain")
	assert.Contains(t, out, "enum_version")
	assert.Contains(t, out, "Outcome: applied")
}

func TestReconcile_SecondRunConverges(t *testing.T) {
	dir := desiredStateDir(t, map[string]string{"orders.yaml": ordersYAML})
	target := catalog.NewMemory(catalog.WithIDPrefix("t"))

	cmd, out, _ := testCommand()
	require.NoError(t, runReconcile(reconcileOpts(t, target, "run-1"), dir, cmd))
	assert.Contains(t, out.String(), "Outcome: applied")
	assert.Equal(t, 3, target.Len())

	domains := target.Snapshots(ir.TypeApplicationDomain)
	require.Len(t, domains, 1)
	assert.Equal(t, "run-1", domains[0].Settings[migrate.RunIDKey])

	cmd, out, _ = testCommand()
	require.NoError(t, runReconcile(reconcileOpts(t, target, "run-2"), dir, cmd))
	assert.Contains(t, out.String(), "Outcome: converged")
	assert.Equal(t, 3, target.Len())
}

func TestReconcile_DryRunChangesNothing(t *testing.T) {
	dir := desiredStateDir(t, map[string]string{"orders.yaml": ordersYAML})
	target := catalog.NewMemory()

	opts := reconcileOpts(t, target, "dry-1")
	opts.DryRun = true
	cmd, out, _ := testCommand()
	require.NoError(t, runReconcile(opts, dir, cmd))

	assert.Contains(t, out.String(), "Run dry-1 (dry run)")
	assert.Contains(t, out.String(), "Outcome: planned")
	assert.Equal(t, 0, target.Len())
	assert.Empty(t, target.Calls())
}

func TestReconcile_JSON(t *testing.T) {
	dir := desiredStateDir(t, map[string]string{"orders.yaml": ordersYAML})

	opts := reconcileOpts(t, catalog.NewMemory(), "run-1")
	opts.Format = "json"
	cmd, out, _ := testCommand()
	require.NoError(t, runReconcile(opts, dir, cmd))

	var resp struct {
		Status string          `json:"status"`
		RunID  string          `json:"run_id"`
		Data   ReconcileResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "run-1", resp.RunID)
	assert.Equal(t, "applied", resp.Data.Outcome)
	assert.Equal(t, 3, resp.Data.Summary.Mutations())
	assert.Equal(t, 1, resp.Data.Summary.Count(ir.TypeEnumVersion, ir.Create))
}

func TestReconcile_FailureExitsOne(t *testing.T) {
	dir := desiredStateDir(t, map[string]string{"orders.yaml": ordersYAML})
	target := catalog.NewMemory(catalog.WithHook(func(op catalog.Op, et ir.EntityType, _ string) error {
		if op == catalog.OpCreate && et == ir.TypeEnum {
			return errors.New("enum service down")
		}
		return nil
	}))

	opts := reconcileOpts(t, target, "run-1")
	opts.Format = "json"
	cmd, out, _ := testCommand()
	err := runReconcile(opts, dir, cmd)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeRunFailed, resp.Error.Code)
	assert.Len(t, target.Snapshots(ir.TypeApplicationDomain), 1, "the domain before the failure is kept")
}

func TestReconcile_InvalidDesiredStateIsCommandError(t *testing.T) {
	dir := desiredStateDir(t, map[string]string{"bad.yaml": `entities:
  - type: enum
    name: colors
    parent: {type: application_domain, name: billing}
`})
	target := catalog.NewMemory()

	cmd, out, _ := testCommand()
	err := runReconcile(reconcileOpts(t, target, "run-1"), dir, cmd)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out.String(), "E213")
	assert.Empty(t, target.Calls())
}

func TestReconcile_InvalidStrategy(t *testing.T) {
	dir := desiredStateDir(t, map[string]string{"orders.yaml": ordersYAML})

	opts := reconcileOpts(t, catalog.NewMemory(), "run-1")
	opts.Strategy = "bump_major"
	cmd, _, _ := testCommand()
	err := runReconcile(opts, dir, cmd)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "bump_major")
}

func TestReconcile_RequiresTargetEndpoint(t *testing.T) {
	dir := desiredStateDir(t, map[string]string{"orders.yaml": ordersYAML})

	opts := reconcileOpts(t, nil, "run-1")
	cmd, _, _ := testCommand()
	err := runReconcile(opts, dir, cmd)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "target.base_url")
}

func TestReconcile_PersistsRun(t *testing.T) {
	dir := desiredStateDir(t, map[string]string{"orders.yaml": ordersYAML})
	db := filepath.Join(t.TempDir(), "runs.db")

	opts := reconcileOpts(t, catalog.NewMemory(), "run-1")
	opts.Database = db
	cmd, _, _ := testCommand()
	require.NoError(t, runReconcile(opts, dir, cmd))

	cmd, out, _ := testCommand()
	require.NoError(t, runRuns(&RunsOptions{RootOptions: &RootOptions{Format: "json"}, Database: db}, "run-1", cmd))

	var resp struct {
		Data RunDetail `json:"data"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "run-1", resp.Data.Run.ID)
	assert.Equal(t, "reconcile", string(resp.Data.Run.Kind))
	assert.Equal(t, "applied", resp.Data.Run.Outcome)
	assert.Len(t, resp.Data.Transactions, 3)
	assert.Empty(t, resp.Data.Failures)
}

func TestReconcile_WritesMetricsTextfile(t *testing.T) {
	dir := desiredStateDir(t, map[string]string{"orders.yaml": ordersYAML})
	textfile := filepath.Join(t.TempDir(), "epsync.prom")

	opts := reconcileOpts(t, catalog.NewMemory(), "run-1")
	opts.Config = quietConfig(t, "metrics:\n  textfile: "+textfile+"\n")
	cmd, _, _ := testCommand()
	require.NoError(t, runReconcile(opts, dir, cmd))

	assert.FileExists(t, textfile)
}
