package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/epsync/internal/catalog"
	"github.com/roach88/epsync/internal/ir"
)

// seedEnum stages a domain and an enum with the given versions, each
// holding the single value "red".
func seedEnum(mem *catalog.Memory, versions ...string) (domainID string) {
	d := mem.Seed(ir.TypeApplicationDomain, ir.Snapshot{Name: "shop"})
	e := mem.Seed(ir.TypeEnum, ir.Snapshot{Name: "colors", ParentID: d.ID, Settings: ir.Settings{"shared": false}})
	for _, v := range versions {
		mem.Seed(ir.TypeEnumVersion, ir.Snapshot{ParentID: e.ID, Version: v, Settings: enumVersion(v, "red").Settings})
	}
	return d.ID
}

func versionsOf(mem *catalog.Memory) []string {
	var out []string
	for _, s := range mem.Snapshots(ir.TypeEnumVersion) {
		out = append(out, s.Version)
	}
	return out
}

func TestVersionCreatedWithParentThenNoop(t *testing.T) {
	mem := catalog.NewMemory()
	d := mem.Seed(ir.TypeApplicationDomain, ir.Snapshot{Name: "shop"})
	spec := enum("colors", "shop", enumVersion("1.0.0", "red"))

	res, err := execute(t, newTestRun(t, mem), spec, WithParentID(d.ID))
	require.NoError(t, err)
	assert.Equal(t, ir.Create, res.Action)
	require.Len(t, res.Versions, 1)
	assert.Equal(t, ir.Create, res.Versions[0].Action)
	assert.Equal(t, ir.TypeEnumVersion, res.Versions[0].Record.EntityType)
	assert.Equal(t, "1.0.0", res.Versions[0].Record.Version)

	run := newTestRun(t, mem)
	res, err = execute(t, run, spec, WithParentID(d.ID))
	require.NoError(t, err)
	assert.Equal(t, ir.NoOp, res.Action)
	assert.Equal(t, ir.NoOp, res.Versions[0].Action)
	assert.True(t, run.Summary().Clean())
}

func TestVersionGreaterThanLatestIsCreated(t *testing.T) {
	mem := catalog.NewMemory()
	d := seedEnum(mem, "1.0.0", "1.2.0")

	res, err := execute(t, newTestRun(t, mem), enum("colors", "shop", enumVersion("1.10.0", "red", "blue")), WithParentID(d))
	require.NoError(t, err)
	assert.Equal(t, ir.Create, res.Versions[0].Action)
	assert.Equal(t, []string{"1.0.0", "1.2.0", "1.10.0"}, versionsOf(mem))
}

func TestVersionExistingWithDifferentSettingsIsInvalid(t *testing.T) {
	mem := catalog.NewMemory()
	d := seedEnum(mem, "1.0.0")

	_, err := execute(t, newTestRun(t, mem), enum("colors", "shop", enumVersion("1.0.0", "blue")), WithParentID(d))
	require.Error(t, err)
	assert.True(t, IsInvalidVersion(err))
	assert.Empty(t, mem.Calls())
}

func TestVersionNotGreaterThanLatest(t *testing.T) {
	tests := []struct {
		name     string
		strategy VersionStrategy
		values   []string
		wantErr  bool
		want     ir.Action
		versions []string
	}{
		{"exact rejects", StrategyExact, []string{"red", "blue"}, true, ir.NoOp, []string{"1.0.0", "2.0.0"}},
		{"exact rejects even when equal", StrategyExact, []string{"red"}, true, ir.NoOp, []string{"1.0.0", "2.0.0"}},
		{"bump patch noop when latest matches", StrategyBumpPatch, []string{"red"}, false, ir.NoOp, []string{"1.0.0", "2.0.0"}},
		{"bump patch creates next patch", StrategyBumpPatch, []string{"red", "blue"}, false, ir.Create, []string{"1.0.0", "2.0.0", "2.0.1"}},
		{"bump minor creates next minor", StrategyBumpMinor, []string{"red", "blue"}, false, ir.Create, []string{"1.0.0", "2.0.0", "2.1.0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := catalog.NewMemory()
			d := seedEnum(mem, "1.0.0", "2.0.0")
			run := newTestRun(t, mem, WithVersionStrategy(tt.strategy))

			res, err := execute(t, run, enum("colors", "shop", enumVersion("1.5.0", tt.values...)), WithParentID(d))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsInvalidVersion(err))
				assert.Empty(t, mem.Calls(), "remote state must be unchanged")
			} else {
				require.NoError(t, err)
				require.Len(t, res.Versions, 1)
				assert.Equal(t, tt.want, res.Versions[0].Action)
			}
			assert.Equal(t, tt.versions, versionsOf(mem))
		})
	}
}

func TestVersionBumpSupersedesDriftedDeclaredVersion(t *testing.T) {
	mem := catalog.NewMemory()
	d := seedEnum(mem, "1.0.0")
	run := newTestRun(t, mem, WithVersionStrategy(StrategyBumpPatch))

	res, err := execute(t, run, enum("colors", "shop", enumVersion("1.0.0", "blue")), WithParentID(d))
	require.NoError(t, err)
	require.Len(t, res.Versions, 1)
	assert.Equal(t, ir.Create, res.Versions[0].Action)
	assert.Equal(t, "1.0.1", res.Versions[0].Version)
	assert.Equal(t, []string{"1.0.0", "1.0.1"}, versionsOf(mem))
}

func TestVersionServerShapedValuesAreUnchanged(t *testing.T) {
	for _, strategy := range []VersionStrategy{StrategyExact, StrategyBumpPatch} {
		t.Run(string(strategy), func(t *testing.T) {
			mem := catalog.NewMemory()
			d := mem.Seed(ir.TypeApplicationDomain, ir.Snapshot{Name: "shop"})
			e := mem.Seed(ir.TypeEnum, ir.Snapshot{Name: "colors", ParentID: d.ID, Settings: ir.Settings{"shared": false}})
			mem.Seed(ir.TypeEnumVersion, ir.Snapshot{ParentID: e.ID, Version: "1.0.0", Settings: ir.Settings{
				"stateId": "1",
				"values": []any{map[string]any{
					"label": "red", "value": "red", "id": "ev-1", "enumVersionId": "v-1", "type": "enumValue",
				}},
			}})
			run := newTestRun(t, mem, WithVersionStrategy(strategy))

			res, err := execute(t, run, enum("colors", "shop", enumVersion("1.0.0", "red")), WithParentID(d.ID))
			require.NoError(t, err)
			require.Len(t, res.Versions, 1)
			assert.Equal(t, ir.NoOp, res.Versions[0].Action)
			assert.Equal(t, []string{"1.0.0"}, versionsOf(mem))
			assert.Empty(t, mem.Calls())
		})
	}
}

func TestVersionNotSemver(t *testing.T) {
	mem := catalog.NewMemory()
	d := seedEnum(mem)

	_, err := execute(t, newTestRun(t, mem), enum("colors", "shop", ir.VersionSpec{Version: "latest"}), WithParentID(d))
	require.Error(t, err)
	assert.True(t, IsInvalidVersion(err))
}

func TestVersionsSeeEarlierDeclarations(t *testing.T) {
	mem := catalog.NewMemory()
	d := seedEnum(mem)

	spec := enum("colors", "shop", enumVersion("1.0.0", "red"), enumVersion("1.1.0", "red", "blue"), enumVersion("1.0.5", "red"))
	_, err := execute(t, newTestRun(t, mem), spec, WithParentID(d))
	require.Error(t, err, "1.0.5 is below the 1.1.0 created earlier in the same task")
	assert.True(t, IsInvalidVersion(err))
	assert.Equal(t, []string{"1.0.0", "1.1.0"}, versionsOf(mem))
}

func TestVersionDryRunUnderPlannedParent(t *testing.T) {
	mem := catalog.NewMemory()

	run := newTestRun(t, mem, WithDryRun(true))
	res, err := execute(t, run, enum("colors", "shop", enumVersion("1.0.0", "red"), enumVersion("1.1.0", "red")), WithPendingParent())
	require.NoError(t, err)
	assert.Equal(t, ir.Create, res.Action)
	require.Len(t, res.Versions, 2)
	assert.Equal(t, ir.Create, res.Versions[1].Action)
	assert.Equal(t, 3, run.Summary().Mutations())
	assert.Empty(t, mem.Calls())
}

func TestVersionsSkippedForAbsentParent(t *testing.T) {
	mem := catalog.NewMemory()
	d := seedEnum(mem, "1.0.0")

	spec := enum("colors", "shop", enumVersion("2.0.0", "red"))
	spec.TargetState = ir.Absent
	res, err := execute(t, newTestRun(t, mem), spec, WithParentID(d))
	require.NoError(t, err)
	assert.Equal(t, ir.Delete, res.Action)
	assert.Empty(t, res.Versions)
	assert.Empty(t, mem.Snapshots(ir.TypeEnumVersion))
}

func TestParseVersionStrategy(t *testing.T) {
	s, err := ParseVersionStrategy("")
	require.NoError(t, err)
	assert.Equal(t, StrategyExact, s)

	s, err = ParseVersionStrategy("bump_minor")
	require.NoError(t, err)
	assert.Equal(t, StrategyBumpMinor, s)

	_, err = ParseVersionStrategy("latest")
	require.Error(t, err)
}

func TestVersionRecordsCarryVersion(t *testing.T) {
	mem := catalog.NewMemory()
	d := seedEnum(mem)
	run := newTestRun(t, mem)

	_, err := NewTask(run, enum("colors", "shop", enumVersion("1.0.0", "red")), WithParentID(d)).Execute(context.Background())
	require.NoError(t, err)
	recs := run.Log.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, ir.TypeEnum, recs[0].EntityType)
	assert.Equal(t, ir.TypeEnumVersion, recs[1].EntityType)
	assert.Equal(t, "1.0.0", recs[1].Version)
	assert.Less(t, recs[0].Seq, recs[1].Seq)
}
