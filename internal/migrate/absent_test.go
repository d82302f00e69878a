package migrate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/epsync/internal/catalog"
	"github.com/roach88/epsync/internal/ir"
)

func absentOptions(prefix string) Options {
	opts := testOptions()
	opts.Absent = true
	opts.Prefix = prefix
	return opts
}

// seedTarget stages two prefixed domains with content and one foreign
// domain.
func seedTarget() *catalog.Memory {
	mem := catalog.NewMemory(catalog.WithIDPrefix("t"))
	a := mem.Seed(ir.TypeApplicationDomain, ir.Snapshot{Name: "mig-a"})
	e := mem.Seed(ir.TypeEnum, ir.Snapshot{Name: "colors", ParentID: a.ID})
	mem.Seed(ir.TypeEnumVersion, ir.Snapshot{ParentID: e.ID, Version: "1.0.0"})
	ev := mem.Seed(ir.TypeEvent, ir.Snapshot{Name: "created", ParentID: a.ID})
	mem.Seed(ir.TypeEventVersion, ir.Snapshot{ParentID: ev.ID, Version: "1.0.0"})
	mem.Seed(ir.TypeApplicationDomain, ir.Snapshot{Name: "mig-b"})
	mem.Seed(ir.TypeApplicationDomain, ir.Snapshot{Name: "keep"})
	return mem
}

func TestAbsentRejectsShortPrefix(t *testing.T) {
	for _, prefix := range []string{"", "m"} {
		sum, err := newTestManager(t, nil, seedTarget(), absentOptions(prefix)).Run(context.Background())
		require.Error(t, err)
		assert.Nil(t, sum)
		var pe *InvalidPrefixError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, minPrefixLen, pe.Min)
	}
}

func TestAbsentByPrefixDeletesPrefixedDomains(t *testing.T) {
	target := seedTarget()

	sum := runManager(t, newTestManager(t, nil, target, absentOptions("mig-")))

	assert.Equal(t, []string{"mig-a", "mig-b"}, sum.Deleted)
	assert.Empty(t, sum.Remaining)
	assert.False(t, sum.HasFailures())
	assert.True(t, sum.Absent)

	require.Len(t, target.Snapshots(ir.TypeApplicationDomain), 1)
	assert.Equal(t, "keep", target.Snapshots(ir.TypeApplicationDomain)[0].Name)
	assert.Equal(t, 1, target.Len())

	assert.Equal(t, 2, sum.Ledger.Count(ir.TypeApplicationDomain, ir.Delete))
	assert.Equal(t, 1, sum.Ledger.Count(ir.TypeEnum, ir.Delete))
	assert.Equal(t, 1, sum.Ledger.Count(ir.TypeEnumVersion, ir.Delete))
	assert.Equal(t, 1, sum.Ledger.Count(ir.TypeEventVersion, ir.Delete))

	// Contents go before their domain, versions before their object.
	calls := target.Calls()
	require.NotEmpty(t, calls)
	assert.Equal(t, ir.TypeEventVersion, calls[0].Type)
	assert.Equal(t, ir.TypeEvent, calls[1].Type)
	assert.Equal(t, ir.TypeEnumVersion, calls[2].Type)
	assert.Equal(t, ir.TypeEnum, calls[3].Type)
	assert.Equal(t, ir.TypeApplicationDomain, calls[4].Type)
}

func TestAbsentRetriesBlockedDomain(t *testing.T) {
	target := seedTarget()
	target.SetHook(failOnce(catalog.OpDelete, ir.TypeApplicationDomain))

	sum := runManager(t, newTestManager(t, nil, target, absentOptions("mig-")))

	assert.Equal(t, []string{"mig-b", "mig-a"}, sum.Deleted)
	assert.Empty(t, sum.Remaining)
	assert.Empty(t, sum.Ledger.Failures, "a domain deleted in a later pass is not a failure")
	assert.Empty(t, sum.Issues)
	assert.NoError(t, sum.Err)
}

func TestAbsentGivesUpWithoutProgress(t *testing.T) {
	target := seedTarget()
	blocked := findByName(t, target, ir.TypeApplicationDomain, "mig-a")
	target.SetHook(func(op catalog.Op, typ ir.EntityType, id string) error {
		if op == catalog.OpDelete && id == blocked.ID {
			return &catalog.APIError{Op: "delete " + string(typ), Status: 409, Message: "referenced by another domain"}
		}
		return nil
	})

	sum := runManager(t, newTestManager(t, nil, target, absentOptions("mig-")))

	assert.Equal(t, []string{"mig-b"}, sum.Deleted)
	assert.Equal(t, []string{"mig-a"}, sum.Remaining)
	assert.True(t, sum.HasFailures())
	require.Len(t, sum.Ledger.Failures, 1)
	assert.Equal(t, "mig-a", sum.Ledger.Failures[0].Name)
	require.Len(t, sum.Issues, 1)
	assert.Equal(t, ApplicationDomainIssue, sum.Issues[0].Type)
	assert.False(t, sum.Issues[0].Skipped)
	assert.True(t, catalog.IsConflict(sum.Err))

	// The contents of the blocked domain are gone all the same.
	assert.Empty(t, target.Snapshots(ir.TypeEnum))
	assert.Empty(t, target.Snapshots(ir.TypeEvent))
}

func TestAbsentDryRun(t *testing.T) {
	opts := absentOptions("mig-")
	opts.DryRun = true
	target := seedTarget()
	before := target.Len()

	sum := runManager(t, newTestManager(t, nil, target, opts))

	assert.Empty(t, target.Calls())
	assert.Equal(t, before, target.Len())
	assert.Equal(t, []string{"mig-a", "mig-b"}, sum.Deleted)
	assert.Equal(t, 2, sum.Ledger.Count(ir.TypeApplicationDomain, ir.Delete))
	assert.Equal(t, 1, sum.Ledger.Count(ir.TypeEventVersion, ir.Delete))
}

func TestAbsentByRunIDDeletesOnlyThatRun(t *testing.T) {
	target := catalog.NewMemory(catalog.WithIDPrefix("t"))
	first := runManager(t, newTestManager(t, seedSource(), target, testOptions()))
	require.False(t, first.HasFailures())

	orders := findByName(t, target, ir.TypeApplicationDomain, "mig-orders")
	legacy := target.Seed(ir.TypeEnum, ir.Snapshot{Name: "legacy", ParentID: orders.ID})
	target.Seed(ir.TypeEnumVersion, ir.Snapshot{ParentID: legacy.ID, Version: "1.0.0"})
	target.Seed(ir.TypeEnumVersion, ir.Snapshot{ParentID: legacy.ID, Version: "1.1.0", Settings: ir.Settings{RunIDKey: "run-1"}})
	target.ResetCalls()

	opts := testOptions()
	opts.Absent = true
	opts.Prefix = ""
	opts.AbsentRunID = "run-1"
	sum := runManager(t, newTestManager(t, nil, target, opts, WithRunID("run-2")))

	assert.Equal(t, []string{"mig-Shared Enums"}, sum.Deleted)
	assert.False(t, sum.HasFailures())

	domains := target.Snapshots(ir.TypeApplicationDomain)
	require.Len(t, domains, 1)
	assert.Equal(t, "mig-orders", domains[0].Name, "a domain holding foreign content is kept")

	assert.Empty(t, target.Snapshots(ir.TypeSchema))
	assert.Empty(t, target.Snapshots(ir.TypeEvent))
	assert.Empty(t, target.Snapshots(ir.TypeApplication))
	enums := target.Snapshots(ir.TypeEnum)
	require.Len(t, enums, 1)
	assert.Equal(t, "legacy", enums[0].Name)

	versions := target.Snapshots(ir.TypeEnumVersion)
	require.Len(t, versions, 1)
	assert.Equal(t, "1.0.0", versions[0].Version)
}
