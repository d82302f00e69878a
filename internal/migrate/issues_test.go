package migrate

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/epsync/internal/ir"
)

func TestIssueTypeFor(t *testing.T) {
	tests := []struct {
		entity ir.EntityType
		want   IssueType
	}{
		{ir.TypeApplicationDomain, ApplicationDomainIssue},
		{ir.TypeEnum, EnumIssue},
		{ir.TypeEnumVersion, EnumIssue},
		{ir.TypeSchema, SchemaIssue},
		{ir.TypeSchemaVersion, SchemaIssue},
		{ir.TypeEvent, EventIssue},
		{ir.TypeEventVersion, EventIssue},
		{ir.TypeApplication, ApplicationIssue},
		{ir.TypeApplicationVersion, ApplicationIssue},
		{ir.TypeEventAPI, EventAPIIssue},
		{ir.TypeEventAPIVersion, EventAPIIssue},
	}
	for _, tt := range tests {
		t.Run(string(tt.entity), func(t *testing.T) {
			assert.Equal(t, tt.want, IssueTypeFor(tt.entity))
		})
	}
}

func TestIssuesAdd(t *testing.T) {
	l := newIssues(&seqIDs{})

	failed := l.Add(ir.TypeSchema, ir.Snapshot{ID: "s-3", Name: "order-schema"}, errors.New("boom"))
	skipped := l.Add(ir.TypeEvent, ir.Snapshot{ID: "s-4", Name: "order-created"},
		fmt.Errorf("wrapped: %w", &UnresolvedReferenceError{EntityType: ir.TypeEvent, SourceID: "s-4", Ref: "version:s-3"}))

	assert.Equal(t, "issue-1", failed.ID)
	assert.Equal(t, SchemaIssue, failed.Type)
	assert.Equal(t, "s-3", failed.SourceID)
	assert.Equal(t, "order-schema", failed.Name)
	assert.Equal(t, "boom", failed.Message)
	assert.False(t, failed.Skipped)

	assert.Equal(t, "issue-2", skipped.ID)
	assert.True(t, skipped.Skipped)

	assert.Equal(t, 2, l.Len())
	assert.Equal(t, []RunIssue{skipped}, l.ByType(EventIssue))
	assert.Equal(t, []RunIssue{failed}, l.BySource("s-3"))
	assert.Empty(t, l.ByType(EnumIssue))

	all := l.All()
	all[0].Message = "changed"
	assert.Equal(t, "boom", l.All()[0].Message)
}

func TestShortIDGenerator(t *testing.T) {
	g := ShortIDGenerator{}
	a, b := g.Generate(), g.Generate()
	assert.Len(t, a, 8)
	assert.Regexp(t, `^[0-9a-f]{8}$`, a)
	assert.NotEqual(t, a, b)
}

func TestToStoreIssues(t *testing.T) {
	l := newIssues(&seqIDs{})
	l.Add(ir.TypeEnum, ir.Snapshot{ID: "s-2", Name: "colors"}, &UnresolvedReferenceError{EntityType: ir.TypeEnum, SourceID: "s-2"})

	out := toStoreIssues(l.All())
	require.Len(t, out, 1)
	assert.Equal(t, "issue-1", out[0].ID)
	assert.Equal(t, "EnumIssue", out[0].Type)
	assert.Equal(t, "s-2", out[0].SourceID)
	assert.Equal(t, map[string]string{"entity_type": "enum", "name": "colors", "skipped": "true"}, out[0].Details)
}
