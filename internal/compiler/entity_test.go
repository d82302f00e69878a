package compiler

import (
	"errors"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/epsync/internal/ir"
)

func compileCUE(t *testing.T, src, path string) (*ir.EntitySpec, error) {
	t.Helper()
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename("test.cue"))
	require.NoError(t, v.Err())
	return CompileEntity(v.LookupPath(cue.ParsePath(path)))
}

func TestCompileEntityDomain(t *testing.T) {
	spec, err := compileCUE(t, `
entity: orders: {
	type: "application_domain"
	settings: {
		description: "Order events"
		topicDomainEnforcementEnabled: true
	}
}
`, "entity.orders")
	require.NoError(t, err)

	assert.Equal(t, ir.TypeApplicationDomain, spec.Type)
	assert.Equal(t, "orders", spec.Name)
	assert.Equal(t, ir.Present, spec.TargetState)
	assert.Nil(t, spec.Parent)
	assert.Equal(t, "Order events", spec.Settings["description"])
	assert.Equal(t, true, spec.Settings["topicDomainEnforcementEnabled"])
}

func TestCompileEntityWithParentAndVersions(t *testing.T) {
	spec, err := compileCUE(t, `
entity: "orders-colors": {
	type: "enum"
	name: "colors"
	parent: {type: "application_domain", name: "orders"}
	settings: shared: true
	versions: [{
		version: "1.0.0"
		settings: {
			stateId: "1"
			values: [{label: "red", value: "red"}]
		}
	}, {
		version: "1.1.0"
	}]
}
`, `entity."orders-colors"`)
	require.NoError(t, err)

	assert.Equal(t, "colors", spec.Name, "explicit name wins over label")
	require.NotNil(t, spec.Parent)
	assert.Equal(t, ir.Ref{Type: ir.TypeApplicationDomain, Name: "orders"}, *spec.Parent)
	require.Len(t, spec.Versions, 2)
	assert.Equal(t, "1.0.0", spec.Versions[0].Version)
	assert.Equal(t, "1", spec.Versions[0].Settings["stateId"])
	assert.Equal(t, "1.1.0", spec.Versions[1].Version)
	assert.Nil(t, spec.Versions[1].Settings)
}

func TestCompileEntityQuotedLabel(t *testing.T) {
	spec, err := compileCUE(t, `entity: "legacy-orders": type: "application_domain"`, `entity."legacy-orders"`)
	require.NoError(t, err)
	assert.Equal(t, "legacy-orders", spec.Name)
}

func TestCompileEntityAbsent(t *testing.T) {
	spec, err := compileCUE(t, `entity: old: {type: "application_domain", state: "ABSENT"}`, "entity.old")
	require.NoError(t, err)
	assert.Equal(t, ir.Absent, spec.TargetState)
}

func TestCompileEntityErrors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
	}{
		{"missing type", `entity: x: settings: {}`, "type"},
		{"unknown type", `entity: x: type: "topic"`, "type"},
		{"bad state", `entity: x: {type: "enum", state: "MAYBE"}`, "state"},
		{"parent without name", `entity: x: {type: "enum", parent: type: "application_domain"}`, "parent.name"},
		{"version without version", `entity: x: {type: "enum", versions: [{settings: {}}]}`, "versions.version"},
		{"settings not struct", `entity: x: {type: "enum", settings: "shared"}`, "settings"},
		{"name not string", `entity: x: {type: "enum", name: 3}`, "name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compileCUE(t, tt.src, "entity.x")
			require.Error(t, err)
			var ce *CompileError
			require.True(t, errors.As(err, &ce), "want CompileError, got %T: %v", err, err)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestCompileEntityIncompleteSettings(t *testing.T) {
	_, err := compileCUE(t, `entity: x: {type: "enum", settings: shared: bool}`, "entity.x")
	require.Error(t, err)
}

func TestCompileErrorFormat(t *testing.T) {
	err := &CompileError{Field: "type", Message: "type is required"}
	assert.Equal(t, "type: type is required", err.Error())
}
