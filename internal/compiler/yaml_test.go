package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/epsync/internal/ir"
)

func TestCompileYAML(t *testing.T) {
	src := `
entities:
  - type: application_domain
    name: orders
    settings:
      description: Order events
  - type: enum
    name: colors
    parent: {type: application_domain, name: orders}
    settings:
      shared: true
    versions:
      - version: 1.0.0
        settings:
          stateId: "1"
  - type: event
    name: legacy
    state: absent
    parent: {type: application_domain, name: orders}
`
	specs, err := CompileYAML([]byte(src), "desired.yaml")
	require.NoError(t, err)
	require.Len(t, specs, 3)

	assert.Equal(t, ir.TypeApplicationDomain, specs[0].Type)
	assert.Equal(t, ir.Present, specs[0].TargetState)
	assert.Equal(t, "Order events", specs[0].Settings["description"])

	assert.Equal(t, &ir.Ref{Type: ir.TypeApplicationDomain, Name: "orders"}, specs[1].Parent)
	require.Len(t, specs[1].Versions, 1)
	assert.Equal(t, "1.0.0", specs[1].Versions[0].Version)

	assert.Equal(t, ir.Absent, specs[2].TargetState)
}

func TestCompileYAMLEmpty(t *testing.T) {
	specs, err := CompileYAML(nil, "empty.yaml")
	require.NoError(t, err)
	assert.NotNil(t, specs)
	assert.Empty(t, specs)
}

func TestCompileYAMLErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"unknown field", "entities:\n  - type: enum\n    nmae: colors\n"},
		{"unknown type", "entities:\n  - type: topic\n    name: x\n"},
		{"bad state", "entities:\n  - type: enum\n    name: x\n    state: MAYBE\n"},
		{"not yaml", "entities: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileYAML([]byte(tt.src), "bad.yaml")
			require.Error(t, err)
			assert.Contains(t, err.Error(), "bad.yaml")
		})
	}
}
