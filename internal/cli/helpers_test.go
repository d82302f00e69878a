package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const ordersYAML = `entities:
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
          values:
            - {label: red, value: red}
`

const ordersCUE = `package catalog

entity: orders: {
	type: "application_domain"
	settings: description: "Order events"
}

entity: "orders-created": {
	type: "event"
	name: "created"
	parent: {type: "application_domain", name: "orders"}
	settings: shared: false
}
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// desiredStateDir writes files (name -> content) into a fresh directory.
func desiredStateDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		writeFile(t, dir, name, content)
	}
	return dir
}

// testCommand returns a bare command whose output lands in the buffers,
// for calling run functions with injected options.
func testCommand() (*cobra.Command, *bytes.Buffer, *bytes.Buffer) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	return cmd, out, errOut
}

// quietConfig writes a config that silences logging.
func quietConfig(t *testing.T, extra string) string {
	t.Helper()
	return writeFile(t, t.TempDir(), "epsync.yaml", "log:\n  level: silent\n"+extra)
}
