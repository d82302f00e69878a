package engine

import (
	"log/slog"
	"testing"
	"time"

	"github.com/roach88/epsync/internal/catalog"
	"github.com/roach88/epsync/internal/ir"
)

func fixedNow() time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
}

func newTestRun(t *testing.T, client catalog.Client, opts ...RunOption) *Run {
	t.Helper()
	base := []RunOption{
		WithRunID("run-" + t.Name()),
		WithNow(fixedNow),
		WithLogger(slog.New(slog.DiscardHandler)),
	}
	return NewRun(client, append(base, opts...)...)
}

func domain(name string, state ir.TargetState, settings ir.Settings) ir.EntitySpec {
	return ir.EntitySpec{Type: ir.TypeApplicationDomain, Name: name, TargetState: state, Settings: settings}
}

func enum(name, domainName string, versions ...ir.VersionSpec) ir.EntitySpec {
	return ir.EntitySpec{
		Type:        ir.TypeEnum,
		Name:        name,
		Parent:      &ir.Ref{Type: ir.TypeApplicationDomain, Name: domainName},
		TargetState: ir.Present,
		Settings:    ir.Settings{"shared": false},
		Versions:    versions,
	}
}

func enumVersion(v string, values ...string) ir.VersionSpec {
	items := make([]any, len(values))
	for i, val := range values {
		items[i] = map[string]any{"label": val, "value": val}
	}
	return ir.VersionSpec{Version: v, Settings: ir.Settings{"stateId": "1", "values": items}}
}
