package migrate

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/epsync/internal/catalog"
	"github.com/roach88/epsync/internal/ir"
)

func fixedNow() time.Time {
	return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
}

// seqIDs numbers run issues issue-1, issue-2, ...
type seqIDs struct {
	n int
}

func (g *seqIDs) Generate() string {
	g.n++
	return fmt.Sprintf("issue-%d", g.n)
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.Prefix = "mig-"
	return opts
}

func newTestManager(t *testing.T, source, target catalog.Client, opts Options, extra ...Option) *Manager {
	t.Helper()
	base := []Option{
		WithRunID("run-1"),
		WithNow(fixedNow),
		WithLogger(slog.New(slog.DiscardHandler)),
		WithIssueIDGenerator(&seqIDs{}),
	}
	return New(source, target, opts, append(base, extra...)...)
}

func runManager(t *testing.T, m *Manager) *Summary {
	t.Helper()
	sum, err := m.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sum)
	return sum
}

// seedSource stages a small v1 catalog:
//
//	s-1 domain orders, with topic domain acme/orders
//	s-2 enum colors, not in any domain
//	s-3 schema order-schema in orders
//	s-4 event order-created in orders, using s-3 and s-2
//	s-5 application shop in orders, producing s-4
func seedSource() *catalog.Memory {
	src := catalog.NewMemory(catalog.WithIDPrefix("s"))
	d := src.Seed(ir.TypeApplicationDomain, ir.Snapshot{Name: "orders", Settings: ir.Settings{
		"description":             "Orders",
		"enforceUniqueTopicNames": true,
		"topicDomain":             "acme/orders",
	}})
	e := src.Seed(ir.TypeEnum, ir.Snapshot{Name: "colors", Settings: ir.Settings{
		"description": "Colors",
		"values": []any{
			map[string]any{"value": "red", "displayName": "Red"},
			map[string]any{"value": "blue"},
		},
	}})
	s := src.Seed(ir.TypeSchema, ir.Snapshot{Name: "order-schema", ParentID: d.ID, Settings: ir.Settings{
		"contentType": "JSON",
		"content":     `{"type":"object"}`,
	}})
	ev := src.Seed(ir.TypeEvent, ir.Snapshot{Name: "order-created", ParentID: d.ID, Settings: ir.Settings{
		"schemaId":     s.ID,
		"topicName":    "acme/orders/{color}/created",
		"topicEnumIds": map[string]any{"color": e.ID},
	}})
	src.Seed(ir.TypeApplication, ir.Snapshot{Name: "shop", ParentID: d.ID, Settings: ir.Settings{
		"producedEventIds": []any{ev.ID},
	}})
	return src
}

func findByName(t *testing.T, mem *catalog.Memory, typ ir.EntityType, name string) ir.Snapshot {
	t.Helper()
	for _, s := range mem.Snapshots(typ) {
		if s.Name == name {
			return s
		}
	}
	require.Failf(t, "entity not found", "%s %s", typ, name)
	return ir.Snapshot{}
}

func versionOf(t *testing.T, mem *catalog.Memory, typ ir.EntityType, parentID string) ir.Snapshot {
	t.Helper()
	for _, s := range mem.Snapshots(typ) {
		if s.ParentID == parentID {
			return s
		}
	}
	require.Failf(t, "version not found", "%s of %s", typ, parentID)
	return ir.Snapshot{}
}

// failOnce fails the first call of op on type typ with a 409.
func failOnce(op catalog.Op, typ ir.EntityType) catalog.Hook {
	return failNth(op, typ, 1)
}

// failNth fails the nth call of op on type typ with a 409.
func failNth(op catalog.Op, typ ir.EntityType, n int) catalog.Hook {
	seen := 0
	return func(o catalog.Op, t ir.EntityType, _ string) error {
		if o != op || t != typ {
			return nil
		}
		seen++
		if seen == n {
			return &catalog.APIError{Op: string(o) + " " + string(t), Status: 409, Message: "conflict"}
		}
		return nil
	}
}
