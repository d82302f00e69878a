package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/epsync/internal/ir"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var testStart = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// createTestRun inserts a reconcile run row.
func createTestRun(t *testing.T, s *Store, id string) {
	t.Helper()
	if err := s.BeginRun(context.Background(), Run{ID: id, Kind: KindReconcile, StartedAt: testStart}); err != nil {
		t.Fatalf("BeginRun() failed: %v", err)
	}
}

// createTestRecord creates a transaction record with minimal required fields.
func createTestRecord(id, runID string, seq int64, action ir.Action) ir.TransactionRecord {
	return ir.TransactionRecord{
		ID:         id,
		RunID:      runID,
		Seq:        seq,
		EntityType: ir.TypeApplicationDomain,
		Name:       "orders",
		Action:     action,
		RemoteID:   "d-1",
		Timestamp:  testStart.Add(time.Duration(seq) * time.Second),
	}
}
