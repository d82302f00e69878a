package store

import (
	"context"

	"github.com/roach88/epsync/internal/ir"
	"github.com/roach88/epsync/internal/ledger"
)

// Sink streams a run's ledger into the store as it is written.
// The run row must exist (BeginRun) before the first record.
type Sink struct {
	ctx   context.Context
	store *Store
	runID string
}

// Sink returns a ledger.Sink writing to runID.
func (s *Store) Sink(ctx context.Context, runID string) *Sink {
	return &Sink{ctx: context.WithoutCancel(ctx), store: s, runID: runID}
}

// Record implements ledger.Sink.
func (k *Sink) Record(rec ir.TransactionRecord) error {
	return k.store.WriteTransaction(k.ctx, rec)
}

// Fail implements ledger.Sink.
func (k *Sink) Fail(f ledger.Failure) error {
	return k.store.WriteFailure(k.ctx, k.runID, f)
}
