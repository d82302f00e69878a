// Package ledger records one run's reconciliation steps.
//
// Every step, NOOP included, becomes an ir.TransactionRecord stamped with
// the run ID, a per-run sequence number and a content-addressed ID.
// Recording never fails the run: sink errors are logged and dropped.
// Summarize folds the records into counts per (entity type, action) plus
// the run's failures, which is enough to tell a clean no-change run from
// a failed one.
package ledger
