package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/epsync/internal/ir"
	"github.com/roach88/epsync/internal/ledger"
)

// BeginRun inserts a run row. Re-inserting the same run ID is a no-op.
// ToolVersion and LedgerVersion default to the current versions.
func (s *Store) BeginRun(ctx context.Context, r Run) error {
	if r.ToolVersion == "" {
		r.ToolVersion = ir.ToolVersion
	}
	if r.LedgerVersion == "" {
		r.LedgerVersion = ir.LedgerVersion
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, kind, dry_run, started_at, tool_version, ledger_version)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		r.ID,
		string(r.Kind),
		boolInt(r.DryRun),
		formatTime(r.StartedAt),
		r.ToolVersion,
		r.LedgerVersion,
	)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// FinishRun stores the final summary and outcome of a run.
func (s *Store) FinishRun(ctx context.Context, runID string, summary ledger.Summary, finishedAt time.Time) error {
	summaryJSON, err := marshalSummary(summary)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?, outcome = ?, summary = ?
		WHERE id = ?
	`,
		formatTime(finishedAt),
		summary.Outcome(),
		summaryJSON,
		runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run: unknown run %q", runID)
	}
	return nil
}

// WriteTransaction inserts a transaction record.
// Uses ON CONFLICT DO NOTHING for idempotency - duplicate IDs are silently ignored.
//
// Note: The run referenced by rec.RunID must exist (foreign key constraint).
func (s *Store) WriteTransaction(ctx context.Context, rec ir.TransactionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions
		(id, run_id, seq, entity_type, name, version, action, remote_id, dry_run, recovered, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		rec.ID,
		rec.RunID,
		rec.Seq,
		string(rec.EntityType),
		rec.Name,
		rec.Version,
		rec.Action.String(),
		rec.RemoteID,
		boolInt(rec.DryRun),
		boolInt(rec.Recovered),
		formatTime(rec.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("write transaction: %w", err)
	}
	return nil
}

// WriteFailure appends a failed entity to a run.
func (s *Store) WriteFailure(ctx context.Context, runID string, f ledger.Failure) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO failures (run_id, entity_type, name, message)
		VALUES (?, ?, ?, ?)
	`, runID, string(f.EntityType), f.Name, f.Message)
	if err != nil {
		return fmt.Errorf("write failure: %w", err)
	}
	return nil
}

// WriteIssues stores a run's issues in order, in one transaction.
// Issues already stored under the same ID are kept.
func (s *Store) WriteIssues(ctx context.Context, runID string, issues []Issue) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write issues: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	for i, is := range issues {
		details, err := marshalDetails(is.Details)
		if err != nil {
			return fmt.Errorf("write issues: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO run_issues (issue_id, run_id, seq, issue_type, source_id, message, details)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(issue_id) DO NOTHING
		`, is.ID, runID, i+1, is.Type, is.SourceID, is.Message, details); err != nil {
			return fmt.Errorf("write issues: insert %s: %w", is.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write issues: commit: %w", err)
	}
	return nil
}

// WriteIDMap stores a migration's ID map in one transaction, in sorted
// key order. A key stored twice keeps its first target.
func (s *Store) WriteIDMap(ctx context.Context, runID string, m map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write id map: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	for _, k := range ir.SortedKeys(m) {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO id_map (run_id, source_key, target_id)
			VALUES (?, ?, ?)
			ON CONFLICT(run_id, source_key) DO NOTHING
		`, runID, k, m[k]); err != nil {
			return fmt.Errorf("write id map: insert %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write id map: commit: %w", err)
	}
	return nil
}
