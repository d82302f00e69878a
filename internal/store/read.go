package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/epsync/internal/ir"
	"github.com/roach88/epsync/internal/ledger"
)

const runColumns = `id, kind, dry_run, started_at, finished_at, outcome, summary, tool_version, ledger_version`

// ReadRuns returns every run, oldest first.
// Returns an empty slice (not nil) if there are none.
func (s *Store) ReadRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		ORDER BY started_at ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadRun retrieves a single run by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	return scanRun(row)
}

// ReadTransactions returns a run's records.
// Results are ordered deterministically: ORDER BY seq ASC, id ASC COLLATE BINARY.
func (s *Store) ReadTransactions(ctx context.Context, runID string) ([]ir.TransactionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, seq, entity_type, name, version, action, remote_id, dry_run, recovered, recorded_at
		FROM transactions
		WHERE run_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	recs := []ir.TransactionRecord{}
	for rows.Next() {
		var (
			rec                ir.TransactionRecord
			entityType, action string
			dryRun, recovered  int
			recordedAt         string
		)
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.Seq, &entityType, &rec.Name, &rec.Version,
			&action, &rec.RemoteID, &dryRun, &recovered, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		rec.EntityType = ir.EntityType(entityType)
		if rec.Action, err = ir.ParseAction(action); err != nil {
			return nil, fmt.Errorf("scan transaction %s: %w", rec.ID, err)
		}
		rec.DryRun = dryRun != 0
		rec.Recovered = recovered != 0
		if rec.Timestamp, err = parseTime(recordedAt); err != nil {
			return nil, fmt.Errorf("scan transaction %s: %w", rec.ID, err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return recs, nil
}

// ReadFailures returns a run's failures in insertion order.
func (s *Store) ReadFailures(ctx context.Context, runID string) ([]ledger.Failure, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_type, name, message
		FROM failures
		WHERE run_id = ?
		ORDER BY id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query failures: %w", err)
	}
	defer rows.Close()

	out := []ledger.Failure{}
	for rows.Next() {
		var f ledger.Failure
		var entityType string
		if err := rows.Scan(&entityType, &f.Name, &f.Message); err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		f.EntityType = ir.EntityType(entityType)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate failures: %w", err)
	}
	return out, nil
}

// ReadIssues returns a run's issues in the order they were raised.
func (s *Store) ReadIssues(ctx context.Context, runID string) ([]Issue, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT issue_id, issue_type, source_id, message, details
		FROM run_issues
		WHERE run_id = ?
		ORDER BY seq ASC, issue_id COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query issues: %w", err)
	}
	defer rows.Close()

	out := []Issue{}
	for rows.Next() {
		var is Issue
		var details string
		if err := rows.Scan(&is.ID, &is.Type, &is.SourceID, &is.Message, &details); err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		if is.Details, err = unmarshalDetails(details); err != nil {
			return nil, err
		}
		out = append(out, is)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate issues: %w", err)
	}
	return out, nil
}

// ReadIDMap returns a migration's ID map. Empty (not nil) when none.
func (s *Store) ReadIDMap(ctx context.Context, runID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_key, target_id FROM id_map WHERE run_id = ?
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query id map: %w", err)
	}
	defer rows.Close()

	m := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan id map: %w", err)
		}
		m[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate id map: %w", err)
	}
	return m, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		r                        Run
		kind, startedAt          string
		dryRun                   int
		finishedAt, outcome, sum sql.NullString
	)
	if err := row.Scan(&r.ID, &kind, &dryRun, &startedAt, &finishedAt, &outcome, &sum, &r.ToolVersion, &r.LedgerVersion); err != nil {
		if err == sql.ErrNoRows {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	r.Kind = RunKind(kind)
	r.DryRun = dryRun != 0

	var err error
	if r.StartedAt, err = parseTime(startedAt); err != nil {
		return Run{}, err
	}
	if finishedAt.Valid {
		t, err := parseTime(finishedAt.String)
		if err != nil {
			return Run{}, err
		}
		r.FinishedAt = &t
	}
	r.Outcome = outcome.String
	if sum.Valid {
		if r.Summary, err = unmarshalSummary(sum.String); err != nil {
			return Run{}, err
		}
	}
	return r, nil
}
