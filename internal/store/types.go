package store

import (
	"time"

	"github.com/roach88/epsync/internal/ledger"
)

// RunKind names what a run did.
type RunKind string

const (
	KindReconcile RunKind = "reconcile"
	KindMigrate   RunKind = "migrate"
	KindAbsent    RunKind = "absent"
)

// Run is one persisted execution.
type Run struct {
	ID            string          `json:"id"`
	Kind          RunKind         `json:"kind"`
	DryRun        bool            `json:"dry_run"`
	StartedAt     time.Time       `json:"started_at"`
	FinishedAt    *time.Time      `json:"finished_at,omitempty"`
	Outcome       string          `json:"outcome,omitempty"`
	Summary       *ledger.Summary `json:"summary,omitempty"`
	ToolVersion   string          `json:"tool_version"`
	LedgerVersion string          `json:"ledger_version"`
}

// Issue is a persisted migration run issue.
type Issue struct {
	ID       string            `json:"issue_id"`
	Type     string            `json:"type"`
	SourceID string            `json:"source_id"`
	Message  string            `json:"message"`
	Details  map[string]string `json:"details,omitempty"`
}
