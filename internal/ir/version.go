package ir

// Version constants for the ledger schema and the tool.
const (
	// LedgerVersion is the transaction record schema version.
	LedgerVersion = "1"

	// ToolVersion is the epsync version stamped on persisted runs.
	ToolVersion = "0.1.0"
)
