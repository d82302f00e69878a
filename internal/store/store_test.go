package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_OpensExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open() failed: %v", err)
	}
	s1.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open() failed: %v", err)
	}
	defer s2.Close()

	var count int
	if err := s2.db.QueryRow("SELECT COUNT(*) FROM runs").Scan(&count); err != nil {
		t.Errorf("query failed: %v", err)
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	for _, table := range []string{"runs", "transactions", "failures", "run_issues", "id_map"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	if _, err := Open("/nonexistent/dir/test.db"); err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct{ name, want string }{
		{"journal_mode", "wal"},
		{"synchronous", "1"},
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
	}
	for _, tt := range tests {
		got, err := s.pragma(tt.name)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestOpen_WithBusyTimeout(t *testing.T) {
	tests := []struct {
		timeout time.Duration
		want    string
	}{
		{250 * time.Millisecond, "250"},
		{0, "5000"},
	}
	for _, tt := range tests {
		s, err := Open(filepath.Join(t.TempDir(), "test.db"), WithBusyTimeout(tt.timeout))
		if err != nil {
			t.Fatalf("Open() failed: %v", err)
		}
		got, err := s.pragma("busy_timeout")
		s.Close()
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("WithBusyTimeout(%v): busy_timeout = %q, want %q", tt.timeout, got, tt.want)
		}
	}
}

func TestSchema_Columns(t *testing.T) {
	s := createTestStore(t)

	tables := map[string][]string{
		"runs":         {"id", "kind", "dry_run", "started_at", "finished_at", "outcome", "summary", "tool_version", "ledger_version"},
		"transactions": {"id", "run_id", "seq", "entity_type", "name", "version", "action", "remote_id", "dry_run", "recovered", "recorded_at"},
		"failures":     {"id", "run_id", "entity_type", "name", "message"},
		"run_issues":   {"issue_id", "run_id", "seq", "issue_type", "source_id", "message", "details"},
		"id_map":       {"run_id", "source_key", "target_id"},
	}
	for table, expected := range tables {
		columns := getTableColumns(t, s.db, table)
		for _, col := range expected {
			if !slices.Contains(columns, col) {
				t.Errorf("%s table missing column %q", table, col)
			}
		}
	}
}

func TestSchema_Indexes(t *testing.T) {
	s := createTestStore(t)

	if !slices.Contains(getTableIndexes(t, s.db, "transactions"), "idx_transactions_entity") {
		t.Error("transactions table missing index idx_transactions_entity")
	}
	if !slices.Contains(getTableIndexes(t, s.db, "runs"), "idx_runs_started") {
		t.Error("runs table missing index idx_runs_started")
	}
	if !slices.Contains(getTableIndexes(t, s.db, "run_issues"), "idx_run_issues_run") {
		t.Error("run_issues table missing index idx_run_issues_run")
	}
}

func TestConstraint_TransactionRequiresRun(t *testing.T) {
	s := createTestStore(t)

	_, err := s.db.Exec(`
		INSERT INTO transactions (id, run_id, seq, entity_type, name, action, recorded_at)
		VALUES ('t1', 'missing', 1, 'enum', 'colors', 'NOOP', '2024-01-01T00:00:00Z')
	`)
	if err == nil {
		t.Error("expected foreign key violation, got nil")
	}
}

func TestConstraint_UniqueSeqPerRun(t *testing.T) {
	s := createTestStore(t)
	createTestRun(t, s, "run-1")

	insert := `
		INSERT INTO transactions (id, run_id, seq, entity_type, name, action, recorded_at)
		VALUES (?, 'run-1', 1, 'enum', 'colors', 'NOOP', '2024-01-01T00:00:00Z')
	`
	if _, err := s.db.Exec(insert, "t1"); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if _, err := s.db.Exec(insert, "t2"); err == nil {
		t.Error("expected unique violation on (run_id, seq), got nil")
	}
}

func TestMigration_SchemaVersion(t *testing.T) {
	s := createTestStore(t)

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("query user_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, currentSchemaVersion)
	}
}

func TestMigration_Upgrade(t *testing.T) {
	tests := []struct {
		from int
		want []string
	}{
		{0, []string{"idx_transactions_entity", "idx_runs_started"}},
		{1, []string{"idx_runs_started"}},
	}
	for _, tt := range tests {
		path := filepath.Join(t.TempDir(), "test.db")

		// Tables only, stamped with an older user_version.
		db, err := sql.Open("sqlite3", path)
		if err != nil {
			t.Fatalf("sql.Open: %v", err)
		}
		if _, err := db.Exec(schemaSQL); err != nil {
			t.Fatalf("apply schema: %v", err)
		}
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", tt.from)); err != nil {
			t.Fatalf("set user_version: %v", err)
		}
		db.Close()

		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() from v%d failed: %v", tt.from, err)
		}

		var indexes []string
		for _, table := range []string{"transactions", "runs"} {
			indexes = append(indexes, getTableIndexes(t, s.db, table)...)
		}
		for _, idx := range tt.want {
			if !slices.Contains(indexes, idx) {
				t.Errorf("upgrade from v%d did not create %s", tt.from, idx)
			}
		}
		var version int
		if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
			t.Fatalf("query user_version: %v", err)
		}
		if version != currentSchemaVersion {
			t.Errorf("upgrade from v%d: user_version = %d, want %d", tt.from, version, currentSchemaVersion)
		}
		s.Close()
	}
}

func getTableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		t.Fatalf("failed to get table info for %q: %v", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue any
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			t.Fatalf("failed to scan column info: %v", err)
		}
		columns = append(columns, name)
	}
	return columns
}

func getTableIndexes(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='index' AND tbl_name=?", table)
	if err != nil {
		t.Fatalf("failed to get indexes for %q: %v", table, err)
	}
	defer rows.Close()

	var indexes []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("failed to scan index name: %v", err)
		}
		indexes = append(indexes, name)
	}
	return indexes
}
