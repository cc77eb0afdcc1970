package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"bioval/pkg/domain"
)

func seed(t *testing.T, path string, stmts ...string) {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = db.Close() }()
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
}

func TestFetchReadsEveryColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repo.db")
	seed(t, path,
		`CREATE TABLE biorepository (study_id TEXT, lab_id TEXT, freezer TEXT, rack INTEGER, box INTEGER, tube_pos TEXT, tube_status TEXT)`,
		`INSERT INTO biorepository VALUES ('123-456-789', '00001', '1', 2, 3, 'A1', '1')`,
		`INSERT INTO biorepository VALUES ('222-222-222', NULL, 'nitrogen', 1, 14, 'J10', '0')`,
	)

	table, err := NewSupplier(path, "").Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(table.Headers) != 7 || table.Headers[0] != domain.FieldStudyID {
		t.Fatalf("unexpected headers %v", table.Headers)
	}
	if len(table.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(table.Rows))
	}
	first := table.Rows[0]
	if first[domain.FieldRack] != "2" || first[domain.FieldBox] != "3" || first[domain.FieldTubePos] != "A1" {
		t.Fatalf("unexpected first row %v", first)
	}
	if v, ok := table.Rows[1][domain.FieldLabID]; !ok || v != "" {
		t.Fatalf("NULL should read as empty string, got %q (present %v)", v, ok)
	}
}

func TestFetchCustomTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repo.db")
	seed(t, path,
		`CREATE TABLE samples (study_id TEXT)`,
		`INSERT INTO samples VALUES ('123-456-789')`,
	)
	table, err := NewSupplier(path, "samples").Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(table.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(table.Rows))
	}
}

func TestFetchErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := NewSupplier(filepath.Join(dir, "missing.db"), "").Fetch(context.Background()); err == nil {
		t.Fatalf("expected error for missing database")
	}

	path := filepath.Join(dir, "repo.db")
	seed(t, path, `CREATE TABLE other (a TEXT)`)
	if _, err := NewSupplier(path, "").Fetch(context.Background()); err == nil {
		t.Fatalf("expected error for missing table")
	}
	if _, err := NewSupplier(path, "other; DROP TABLE other").Fetch(context.Background()); err == nil {
		t.Fatalf("expected error for invalid table name")
	}
}
