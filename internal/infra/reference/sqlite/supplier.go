// Package sqlite reads reference records from a table in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"bioval/internal/reference"
	"bioval/internal/tabular"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Supplier exports one table of an existing SQLite file.
type Supplier struct {
	path  string
	table string
}

// NewSupplier returns a supplier for table in the database at path. An empty
// table falls back to reference.DefaultTable.
func NewSupplier(path, table string) *Supplier {
	if table == "" {
		table = reference.DefaultTable
	}
	return &Supplier{path: path, table: table}
}

// Fetch implements reference.Supplier. The database file must already exist.
func (s *Supplier) Fetch(ctx context.Context) (tabular.Table, error) {
	if _, err := os.Stat(s.path); err != nil {
		return tabular.Table{}, fmt.Errorf("open sqlite reference: %w", err)
	}
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return tabular.Table{}, fmt.Errorf("open sqlite: %w", err)
	}
	defer func() { _ = db.Close() }()
	return reference.QueryTable(ctx, db, s.table)
}
