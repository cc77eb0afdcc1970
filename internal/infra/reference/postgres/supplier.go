// Package postgres reads reference records from a Postgres table through the
// pgx database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"bioval/internal/reference"
	"bioval/internal/tabular"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/bioval?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Supplier exports one Postgres table as reference data.
type Supplier struct {
	dsn   string
	table string
}

// NewSupplier returns a supplier for table at dsn. Empty values fall back to
// a local database and reference.DefaultTable.
func NewSupplier(dsn, table string) *Supplier {
	if dsn == "" {
		dsn = defaultDSN
	}
	if table == "" {
		table = reference.DefaultTable
	}
	return &Supplier{dsn: dsn, table: table}
}

// Fetch implements reference.Supplier.
func (s *Supplier) Fetch(ctx context.Context) (tabular.Table, error) {
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, s.dsn)
	openMu.Unlock()
	if err != nil {
		return tabular.Table{}, fmt.Errorf("open postgres: %w", err)
	}
	defer func() { _ = db.Close() }()
	if err := db.PingContext(ctx); err != nil {
		return tabular.Table{}, fmt.Errorf("ping postgres: %w", err)
	}
	return reference.QueryTable(ctx, db, s.table)
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
