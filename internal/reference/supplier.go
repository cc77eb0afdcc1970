// Package reference supplies the repository's current contents, the
// reference data every import file is reconciled against.
package reference

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	"bioval/internal/tabular"
	"bioval/pkg/domain"
)

// Supplier yields the reference record set.
type Supplier interface {
	Fetch(ctx context.Context) (tabular.Table, error)
}

// CSVFile reads reference data from a local CSV export.
type CSVFile struct {
	Path string
}

// Fetch implements Supplier.
func (f CSVFile) Fetch(ctx context.Context) (tabular.Table, error) {
	if err := ctx.Err(); err != nil {
		return tabular.Table{}, err
	}
	return tabular.ReadFile(f.Path)
}

// DefaultTable is the table SQL suppliers read when none is configured.
const DefaultTable = "biorepository"

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidTableName reports whether name is safe to interpolate into a query.
func ValidTableName(name string) bool {
	return tableNamePattern.MatchString(name)
}

// QueryTable reads every row of table into a Table whose headers are the
// result columns in query order. NULL becomes "".
func QueryTable(ctx context.Context, db *sql.DB, table string) (tabular.Table, error) {
	if table == "" {
		table = DefaultTable
	}
	if !ValidTableName(table) {
		return tabular.Table{}, fmt.Errorf("invalid reference table name %q", table)
	}
	rows, err := db.QueryContext(ctx, "SELECT * FROM "+table)
	if err != nil {
		return tabular.Table{}, fmt.Errorf("select %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return tabular.Table{}, fmt.Errorf("columns %s: %w", table, err)
	}
	out := tabular.Table{Headers: cols}
	for rows.Next() {
		values := make([]sql.NullString, len(cols))
		dest := make([]any, len(cols))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return tabular.Table{}, fmt.Errorf("scan %s: %w", table, err)
		}
		rec := make(domain.Record, len(cols))
		for i, col := range cols {
			rec[col] = values[i].String
		}
		out.Rows = append(out.Rows, rec)
	}
	if err := rows.Err(); err != nil {
		return tabular.Table{}, fmt.Errorf("iterate %s: %w", table, err)
	}
	return out, nil
}
