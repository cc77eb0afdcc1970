// Package tabular reads and writes the comma-separated exchange files the
// repository uses for import data, reference snapshots and position lists.
package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"bioval/pkg/domain"
)

// ErrNoRecords is returned when asked to write an empty record set.
var ErrNoRecords = errors.New("no records to write")

// Table is a header row plus its records.
type Table struct {
	Headers []string
	Rows    []domain.Record
}

// Read parses a CSV document whose first line is the header. Short rows
// leave trailing fields absent; a leading UTF-8 byte order mark is ignored.
func Read(r io.Reader) (Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return Table{}, nil
	}
	if err != nil {
		return Table{}, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\uFEFF")
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	table := Table{Headers: header}
	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Table{}, fmt.Errorf("read row %d: %w", domain.RowNumber(len(table.Rows)), err)
		}
		rec := make(domain.Record, len(header))
		for i, name := range header {
			if i < len(fields) {
				rec[name] = fields[i]
			}
		}
		table.Rows = append(table.Rows, rec)
	}
	return table, nil
}

// ReadFile reads a CSV file from disk.
func ReadFile(path string) (Table, error) {
	f, err := os.Open(path) //nolint:gosec // operator-selected input file
	if err != nil {
		return Table{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	table, err := Read(f)
	if err != nil {
		return Table{}, fmt.Errorf("%s: %w", path, err)
	}
	return table, nil
}

// Headers returns the sorted union of field names across rows.
func Headers(rows []domain.Record) []string {
	seen := make(map[string]struct{})
	for _, r := range rows {
		for k := range r {
			seen[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Write emits a header of sorted field names followed by one line per record.
func Write(w io.Writer, rows []domain.Record) error {
	if len(rows) == 0 {
		return ErrNoRecords
	}
	return WriteTable(w, Table{Headers: Headers(rows), Rows: rows})
}

// WriteTable emits the table using its own header order.
func WriteTable(w io.Writer, t Table) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(t.Headers); err != nil {
		return err
	}
	line := make([]string, len(t.Headers))
	for _, r := range t.Rows {
		for i, h := range t.Headers {
			line[i] = r[h]
		}
		if err := writer.Write(line); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// Encode renders rows with Write into a byte slice.
func Encode(rows []domain.Record) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := Write(buf, rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile writes rows to path, replacing any existing file.
func WriteFile(path string, rows []domain.Record) error {
	payload, err := Encode(rows)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil { //nolint:gosec // exchange files are meant to be shared
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
