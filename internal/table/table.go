// Package table reads and writes uploaded CSV tables.
package table

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/opensource-finance/fraudscope/internal/domain"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Table is an uploaded table with an unconstrained column set.
// Cells are kept as raw strings; numeric coercion happens on use.
type Table struct {
	Columns []string
	Rows    [][]string

	index map[string]int
}

// New creates a table, rejecting duplicate column names.
func New(columns []string, rows [][]string) (*Table, error) {
	idx := make(map[string]int, len(columns))
	for i, c := range columns {
		if _, dup := idx[c]; dup {
			return nil, &domain.SchemaError{
				Reason: fmt.Sprintf("duplicate column %q", c),
				Actual: columns,
			}
		}
		idx[c] = i
	}
	return &Table{Columns: columns, Rows: rows, index: idx}, nil
}

// Parse decodes UTF-8 CSV bytes with a header row.
// Any failure is returned as a *domain.SchemaError.
func Parse(data []byte) (*Table, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	if !utf8.Valid(data) {
		return nil, &domain.SchemaError{Reason: "file is not valid UTF-8"}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &domain.SchemaError{Reason: "no columns to parse from file"}
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, &domain.SchemaError{Reason: "failed to read header", Err: err}
	}
	columns := make([]string, len(header))
	for i, h := range header {
		if strings.TrimSpace(h) == "" {
			h = fmt.Sprintf("Unnamed: %d", i)
		}
		columns[i] = h
	}

	var rows [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &domain.SchemaError{Reason: "malformed CSV", Actual: columns, Err: err}
		}

		line, _ := r.FieldPos(0)
		switch {
		case len(rec) > len(columns):
			return nil, &domain.SchemaError{
				Reason: fmt.Sprintf("expected %d fields in line %d, saw %d", len(columns), line, len(rec)),
				Actual: columns,
			}
		case len(rec) < len(columns):
			padded := make([]string, len(columns))
			copy(padded, rec)
			rec = padded
		}
		rows = append(rows, rec)
	}

	if len(rows) == 0 {
		return nil, &domain.SchemaError{Reason: "no data rows", Actual: columns}
	}

	return New(columns, rows)
}

// ColumnIndex returns the index of a column, or -1 if absent.
func (t *Table) ColumnIndex(name string) int {
	if i, ok := t.index[name]; ok {
		return i
	}
	return -1
}

// HasColumn reports whether the table carries the column.
func (t *Table) HasColumn(name string) bool {
	return t.ColumnIndex(name) >= 0
}

// AddColumn appends a column with the same value in every row.
func (t *Table) AddColumn(name, fill string) {
	if t.HasColumn(name) {
		return
	}
	t.index[name] = len(t.Columns)
	t.Columns = append(t.Columns, name)
	for i := range t.Rows {
		t.Rows[i] = append(t.Rows[i], fill)
	}
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// WriteCSV encodes a header and rows as CSV.
func WriteCSV(w io.Writer, columns []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write rows: %w", err)
	}
	return nil
}
