// Package store persists the profile and conversation tables.
//
// Every backend loads and saves a whole table at once: a header row of
// column names followed by string cells. The spreadsheet backend is the
// default; csv, sqlite and postgres mirrors take the same shape.
package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrNotFound means the table (file, sheet or SQL table) does not exist yet.
var ErrNotFound = errors.New("table not found")

// Table is an ordered set of rows keyed by column name.
type Table struct {
	Columns []string
	Rows    []map[string]string
}

// NewTable returns an empty table with the given header.
func NewTable(cols ...string) *Table {
	return &Table{Columns: append([]string(nil), cols...)}
}

// HasColumn reports whether col is part of the header.
func (t *Table) HasColumn(col string) bool {
	for _, c := range t.Columns {
		if c == col {
			return true
		}
	}
	return false
}

// EnsureColumns appends missing columns to the header.
func (t *Table) EnsureColumns(cols ...string) {
	for _, c := range cols {
		if !t.HasColumn(c) {
			t.Columns = append(t.Columns, c)
		}
	}
}

// Append adds a row built from values in header order.
func (t *Table) Append(values ...string) {
	row := make(map[string]string, len(t.Columns))
	for i, c := range t.Columns {
		if i < len(values) {
			row[c] = values[i]
		}
	}
	t.Rows = append(t.Rows, row)
}

// grid renders the table as a header row followed by data rows.
func (t *Table) grid() [][]string {
	out := make([][]string, 0, len(t.Rows)+1)
	out = append(out, append([]string(nil), t.Columns...))
	for _, r := range t.Rows {
		line := make([]string, len(t.Columns))
		for i, c := range t.Columns {
			line[i] = r[c]
		}
		out = append(out, line)
	}
	return out
}

// fromGrid is the inverse of grid. Blank rows are dropped; short rows are
// padded with empty cells.
func fromGrid(g [][]string) *Table {
	if len(g) == 0 {
		return &Table{}
	}
	t := &Table{}
	for _, h := range g[0] {
		t.Columns = append(t.Columns, strings.TrimSpace(h))
	}
	for _, line := range g[1:] {
		if blank(line) {
			continue
		}
		row := make(map[string]string, len(t.Columns))
		for i, c := range t.Columns {
			if i < len(line) {
				row[c] = line[i]
			} else {
				row[c] = ""
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func blank(line []string) bool {
	for _, v := range line {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Store loads and saves one table.
type Store interface {
	Load(ctx context.Context) (*Table, error)
	Save(ctx context.Context, t *Table) error
	// Location names the backing file or SQL table, for logs.
	Location() string
	Close() error
}

// Options tune backend selection in Open.
type Options struct {
	// PGSchema is the postgres schema for postgres:// locations.
	PGSchema string
	// PGMaxConns caps the postgres pool; 0 = 2.
	PGMaxConns int
}

// Open picks a backend from location:
//
//	postgres://… or postgresql://…   postgres, table = name
//	sqlite:<path>, *.db, *.sqlite      sqlite, table = name
//	*.csv                              csv
//	anything else                      spreadsheet, sheet = name
func Open(ctx context.Context, location, name string, opts Options) (Store, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, errors.New("empty table location")
	}
	lower := strings.ToLower(location)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return OpenPostgres(ctx, location, opts.PGSchema, name, opts.PGMaxConns)
	case strings.HasPrefix(lower, "sqlite:"):
		return OpenSQLite(location[len("sqlite:"):], name)
	}
	switch strings.ToLower(filepath.Ext(location)) {
	case ".db", ".sqlite", ".sqlite3":
		return OpenSQLite(location, name)
	case ".csv":
		return NewCSV(location), nil
	case ".xlsx", ".xlsm":
		return NewXLSX(location, name), nil
	default:
		return nil, fmt.Errorf("unsupported table location %q", location)
	}
}
