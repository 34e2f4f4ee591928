package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLite mirrors a table into a sqlite database file.
type SQLite struct {
	db    *sql.DB
	path  string
	table string
}

func OpenSQLite(path, table string) (*SQLite, error) {
	if table == "" {
		return nil, fmt.Errorf("sqlite %s: empty table name", path)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer; avoids SQLITE_BUSY between pool connections
	db.SetMaxOpenConns(1)
	return &SQLite{db: db, path: path, table: table}, nil
}

func (s *SQLite) Location() string { return s.path + "#" + s.table }

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) columns(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(s.table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var cols []string
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notnull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

func (s *SQLite) Load(ctx context.Context) (*Table, error) {
	physical, err := s.columns(ctx)
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", s.Location(), err)
	}
	if len(physical) == 0 {
		return nil, fmt.Errorf("%s: %w", s.Location(), ErrNotFound)
	}
	cols := dataColumns(physical)
	rows, err := s.db.QueryContext(ctx, selectSQL(quoteIdent(s.table), cols))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.Location(), err)
	}
	defer rows.Close()

	t := NewTable(cols...)
	for rows.Next() {
		vals := make([]sql.NullString, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]string, len(cols))
		for i, c := range cols {
			row[c] = vals[i].String
		}
		t.Rows = append(t.Rows, row)
	}
	return t, rows.Err()
}

// Save replaces the table in one transaction.
func (s *SQLite) Save(ctx context.Context, t *Table) error {
	if err := checkColumns(t.Columns); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	name := quoteIdent(s.table)
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+name); err != nil {
		return fmt.Errorf("drop %s: %w", s.Location(), err)
	}
	if _, err := tx.ExecContext(ctx, createTableSQL(name, t.Columns)); err != nil {
		return fmt.Errorf("create %s: %w", s.Location(), err)
	}
	stmt, err := tx.PrepareContext(ctx, insertSQL(name, t.Columns, questionMark))
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i := range t.Rows {
		if _, err := stmt.ExecContext(ctx, rowArgs(t, i)...); err != nil {
			return fmt.Errorf("insert row %d: %w", i+1, err)
		}
	}
	return tx.Commit()
}
