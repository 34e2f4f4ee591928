package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgBatchSize = 200

// Postgres mirrors a table into <schema>.<table>.
type Postgres struct {
	pool   *pgxpool.Pool
	schema string
	table  string
}

func OpenPostgres(ctx context.Context, dsn, schema, table string, maxConns int) (*Postgres, error) {
	if schema == "" {
		schema = "public"
	}
	if !isSafeIdent(schema) {
		return nil, fmt.Errorf("unsafe schema name %q", schema)
	}
	if table == "" {
		return nil, fmt.Errorf("empty table name")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 2
	}
	cfg.MaxConns = int32(maxConns)
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	return &Postgres{pool: pool, schema: schema, table: table}, nil
}

func (s *Postgres) qualified() string {
	return quoteIdent(s.schema) + "." + quoteIdent(s.table)
}

func (s *Postgres) Location() string { return s.schema + "." + s.table }

func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

func (s *Postgres) Load(ctx context.Context) (*Table, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT column_name FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`, s.schema, s.table)
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", s.Location(), err)
	}
	physical, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", s.Location(), err)
	}
	if len(physical) == 0 {
		return nil, fmt.Errorf("%s: %w", s.Location(), ErrNotFound)
	}
	cols := dataColumns(physical)

	rows, err = s.pool.Query(ctx, selectSQL(s.qualified(), cols))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.Location(), err)
	}
	defer rows.Close()
	t := NewTable(cols...)
	for rows.Next() {
		vals := make([]*string, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]string, len(cols))
		for i, c := range cols {
			if vals[i] != nil {
				row[c] = *vals[i]
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, rows.Err()
}

// Save replaces the table in one transaction, inserting in batches.
func (s *Postgres) Save(ctx context.Context, t *Table) error {
	if err := checkColumns(t.Columns); err != nil {
		return err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	name := s.qualified()
	for _, q := range []string{
		"CREATE SCHEMA IF NOT EXISTS " + quoteIdent(s.schema),
		"DROP TABLE IF EXISTS " + name,
		createTableSQL(name, t.Columns),
	} {
		if _, err := tx.Exec(ctx, q); err != nil {
			return fmt.Errorf("prepare %s: %w", s.Location(), err)
		}
	}

	ins := insertSQL(name, t.Columns, dollar)
	for i := 0; i < len(t.Rows); i += pgBatchSize {
		j := i + pgBatchSize
		if j > len(t.Rows) {
			j = len(t.Rows)
		}
		b := &pgx.Batch{}
		for k := i; k < j; k++ {
			b.Queue(ins, rowArgs(t, k)...)
		}
		br := tx.SendBatch(ctx, b)
		for k := i; k < j; k++ {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("insert row %d: %w", k+1, err)
			}
		}
		if err := br.Close(); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}
