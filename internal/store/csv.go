package store

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSV keeps a table in a UTF-8 csv file with a BOM, so spreadsheet tools
// open Cyrillic names correctly.
type CSV struct {
	path string
}

func NewCSV(path string) *CSV { return &CSV{path: path} }

func (s *CSV) Location() string { return s.path }

func (s *CSV) Close() error { return nil }

func (s *CSV) Load(ctx context.Context) (*Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", s.path, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// skip BOM if present
	br := bufio.NewReader(f)
	if first3, _ := br.Peek(3); len(first3) == 3 && first3[0] == 0xEF && first3[1] == 0xBB && first3[2] == 0xBF {
		_, _ = br.Discard(3)
	}
	r := csv.NewReader(br)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	grid, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	return fromGrid(grid), nil
}

func (s *CSV) Save(ctx context.Context, t *Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return writeAtomic(s.path, func(f *os.File) error {
		if _, err := f.Write(utf8BOM); err != nil {
			return err
		}
		w := csv.NewWriter(f)
		if err := w.WriteAll(t.grid()); err != nil {
			return err
		}
		return w.Error()
	})
}
