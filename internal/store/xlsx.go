package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

// XLSX keeps a table in one sheet of a spreadsheet file. Save rewrites the
// whole workbook with just that sheet.
type XLSX struct {
	path  string
	sheet string
}

func NewXLSX(path, sheet string) *XLSX {
	if sheet == "" {
		sheet = "Sheet1"
	}
	return &XLSX{path: path, sheet: sheet}
}

func (s *XLSX) Location() string { return s.path + "#" + s.sheet }

func (s *XLSX) Close() error { return nil }

func (s *XLSX) Load(ctx context.Context) (*Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := excelize.OpenFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", s.path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.path, err)
	}
	defer f.Close()

	sheet := s.sheet
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		// tables written by other tools often carry a single, differently named sheet
		sheet = f.GetSheetName(0)
	}
	if sheet == "" {
		return nil, fmt.Errorf("%s: no sheets: %w", s.path, ErrNotFound)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read %s#%s: %w", s.path, sheet, err)
	}
	return fromGrid(rows), nil
}

func (s *XLSX) Save(ctx context.Context, t *Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", s.sheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	for i, line := range t.grid() {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		vals := make([]interface{}, len(line))
		for j, v := range line {
			vals[j] = v
		}
		if err := f.SetSheetRow(s.sheet, cell, &vals); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	return writeAtomic(s.path, func(w *os.File) error {
		_, err := f.WriteTo(w)
		return err
	})
}

// writeAtomic writes path through a temp file in the same directory and
// renames it into place.
func writeAtomic(path string, write func(*os.File) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	cleanup := func() { _ = os.Remove(name) }
	if err := write(tmp); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(name, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
