package store

import (
	"fmt"
	"strings"
)

// rowColumn keeps the row order of a table in SQL backends.
const rowColumn = "_row"

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// isSafeIdent accepts plain identifiers usable unquoted (schema names).
func isSafeIdent(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}

func createTableSQL(table string, cols []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (%s INTEGER PRIMARY KEY", table, quoteIdent(rowColumn))
	for _, c := range cols {
		fmt.Fprintf(&b, ", %s TEXT NOT NULL DEFAULT ''", quoteIdent(c))
	}
	b.WriteString(")")
	return b.String()
}

// insertSQL builds an insert of (_row, cols...). placeholder renders the
// n-th (1-based) bind parameter.
func insertSQL(table string, cols []string, placeholder func(n int) string) string {
	names := make([]string, 0, len(cols)+1)
	params := make([]string, 0, len(cols)+1)
	names = append(names, quoteIdent(rowColumn))
	params = append(params, placeholder(1))
	for i, c := range cols {
		names = append(names, quoteIdent(c))
		params = append(params, placeholder(i+2))
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(names, ", "), strings.Join(params, ", "))
}

func selectSQL(table string, cols []string) string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = quoteIdent(c)
	}
	return fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", strings.Join(names, ", "), table, quoteIdent(rowColumn))
}

func questionMark(int) string { return "?" }

func dollar(n int) string { return fmt.Sprintf("$%d", n) }

// rowArgs returns the bind values for row i of t in insertSQL order.
func rowArgs(t *Table, i int) []any {
	args := make([]any, 0, len(t.Columns)+1)
	args = append(args, i+1)
	for _, c := range t.Columns {
		args = append(args, t.Rows[i][c])
	}
	return args
}

// dataColumns drops the ordinal column from a physical column list.
func dataColumns(physical []string) []string {
	out := make([]string, 0, len(physical))
	for _, c := range physical {
		if c != rowColumn {
			out = append(out, c)
		}
	}
	return out
}

func checkColumns(cols []string) error {
	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		switch {
		case c == "":
			return fmt.Errorf("empty column name")
		case c == rowColumn:
			return fmt.Errorf("column name %q is reserved", c)
		case seen[c]:
			return fmt.Errorf("duplicate column %q", c)
		}
		seen[c] = true
	}
	return nil
}
