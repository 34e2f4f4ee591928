package audit

import (
	"bufio"
	"os"
	"strconv"
	"strings"
)

var findingHeader = []string{
	"run_id", "table", "check", "row", "subject", "detail", "suggested", "applied",
}

// CSVWriter streams findings to a file. The header is written with the
// first finding, so an empty audit leaves an empty file.
type CSVWriter struct {
	f   *os.File
	w   *bufio.Writer
	hdr bool
}

func NewCSVWriter(path string) (*CSVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &CSVWriter{f: f, w: bufio.NewWriterSize(f, 1<<16)}, nil
}

func (c *CSVWriter) Close() error {
	if c == nil {
		return nil
	}
	_ = c.w.Flush()
	return c.f.Close()
}

func (c *CSVWriter) Write(f Finding) error {
	if c == nil {
		return nil
	}
	if !c.hdr {
		c.hdr = true
		// BOM so spreadsheet tools pick UTF-8 for Cyrillic names
		_, _ = c.w.WriteString("\ufeff" + strings.Join(findingHeader, ",") + "\n")
	}
	fields := []string{
		f.RunID,
		f.Table,
		string(f.Check),
		strconv.Itoa(f.Row),
		f.Subject,
		f.Detail,
		f.Suggested,
		strconv.FormatBool(f.Applied),
	}
	for i := range fields {
		fields[i] = csvEscape(fields[i])
	}
	_, err := c.w.WriteString(strings.Join(fields, ",") + "\n")
	return err
}

// WriteAll writes every finding of r.
func (c *CSVWriter) WriteAll(r Report) error {
	if c == nil {
		return nil
	}
	for _, f := range r.Findings {
		if err := c.Write(f); err != nil {
			return err
		}
	}
	return c.w.Flush()
}

func csvEscape(s string) string {
	if s == "" {
		return ""
	}
	if strings.ContainsAny(s, ",\"\n\r\t") {
		s = strings.ReplaceAll(s, "\"", "\"\"")
		return "\"" + s + "\""
	}
	return s
}
