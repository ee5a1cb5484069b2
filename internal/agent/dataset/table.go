// Package dataset loads tabular files and derives the schema context the
// workflow embeds into prompts.
package dataset

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind is the inferred type of a column.
type Kind string

const (
	KindString Kind = "string"
	KindNumber Kind = "number"
	KindBool   Kind = "bool"
	KindTime   Kind = "time"
)

// Column is a named, typed table column.
type Column struct {
	Name string
	Kind Kind
}

// Table holds rows of raw cell text plus per-column kinds. Cells keep their
// source representation; consumers convert through the column kind.
type Table struct {
	Columns []Column
	Rows    [][]string
}

// inferSampleRows bounds how many rows kind inference inspects.
const inferSampleRows = 20

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"02/01/2006",
	"01/02/2006",
}

// NewTable builds a table from a header and rows, inferring column kinds.
// Ragged rows are padded or truncated to the header width.
func NewTable(header []string, rows [][]string) *Table {
	t := &Table{
		Columns: make([]Column, len(header)),
		Rows:    make([][]string, 0, len(rows)),
	}
	for i, name := range header {
		t.Columns[i] = Column{Name: strings.TrimSpace(name), Kind: KindString}
	}
	for _, row := range rows {
		r := make([]string, len(header))
		copy(r, row)
		t.Rows = append(t.Rows, r)
	}
	for i := range t.Columns {
		t.Columns[i].Kind = t.inferKind(i)
	}
	return t
}

// ColumnNames returns the column names in order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Index returns the position of a column by name, or -1. Matching is
// case-insensitive so oracle-authored plans survive casing drift.
func (t *Table) Index(name string) int {
	for i, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}

// Shape returns (rows, columns).
func (t *Table) Shape() (int, int) {
	return len(t.Rows), len(t.Columns)
}

// Head returns up to n leading rows.
func (t *Table) Head(n int) [][]string {
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	return t.Rows[:n]
}

// CopyRows returns a copy of the row set so query execution can
// never mutate the shared table.
func (t *Table) CopyRows() [][]string {
	rows := make([][]string, len(t.Rows))
	for i, r := range t.Rows {
		rows[i] = make([]string, len(r))
		copy(rows[i], r)
	}
	return rows
}

func (t *Table) inferKind(col int) Kind {
	seen := 0
	number, boolean, timestamp := true, true, true
	for _, row := range t.Rows {
		if seen >= inferSampleRows {
			break
		}
		v := strings.TrimSpace(row[col])
		if v == "" {
			continue
		}
		seen++
		if _, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", ""), 64); err != nil {
			number = false
		}
		switch strings.ToLower(v) {
		case "true", "false":
		default:
			boolean = false
		}
		if !parseableTime(v) {
			timestamp = false
		}
	}
	if seen == 0 {
		return KindString
	}
	switch {
	case boolean:
		return KindBool
	case number:
		return KindNumber
	case timestamp:
		return KindTime
	default:
		return KindString
	}
}

func parseableTime(v string) bool {
	_, err := ParseTime(v)
	return err == nil
}

// ParseNumber converts a cell to float64, tolerating thousands separators.
func ParseNumber(v string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(v), ",", ""), 64)
}

// ParseTime converts a cell to time.Time using the same layouts kind
// inference accepts, so a KindTime column always compares chronologically.
func ParseTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", v)
}
