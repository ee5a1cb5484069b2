package dataset

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// descriptionColumns are metadata columns the description heuristic prefers,
// checked in order.
var descriptionColumns = []string{"description", "meta", "notes"}

const (
	schemaHeadRows     = 5
	maxDescriptionLen  = 200
	fallbackDescFormat = "Tabular dataset %q"
)

// Context is the read-only dataset view a turn executes against. It is
// rebuilt whenever the user switches files and shared read-only afterwards.
type Context struct {
	Name        string
	Table       *Table
	Description string
}

// NewContext builds a dataset context. When description is empty it falls
// back to a heuristic: a known metadata column's first value, else the last
// column's first value. The heuristic carries no correctness guarantee; it
// only gives the model a hint about what the data is.
func NewContext(name string, t *Table, description string) *Context {
	desc := strings.TrimSpace(description)
	if desc == "" {
		desc = deriveDescription(name, t)
	}
	return &Context{Name: name, Table: t, Description: desc}
}

// SchemaSummary renders shape, columns, kinds and head rows for prompts.
func (c *Context) SchemaSummary() string {
	rows, cols := c.Table.Shape()

	var b strings.Builder
	fmt.Fprintf(&b, "Shape: %d rows x %d columns\n", rows, cols)
	b.WriteString("Columns:\n")
	for _, col := range c.Table.Columns {
		fmt.Fprintf(&b, "  - %s (%s)\n", col.Name, col.Kind)
	}
	fmt.Fprintf(&b, "First %d rows:\n", schemaHeadRows)
	b.WriteString(renderRows(c.Table.ColumnNames(), c.Table.Head(schemaHeadRows)))
	return b.String()
}

// HeadSample renders only the head rows, for the response formatting prompt.
func (c *Context) HeadSample() string {
	return renderRows(c.Table.ColumnNames(), c.Table.Head(schemaHeadRows))
}

func deriveDescription(name string, t *Table) string {
	for _, want := range descriptionColumns {
		idx := t.Index(want)
		if idx < 0 {
			continue
		}
		if v := firstValue(t, idx); v != "" {
			return truncate(v, maxDescriptionLen)
		}
	}
	if len(t.Columns) > 0 {
		if v := firstValue(t, len(t.Columns)-1); v != "" {
			return truncate(v, maxDescriptionLen)
		}
	}
	return fmt.Sprintf(fallbackDescFormat, name)
}

func firstValue(t *Table, col int) string {
	for _, row := range t.Rows {
		if v := strings.TrimSpace(row[col]); v != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func renderRows(header []string, rows [][]string) string {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var b strings.Builder
	writeRow := func(cells []string) {
		b.WriteString("| ")
		for i := range header {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			b.WriteString(cell)
			b.WriteString(strings.Repeat(" ", widths[i]-len(cell)))
			b.WriteString(" | ")
		}
		b.WriteString("\n")
	}
	writeRow(header)
	for _, row := range rows {
		writeRow(row)
	}
	return b.String()
}
