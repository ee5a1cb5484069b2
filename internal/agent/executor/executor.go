package executor

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/datachat-core/server/internal/agent/dataset"
	logx "github.com/datachat-core/server/pkg/logger"
)

// NoDataMessage is the textual result for plans that match nothing. The
// grading node tolerates it as a legitimate answer after enough attempts.
const NoDataMessage = "no data found"

const errPrefix = "Error executing query: "

// Executor runs parsed plans against one table. The table is shared
// read-only; execution works on a row copy and never mutates it.
type Executor struct {
	table *dataset.Table
}

func New(t *dataset.Table) *Executor {
	return &Executor{table: t}
}

// Run executes a raw plan string and always returns printable text: either
// the rendered result or an error message. Faults never escape this
// boundary; a broken plan degrades into a retry, not a crashed turn.
func (e *Executor) Run(raw string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("component", "executor").Msgf("panic recovered: %v", r)
			out = fmt.Sprintf("%spanic: %v", errPrefix, r)
		}
	}()

	plan, err := ParsePlan(raw)
	if err != nil {
		return errPrefix + err.Error()
	}
	if err := plan.Validate(e.table); err != nil {
		return errPrefix + err.Error()
	}

	res, err := e.run(plan)
	if err != nil {
		return errPrefix + err.Error()
	}
	return res.render()
}

type resultSet struct {
	header []string
	kinds  []dataset.Kind
	rows   [][]string
}

func (e *Executor) run(p *Plan) (*resultSet, error) {
	rows := e.table.CopyRows()

	for _, f := range p.Filters {
		kept := rows[:0]
		idx := e.table.Index(f.Column)
		kind := e.table.Columns[idx].Kind
		for _, row := range rows {
			ok, err := matchFilter(row[idx], kind, f)
			if err != nil {
				return nil, err
			}
			if ok {
				kept = append(kept, row)
			}
		}
		rows = kept
	}

	var res *resultSet
	switch {
	case len(p.GroupBy) > 0:
		var err error
		res, err = e.aggregateGrouped(p, rows)
		if err != nil {
			return nil, err
		}
	case len(p.Aggregate) > 0:
		var err error
		res, err = e.aggregateFlat(p, rows)
		if err != nil {
			return nil, err
		}
	default:
		res = e.project(p.Select, rows)
	}

	if p.Sort != nil {
		if err := res.sortBy(p.Sort); err != nil {
			return nil, err
		}
	}
	if p.Limit > 0 && len(res.rows) > p.Limit {
		res.rows = res.rows[:p.Limit]
	}
	return res, nil
}

func (e *Executor) project(selected []string, rows [][]string) *resultSet {
	cols := selected
	if len(cols) == 0 {
		cols = e.table.ColumnNames()
	}
	idxs := make([]int, len(cols))
	res := &resultSet{
		header: make([]string, len(cols)),
		kinds:  make([]dataset.Kind, len(cols)),
	}
	for i, c := range cols {
		idx := e.table.Index(c)
		idxs[i] = idx
		res.header[i] = e.table.Columns[idx].Name
		res.kinds[i] = e.table.Columns[idx].Kind
	}
	for _, row := range rows {
		out := make([]string, len(idxs))
		for i, idx := range idxs {
			out[i] = row[idx]
		}
		res.rows = append(res.rows, out)
	}
	return res
}

func (e *Executor) aggregateFlat(p *Plan, rows [][]string) (*resultSet, error) {
	res := &resultSet{
		header: make([]string, len(p.Aggregate)),
		kinds:  make([]dataset.Kind, len(p.Aggregate)),
	}
	out := make([]string, len(p.Aggregate))
	for i, a := range p.Aggregate {
		v, err := e.aggregate(a, rows)
		if err != nil {
			return nil, err
		}
		res.header[i] = a.name()
		res.kinds[i] = dataset.KindNumber
		out[i] = v
	}
	res.rows = [][]string{out}
	return res, nil
}

func (e *Executor) aggregateGrouped(p *Plan, rows [][]string) (*resultSet, error) {
	keyIdx := make([]int, len(p.GroupBy))
	res := &resultSet{}
	for i, c := range p.GroupBy {
		idx := e.table.Index(c)
		keyIdx[i] = idx
		res.header = append(res.header, e.table.Columns[idx].Name)
		res.kinds = append(res.kinds, e.table.Columns[idx].Kind)
	}
	for _, a := range p.Aggregate {
		res.header = append(res.header, a.name())
		res.kinds = append(res.kinds, dataset.KindNumber)
	}

	groups := make(map[string][][]string)
	var order []string
	for _, row := range rows {
		parts := make([]string, len(keyIdx))
		for i, idx := range keyIdx {
			parts[i] = row[idx]
		}
		key := strings.Join(parts, "\x1f")
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], row)
	}

	for _, key := range order {
		members := groups[key]
		out := strings.Split(key, "\x1f")
		for _, a := range p.Aggregate {
			v, err := e.aggregate(a, members)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		res.rows = append(res.rows, out)
	}
	return res, nil
}

func (e *Executor) aggregate(a Aggregate, rows [][]string) (string, error) {
	idx := e.table.Index(a.Column)
	if a.Fn == "count" {
		n := 0
		for _, row := range rows {
			if strings.TrimSpace(row[idx]) != "" {
				n++
			}
		}
		return fmt.Sprintf("%d", n), nil
	}

	var values []float64
	for _, row := range rows {
		cell := strings.TrimSpace(row[idx])
		if cell == "" {
			continue
		}
		v, err := dataset.ParseNumber(cell)
		if err != nil {
			return "", fmt.Errorf("%s(%s): non-numeric value %q", a.Fn, a.Column, cell)
		}
		values = append(values, v)
	}
	if len(values) == 0 {
		return "", fmt.Errorf("%s(%s): no values to aggregate", a.Fn, a.Column)
	}

	var out float64
	switch a.Fn {
	case "sum":
		for _, v := range values {
			out += v
		}
	case "mean":
		for _, v := range values {
			out += v
		}
		out /= float64(len(values))
	case "min":
		out = values[0]
		for _, v := range values[1:] {
			out = math.Min(out, v)
		}
	case "max":
		out = values[0]
		for _, v := range values[1:] {
			out = math.Max(out, v)
		}
	}
	return formatNumber(out), nil
}

func matchFilter(cell string, kind dataset.Kind, f Filter) (bool, error) {
	switch f.Op {
	case "contains":
		return strings.Contains(strings.ToLower(cell), strings.ToLower(fmt.Sprint(f.Value))), nil
	case "eq", "neq":
		eq, err := cellEqual(cell, kind, f.Value)
		if err != nil {
			return false, err
		}
		if f.Op == "neq" {
			return !eq, nil
		}
		return eq, nil
	}

	// ordered comparisons
	cmp, err := cellCompare(cell, kind, f.Value)
	if err != nil {
		return false, err
	}
	switch f.Op {
	case "gt":
		return cmp > 0, nil
	case "gte":
		return cmp >= 0, nil
	case "lt":
		return cmp < 0, nil
	case "lte":
		return cmp <= 0, nil
	}
	return false, fmt.Errorf("unknown filter op %q", f.Op)
}

func cellEqual(cell string, kind dataset.Kind, want any) (bool, error) {
	switch kind {
	case dataset.KindNumber:
		cv, err := dataset.ParseNumber(cell)
		if err != nil {
			return false, nil // unparseable cell never equals a number
		}
		wv, err := toFloat(want)
		if err != nil {
			return false, err
		}
		return cv == wv, nil
	case dataset.KindTime:
		cv, cerr := dataset.ParseTime(cell)
		wv, werr := toTime(want)
		if cerr == nil && werr == nil {
			return cv.Equal(wv), nil
		}
	}
	return strings.TrimSpace(cell) == strings.TrimSpace(fmt.Sprint(want)), nil
}

func cellCompare(cell string, kind dataset.Kind, want any) (int, error) {
	switch kind {
	case dataset.KindNumber:
		cv, err := dataset.ParseNumber(cell)
		if err != nil {
			return 0, fmt.Errorf("non-numeric cell %q in ordered comparison", cell)
		}
		wv, err := toFloat(want)
		if err != nil {
			return 0, err
		}
		switch {
		case cv < wv:
			return -1, nil
		case cv > wv:
			return 1, nil
		default:
			return 0, nil
		}
	case dataset.KindTime:
		// lexical order diverges from chronological order for layouts like
		// dd/mm/yyyy, so both sides go through the shared time parsing
		cv, err := dataset.ParseTime(cell)
		if err != nil {
			return 0, fmt.Errorf("non-time cell %q in ordered comparison", cell)
		}
		wv, err := toTime(want)
		if err != nil {
			return 0, err
		}
		return cv.Compare(wv), nil
	}
	return strings.Compare(cell, fmt.Sprint(want)), nil
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case string:
		return dataset.ParseNumber(t)
	case nil:
		return 0, fmt.Errorf("missing comparison value")
	default:
		return 0, fmt.Errorf("unsupported comparison value %T", v)
	}
}

func toTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case string:
		return dataset.ParseTime(t)
	case nil:
		return time.Time{}, fmt.Errorf("missing comparison value")
	default:
		return time.Time{}, fmt.Errorf("unsupported time comparison value %T", v)
	}
}

func (r *resultSet) sortBy(s *Sort) error {
	col := -1
	for i, h := range r.header {
		if strings.EqualFold(h, s.Column) {
			col = i
			break
		}
	}
	if col < 0 {
		return fmt.Errorf("sort column %q not in result", s.Column)
	}

	kind := r.kinds[col]
	sort.SliceStable(r.rows, func(i, j int) bool {
		cmp := orderCells(r.rows[i][col], r.rows[j][col], kind)
		if s.Desc {
			return cmp > 0
		}
		return cmp < 0
	})
	return nil
}

// orderCells is the three-way comparison sorting uses. Cells that fail to
// parse under their column kind fall back to lexical order.
func orderCells(a, b string, kind dataset.Kind) int {
	switch kind {
	case dataset.KindNumber:
		av, aerr := dataset.ParseNumber(a)
		bv, berr := dataset.ParseNumber(b)
		if aerr == nil && berr == nil {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			default:
				return 0
			}
		}
	case dataset.KindTime:
		av, aerr := dataset.ParseTime(a)
		bv, berr := dataset.ParseTime(b)
		if aerr == nil && berr == nil {
			return av.Compare(bv)
		}
	}
	return strings.Compare(a, b)
}

func (r *resultSet) render() string {
	if len(r.rows) == 0 {
		return NoDataMessage
	}
	if len(r.rows) == 1 && len(r.header) == 1 {
		return r.rows[0][0]
	}

	widths := make([]int, len(r.header))
	for i, h := range r.header {
		widths[i] = len(h)
	}
	for _, row := range r.rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var b strings.Builder
	writeRow := func(cells []string) {
		for i := range r.header {
			if i > 0 {
				b.WriteString("  ")
			}
			cell := cells[i]
			b.WriteString(cell)
			b.WriteString(strings.Repeat(" ", widths[i]-len(cell)))
		}
		b.WriteString("\n")
	}
	writeRow(r.header)
	for _, row := range r.rows {
		writeRow(row)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.2f", v)
}
