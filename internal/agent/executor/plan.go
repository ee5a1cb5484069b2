// Package executor runs oracle-authored query plans against an in-memory
// table. Plans are a small JSON DSL (select/filter/aggregate/sort), not code:
// the model plans the analysis, this package interprets it inside the process
// with no filesystem, network, or eval capability.
package executor

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/datachat-core/server/internal/agent/dataset"
)

// safety limits for oracle-authored plans
const (
	maxPlanLen    = 16 * 1024
	maxFilters    = 20
	maxAggregates = 10
)

// Plan is the query program the oracle emits.
type Plan struct {
	Select    []string    `json:"select,omitempty"`
	Filters   []Filter    `json:"filter,omitempty"`
	GroupBy   []string    `json:"group_by,omitempty"`
	Aggregate []Aggregate `json:"aggregate,omitempty"`
	Sort      *Sort       `json:"sort,omitempty"`
	Limit     int         `json:"limit,omitempty"`
}

type Filter struct {
	Column string `json:"column"`
	Op     string `json:"op"`
	Value  any    `json:"value"`
}

type Aggregate struct {
	Column string `json:"column"`
	Fn     string `json:"fn"`
	As     string `json:"as,omitempty"`
}

type Sort struct {
	Column string `json:"column"`
	Desc   bool   `json:"desc,omitempty"`
}

var filterOps = map[string]bool{
	"eq": true, "neq": true, "gt": true, "gte": true, "lt": true, "lte": true,
	"contains": true,
}

var aggregateFns = map[string]bool{
	"sum": true, "mean": true, "min": true, "max": true, "count": true,
}

// ParsePlan decodes a plan from raw oracle output, tolerating markdown code
// fences around the JSON.
func ParsePlan(raw string) (*Plan, error) {
	raw = stripFences(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty plan")
	}
	if len(raw) > maxPlanLen {
		return nil, fmt.Errorf("plan too large")
	}

	var p Plan
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("invalid plan json: %w", err)
	}
	return &p, nil
}

// Validate checks the plan's shape against a table's schema before any row is
// touched, so bad column names fail with a precise message.
func (p *Plan) Validate(t *dataset.Table) error {
	if len(p.Filters) > maxFilters {
		return fmt.Errorf("too many filters (%d)", len(p.Filters))
	}
	if len(p.Aggregate) > maxAggregates {
		return fmt.Errorf("too many aggregates (%d)", len(p.Aggregate))
	}
	if p.Limit < 0 {
		return fmt.Errorf("negative limit")
	}

	for _, c := range p.Select {
		if t.Index(c) < 0 {
			return unknownColumn(c, t)
		}
	}
	for _, f := range p.Filters {
		if t.Index(f.Column) < 0 {
			return unknownColumn(f.Column, t)
		}
		if !filterOps[f.Op] {
			return fmt.Errorf("unknown filter op %q", f.Op)
		}
	}
	for _, c := range p.GroupBy {
		if t.Index(c) < 0 {
			return unknownColumn(c, t)
		}
	}
	for _, a := range p.Aggregate {
		if t.Index(a.Column) < 0 {
			return unknownColumn(a.Column, t)
		}
		if !aggregateFns[a.Fn] {
			return fmt.Errorf("unknown aggregate fn %q", a.Fn)
		}
	}
	if len(p.GroupBy) > 0 && len(p.Aggregate) == 0 {
		return fmt.Errorf("group_by requires at least one aggregate")
	}
	if p.Sort != nil && t.Index(p.Sort.Column) < 0 && !p.sortsResultColumn() {
		return unknownColumn(p.Sort.Column, t)
	}
	return nil
}

// sortsResultColumn reports whether the sort column names an aggregate output
// rather than a source column.
func (p *Plan) sortsResultColumn() bool {
	if p.Sort == nil {
		return false
	}
	for _, a := range p.Aggregate {
		if strings.EqualFold(p.Sort.Column, a.name()) {
			return true
		}
	}
	return false
}

func (a Aggregate) name() string {
	if a.As != "" {
		return a.As
	}
	return fmt.Sprintf("%s(%s)", a.Fn, a.Column)
}

func unknownColumn(c string, t *dataset.Table) error {
	return fmt.Errorf("unknown column %q (available: %s)", c, strings.Join(t.ColumnNames(), ", "))
}

// stripFences removes a surrounding markdown code fence, with or without a
// language tag.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		// drop the language tag line (e.g. ```json)
		first := strings.TrimSpace(s[:idx])
		if first == "" || !strings.HasPrefix(first, "{") {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
