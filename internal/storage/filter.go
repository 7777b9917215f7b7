package storage

import (
	"fmt"
	"strconv"
	"strings"
)

// Filter is one column comparison applied to a Query.
type Filter struct {
	Column string `json:"column"`
	Op     string `json:"op"`
	Value  any    `json:"value"`
}

var filterColumns = map[string]struct{}{
	"id":         {},
	"source":     {},
	"title":      {},
	"content":    {},
	"created_at": {},
	"updated_at": {},
}

var filterOps = map[string]string{
	"=":    "=",
	"!=":   "<>",
	"<":    "<",
	"<=":   "<=",
	">":    ">",
	">=":   ">=",
	"like": "LIKE",
}

// Validate checks the column and operator against the allowed sets.
func (f Filter) Validate() error {
	if _, ok := filterColumns[f.Column]; !ok {
		return fmt.Errorf("%w: unknown column %q", ErrInvalidFilter, f.Column)
	}
	if _, ok := filterOps[strings.ToLower(f.Op)]; !ok {
		return fmt.Errorf("%w: unknown operator %q", ErrInvalidFilter, f.Op)
	}
	return nil
}

// clause renders the filter as a SQL condition with one placeholder.
// Only call on a validated filter.
func (f Filter) clause() string {
	return f.Column + " " + filterOps[strings.ToLower(f.Op)] + " ?"
}

// ParseFilter parses "column:op:value", e.g. "id:<:11" or "title:like:Laravel%".
// Integer values are compared as numbers; everything else as text.
func ParseFilter(s string) (Filter, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return Filter{}, fmt.Errorf("%w: want column:op:value, got %q", ErrInvalidFilter, s)
	}
	f := Filter{Column: strings.TrimSpace(parts[0]), Op: strings.TrimSpace(parts[1]), Value: parts[2]}
	if n, err := strconv.ParseInt(parts[2], 10, 64); err == nil {
		f.Value = n
	}
	if err := f.Validate(); err != nil {
		return Filter{}, err
	}
	return f, nil
}

// maxScopedIDs bounds the number of bound parameters per statement.
const maxScopedIDs = 500

// querySpec is the backend-independent description of a Query.
type querySpec struct {
	scoped  bool
	ids     []int64
	filters []Filter
	err     error
}

func (s querySpec) where(f Filter) querySpec {
	out := s
	out.filters = append(append([]Filter(nil), s.filters...), f)
	if out.err == nil {
		out.err = f.Validate()
	}
	return out
}

func (s querySpec) whereIn(ids []int64) querySpec {
	out := s
	if !s.scoped {
		out.scoped = true
		out.ids = uniqueIDs(ids)
		return out
	}
	keep := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		keep[id] = struct{}{}
	}
	out.ids = nil
	for _, id := range s.ids {
		if _, ok := keep[id]; ok {
			out.ids = append(out.ids, id)
		}
	}
	return out
}

// matchesNothing reports a scope with no identifiers.
func (s querySpec) matchesNothing() bool {
	return s.scoped && len(s.ids) == 0
}

// batches splits the scope into statement-sized groups. An unscoped query yields one nil batch.
func (s querySpec) batches() [][]int64 {
	if !s.scoped {
		return [][]int64{nil}
	}
	var out [][]int64
	for start := 0; start < len(s.ids); start += maxScopedIDs {
		end := min(start+maxScopedIDs, len(s.ids))
		out = append(out, s.ids[start:end])
	}
	return out
}

// whereClause renders the query for one batch as a SQL condition and its arguments.
func (s querySpec) whereClause(batch []int64) (string, []any) {
	var parts []string
	var args []any
	if s.scoped {
		parts = append(parts, "id IN ("+strings.TrimSuffix(strings.Repeat("?,", len(batch)), ",")+")")
		for _, id := range batch {
			args = append(args, id)
		}
	}
	for _, f := range s.filters {
		parts = append(parts, f.clause())
		args = append(args, f.Value)
	}
	return strings.Join(parts, " AND "), args
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
