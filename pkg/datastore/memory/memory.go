// Package memory implements relation.DataStore over an in-process
// table of rows, indexed by column for fast equality/membership
// lookups. It is the natural backing store for tests and examples,
// and the one place in this module where "the data is already right
// here" rather than behind a real network round trip.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gokando/relquery/pkg/relation"
)

// table holds one relation's rows plus a per-column equality index.
// Unlike the teacher's persistent, copy-on-write fact database (built
// for cheap snapshotting across a backtracking search over ground
// facts), a table here is an ordinary mutable store guarded by a
// mutex: it stands in for a real external system, and a real SQL or
// REST backend isn't copy-on-write either. The index-or-scan lookup
// heuristic is kept; the persistence model is not (see DESIGN.md).
type table struct {
	rows    []relation.DataRow
	columns map[string]struct{}
	index   map[string]map[interface{}][]int // column -> value -> row indexes
}

func newTable() *table {
	return &table{
		columns: make(map[string]struct{}),
		index:   make(map[string]map[interface{}][]int),
	}
}

func (t *table) insert(row relation.DataRow) {
	id := len(t.rows)
	t.rows = append(t.rows, row)
	for col, val := range row {
		t.columns[col] = struct{}{}
		if !isIndexable(val) {
			continue
		}
		if t.index[col] == nil {
			t.index[col] = make(map[interface{}][]int)
		}
		t.index[col][val] = append(t.index[col][val], id)
	}
}

func isIndexable(v interface{}) bool {
	switch v.(type) {
	case string, int, int64, float64, bool:
		return true
	default:
		return false
	}
}

// candidateRows returns a small set of row indexes worth checking for
// an eq/in condition on an indexed column, or nil if the column isn't
// indexed (the caller then falls back to a full scan).
func (t *table) candidateRows(cond relation.WhereCondition) ([]int, bool) {
	idx, ok := t.index[cond.Column]
	if !ok {
		return nil, false
	}
	switch cond.Operator {
	case relation.OpEq:
		return idx[cond.Value], true
	case relation.OpIn:
		seen := make(map[int]struct{})
		var out []int
		for _, v := range cond.Values {
			for _, id := range idx[v] {
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
		sort.Ints(out)
		return out, true
	default:
		return nil, false
	}
}

// Store is an in-process, table-per-relation relation.DataStore.
// A *Store is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	tables map[string]*table
}

// New returns an empty Store.
func New() *Store {
	return &Store{tables: make(map[string]*table)}
}

// Insert adds row to relationIdentifier's table, creating the table on
// first use.
func (s *Store) Insert(relationIdentifier string, row relation.DataRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[relationIdentifier]
	if !ok {
		t = newTable()
		s.tables[relationIdentifier] = t
	}
	t.insert(row)
}

// Type identifies this adapter kind.
func (s *Store) Type() string { return "memory" }

// ExecuteQuery implements relation.DataStore.
func (s *Store) ExecuteQuery(ctx context.Context, params relation.QueryParams) ([]relation.DataRow, error) {
	select {
	case <-ctx.Done():
		return nil, relation.TransientError(ctx.Err())
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tables[params.RelationIdentifier]
	if !ok {
		return nil, relation.PermanentError(fmt.Errorf("memory: unknown relation %q", params.RelationIdentifier))
	}

	candidates := t.indexOrScan(params.WhereConditions)

	var out []relation.DataRow
	for _, id := range candidates {
		row := t.rows[id]
		if !matchesAll(row, params.WhereConditions) {
			continue
		}
		out = append(out, project(row, params.SelectColumns))
	}

	if params.Offset != nil && *params.Offset < len(out) {
		out = out[*params.Offset:]
	} else if params.Offset != nil {
		out = nil
	}
	if params.Limit != nil && len(out) > *params.Limit {
		out = out[:*params.Limit]
	}
	return out, nil
}

// indexOrScan returns the row ids worth evaluating conds against:
// the first indexed eq/in condition's candidates if one exists,
// otherwise every row in the table (spec.md §9's "index when available,
// scan otherwise" planning note, grounded on pldb.go's selectFacts).
func (t *table) indexOrScan(conds []relation.WhereCondition) []int {
	for _, c := range conds {
		if ids, ok := t.candidateRows(c); ok {
			return ids
		}
	}
	all := make([]int, len(t.rows))
	for i := range t.rows {
		all[i] = i
	}
	return all
}

func matchesAll(row relation.DataRow, conds []relation.WhereCondition) bool {
	for _, c := range conds {
		if !matches(row, c) {
			return false
		}
	}
	return true
}

func matches(row relation.DataRow, c relation.WhereCondition) bool {
	val, present := row[c.Column]
	if !present {
		return false
	}
	switch c.Operator {
	case relation.OpEq:
		return val == c.Value
	case relation.OpIn:
		for _, v := range c.Values {
			if v == val {
				return true
			}
		}
		return false
	case relation.OpGt, relation.OpLt, relation.OpGte, relation.OpLte:
		return compareNumeric(val, c.Value, c.Operator)
	case relation.OpLike:
		pattern, ok1 := c.Value.(string)
		s, ok2 := val.(string)
		if !ok1 || !ok2 {
			return false
		}
		return likeMatch(s, pattern)
	default:
		return false
	}
}

func compareNumeric(a, b interface{}, op relation.Operator) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if !aok || !bok {
		return false
	}
	switch op {
	case relation.OpGt:
		return af > bf
	case relation.OpLt:
		return af < bf
	case relation.OpGte:
		return af >= bf
	case relation.OpLte:
		return af <= bf
	default:
		return false
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// likeMatch supports exactly the subset of SQL LIKE spec.md calls for:
// a leading and/or trailing '%' as a wildcard, literal match otherwise.
func likeMatch(s, pattern string) bool {
	prefix := len(pattern) > 0 && pattern[0] == '%'
	suffix := len(pattern) > 0 && pattern[len(pattern)-1] == '%'
	core := pattern
	if prefix {
		core = core[1:]
	}
	if suffix && len(core) > 0 {
		core = core[:len(core)-1]
	}
	switch {
	case prefix && suffix:
		return strings.Contains(s, core)
	case prefix:
		return strings.HasSuffix(s, core)
	case suffix:
		return strings.HasPrefix(s, core)
	default:
		return s == core
	}
}

func project(row relation.DataRow, columns []string) relation.DataRow {
	if len(columns) == 0 {
		out := make(relation.DataRow, len(row))
		for k, v := range row {
			out[k] = v
		}
		return out
	}
	out := make(relation.DataRow, len(columns))
	for _, col := range columns {
		if v, ok := row[col]; ok {
			out[col] = v
		}
	}
	return out
}

// GetColumns implements relation.ColumnLister.
func (s *Store) GetColumns(relationIdentifier string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[relationIdentifier]
	if !ok {
		return nil, relation.PermanentError(fmt.Errorf("memory: unknown relation %q", relationIdentifier))
	}
	out := make([]string, 0, len(t.columns))
	for c := range t.columns {
		out = append(out, c)
	}
	sort.Strings(out)
	return out, nil
}
