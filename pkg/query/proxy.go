package query

import (
	"sync"

	"github.com/gokando/relquery/pkg/kanren"
)

// Proxy hands out a fresh kanren.Var the first time an attribute name
// is accessed, and the same Var on every later access to that name —
// spec.md §4.I's "fresh proxy that allocates variables on first
// attribute access." A single Proxy is shared across every goal
// builder passed to a Query so that a relation's query shape and the
// query's select shape can refer to the same logic variable by name
// without the caller threading *kanren.Var values by hand.
type Proxy struct {
	mu   sync.Mutex
	vars map[string]*kanren.Var
}

// NewProxy returns an empty Proxy.
func NewProxy() *Proxy {
	return &Proxy{vars: make(map[string]*kanren.Var)}
}

// Attr returns the Var bound to name, allocating it on first access.
func (p *Proxy) Attr(name string) *kanren.Var {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := p.vars[name]; ok {
		return v
	}
	v := kanren.Fresh(name)
	p.vars[name] = v
	return v
}

// Shape builds a query-shape map for the given columns, each resolved
// through Attr so a relation goal and the query's select list can
// share variables by column name. A column name that should be bound
// to something other than a fresh proxy variable can be overridden via
// overrides.
func (p *Proxy) Shape(columns []string, overrides map[string]kanren.Term) map[string]kanren.Term {
	shape := make(map[string]kanren.Term, len(columns))
	for _, col := range columns {
		if t, ok := overrides[col]; ok {
			shape[col] = t
			continue
		}
		shape[col] = p.Attr(col)
	}
	return shape
}
