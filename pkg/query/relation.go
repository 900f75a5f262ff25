package query

import (
	"github.com/gokando/relquery/pkg/kanren"
	"github.com/gokando/relquery/pkg/relation"
)

// ShapeFunc builds a relation's query shape (column name -> Term)
// against the query's shared Proxy, typically by calling p.Attr for
// every column the caller wants bound to a query variable and
// supplying kanren.Atom literals for any column pinned to a ground
// value.
type ShapeFunc func(p *Proxy) map[string]kanren.Term

// Rel attaches rel as a GoalFunc: its query shape is built fresh from
// the query's Proxy each time the Query is constructed, and the
// relation's assigned goal id is reported so it participates in
// GROUP_ALL sibling discovery (spec.md §4.H).
func Rel(rel *relation.Relation, shape ShapeFunc) GoalFunc {
	return func(p *Proxy) (kanren.Goal, []uint64) {
		g, id := rel.Build(shape(p))
		return g, []uint64{id}
	}
}

// RelSym attaches a symmetric relation (spec.md §4.H's relSym): the
// union of rel's ordinary goal and the goal with col1/col2 swapped in
// its query shape. Both underlying call sites' ids are reported for
// GROUP_ALL.
func RelSym(rel *relation.Relation, shape ShapeFunc, col1, col2 string) GoalFunc {
	return func(p *Proxy) (kanren.Goal, []uint64) {
		g, ids := rel.RelSym(shape(p), col1, col2)
		return g, ids
	}
}

// Eq attaches kanren.Eq(a, b) as a plain goal, with a and b built
// against the query's shared Proxy so a caller can pin a select
// attribute to a literal or to another attribute.
func Eq(a, b func(p *Proxy) kanren.Term) GoalFunc {
	return func(p *Proxy) (kanren.Goal, []uint64) {
		return kanren.Eq(a(p), b(p)), nil
	}
}

// Attr builds a ShapeFunc/Eq-style term that resolves to the named
// proxy attribute — shorthand for p.Attr(name) usable as a
// func(p *Proxy) kanren.Term argument.
func Attr(name string) func(p *Proxy) kanren.Term {
	return func(p *Proxy) kanren.Term { return p.Attr(name) }
}

// Val builds a func(p *Proxy) kanren.Term that ignores the proxy and
// always resolves to the ground value v wrapped as a kanren.Atom —
// shorthand for pinning an Eq/shape argument to a literal.
func Val(v interface{}) func(p *Proxy) kanren.Term {
	return func(p *Proxy) kanren.Term { return kanren.NewAtom(v) }
}
