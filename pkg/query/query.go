// Package query implements the query frontend (spec.md §4.I): a
// fluent builder that turns a select shape and a set of goal-producing
// closures into a root goal tree, seeds the sibling-discovery metadata
// every data-backed goal needs, and projects the resulting
// substitution stream into plain Go values through three terminal
// forms (ToArray, Iterate, ToStream).
package query

import (
	"context"

	"github.com/gokando/relquery/pkg/kanren"
)

// Row is one projected result: select-column name -> plain Go value.
type Row map[string]interface{}

// GoalFunc builds one goal against the query's shared Proxy and
// reports the ids of every data-backed goal it registered (possibly
// none, for a plain kanren.Goal that touches no relation). The query
// builder collects these ids across every GoalFunc passed to Where and
// seeds GROUP_ALL with their union before executing, which is what
// lets two relation goals built by two different GoalFuncs in the same
// Query discover each other as cache/merge siblings (spec.md §4.H).
type GoalFunc func(p *Proxy) (kanren.Goal, []uint64)

// Plain wraps an ordinary kanren.Goal (one with no data-backed call
// site to register, e.g. Eq or a constraint) as a GoalFunc.
func Plain(g kanren.Goal) GoalFunc {
	return func(p *Proxy) (kanren.Goal, []uint64) { return g, nil }
}

// Query is the fluent builder. Build one with Select, attach goals
// with Where, then call a terminal form.
type Query struct {
	proxy      *Proxy
	selectCols []string
	goals      []kanren.Goal
	goalIDs    []uint64
}

// Select starts a Query projecting the named columns.
func Select(columns ...string) *Query {
	return &Query{
		proxy:      NewProxy(),
		selectCols: columns,
	}
}

// Proxy returns the query's shared variable proxy, so a caller can
// reference the same attribute Vars the select shape and the relation
// goal shapes will use.
func (q *Query) Proxy() *Proxy { return q.proxy }

// Where attaches one or more goal builders, each invoked against the
// query's shared Proxy. Builders run in the order given and their
// goals are conjoined left to right (spec.md §4.C's And), so earlier
// builders' bindings are visible to later ones.
func (q *Query) Where(builders ...GoalFunc) *Query {
	for _, b := range builders {
		g, ids := b(q.proxy)
		q.goals = append(q.goals, g)
		q.goalIDs = append(q.goalIDs, ids...)
	}
	return q
}

// root conjoins every attached goal into the single root goal the
// query executes (spec.md §4.I).
func (q *Query) root() kanren.Goal {
	return kanren.And(q.goals...)
}

// seed builds the initial substitution the root goal runs against: an
// empty substitution carrying GROUP_ALL populated with every
// data-backed goal id collected from Where, so sibling discovery works
// from the very first substitution a relation goal sees (spec.md
// §4.H's GoalRecord lookup reads GROUP_ALL off the substitution, not
// off build order).
func (q *Query) seed() *kanren.Substitution {
	return kanren.EmptySubstitution().WithGroupAll(kanren.NewGoalIDSet(q.goalIDs...))
}

// ToStream executes the query and returns its raw substitution stream,
// unprojected — the escape hatch for a caller that wants Walk access
// to variables outside the select shape.
func (q *Query) ToStream(ctx context.Context) *kanren.Stream {
	return q.root()(ctx, kanren.From(q.seed()))
}

// project turns one emitted substitution into a Row by walking every
// selected column's Var.
func (q *Query) project(s *kanren.Substitution) Row {
	row := make(Row, len(q.selectCols))
	for _, col := range q.selectCols {
		row[col] = ValueOf(s.DeepWalk(q.proxy.Attr(col)))
	}
	return row
}

// ToArray drains the query fully and returns every projected row. It
// honors ctx cancellation mid-drain, returning whatever was collected
// so far along with ctx.Err().
func (q *Query) ToArray(ctx context.Context) ([]Row, error) {
	stream := q.ToStream(ctx)
	var out []Row
	for {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		default:
		}
		s, ok := stream.Next()
		if !ok {
			return out, nil
		}
		out = append(out, q.project(s))
	}
}

// Iterator is the query's async-pull terminal form: each Next call
// advances the underlying stream by exactly one row, and Close cancels
// the query's own derived context so an early stop propagates
// cancellation upstream through every relation goal in the tree
// (spec.md §5's cancellation model) instead of leaving them running to
// exhaustion.
type Iterator struct {
	q      *Query
	cancel context.CancelFunc
	stream *kanren.Stream
	closed bool
}

// Iterate returns an Iterator over the query's results. The returned
// Iterator must be closed (directly, or by draining it to exhaustion)
// to release its derived context.
func (q *Query) Iterate(ctx context.Context) *Iterator {
	ictx, cancel := context.WithCancel(ctx)
	return &Iterator{q: q, cancel: cancel, stream: q.ToStream(ictx)}
}

// Next returns the next row, or (nil, false) once the query is
// exhausted or the iterator has been closed.
func (it *Iterator) Next() (Row, bool) {
	if it.closed {
		return nil, false
	}
	s, ok := it.stream.Next()
	if !ok {
		it.Close()
		return nil, false
	}
	return it.q.project(s), true
}

// Close cancels the iterator's upstream goals. Safe to call more than
// once.
func (it *Iterator) Close() {
	if it.closed {
		return
	}
	it.closed = true
	it.cancel()
}
