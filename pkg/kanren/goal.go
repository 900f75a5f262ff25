package kanren

import "context"

// Goal is the central abstraction of the engine: a function from a
// stream of substitutions to a derived stream of substitutions
// (spec.md's GLOSSARY). Composing goals composes stream transformers;
// nothing runs until the composed stream is pulled.
type Goal func(ctx context.Context, in *Stream) *Stream

// Eq is the primitive goal: for each input substitution, unify a and b
// against it and emit the result if unification succeeds, else emit
// nothing for that input (spec.md §4.C).
func Eq(a, b Term) Goal {
	return func(ctx context.Context, in *Stream) *Stream {
		return in.FlatMap(func(s *Substitution) *Stream {
			select {
			case <-ctx.Done():
				return Empty()
			default:
			}
			out, ok := Unify(a, b, s)
			if !ok {
				return Empty()
			}
			return From(out)
		})
	}
}

// And sequences goals left to right: g1 consumes the input stream,
// each result feeds g2, and so on (spec.md §4.C). And() with no goals
// is the identity transformer.
func And(goals ...Goal) Goal {
	return func(ctx context.Context, in *Stream) *Stream {
		ids := NewGoalIDSet()
		stream := in.Map(func(s *Substitution) *Substitution { return s.WithGroupConj(ids) })
		for _, g := range goals {
			stream = g(ctx, stream)
		}
		return stream
	}
}

// Or tries every goal against an independent multicast of the same
// input stream and interleaves their results (spec.md §4.C). Each
// input substitution is tried by every branch; branches are started
// concurrently so a goal that blocks (e.g. on a data store round trip)
// does not stall its siblings.
func Or(goals ...Goal) Goal {
	return func(ctx context.Context, in *Stream) *Stream {
		if len(goals) == 0 {
			return Empty()
		}

		factory := in.Share()
		branches := make([]*Stream, len(goals))
		for i, g := range goals {
			branches[i] = g(ctx, factory())
		}
		return Merge(ctx, branches...)
	}
}

// Conde is sugar over Or(And(...), And(...), ...): each clause is a
// sequence of goals run in conjunction, and the clauses are tried as
// disjuncts.
func Conde(clauses ...[]Goal) Goal {
	goals := make([]Goal, len(clauses))
	for i, c := range clauses {
		goals[i] = And(c...)
	}
	return Or(goals...)
}

// Not fails a substitution iff goal would emit at least one result for
// it; otherwise it passes the substitution through unchanged. It is
// implemented by bounded probing (Take(1)) against goal applied to
// that single substitution in isolation, so a goal with an infinite
// stream for some input still lets Not decide (spec.md §4.C).
func Not(goal Goal) Goal {
	return func(ctx context.Context, in *Stream) *Stream {
		return in.FlatMap(func(s *Substitution) *Stream {
			select {
			case <-ctx.Done():
				return Empty()
			default:
			}
			_, found := goal(ctx, From(s)).Take(1).First()
			if found {
				return Empty()
			}
			return From(s)
		})
	}
}

// Run evaluates goal against a single empty input substitution using
// context.Background and returns every result.
func Run(goal Goal) []*Substitution {
	return RunWithContext(context.Background(), goal)
}

// RunWithContext evaluates goal against a single empty input
// substitution, honoring ctx for cancellation, and returns every
// result.
func RunWithContext(ctx context.Context, goal Goal) []*Substitution {
	return goal(ctx, From(EmptySubstitution())).ToSlice()
}

// RunN evaluates goal and returns at most n results.
func RunN(ctx context.Context, n int, goal Goal) []*Substitution {
	return goal(ctx, From(EmptySubstitution())).Take(n).ToSlice()
}
