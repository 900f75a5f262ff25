package kanren

import (
	"context"
	"sync/atomic"
)

// ConstraintStatus is the tri-state outcome of resuming a suspended
// constraint (spec.md §4.D): it either produces an updated
// substitution, fails outright, or asks to remain suspended because
// not enough of its watched variables are ground yet.
type ConstraintStatus int

const (
	// ConstraintOK means the constraint fired successfully; the
	// accompanying substitution is the result.
	ConstraintOK ConstraintStatus = iota
	// ConstraintFailed means the constraint is violated; unification
	// must fail.
	ConstraintFailed
	// ConstraintCheckLater means the constraint could not be evaluated
	// yet and should remain suspended.
	ConstraintCheckLater
)

// ConstraintResume is the function a suspended constraint invokes when
// one or more of its watched variables may have become ground. It must
// be pure — no captured mutable state — so that it is safe to invoke
// multiple times, including after backtracking restores an earlier
// substitution (spec.md §9).
type ConstraintResume func(s *Substitution) (*Substitution, ConstraintStatus)

// SuspendedConstraint pairs a resume function with the set of variable
// ids it is currently waiting on. It is stored, by value, inside the
// SUSPENDED slot of whichever substitution installed it.
type SuspendedConstraint struct {
	id      int64
	resume  ConstraintResume
	watched map[int64]struct{}
}

// constraintIDCounter is reduced modulo a large bound (2^31) when an id
// is handed out, so ids wrap instead of growing without limit across a
// long-running process (spec.md §4.D policy); ids only need to be
// unique within one substitution lineage, which a 2^31 rollover
// comfortably provides given how few constraints are live at
// once in any single lineage.
var constraintIDCounter int64

const constraintIDModulus = 1 << 31

func nextConstraintID() int64 {
	return atomic.AddInt64(&constraintIDCounter, 1) % constraintIDModulus
}

// watchedSet builds the set of variable ids still free (unbound) in s
// among vars.
func watchedSet(s *Substitution, vars []*Var) map[int64]struct{} {
	out := make(map[int64]struct{}, len(vars))
	for _, v := range vars {
		if s.Walk(v).IsVar() {
			out[v.id] = struct{}{}
		}
	}
	return out
}

// groundCount reports how many of vars are ground (non-Var) under s.
func groundCount(s *Substitution, vars []*Var) int {
	n := 0
	for _, v := range vars {
		if !s.Walk(v).IsVar() {
			n++
		}
	}
	return n
}

// Suspendable builds a Goal from an evaluator over vars: for each input
// substitution, if at least minGrounded of vars are currently ground,
// evaluator runs immediately; otherwise a constraint watching the
// still-free variables among vars is installed and the substitution is
// emitted unchanged (spec.md §4.D).
//
// evaluator receives the walked values of vars, in order, and returns
// the same tri-state ConstraintResume does.
func Suspendable(vars []*Var, minGrounded int, evaluator func(s *Substitution, walked []Term) (*Substitution, ConstraintStatus)) Goal {
	var resume ConstraintResume
	resume = func(s *Substitution) (*Substitution, ConstraintStatus) {
		walked := make([]Term, len(vars))
		for i, v := range vars {
			walked[i] = s.Walk(v)
		}
		if groundCount(s, vars) < minGrounded {
			return s, ConstraintCheckLater
		}
		return evaluator(s, walked)
	}

	return func(ctx context.Context, in *Stream) *Stream {
		return in.FlatMap(func(s *Substitution) *Stream {
			select {
			case <-ctx.Done():
				return Empty()
			default:
			}

			walked := make([]Term, len(vars))
			for i, v := range vars {
				walked[i] = s.Walk(v)
			}

			if groundCount(s, vars) >= minGrounded {
				result, status := evaluator(s, walked)
				if status == ConstraintFailed {
					return Empty()
				}
				if status == ConstraintOK {
					return From(result)
				}
				// ConstraintCheckLater with enough grounded vars to have
				// tried: fall through to suspending on whatever remains
				// free, same as the not-enough-grounded path below.
			}

			watch := watchedSet(s, vars)
			if len(watch) == 0 {
				// No watched vars and constraint isn't satisfied now:
				// no future binding can wake it, so it never will.
				// Policy (spec.md §4.D): fail immediately.
				return Empty()
			}

			sc := SuspendedConstraint{id: nextConstraintID(), resume: resume, watched: watch}
			return From(s.WithSuspendedAppended(sc))
		})
	}
}

// wakeup is invoked after a successful binding introduces newly-ground
// variable ids. It inspects SUSPENDED and resumes every constraint
// whose watched set intersects newlyGround, or any of whose watched
// variables now walks to a non-variable term (a watched variable
// aliased to another one is grounded when that other one is bound,
// without its own id appearing in newlyGround). Returns the updated
// substitution, or ok=false if any resumed constraint failed
// (spec.md §4.A "Wakeup contract").
//
// Processing works off cur.Suspended() freshly on every step rather
// than a single snapshot taken at entry: a resume can itself add,
// drop, or re-suspend constraints (for example two constraints that
// share domain state and resolve together), and a constraint
// introduced or altered by an earlier resume in this same wakeup must
// still be considered, not just the ones present when wakeup started.
// checked tracks ids already decided (either resumed, or confirmed not
// to intersect newlySet) so none is processed twice.
func wakeup(s *Substitution, newlyGround []int64) (*Substitution, bool) {
	if len(s.Suspended()) == 0 {
		return s, true
	}

	newlySet := make(map[int64]struct{}, len(newlyGround))
	for _, id := range newlyGround {
		newlySet[id] = struct{}{}
	}

	cur := s
	checked := make(map[int64]struct{})

	for {
		suspended := cur.Suspended()
		var next *SuspendedConstraint
		for i := range suspended {
			sc := suspended[i]
			if _, done := checked[sc.id]; done {
				continue
			}
			due := intersects(sc.watched, newlySet)
			for id := range sc.watched {
				if due {
					break
				}
				due = !cur.Walk(&Var{id: id}).IsVar()
			}
			if !due {
				checked[sc.id] = struct{}{}
				continue
			}
			next = &suspended[i]
			break
		}
		if next == nil {
			break
		}

		sc := *next
		checked[sc.id] = struct{}{}

		// Drop this constraint from SUSPENDED before resuming it: its
		// resume function re-installs it (with a possibly narrower
		// watch set) if it still needs to wait.
		resumed, status := sc.resume(cur.WithSuspended(dropByID(cur.Suspended(), sc.id)))
		switch status {
		case ConstraintFailed:
			return s, false
		case ConstraintOK:
			cur = resumed
		case ConstraintCheckLater:
			watch := watchedSet(cur, varsFromWatched(sc.watched))
			if len(watch) == 0 {
				return s, false
			}
			cur = cur.WithSuspendedAppended(SuspendedConstraint{id: sc.id, resume: sc.resume, watched: watch})
		}
	}

	return cur, true
}

func intersects(a, b map[int64]struct{}) bool {
	small, big := a, b
	if len(big) < len(small) {
		small, big = big, small
	}
	for id := range small {
		if _, ok := big[id]; ok {
			return true
		}
	}
	return false
}

func dropByID(list []SuspendedConstraint, id int64) []SuspendedConstraint {
	out := make([]SuspendedConstraint, 0, len(list))
	for _, sc := range list {
		if sc.id != id {
			out = append(out, sc)
		}
	}
	return out
}

// varsFromWatched rebuilds a []*Var view over a watched-id set purely
// for re-deriving which ids are still free after a resume; the
// resulting Vars carry no name and are used only for their ids.
func varsFromWatched(watched map[int64]struct{}) []*Var {
	out := make([]*Var, 0, len(watched))
	for id := range watched {
		out = append(out, &Var{id: id})
	}
	return out
}
