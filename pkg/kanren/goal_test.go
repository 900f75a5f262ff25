package kanren

import (
	"context"
	"testing"
)

func TestEqSucceedsOnce(t *testing.T) {
	x := Fresh("x")
	results := Run(Eq(x, NewAtom(5)))
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	if got := results[0].Walk(x); !got.Equal(NewAtom(5)) {
		t.Fatalf("x = %v, want 5", got)
	}
}

func TestEqFailsOnMismatch(t *testing.T) {
	results := Run(Eq(NewAtom(1), NewAtom(2)))
	if len(results) != 0 {
		t.Fatalf("len(results) = %d, want 0", len(results))
	}
}

func TestAndSequencesBindings(t *testing.T) {
	x, y := Fresh("x"), Fresh("y")
	goal := And(Eq(x, NewAtom(1)), Eq(y, NewAtom(2)))
	results := Run(goal)
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	s := results[0]
	if got := s.Walk(x); !got.Equal(NewAtom(1)) {
		t.Fatalf("x = %v, want 1", got)
	}
	if got := s.Walk(y); !got.Equal(NewAtom(2)) {
		t.Fatalf("y = %v, want 2", got)
	}
}

func TestAndShortCircuitsOnFailure(t *testing.T) {
	x := Fresh("x")
	goal := And(Eq(x, NewAtom(1)), Eq(x, NewAtom(2)))
	if results := Run(goal); len(results) != 0 {
		t.Fatalf("len(results) = %d, want 0", len(results))
	}
}

func TestAndEmptySucceedsUnchanged(t *testing.T) {
	if results := Run(And()); len(results) != 1 {
		t.Fatalf("And() with no goals should succeed once, got %d results", len(results))
	}
}

func TestOrUnionsBranches(t *testing.T) {
	x := Fresh("x")
	goal := Or(Eq(x, NewAtom(1)), Eq(x, NewAtom(2)))
	results := Run(goal)
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
}

func TestOrWithNoGoalsFails(t *testing.T) {
	if results := Run(Or()); len(results) != 0 {
		t.Fatalf("Or() with no goals should produce no results, got %d", len(results))
	}
}

func TestCondeTriesEachClause(t *testing.T) {
	x, y := Fresh("x"), Fresh("y")
	goal := Conde(
		[]Goal{Eq(x, NewAtom(1)), Eq(y, NewAtom("a"))},
		[]Goal{Eq(x, NewAtom(2)), Eq(y, NewAtom("b"))},
	)
	results := Run(goal)
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
}

func TestNotSucceedsWhenGoalFails(t *testing.T) {
	goal := Not(Eq(NewAtom(1), NewAtom(2)))
	if results := Run(goal); len(results) != 1 {
		t.Fatalf("Not of a failing goal should succeed once, got %d results", len(results))
	}
}

func TestNotFailsWhenGoalSucceeds(t *testing.T) {
	goal := Not(Eq(NewAtom(1), NewAtom(1)))
	if results := Run(goal); len(results) != 0 {
		t.Fatalf("Not of a succeeding goal should fail, got %d results", len(results))
	}
}

func TestNotDoesNotHangOnInfiniteGoal(t *testing.T) {
	n := 0
	infinite := func(ctx context.Context, in *Stream) *Stream {
		s, _ := in.First()
		return Of(func() (*Substitution, bool) {
			n++
			return s, true
		})
	}
	results := Run(Not(infinite))
	if len(results) != 0 {
		t.Fatalf("Not of an always-succeeding infinite goal should fail, got %d results", len(results))
	}
	if n != 1 {
		t.Fatalf("infinite goal's generator was pulled %d times, want exactly 1 (Take(1) bound)", n)
	}
}

func TestRunNLimitsResults(t *testing.T) {
	x := Fresh("x")
	goal := Or(Eq(x, NewAtom(1)), Eq(x, NewAtom(2)), Eq(x, NewAtom(3)))
	if got := len(RunN(context.Background(), 2, goal)); got != 2 {
		t.Fatalf("RunN(2) returned %d results, want 2", got)
	}
}
