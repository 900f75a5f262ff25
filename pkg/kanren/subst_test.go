package kanren

import "testing"

func TestWalkResolvesChain(t *testing.T) {
	x := Fresh("x")
	y := Fresh("y")
	s := EmptySubstitution().bindVar(x, y).bindVar(y, NewAtom(42))

	got := s.Walk(x)
	atom, ok := got.(*Atom)
	if !ok {
		t.Fatalf("Walk(x) = %T, want *Atom", got)
	}
	if atom.Value() != 42 {
		t.Fatalf("Walk(x) = %v, want 42", atom.Value())
	}
}

func TestWalkUnboundReturnsVar(t *testing.T) {
	x := Fresh("x")
	s := EmptySubstitution()
	if got := s.Walk(x); !got.Equal(x) {
		t.Fatalf("Walk on unbound var = %v, want itself", got)
	}
}

func TestDeepWalkResolvesStructure(t *testing.T) {
	x := Fresh("x")
	y := Fresh("y")
	s := EmptySubstitution().bindVar(x, NewAtom(1)).bindVar(y, NewAtom(2))

	l := List(x, y)
	resolved := s.DeepWalk(l)

	cons, ok := resolved.(*Cons)
	if !ok {
		t.Fatalf("DeepWalk did not return *Cons, got %T", resolved)
	}
	if !cons.Head.Equal(NewAtom(1)) {
		t.Fatalf("head = %v, want 1", cons.Head)
	}
}

func TestSubstitutionIsPersistent(t *testing.T) {
	x := Fresh("x")
	base := EmptySubstitution()
	extended := base.bindVar(x, NewAtom(1))

	if base.LookupVar(x) != nil {
		t.Fatal("binding on extended substitution leaked back into base")
	}
	if extended.LookupVar(x) == nil {
		t.Fatal("extended substitution lost its own binding")
	}
}

func TestRowCacheRoundTrip(t *testing.T) {
	s := EmptySubstitution()
	if _, ok := s.CacheGet(7); ok {
		t.Fatal("empty substitution should have no cache entries")
	}

	s2 := s.WithCacheEntry(7, CacheEntry{Rows: []int{1, 2, 3}, Timestamp: 100, OriginGoalID: 7})
	entry, ok := s2.CacheGet(7)
	if !ok {
		t.Fatal("expected cache entry after WithCacheEntry")
	}
	if entry.Timestamp != 100 {
		t.Fatalf("Timestamp = %d, want 100", entry.Timestamp)
	}
	if _, ok := s.CacheGet(7); ok {
		t.Fatal("WithCacheEntry mutated the original substitution")
	}
}

func TestGoalIDSetUnion(t *testing.T) {
	a := NewGoalIDSet(1, 2)
	b := NewGoalIDSet(2, 3)
	u := a.Union(b)
	for _, id := range []uint64{1, 2, 3} {
		if !u.Has(id) {
			t.Fatalf("union missing id %d", id)
		}
	}
	if len(u.Members()) != 3 {
		t.Fatalf("union has %d members, want 3", len(u.Members()))
	}
}

func TestSuspendedAppendIsPersistent(t *testing.T) {
	s := EmptySubstitution()
	sc := SuspendedConstraint{id: 1}
	s2 := s.WithSuspendedAppended(sc)
	if len(s.Suspended()) != 0 {
		t.Fatal("appending to s2 mutated s's suspended list")
	}
	if len(s2.Suspended()) != 1 {
		t.Fatalf("s2 has %d suspended constraints, want 1", len(s2.Suspended()))
	}
}
