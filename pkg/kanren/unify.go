package kanren

// Unify attempts to make a and b equal under s, returning the extended
// substitution and true on success, or (nil, false) on failure
// (spec.md §4.A). It performs an occurs-check: a variable may never be
// bound to a term that contains it, even transitively, which rules out
// the infinite terms a cyclic binding would produce.
//
// On success, every newly-grounded variable triggers the wakeup
// contract: any constraint suspended on that variable (see
// constraint.go) is resumed, and a failing resume fails the whole
// unification.
func Unify(a, b Term, s *Substitution) (*Substitution, bool) {
	var newlyGround []int64
	result, ok := unify1(a, b, s, &newlyGround)
	if !ok {
		return nil, false
	}
	if len(newlyGround) == 0 {
		return result, true
	}
	woken, ok := wakeup(result, newlyGround)
	if !ok {
		return nil, false
	}
	return woken, true
}

// unify1 is the recursive worker. newlyGround accumulates the ids of
// variables that became bound to a ground term over the course of this
// call, so the caller can run wakeup exactly once at the end rather
// than after every individual binding.
func unify1(a, b Term, s *Substitution, newlyGround *[]int64) (*Substitution, bool) {
	a = s.Walk(a)
	b = s.Walk(b)

	if a.Equal(b) {
		return s, true
	}

	av, aIsVar := a.(*Var)
	bv, bIsVar := b.(*Var)

	switch {
	case aIsVar && bIsVar:
		return bindVarTracking(s, av, b, newlyGround)
	case aIsVar:
		return bindVarTracking(s, av, b, newlyGround)
	case bIsVar:
		return bindVarTracking(s, bv, a, newlyGround)
	}

	ac, aIsCons := a.(*Cons)
	bc, bIsCons := b.(*Cons)
	if aIsCons && bIsCons {
		s2, ok := unify1(ac.Head, bc.Head, s, newlyGround)
		if !ok {
			return nil, false
		}
		return unify1(ac.Tail, bc.Tail, s2, newlyGround)
	}

	aseq, aIsSeq := a.(*Seq)
	bseq, bIsSeq := b.(*Seq)
	if aIsSeq && bIsSeq {
		if len(aseq.Elems) != len(bseq.Elems) {
			return nil, false
		}
		cur := s
		for i := range aseq.Elems {
			next, ok := unify1(aseq.Elems[i], bseq.Elems[i], cur, newlyGround)
			if !ok {
				return nil, false
			}
			cur = next
		}
		return cur, true
	}

	return nil, false
}

// bindVarTracking binds v to t after an occurs-check, recording v's id
// in newlyGround if t is fully ground under the resulting substitution.
func bindVarTracking(s *Substitution, v *Var, t Term, newlyGround *[]int64) (*Substitution, bool) {
	if occursIn(s, v, t) {
		return nil, false
	}
	next := s.bindVar(v, t)
	if isGround(next.DeepWalk(t)) {
		*newlyGround = append(*newlyGround, v.id)
	}
	return next, true
}

// occursIn reports whether v appears anywhere inside t once t is fully
// walked under s — the occurs-check that prevents cyclic bindings.
func occursIn(s *Substitution, v *Var, t Term) bool {
	walked := s.Walk(t)
	switch w := walked.(type) {
	case *Var:
		return w.id == v.id
	case *Cons:
		return occursIn(s, v, w.Head) || occursIn(s, v, w.Tail)
	case *Seq:
		for _, e := range w.Elems {
			if occursIn(s, v, e) {
				return true
			}
		}
		return false
	default:
		return false
	}
}
