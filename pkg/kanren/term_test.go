package kanren

import "testing"

func TestAtomEqual(t *testing.T) {
	cases := []struct {
		name string
		a, b Term
		want bool
	}{
		{"equal ints", NewAtom(1), NewAtom(1), true},
		{"different ints", NewAtom(1), NewAtom(2), false},
		{"different types", NewAtom("1"), NewAtom(1), false},
		{"atom vs var", NewAtom(1), Fresh(""), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.a.Equal(c.b); got != c.want {
				t.Errorf("Equal() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestVarIdentity(t *testing.T) {
	a := Fresh("x")
	b := Fresh("x")
	if a.Equal(b) {
		t.Fatal("two distinct Fresh vars compared equal")
	}
	if !a.Equal(a) {
		t.Fatal("a var did not compare equal to itself")
	}
}

func TestListBuildsConsChain(t *testing.T) {
	l := List(NewAtom(1), NewAtom(2), NewAtom(3))
	c, ok := l.(*Cons)
	if !ok {
		t.Fatalf("List() did not return *Cons, got %T", l)
	}
	if !c.Head.Equal(NewAtom(1)) {
		t.Fatalf("head = %v, want 1", c.Head)
	}
	tail, ok := c.Tail.(*Cons)
	if !ok {
		t.Fatalf("tail not *Cons, got %T", c.Tail)
	}
	if !tail.Head.Equal(NewAtom(2)) {
		t.Fatalf("second element = %v, want 2", tail.Head)
	}
}

func TestIsGround(t *testing.T) {
	if !isGround(NewAtom(1)) {
		t.Error("atom should be ground")
	}
	if isGround(Fresh("")) {
		t.Error("unbound var should not be ground")
	}
	if isGround(List(NewAtom(1), Fresh(""))) {
		t.Error("list containing a var should not be ground")
	}
	if !isGround(NewSeq(NewAtom(1), NewAtom(2))) {
		t.Error("seq of atoms should be ground")
	}
}

func TestSeqEqual(t *testing.T) {
	a := NewSeq(NewAtom(1), NewAtom(2))
	b := NewSeq(NewAtom(1), NewAtom(2))
	c := NewSeq(NewAtom(1), NewAtom(3))
	if !a.Equal(b) {
		t.Error("equal seqs compared unequal")
	}
	if a.Equal(c) {
		t.Error("different seqs compared equal")
	}
	if a.Equal(NewSeq(NewAtom(1))) {
		t.Error("seqs of different length compared equal")
	}
}
