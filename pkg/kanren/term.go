// Package kanren implements a streaming relational logic engine: goals
// consume a lazy stream of substitutions and emit a derived stream, with
// unification, suspendable constraints, and conjunction/disjunction as
// the core composition operators.
//
// The package is deliberately small at its core (Term, Substitution,
// Stream, Goal) so that the data-backed relation engine in package
// relation can be built on top of it without reaching into engine
// internals.
package kanren

import "fmt"

// Term is any value in the logic engine's universe: a logic variable, a
// ground scalar, a cons-pair logic list, or a fixed-arity sequence.
// Implementations must be safe to share across goroutines once
// constructed — every Term in this package is immutable after creation.
type Term interface {
	// String returns a human-readable representation.
	String() string

	// Equal checks structural equality. This is NOT unification — it
	// never binds a variable, it only compares two terms as they stand.
	Equal(other Term) bool

	// IsVar reports whether this term is a logic variable.
	IsVar() bool
}

// Var is a logic variable. Two Vars are the same variable iff their ids
// match; ids are assigned by Fresh and are never reused.
type Var struct {
	id   int64
	name string
}

// varCounter hands out globally unique variable ids.
var varCounter int64

// Fresh allocates a new logic variable. name is optional and used only
// for String()/debugging; pass "" for an anonymous variable.
func Fresh(name string) *Var {
	varCounter++
	return &Var{id: varCounter, name: name}
}

// ID returns the variable's unique identifier.
func (v *Var) ID() int64 { return v.id }

// Name returns the variable's debug name, which may be empty.
func (v *Var) Name() string { return v.name }

func (v *Var) String() string {
	if v.name != "" {
		return fmt.Sprintf("_%s%d", v.name, v.id)
	}
	return fmt.Sprintf("_%d", v.id)
}

// Equal reports whether other is the same variable (same id).
func (v *Var) Equal(other Term) bool {
	ov, ok := other.(*Var)
	return ok && ov.id == v.id
}

// IsVar always returns true for *Var.
func (v *Var) IsVar() bool { return true }

// Atom wraps a ground scalar Go value: a number, string, bool, or nil.
// Atoms compare equal by Go's == on the underlying value, so the
// wrapped value must itself be comparable.
type Atom struct {
	value interface{}
}

// NewAtom wraps value as an Atom.
func NewAtom(value interface{}) *Atom { return &Atom{value: value} }

// Value returns the underlying Go value.
func (a *Atom) Value() interface{} { return a.value }

func (a *Atom) String() string { return fmt.Sprintf("%v", a.value) }

// Equal reports whether other is an Atom wrapping an equal value.
func (a *Atom) Equal(other Term) bool {
	oa, ok := other.(*Atom)
	return ok && a.value == oa.value
}

// IsVar always returns false for *Atom.
func (a *Atom) IsVar() bool { return false }

// Nil is the canonical empty logic list, the terminator of Cons chains.
var Nil Term = &nilTerm{}

type nilTerm struct{}

func (n *nilTerm) String() string { return "()" }
func (n *nilTerm) Equal(other Term) bool {
	_, ok := other.(*nilTerm)
	return ok
}
func (n *nilTerm) IsVar() bool { return false }

// Cons is a logic-list cell: (Head . Tail). A proper list is a chain of
// Cons cells terminated by Nil.
type Cons struct {
	Head, Tail Term
}

// NewCons builds a single cons cell.
func NewCons(head, tail Term) *Cons { return &Cons{Head: head, Tail: tail} }

func (c *Cons) String() string {
	return fmt.Sprintf("(%s . %s)", c.Head.String(), c.Tail.String())
}

// Equal reports whether other is a Cons with structurally equal
// Head/Tail. This does not walk through a substitution.
func (c *Cons) Equal(other Term) bool {
	oc, ok := other.(*Cons)
	return ok && c.Head.Equal(oc.Head) && c.Tail.Equal(oc.Tail)
}

func (c *Cons) IsVar() bool { return false }

// List builds a proper logic list from terms, terminated by Nil.
func List(terms ...Term) Term {
	var result Term = Nil
	for i := len(terms) - 1; i >= 0; i-- {
		result = NewCons(terms[i], result)
	}
	return result
}

// Seq is a finite, fixed-arity ordered sequence of terms — distinct
// from a Cons list. It represents tuples/rows: the query frontend and
// the relation engine both use Seq for projected result tuples, where
// arity is known up front and Cons-style recursive structural matching
// would be the wrong shape.
type Seq struct {
	Elems []Term
}

// NewSeq builds a fixed-arity sequence.
func NewSeq(elems ...Term) *Seq { return &Seq{Elems: elems} }

func (s *Seq) String() string {
	out := "["
	for i, e := range s.Elems {
		if i > 0 {
			out += ", "
		}
		out += e.String()
	}
	return out + "]"
}

// Equal reports whether other is a Seq of the same length with
// pairwise-equal elements.
func (s *Seq) Equal(other Term) bool {
	os, ok := other.(*Seq)
	if !ok || len(os.Elems) != len(s.Elems) {
		return false
	}
	for i := range s.Elems {
		if !s.Elems[i].Equal(os.Elems[i]) {
			return false
		}
	}
	return true
}

func (s *Seq) IsVar() bool { return false }

// isGround reports whether term contains no unbound-capable Var nodes
// anywhere in its structure (it does not consult a substitution — a
// bound Var still counts as "contains a Var" here; callers walk first).
func isGround(t Term) bool {
	switch v := t.(type) {
	case *Var:
		return false
	case *Cons:
		return isGround(v.Head) && isGround(v.Tail)
	case *Seq:
		for _, e := range v.Elems {
			if !isGround(e) {
				return false
			}
		}
		return true
	default:
		return true
	}
}
