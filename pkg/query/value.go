package query

import "github.com/gokando/relquery/pkg/kanren"

// ValueOf converts a fully-walked Term into a plain Go value suitable
// for handing back to a caller that has no reason to know about the
// logic engine's term ADT: an Atom unwraps to its underlying scalar, a
// Cons list becomes a []interface{}, a Seq becomes a []interface{},
// and an unbound Var (one the query never grounded) becomes nil.
//
// t must already be walked (DeepWalk) against the substitution it came
// from — ValueOf itself does not consult a Substitution.
func ValueOf(t kanren.Term) interface{} {
	switch v := t.(type) {
	case *kanren.Var:
		return nil
	case *kanren.Atom:
		return v.Value()
	case *kanren.Seq:
		out := make([]interface{}, len(v.Elems))
		for i, e := range v.Elems {
			out[i] = ValueOf(e)
		}
		return out
	case *kanren.Cons:
		return consToSlice(v)
	default:
		if t.Equal(kanren.Nil) {
			return []interface{}{}
		}
		return t.String()
	}
}

// consToSlice flattens a proper Cons-list into a []interface{}. An
// improper list (one that does not terminate in kanren.Nil) still
// yields every element it can reach; its dangling tail is dropped
// since there is no plain-Go shape for it.
func consToSlice(c *kanren.Cons) []interface{} {
	var out []interface{}
	var cur kanren.Term = c
	for {
		cell, ok := cur.(*kanren.Cons)
		if !ok {
			break
		}
		out = append(out, ValueOf(cell.Head))
		cur = cell.Tail
	}
	if out == nil {
		out = []interface{}{}
	}
	return out
}
