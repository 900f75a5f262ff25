package relation

import (
	"sort"

	"github.com/gokando/relquery/pkg/kanren"
)

// SiblingReason explains why a candidate sibling goal was rejected
// from a merge or cache classification (spec.md §4.H(c)).
type SiblingReason string

const (
	ReasonDifferentRelation SiblingReason = "different_relation"
	ReasonValueNotMatch     SiblingReason = "value_not_match"
	ReasonTermToVar         SiblingReason = "term_to_var"
	ReasonVarToTerm         SiblingReason = "var_to_term"
)

// siblingShape is a sibling goal's query shape as recovered from its
// GoalRecord, plus the sibling's own goal id.
type siblingShape struct {
	goalID             uint64
	relationIdentifier string
	shape              map[string]kanren.Term
}

// discoverSiblings reads the representative substitution's GROUP_ALL
// set and resolves every member except ourGoalID into a siblingShape,
// skipping any id the registry no longer knows about or whose
// recorded query shape isn't the map[string]kanren.Term this package
// produces (a foreign goal sharing the same registry). Candidates are
// pre-filtered through registry.ForRelation(relationIdentifier) so a
// GROUP_ALL member registered under a different relation never even
// reaches a ByID lookup.
func discoverSiblings(registry *kanren.Registry, ourGoalID uint64, relationIdentifier string, representative *kanren.Substitution) []siblingShape {
	candidates := make(map[uint64]kanren.GoalRecord)
	for _, rec := range registry.ForRelation(relationIdentifier) {
		candidates[rec.ID] = rec
	}

	var out []siblingShape
	for _, id := range representative.GroupAll().Members() {
		if id == ourGoalID {
			continue
		}
		rec, ok := candidates[id]
		if !ok {
			continue
		}
		shape, ok := rec.QueryShape.(map[string]kanren.Term)
		if !ok {
			continue
		}
		out = append(out, siblingShape{goalID: id, relationIdentifier: rec.RelationIdentifier, shape: shape})
	}
	return out
}

// groundEqual reports whether two non-Var terms are structurally
// equal.
func groundEqual(a, b kanren.Term) bool {
	return a.Equal(b)
}

// classifyCache reports whether sib is a cache-compatible sibling of
// a goal over relationIdentifier with query shape ours, walked under
// s (spec.md §4.H(c)): same relation, and for every column present in
// both shapes, either both are variables, both are the same ground
// value, or sib's side is a variable while ours is ground.
func classifyCache(s *kanren.Substitution, relationIdentifier string, ours map[string]kanren.Term, sib siblingShape) (bool, SiblingReason) {
	if sib.relationIdentifier != relationIdentifier {
		return false, ReasonDifferentRelation
	}
	for col, oursTerm := range ours {
		sibTerm, present := sib.shape[col]
		if !present {
			continue
		}
		oursWalked := s.Walk(oursTerm)
		sibWalked := s.Walk(sibTerm)
		oursIsVar := oursWalked.IsVar()
		sibIsVar := sibWalked.IsVar()

		switch {
		case oursIsVar && sibIsVar:
			continue
		case !oursIsVar && !sibIsVar:
			if !groundEqual(oursWalked, sibWalked) {
				return false, ReasonValueNotMatch
			}
		case !oursIsVar && sibIsVar:
			continue // ours ground, sibling free: sibling's rows still cover us
		default: // oursIsVar && !sibIsVar
			return false, ReasonVarToTerm
		}
	}
	return true, ""
}

// relationFingerprint canonicalizes shape's columns, in sorted order,
// into a kanren.Fingerprint via kanren.ComputeFingerprint.
func relationFingerprint(s *kanren.Substitution, relationIdentifier string, shape map[string]kanren.Term) kanren.Fingerprint {
	cols := make([]string, 0, len(shape))
	for col := range shape {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	args := make([]kanren.Term, len(cols))
	for i, col := range cols {
		args[i] = shape[col]
	}
	return kanren.ComputeFingerprint(s, relationIdentifier, args)
}

// classifyMerge reports whether sib is a merge-compatible sibling
// (spec.md §4.H(c)): cache-compatible, with exactly the same set of
// query columns, and every column either bound to the identical
// variable on both sides or the identical ground value on both sides.
func classifyMerge(s *kanren.Substitution, relationIdentifier string, ours map[string]kanren.Term, sib siblingShape) (bool, SiblingReason) {
	if sib.relationIdentifier != relationIdentifier {
		return false, ReasonDifferentRelation
	}
	if len(ours) != len(sib.shape) {
		return false, ReasonTermToVar
	}
	// Fingerprints abstract away concrete Var identity, so equal
	// fingerprints don't by themselves prove merge-compatibility (the
	// column loop below still confirms literal variable/value equality).
	// But unequal fingerprints do prove it: a differing bound value or a
	// differing bound/free split on some column rules out merging
	// without walking every column.
	if relationFingerprint(s, relationIdentifier, ours) != relationFingerprint(s, relationIdentifier, sib.shape) {
		return false, ReasonValueNotMatch
	}
	for col, oursTerm := range ours {
		sibTerm, present := sib.shape[col]
		if !present {
			return false, ReasonTermToVar
		}
		oursWalked := s.Walk(oursTerm)
		sibWalked := s.Walk(sibTerm)
		oursIsVar := oursWalked.IsVar()
		sibIsVar := sibWalked.IsVar()

		switch {
		case oursIsVar && sibIsVar:
			if oursWalked.(*kanren.Var).ID() != sibWalked.(*kanren.Var).ID() {
				return false, ReasonTermToVar
			}
		case !oursIsVar && !sibIsVar:
			if !groundEqual(oursWalked, sibWalked) {
				return false, ReasonValueNotMatch
			}
		case !oursIsVar && sibIsVar:
			return false, ReasonTermToVar
		default:
			return false, ReasonVarToTerm
		}
	}
	return true, ""
}

// unionColumns returns the sorted union of every key across shapes.
func unionColumns(shapes ...map[string]kanren.Term) []string {
	seen := make(map[string]struct{})
	for _, shape := range shapes {
		for col := range shape {
			seen[col] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for col := range seen {
		out = append(out, col)
	}
	sort.Strings(out)
	return out
}

// buildWhereConditions turns a column->distinct-ground-values map into
// WhereConditions: a single value becomes eq, multiple become in
// (spec.md §4.H(3e)). Columns and values are sorted for deterministic
// output.
func buildWhereConditions(whereClauses map[string][]interface{}) []WhereCondition {
	cols := make([]string, 0, len(whereClauses))
	for col := range whereClauses {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	out := make([]WhereCondition, 0, len(cols))
	for _, col := range cols {
		values := whereClauses[col]
		if len(values) == 1 {
			out = append(out, WhereCondition{Column: col, Operator: OpEq, Value: values[0]})
			continue
		}
		out = append(out, WhereCondition{Column: col, Operator: OpIn, Values: values})
	}
	return out
}
