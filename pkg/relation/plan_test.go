package relation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokando/relquery/pkg/kanren"
)

// TestClassifyMerge exercises spec.md §4.H(c)'s merge-compatibility
// rule: same relation, same column set, every column bound to the
// identical variable or the identical ground value on both sides.
func TestClassifyMerge(t *testing.T) {
	s := kanren.EmptySubstitution()
	idVar := kanren.Fresh("id")

	t.Run("same variable both sides is merge-compatible", func(t *testing.T) {
		ours := map[string]kanren.Term{"id": idVar}
		sib := siblingShape{relationIdentifier: "users", shape: map[string]kanren.Term{"id": idVar}}
		ok, reason := classifyMerge(s, "users", ours, sib)
		assert.True(t, ok)
		assert.Empty(t, reason)
	})

	t.Run("same ground value both sides is merge-compatible", func(t *testing.T) {
		ours := map[string]kanren.Term{"id": kanren.NewAtom(1)}
		sib := siblingShape{relationIdentifier: "users", shape: map[string]kanren.Term{"id": kanren.NewAtom(1)}}
		ok, _ := classifyMerge(s, "users", ours, sib)
		assert.True(t, ok)
	})

	t.Run("different relation rejects with different_relation", func(t *testing.T) {
		ours := map[string]kanren.Term{"id": idVar}
		sib := siblingShape{relationIdentifier: "posts", shape: map[string]kanren.Term{"id": idVar}}
		ok, reason := classifyMerge(s, "users", ours, sib)
		assert.False(t, ok)
		assert.Equal(t, ReasonDifferentRelation, reason)
	})

	t.Run("different variable on a shared column rejects", func(t *testing.T) {
		other := kanren.Fresh("id2")
		ours := map[string]kanren.Term{"id": idVar}
		sib := siblingShape{relationIdentifier: "users", shape: map[string]kanren.Term{"id": other}}
		ok, reason := classifyMerge(s, "users", ours, sib)
		assert.False(t, ok)
		assert.Equal(t, ReasonTermToVar, reason)
	})

	t.Run("differing ground values on a shared column rejects", func(t *testing.T) {
		ours := map[string]kanren.Term{"id": kanren.NewAtom(1)}
		sib := siblingShape{relationIdentifier: "users", shape: map[string]kanren.Term{"id": kanren.NewAtom(2)}}
		ok, reason := classifyMerge(s, "users", ours, sib)
		assert.False(t, ok)
		assert.Equal(t, ReasonValueNotMatch, reason)
	})

	t.Run("differing column sets reject", func(t *testing.T) {
		ours := map[string]kanren.Term{"id": idVar, "name": kanren.Fresh("name")}
		sib := siblingShape{relationIdentifier: "users", shape: map[string]kanren.Term{"id": idVar}}
		ok, reason := classifyMerge(s, "users", ours, sib)
		assert.False(t, ok)
		assert.Equal(t, ReasonTermToVar, reason)
	})
}

// TestClassifyCache exercises spec.md §4.H(c)'s looser cache-
// compatibility rule: ground-vs-free on a shared column is fine when
// ours is the ground side (the sibling's wider rows still cover us),
// but fails the other way around.
func TestClassifyCache(t *testing.T) {
	s := kanren.EmptySubstitution()

	t.Run("ours ground, sibling free is cache-compatible", func(t *testing.T) {
		ours := map[string]kanren.Term{"id": kanren.NewAtom(1)}
		sib := siblingShape{relationIdentifier: "users", shape: map[string]kanren.Term{"id": kanren.Fresh("id")}}
		ok, _ := classifyCache(s, "users", ours, sib)
		assert.True(t, ok)
	})

	t.Run("ours free, sibling ground is not cache-compatible", func(t *testing.T) {
		ours := map[string]kanren.Term{"id": kanren.Fresh("id")}
		sib := siblingShape{relationIdentifier: "users", shape: map[string]kanren.Term{"id": kanren.NewAtom(1)}}
		ok, reason := classifyCache(s, "users", ours, sib)
		assert.False(t, ok)
		assert.Equal(t, ReasonVarToTerm, reason)
	})

	t.Run("both ground but different values is not cache-compatible", func(t *testing.T) {
		ours := map[string]kanren.Term{"id": kanren.NewAtom(1)}
		sib := siblingShape{relationIdentifier: "users", shape: map[string]kanren.Term{"id": kanren.NewAtom(2)}}
		ok, reason := classifyCache(s, "users", ours, sib)
		assert.False(t, ok)
		assert.Equal(t, ReasonValueNotMatch, reason)
	})

	t.Run("column absent on one side is ignored", func(t *testing.T) {
		ours := map[string]kanren.Term{"id": kanren.NewAtom(1), "extra": kanren.NewAtom("x")}
		sib := siblingShape{relationIdentifier: "users", shape: map[string]kanren.Term{"id": kanren.NewAtom(1)}}
		ok, _ := classifyCache(s, "users", ours, sib)
		assert.True(t, ok)
	})
}

func TestUnionColumns(t *testing.T) {
	a := map[string]kanren.Term{"id": kanren.Fresh("id"), "name": kanren.Fresh("name")}
	b := map[string]kanren.Term{"name": kanren.Fresh("name"), "email": kanren.Fresh("email")}
	require.Equal(t, []string{"email", "id", "name"}, unionColumns(a, b))
}

func TestBuildWhereConditions(t *testing.T) {
	conds := buildWhereConditions(map[string][]interface{}{
		"id":   {1, 2, 3},
		"name": {"alice"},
	})
	require.Len(t, conds, 2)
	assert.Equal(t, "id", conds[0].Column)
	assert.Equal(t, OpIn, conds[0].Operator)
	assert.Equal(t, []interface{}{1, 2, 3}, conds[0].Values)
	assert.Equal(t, "name", conds[1].Column)
	assert.Equal(t, OpEq, conds[1].Operator)
	assert.Equal(t, "alice", conds[1].Value)
}
