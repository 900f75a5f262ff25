package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokando/relquery/pkg/relation"
)

func seedUsers() *Store {
	s := New()
	s.Insert("users", relation.DataRow{"id": 1, "name": "alice", "age": 30})
	s.Insert("users", relation.DataRow{"id": 2, "name": "bob", "age": 25})
	s.Insert("users", relation.DataRow{"id": 3, "name": "carol", "age": 40})
	return s
}

func TestExecuteQueryEq(t *testing.T) {
	s := seedUsers()
	rows, err := s.ExecuteQuery(context.Background(), relation.QueryParams{
		RelationIdentifier: "users",
		WhereConditions:    []relation.WhereCondition{{Column: "id", Operator: relation.OpEq, Value: 2}},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "bob", rows[0]["name"])
}

func TestExecuteQueryIn(t *testing.T) {
	s := seedUsers()
	rows, err := s.ExecuteQuery(context.Background(), relation.QueryParams{
		RelationIdentifier: "users",
		WhereConditions:    []relation.WhereCondition{{Column: "id", Operator: relation.OpIn, Values: []interface{}{1, 3}}},
	})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestExecuteQueryRangeOperator(t *testing.T) {
	s := seedUsers()
	rows, err := s.ExecuteQuery(context.Background(), relation.QueryParams{
		RelationIdentifier: "users",
		WhereConditions:    []relation.WhereCondition{{Column: "age", Operator: relation.OpGte, Value: 30}},
	})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestExecuteQueryProjectsSelectColumns(t *testing.T) {
	s := seedUsers()
	rows, err := s.ExecuteQuery(context.Background(), relation.QueryParams{
		RelationIdentifier: "users",
		SelectColumns:      []string{"name"},
		WhereConditions:    []relation.WhereCondition{{Column: "id", Operator: relation.OpEq, Value: 1}},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, relation.DataRow{"name": "alice"}, rows[0])
}

func TestExecuteQueryUnknownRelationIsPermanentError(t *testing.T) {
	s := New()
	_, err := s.ExecuteQuery(context.Background(), relation.QueryParams{RelationIdentifier: "ghosts"})
	assert.ErrorIs(t, err, relation.ErrStorePermanent)
}

func TestExecuteQueryLimitAndOffset(t *testing.T) {
	s := seedUsers()
	limit := 1
	offset := 1
	rows, err := s.ExecuteQuery(context.Background(), relation.QueryParams{
		RelationIdentifier: "users",
		Limit:              &limit,
		Offset:             &offset,
	})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestLikeMatch(t *testing.T) {
	cases := []struct {
		s, pattern string
		want       bool
	}{
		{"alice", "al%", true},
		{"alice", "%ice", true},
		{"alice", "%lic%", true},
		{"alice", "bob", false},
		{"alice", "alice", true},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, likeMatch(c.s, c.pattern), "likeMatch(%q, %q)", c.s, c.pattern)
	}
}

func TestGetColumns(t *testing.T) {
	s := seedUsers()
	cols, err := s.GetColumns("users")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"id", "name", "age"}, cols)
}
