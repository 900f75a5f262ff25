package relation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokando/relquery/pkg/kanren"
)

// recordingStore is a DataStore fake that serves rows out of an
// in-memory table and counts how many times ExecuteQuery was called,
// so tests can assert on batching/merging/caching behavior rather than
// just final results.
type recordingStore struct {
	mu    sync.Mutex
	rows  []DataRow
	calls []QueryParams
}

func newRecordingStore(rows ...DataRow) *recordingStore {
	return &recordingStore{rows: rows}
}

func (s *recordingStore) Type() string { return "memory" }

func (s *recordingStore) ExecuteQuery(ctx context.Context, params QueryParams) ([]DataRow, error) {
	s.mu.Lock()
	s.calls = append(s.calls, params)
	s.mu.Unlock()

	var out []DataRow
	for _, row := range s.rows {
		if matchesWhere(row, params.WhereConditions) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *recordingStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func matchesWhere(row DataRow, conds []WhereCondition) bool {
	for _, c := range conds {
		val, ok := row[c.Column]
		if !ok {
			return false
		}
		switch c.Operator {
		case OpEq:
			if val != c.Value {
				return false
			}
		case OpIn:
			found := false
			for _, v := range c.Values {
				if v == val {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	return true
}

func fastConfig() AbstractRelationConfig {
	cfg := DefaultSQLConfig()
	cfg.BatchSize = 10
	cfg.DebounceMs = 20
	return cfg
}

func TestBuildRegistersAndReturnsGoal(t *testing.T) {
	store := newRecordingStore(DataRow{"id": 1, "name": "alice"})
	rel, err := New(store, "users", fastConfig(), RelationOptions{}, kanren.NewRegistry())
	require.NoError(t, err)

	id := kanren.Fresh("id")
	name := kanren.Fresh("name")
	goal, goalID := rel.Build(map[string]kanren.Term{"id": id, "name": name})
	assert.NotZero(t, goalID)

	results := kanren.RunN(context.Background(), 5, goal)
	require.Len(t, results, 1)
	assert.True(t, results[0].Walk(name).Equal(kanren.NewAtom("alice")))
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	store := newRecordingStore()
	_, err := New(store, "users", AbstractRelationConfig{BatchSize: 0}, RelationOptions{}, kanren.NewRegistry())
	assert.ErrorIs(t, err, ErrConfigInvalid)

	_, err = New(nil, "users", fastConfig(), RelationOptions{}, kanren.NewRegistry())
	assert.ErrorIs(t, err, ErrConfigInvalid)

	_, err = New(store, "", fastConfig(), RelationOptions{}, kanren.NewRegistry())
	assert.ErrorIs(t, err, ErrConfigInvalid)
}

// TestBatchedQueryIssuesOneCall drives N input substitutions with
// distinct ids through the same goal and asserts the backend only saw
// one ExecuteQuery call covering all of them (spec.md §8's "batched
// SQL-like relation" scenario).
func TestBatchedQueryIssuesOneCall(t *testing.T) {
	store := newRecordingStore(
		DataRow{"id": 1, "name": "alice"},
		DataRow{"id": 2, "name": "bob"},
		DataRow{"id": 3, "name": "carol"},
	)
	cfg := fastConfig()
	cfg.BatchSize = 10
	cfg.DebounceMs = 30
	rel, err := New(store, "users", cfg, RelationOptions{}, kanren.NewRegistry())
	require.NoError(t, err)

	nameVar := kanren.Fresh("name")
	idVar := kanren.Fresh("id")
	goal, _ := rel.Build(map[string]kanren.Term{"id": idVar, "name": nameVar})

	// Build one input substitution per id by unifying a shared id var
	// across three independent substitutions, each binding id
	// differently, fed through the same goal invocation.

	var subs []*kanren.Substitution
	for _, id := range []int{1, 2, 3} {
		s, ok := kanren.Unify(idVar, kanren.NewAtom(id), kanren.EmptySubstitution())
		require.True(t, ok)
		subs = append(subs, s)
	}

	ctx := context.Background()
	results := goal(ctx, kanren.From(subs...)).ToSlice()

	require.Len(t, results, 3)
	assert.Equal(t, 1, store.callCount())
}

// TestCacheSharingBetweenSiblings exercises spec.md §8's "cache
// sharing between siblings" scenario: two goals over the same relation
// and the same query shape, run inside the same conjunction so they
// share GROUP_ALL, should see the backend hit only once even though
// both query the relation.
func TestCacheSharingBetweenSiblings(t *testing.T) {
	store := newRecordingStore(DataRow{"id": 1, "name": "alice"})
	cfg := fastConfig()
	registry := kanren.NewRegistry()
	rel, err := New(store, "users", cfg, RelationOptions{}, registry)
	require.NoError(t, err)

	idVar := kanren.Fresh("id")
	name1 := kanren.Fresh("name1")
	name2 := kanren.Fresh("name2")

	goalA, idA := rel.Build(map[string]kanren.Term{"id": idVar, "name": name1})
	goalB, idB := rel.Build(map[string]kanren.Term{"id": idVar, "name": name2})

	groupAll := kanren.NewGoalIDSet(idA, idB)
	seed := kanren.EmptySubstitution().WithGroupAll(groupAll)
	seed, ok := kanren.Unify(idVar, kanren.NewAtom(1), seed)
	require.True(t, ok)

	combined := kanren.And(goalA, goalB)
	results := combined(context.Background(), kanren.From(seed)).ToSlice()

	require.Len(t, results, 1)
	assert.Equal(t, 1, store.callCount(), "goalB should have been served from cache populated by goalA's flush")
}

func TestDebounceFlushesWithoutReachingBatchSize(t *testing.T) {
	store := newRecordingStore(DataRow{"id": 1, "name": "alice"})
	cfg := fastConfig()
	cfg.BatchSize = 100
	cfg.DebounceMs = 10
	rel, err := New(store, "users", cfg, RelationOptions{}, kanren.NewRegistry())
	require.NoError(t, err)

	idVar := kanren.Fresh("id")
	nameVar := kanren.Fresh("name")
	goal, _ := rel.Build(map[string]kanren.Term{"id": idVar, "name": nameVar})

	s, ok := kanren.Unify(idVar, kanren.NewAtom(1), kanren.EmptySubstitution())
	require.True(t, ok)

	start := time.Now()
	results := goal(context.Background(), kanren.From(s)).ToSlice()
	elapsed := time.Since(start)

	require.Len(t, results, 1)
	assert.Less(t, elapsed, 500*time.Millisecond)
}

func TestNoMatchingRowEmitsNothingForThatSubstitution(t *testing.T) {
	store := newRecordingStore(DataRow{"id": 1, "name": "alice"})
	rel, err := New(store, "users", fastConfig(), RelationOptions{}, kanren.NewRegistry())
	require.NoError(t, err)

	idVar := kanren.Fresh("id")
	nameVar := kanren.Fresh("name")
	goal, _ := rel.Build(map[string]kanren.Term{"id": idVar, "name": nameVar})

	s, ok := kanren.Unify(idVar, kanren.NewAtom(999), kanren.EmptySubstitution())
	require.True(t, ok)

	results := goal(context.Background(), kanren.From(s)).ToSlice()
	assert.Empty(t, results)
}

func TestErrorSinkReceivesStoreError(t *testing.T) {
	boom := &erroringStore{}
	var gotErr error
	var mu sync.Mutex
	cfg := fastConfig()
	cfg.ErrorSink = func(goalID uint64, relationIdentifier string, err error) {
		mu.Lock()
		gotErr = err
		mu.Unlock()
	}
	rel, err := New(boom, "users", cfg, RelationOptions{}, kanren.NewRegistry())
	require.NoError(t, err)

	idVar := kanren.Fresh("id")
	goal, _ := rel.Build(map[string]kanren.Term{"id": idVar})
	s, ok := kanren.Unify(idVar, kanren.NewAtom(1), kanren.EmptySubstitution())
	require.True(t, ok)

	results := goal(context.Background(), kanren.From(s)).ToSlice()
	assert.Empty(t, results)

	mu.Lock()
	defer mu.Unlock()
	assert.ErrorIs(t, gotErr, ErrStoreTransient)
}

type erroringStore struct{}

func (erroringStore) Type() string { return "memory" }
func (erroringStore) ExecuteQuery(ctx context.Context, params QueryParams) ([]DataRow, error) {
	return nil, TransientError(assert.AnError)
}

// TestRelationOptionsLimitAndOffsetReachQueryParams exercises spec.md
// §4.H.3.e end to end through the engine: a relation built with
// RelationOptions.Limit/Offset set must carry them on every flushed
// QueryParams, not just when a store sets them directly.
func TestRelationOptionsLimitAndOffsetReachQueryParams(t *testing.T) {
	store := newRecordingStore(DataRow{"id": 1, "name": "alice"})
	limit, offset := 5, 10
	rel, err := New(store, "users", fastConfig(), RelationOptions{Limit: &limit, Offset: &offset}, kanren.NewRegistry())
	require.NoError(t, err)

	idVar := kanren.Fresh("id")
	nameVar := kanren.Fresh("name")
	goal, _ := rel.Build(map[string]kanren.Term{"id": idVar, "name": nameVar})

	s, ok := kanren.Unify(idVar, kanren.NewAtom(1), kanren.EmptySubstitution())
	require.True(t, ok)

	goal(context.Background(), kanren.From(s)).ToSlice()

	require.Len(t, store.calls, 1)
	require.NotNil(t, store.calls[0].Limit)
	require.NotNil(t, store.calls[0].Offset)
	assert.Equal(t, 5, *store.calls[0].Limit)
	assert.Equal(t, 10, *store.calls[0].Offset)
}

func TestRelSymUnionsBothDirections(t *testing.T) {
	store := newRecordingStore(
		DataRow{"a": "x", "b": "y"},
	)
	rel, err := New(store, "edges", fastConfig(), RelationOptions{}, kanren.NewRegistry())
	require.NoError(t, err)

	left := kanren.Fresh("left")
	right := kanren.Fresh("right")
	goal, ids := rel.RelSym(map[string]kanren.Term{"a": left, "b": right}, "a", "b")
	require.Len(t, ids, 2)

	s, ok := kanren.Unify(left, kanren.NewAtom("y"), kanren.EmptySubstitution())
	require.True(t, ok)

	results := goal(context.Background(), kanren.From(s)).ToSlice()
	require.Len(t, results, 1)
	assert.True(t, results[0].Walk(right).Equal(kanren.NewAtom("x")))
}
