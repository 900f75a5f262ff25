package relation

import (
	"context"
	"time"

	"github.com/gokando/relquery/pkg/kanren"
)

// Relation projects one external tabular source into a kanren.Goal
// factory: every call to Build registers a new goal against the
// shared registry and returns a Goal that batches, plans, executes,
// and distributes rows for that call site (spec.md §4.H).
type Relation struct {
	store              DataStore
	relationIdentifier string
	config             AbstractRelationConfig
	options            RelationOptions
	registry           *kanren.Registry
}

// New constructs a Relation over store. It fails fast with
// ErrConfigInvalid rather than letting a malformed config surface as a
// mysterious goal-time failure.
func New(store DataStore, relationIdentifier string, config AbstractRelationConfig, options RelationOptions, registry *kanren.Registry) (*Relation, error) {
	if store == nil {
		return nil, ErrConfigInvalid
	}
	if relationIdentifier == "" {
		return nil, ErrConfigInvalid
	}
	if config.BatchSize <= 0 {
		return nil, ErrConfigInvalid
	}
	if config.DebounceMs < 0 {
		return nil, ErrConfigInvalid
	}
	if config.EnableCaching && config.CacheManager == nil {
		config.CacheManager = kanren.NewCacheManager()
	}
	if registry == nil {
		registry = kanren.NewRegistry()
	}
	return &Relation{
		store:              store,
		relationIdentifier: relationIdentifier,
		config:             config,
		options:            options,
		registry:           registry,
	}, nil
}

// Registry returns the registry this relation registers goals
// against, so a query frontend can seed GROUP_ALL from the ids Build
// hands back.
func (r *Relation) Registry() *kanren.Registry { return r.registry }

// Build registers a call site (queryShape: column name -> the Term
// that column is unified against) as a new goal and returns both the
// Goal and its assigned id. Registration happens at construction time,
// not on first stream pull, so that a sibling call site built earlier
// in the same query can already see this one in GROUP_ALL (spec.md
// §4.F/§4.H).
func (r *Relation) Build(queryShape map[string]kanren.Term) (kanren.Goal, uint64) {
	goalID := r.registry.Register(r.relationIdentifier, queryShape, r.options)
	return r.goal(goalID, queryShape), goalID
}

// RelSym builds a goal for a symmetric relation: one whose two named
// columns, col1 and col2, hold interchangeably (an "adjacent" or
// "connected" table is the canonical example). It is the union of the
// ordinary goal and the goal with col1/col2 swapped in queryShape.
func (r *Relation) RelSym(queryShape map[string]kanren.Term, col1, col2 string) (kanren.Goal, []uint64) {
	forward, id1 := r.Build(queryShape)
	swapped := make(map[string]kanren.Term, len(queryShape))
	for k, v := range queryShape {
		swapped[k] = v
	}
	if v1, ok := queryShape[col1]; ok {
		swapped[col2] = v1
	} else {
		delete(swapped, col2)
	}
	if v2, ok := queryShape[col2]; ok {
		swapped[col1] = v2
	} else {
		delete(swapped, col1)
	}
	backward, id2 := r.Build(swapped)
	return kanren.Or(forward, backward), []uint64{id1, id2}
}

// goal builds the Goal for one registered call site. The returned
// Goal runs a dedicated goroutine per invocation (per spec.md's
// stream-to-stream Goal contract, a goal must be able to observe the
// whole input stream, not just one substitution at a time, precisely
// so it can batch across substitutions) implementing the state
// machine Idle -> Batching -> Flushing -> Completing -> Done, with a
// transition to Cancelled from any state on ctx cancellation.
func (r *Relation) goal(goalID uint64, queryShape map[string]kanren.Term) kanren.Goal {
	return func(ctx context.Context, in *kanren.Stream) *kanren.Stream {
		out := make(chan *kanren.Substitution)
		go r.run(ctx, goalID, queryShape, in, out)
		return channelToStream(ctx, out)
	}
}

// run is the goal's driver loop: Idle, pulling from in on its own
// goroutine so a slow upstream never blocks an already-pending flush
// timer; Batching, accumulating substitutions that miss the immediate
// cache probe; Flushing, whenever batchSize, the debounce timer, or
// upstream exhaustion fires; Completing/Done once in is exhausted and
// the final flush has drained.
func (r *Relation) run(ctx context.Context, goalID uint64, queryShape map[string]kanren.Term, in *kanren.Stream, out chan<- *kanren.Substitution) {
	defer close(out)

	items := make(chan *kanren.Substitution)
	go func() {
		defer close(items)
		for {
			v, ok := in.Next()
			if !ok {
				return
			}
			select {
			case items <- v:
			case <-ctx.Done():
				return
			}
		}
	}()

	var batch []*kanren.Substitution
	debounce := time.Duration(r.config.DebounceMs) * time.Millisecond
	var timer *time.Timer
	var timerC <-chan time.Time

	stopTimer := func() {
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}
	armTimer := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			timerC = timer.C
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(debounce)
	}
	flush := func() {
		if len(batch) == 0 {
			return
		}
		r.flush(ctx, goalID, queryShape, batch, out)
		batch = nil
		stopTimer()
	}

	for {
		select {
		case v, ok := <-items:
			if !ok {
				flush()
				return
			}
			if r.config.EnableCaching && r.tryCacheHit(ctx, goalID, queryShape, v, out) {
				continue
			}
			batch = append(batch, v)
			if len(batch) >= r.config.BatchSize {
				flush()
				continue
			}
			armTimer()
		case <-timerC:
			flush()
		case <-ctx.Done():
			return
		}
	}
}

// tryCacheHit serves v immediately from its own ROW_CACHE entry for
// goalID, if one is present (spec.md §4.G: a cache hit bypasses
// batching entirely). It reports whether it handled v.
func (r *Relation) tryCacheHit(ctx context.Context, goalID uint64, queryShape map[string]kanren.Term, s *kanren.Substitution, out chan<- *kanren.Substitution) bool {
	entry, ok := r.config.CacheManager.Get(s, goalID)
	if !ok {
		return false
	}
	rows, ok := entry.Rows.([]DataRow)
	if !ok {
		return false
	}
	r.distribute(ctx, []*kanren.Substitution{s}, queryShape, rows, nil, out)
	return true
}

// flush plans and executes one query covering every substitution in
// batch, discovers merge- and cache-compatible siblings from the
// representative substitution's GROUP_ALL, and distributes rows back
// to every batched substitution independently (spec.md §4.H).
func (r *Relation) flush(ctx context.Context, goalID uint64, queryShape map[string]kanren.Term, batch []*kanren.Substitution, out chan<- *kanren.Substitution) {
	representative := batch[0]

	var mergeSiblings, cacheSiblings []siblingShape
	if r.config.EnableQueryMerging || r.config.EnableCaching {
		for _, sib := range discoverSiblings(r.registry, goalID, r.relationIdentifier, representative) {
			if r.config.EnableQueryMerging {
				if ok, _ := classifyMerge(representative, r.relationIdentifier, queryShape, sib); ok {
					mergeSiblings = append(mergeSiblings, sib)
					continue
				}
			}
			if r.config.EnableCaching {
				if ok, _ := classifyCache(representative, r.relationIdentifier, queryShape, sib); ok {
					cacheSiblings = append(cacheSiblings, sib)
				}
			}
		}
	}

	shapes := []map[string]kanren.Term{queryShape}
	for _, sib := range mergeSiblings {
		shapes = append(shapes, sib.shape)
	}
	for _, sib := range cacheSiblings {
		shapes = append(shapes, sib.shape)
	}
	selectColumns := unionColumns(shapes...)

	whereClauses := make(map[string][]interface{})
	seenValues := make(map[string]map[interface{}]struct{})
	for col, term := range queryShape {
		for _, s := range batch {
			walked := s.Walk(term)
			if walked.IsVar() {
				continue
			}
			atom, ok := walked.(*kanren.Atom)
			if !ok {
				continue
			}
			val := atom.Value()
			if seenValues[col] == nil {
				seenValues[col] = make(map[interface{}]struct{})
			}
			if _, dup := seenValues[col][val]; dup {
				continue
			}
			seenValues[col][val] = struct{}{}
			whereClauses[col] = append(whereClauses[col], val)
		}
	}

	params := QueryParams{
		RelationIdentifier: r.relationIdentifier,
		SelectColumns:      selectColumns,
		WhereConditions:    buildWhereConditions(whereClauses),
		Limit:              r.options.Limit,
		Offset:             r.options.Offset,
		Options:            r.options,
		GoalID:             goalID,
	}

	rows, err := r.store.ExecuteQuery(ctx, params)
	if err != nil {
		if r.config.ErrorSink != nil {
			r.config.ErrorSink(goalID, r.relationIdentifier, err)
		}
		return
	}

	mergeIDs := make([]uint64, len(mergeSiblings))
	for i, sib := range mergeSiblings {
		mergeIDs[i] = sib.goalID
	}
	cacheIDs := make([]uint64, len(cacheSiblings))
	for i, sib := range cacheSiblings {
		cacheIDs[i] = sib.goalID
	}

	r.distribute(ctx, batch, queryShape, rows, append(mergeIDs, cacheIDs...), out)
}

// distribute independently unifies each row in rows against every
// substitution in subs under queryShape, emitting one result
// substitution per successful (subs[i], row) pair. If cacheForIDs is
// non-empty and caching is enabled, every emitted substitution also
// carries a ROW_CACHE entry for each id in cacheForIDs so a sibling
// goal sharing that substitution lineage can serve from cache instead
// of querying. A substitution with no matching row emits nothing.
func (r *Relation) distribute(ctx context.Context, subs []*kanren.Substitution, queryShape map[string]kanren.Term, rows []DataRow, cacheForIDs []uint64, out chan<- *kanren.Substitution) {
	for _, s := range subs {
		select {
		case <-ctx.Done():
			return
		default:
		}

		for _, row := range rows {
			cur, ok := unifyRow(s, queryShape, row)
			if !ok {
				continue
			}
			if r.config.EnableCaching {
				now := time.Now().UnixNano()
				for _, id := range cacheForIDs {
					cur = r.config.CacheManager.Set(cur, id, rows, now, 0)
				}
			}
			select {
			case out <- cur:
			case <-ctx.Done():
				return
			}
		}
	}
}

// unifyRow unifies every column queryShape names against row's value
// for that column, threading the substitution through so later columns
// see earlier bindings.
func unifyRow(s *kanren.Substitution, queryShape map[string]kanren.Term, row DataRow) (*kanren.Substitution, bool) {
	cur := s
	for col, term := range queryShape {
		val, present := row[col]
		if !present {
			return nil, false
		}
		next, ok := kanren.Unify(term, kanren.NewAtom(val), cur)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// channelToStream adapts a push-based channel into a kanren.Stream.
func channelToStream(ctx context.Context, ch <-chan *kanren.Substitution) *kanren.Stream {
	return kanren.Of(func() (*kanren.Substitution, bool) {
		select {
		case v, ok := <-ch:
			return v, ok
		case <-ctx.Done():
			return nil, false
		}
	})
}
