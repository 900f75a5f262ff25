package kanren

// Substitution is an immutable, persistent variable->term mapping. It
// also carries sentinel-keyed metadata (suspended constraints, sibling
// goal groups, the row cache) alongside ordinary variable bindings, per
// the data model in spec.md §3.
//
// Substitutions are never mutated after construction: every mutating
// operation (bindVar, WithSuspended, WithGroupAll, ...) returns a new
// Substitution that structurally shares the unchanged parts of the old
// one. This is what lets both branches of Or fork a substitution
// safely and what lets a row cache entry simply ride along inside
// whichever substitution lineage installed it — no separate GC is
// needed, the entry is reclaimed exactly when the substitution is.
type Substitution struct {
	head *bindingNode
}

// bindingNode is one link in the persistent association list backing a
// Substitution. Prepending a node is O(1) and shares the existing tail,
// which is the structural-sharing property spec.md §9 calls for.
type bindingNode struct {
	key   any // int64 (variable id) or sentinelKey
	value any // Term for variable bindings; sentinel-specific otherwise
	next  *bindingNode
}

// sentinelKey identifies one of the reserved substitution-metadata slots
// from spec.md §3.
type sentinelKey string

const (
	sentinelSuspended sentinelKey = "SUSPENDED"
	sentinelGroupAll  sentinelKey = "GROUP_ALL"
	sentinelGroupConj sentinelKey = "GROUP_CONJ"
	sentinelRowCache  sentinelKey = "ROW_CACHE"
)

// EmptySubstitution returns a substitution with no bindings and no
// metadata — the starting point for evaluating a root goal.
func EmptySubstitution() *Substitution {
	return &Substitution{}
}

// lookup returns the raw value associated with key, and whether it was
// present. It does not interpret or walk the value.
func (s *Substitution) lookup(key any) (any, bool) {
	for n := s.head; n != nil; n = n.next {
		if n.key == key {
			return n.value, true
		}
	}
	return nil, false
}

// insert returns a new Substitution with key bound to value, shadowing
// any prior binding for key. The receiver is never modified.
func (s *Substitution) insert(key any, value any) *Substitution {
	return &Substitution{head: &bindingNode{key: key, value: value, next: s.head}}
}

// LookupVar returns the term directly bound to v, or nil if v is
// unbound. It does not follow chains of variable-to-variable bindings —
// use Walk for that.
func (s *Substitution) LookupVar(v *Var) Term {
	if val, ok := s.lookup(v.id); ok {
		return val.(Term)
	}
	return nil
}

// bindVar returns a new substitution binding v to t. The caller is
// responsible for having already performed the occurs-check (see
// unify.go) — bindVar itself performs no validation.
func (s *Substitution) bindVar(v *Var, t Term) *Substitution {
	return s.insert(v.id, t)
}

// Walk resolves term transitively through variable bindings, stopping
// at a ground term or an unbound variable (spec.md §4.A). It does not
// descend into Cons/Seq structure — use DeepWalk for that.
func (s *Substitution) Walk(term Term) Term {
	for {
		v, ok := term.(*Var)
		if !ok {
			return term
		}
		bound := s.LookupVar(v)
		if bound == nil {
			return term
		}
		term = bound
	}
}

// DeepWalk resolves term like Walk, and additionally walks into Cons
// and Seq structure so that every variable reachable from term is
// resolved to its current value.
func (s *Substitution) DeepWalk(term Term) Term {
	walked := s.Walk(term)
	switch t := walked.(type) {
	case *Cons:
		return &Cons{Head: s.DeepWalk(t.Head), Tail: s.DeepWalk(t.Tail)}
	case *Seq:
		elems := make([]Term, len(t.Elems))
		for i, e := range t.Elems {
			elems[i] = s.DeepWalk(e)
		}
		return &Seq{Elems: elems}
	default:
		return walked
	}
}

// --- GoalIDSet: the sibling-goal sets carried under GROUP_ALL/GROUP_CONJ ---

// GoalIDSet is an immutable set of goal ids.
type GoalIDSet struct {
	ids map[uint64]struct{}
}

// NewGoalIDSet builds a GoalIDSet containing ids.
func NewGoalIDSet(ids ...uint64) GoalIDSet {
	m := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return GoalIDSet{ids: m}
}

// Has reports whether id is a member.
func (g GoalIDSet) Has(id uint64) bool {
	_, ok := g.ids[id]
	return ok
}

// Union returns a new set containing the members of g and other.
func (g GoalIDSet) Union(other GoalIDSet) GoalIDSet {
	m := make(map[uint64]struct{}, len(g.ids)+len(other.ids))
	for id := range g.ids {
		m[id] = struct{}{}
	}
	for id := range other.ids {
		m[id] = struct{}{}
	}
	return GoalIDSet{ids: m}
}

// WithID returns a new set with id added.
func (g GoalIDSet) WithID(id uint64) GoalIDSet {
	m := make(map[uint64]struct{}, len(g.ids)+1)
	for existing := range g.ids {
		m[existing] = struct{}{}
	}
	m[id] = struct{}{}
	return GoalIDSet{ids: m}
}

// Members returns the set's ids in unspecified order.
func (g GoalIDSet) Members() []uint64 {
	out := make([]uint64, 0, len(g.ids))
	for id := range g.ids {
		out = append(out, id)
	}
	return out
}

// GroupAll returns the sibling-goal set reachable from the current
// conjunction (spec.md's resolved reading of the GROUP_ALL/GROUP_CONJ
// ambiguity — see SPEC_FULL.md's Decided Open Questions).
func (s *Substitution) GroupAll() GoalIDSet {
	if v, ok := s.lookup(sentinelGroupAll); ok {
		return v.(GoalIDSet)
	}
	return GoalIDSet{}
}

// WithGroupAll returns a new substitution with GROUP_ALL set to set.
func (s *Substitution) WithGroupAll(set GoalIDSet) *Substitution {
	return s.insert(sentinelGroupAll, set)
}

// GroupConj returns the set stored under GROUP_CONJ. And writes this
// slot on every substitution it passes on, but always with an empty
// set: no goal ids are added to it, so it does not list the
// conjunction's siblings. The relation engine does not read it (see
// SPEC_FULL.md's Decided Open Questions #1).
func (s *Substitution) GroupConj() GoalIDSet {
	if v, ok := s.lookup(sentinelGroupConj); ok {
		return v.(GoalIDSet)
	}
	return GoalIDSet{}
}

// WithGroupConj returns a new substitution with GROUP_CONJ set to set.
func (s *Substitution) WithGroupConj(set GoalIDSet) *Substitution {
	return s.insert(sentinelGroupConj, set)
}

// --- CacheEntry / ROW_CACHE ---

// CacheEntry is a cached result set for one goal, scoped to the
// substitution lineage that produced it (spec.md §3). Rows is kept as
// an opaque interface{} here (rather than a concrete row type) so that
// package kanren has no dependency on package relation's DataRow type;
// the relation engine type-asserts it back on read.
type CacheEntry struct {
	Rows         interface{}
	Timestamp    int64
	OriginGoalID uint64
}

// RowCache returns the goal-id -> CacheEntry map carried by this
// substitution. The returned map must not be mutated by the caller;
// use WithCacheEntry to derive an updated substitution.
func (s *Substitution) RowCache() map[uint64]CacheEntry {
	if v, ok := s.lookup(sentinelRowCache); ok {
		return v.(map[uint64]CacheEntry)
	}
	return nil
}

// CacheGet reads the cache entry for goalID, if any (spec.md §4.G:
// get never mutates).
func (s *Substitution) CacheGet(goalID uint64) (CacheEntry, bool) {
	cache := s.RowCache()
	if cache == nil {
		return CacheEntry{}, false
	}
	entry, ok := cache[goalID]
	return entry, ok
}

// WithCacheEntry returns a new substitution whose ROW_CACHE has entry
// recorded under goalID, leaving all other cache entries untouched.
func (s *Substitution) WithCacheEntry(goalID uint64, entry CacheEntry) *Substitution {
	old := s.RowCache()
	next := make(map[uint64]CacheEntry, len(old)+1)
	for k, v := range old {
		next[k] = v
	}
	next[goalID] = entry
	return s.insert(sentinelRowCache, next)
}

// --- SUSPENDED ---

// Suspended returns the ordered sequence of constraints currently
// suspended on this substitution.
func (s *Substitution) Suspended() []SuspendedConstraint {
	if v, ok := s.lookup(sentinelSuspended); ok {
		return v.([]SuspendedConstraint)
	}
	return nil
}

// WithSuspended returns a new substitution with its SUSPENDED list
// replaced by list.
func (s *Substitution) WithSuspended(list []SuspendedConstraint) *Substitution {
	return s.insert(sentinelSuspended, list)
}

// WithSuspendedAppended returns a new substitution with c appended to
// the current SUSPENDED list.
func (s *Substitution) WithSuspendedAppended(c SuspendedConstraint) *Substitution {
	cur := s.Suspended()
	next := make([]SuspendedConstraint, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, c)
	return s.WithSuspended(next)
}
