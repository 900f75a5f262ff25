package kanren

import "fmt"

// Fingerprint is a canonicalized, variable-identity-abstracted view of
// a goal's query shape: two goals that differ only in which concrete
// Var ids they happen to hold, but agree on relation and on which
// argument positions are bound vs. free vs. bound-to-the-same-variable-
// as-another-position, produce the same Fingerprint. The relation
// engine uses it only as a fast reject when classifying merge
// siblings: unequal fingerprints rule a sibling out, while equal ones
// still go through the column-by-column check (adapted from the
// teacher's SLG call-pattern canonicalization).
type Fingerprint string

// Shape describes one argument position of a goal's call for
// fingerprinting purposes: either bound to a ground term (Value holds
// its printed form) or free (Slot holds the position of the first
// occurrence of that same variable elsewhere in the call, or its own
// position if this is the first occurrence).
type Shape struct {
	Bound bool
	Value string
	Slot  int
}

// ComputeFingerprint canonicalizes relationIdentifier plus args (the walked
// argument terms of a goal's call) into a Fingerprint. Two calls to
// the same relation with the same bound/free pattern and the same
// variable-sharing pattern between free positions produce an equal
// Fingerprint regardless of the actual Var ids involved.
func ComputeFingerprint(s *Substitution, relationIdentifier string, args []Term) Fingerprint {
	firstSlot := make(map[int64]int)
	shapes := make([]Shape, len(args))

	for i, a := range args {
		walked := s.Walk(a)
		if v, ok := walked.(*Var); ok {
			slot, seen := firstSlot[v.id]
			if !seen {
				slot = i
				firstSlot[v.id] = i
			}
			shapes[i] = Shape{Bound: false, Slot: slot}
			continue
		}
		shapes[i] = Shape{Bound: true, Value: s.DeepWalk(walked).String()}
	}

	out := relationIdentifier
	for _, sh := range shapes {
		if sh.Bound {
			out += fmt.Sprintf("|b:%s", sh.Value)
		} else {
			out += fmt.Sprintf("|f:%d", sh.Slot)
		}
	}
	return Fingerprint(out)
}

// CacheManager reads and writes a substitution's ROW_CACHE slot
// (spec.md §4.G). The cache is substitution-scoped, not global: its
// lifetime is exactly the lifetime of the substitution lineage that
// installed it, so there is no separate cache-eviction mechanism to
// maintain.
type CacheManager struct{}

// NewCacheManager returns a CacheManager. It carries no state of its
// own — all state lives in the Substitution passed to Get/Set.
func NewCacheManager() *CacheManager { return &CacheManager{} }

// Get returns the cached rows for goalID under s, if present. It never
// mutates s.
func (CacheManager) Get(s *Substitution, goalID uint64) (CacheEntry, bool) {
	return s.CacheGet(goalID)
}

// Set returns a new substitution with rows recorded for goalID at
// timestamp, originating from originGoalID (which may equal goalID
// when this goal executed the query itself, or differ when it is
// adopting a merge-compatible sibling's results).
func (CacheManager) Set(s *Substitution, goalID uint64, rows interface{}, timestamp int64, originGoalID uint64) *Substitution {
	return s.WithCacheEntry(goalID, CacheEntry{Rows: rows, Timestamp: timestamp, OriginGoalID: originGoalID})
}

// ClearByGoalID is a documented no-op: because the cache lives inside
// the substitution lineage rather than in global storage, there is
// nothing to evict independently of that lineage ending (see
// SPEC_FULL.md's Decided Open Questions). It is kept as an explicit
// method so callers migrating from a global-cache mental model have
// somewhere to call that makes the scoping decision visible rather
// than silently doing nothing by omission.
func (CacheManager) ClearByGoalID(s *Substitution, goalID uint64) *Substitution {
	return s
}
