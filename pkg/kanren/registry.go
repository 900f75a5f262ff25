package kanren

import "sync"

// GoalRecord describes one registered data-backed goal: which
// relation it queries, the shape of that query, and whatever options
// the caller attached. The relation engine (package relation) consults
// the registry by id to find siblings and to log queries (spec.md §4.F).
type GoalRecord struct {
	ID                 uint64
	RelationIdentifier string
	QueryShape         interface{}
	Options            interface{}
}

// QueryLogEntry records one goal registration for later inspection —
// the registry's query log (spec.md §4.F).
type QueryLogEntry struct {
	GoalID             uint64
	RelationIdentifier string
	QueryShape         interface{}
}

// Registry hands out monotonically increasing goal ids and tracks the
// GoalRecord registered under each one, plus a log of every
// registration in order. It is the single shared bookkeeping point the
// relation engine uses to discover sibling goals (spec.md §4.F).
//
// A Registry is safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	nextID   uint64
	records  map[uint64]GoalRecord
	queryLog []QueryLogEntry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{records: make(map[uint64]GoalRecord)}
}

// Register assigns a fresh goal id, stores a GoalRecord under it, logs
// the registration, and returns the new id.
func (r *Registry) Register(relationIdentifier string, queryShape, options interface{}) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID
	r.records[id] = GoalRecord{
		ID:                 id,
		RelationIdentifier: relationIdentifier,
		QueryShape:         queryShape,
		Options:            options,
	}
	r.queryLog = append(r.queryLog, QueryLogEntry{
		GoalID:             id,
		RelationIdentifier: relationIdentifier,
		QueryShape:         queryShape,
	})
	return id
}

// ByID returns the record registered under id, if any.
func (r *Registry) ByID(id uint64) (GoalRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	return rec, ok
}

// All returns every currently registered record, in unspecified order.
func (r *Registry) All() []GoalRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]GoalRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	return out
}

// ForRelation returns every currently registered record whose
// RelationIdentifier matches identifier — the lookup the relation
// engine's sibling-discovery pass uses (spec.md §4.H).
func (r *Registry) ForRelation(identifier string) []GoalRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []GoalRecord
	for _, rec := range r.records {
		if rec.RelationIdentifier == identifier {
			out = append(out, rec)
		}
	}
	return out
}

// QueryLog returns the full registration log in registration order.
func (r *Registry) QueryLog() []QueryLogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]QueryLogEntry, len(r.queryLog))
	copy(out, r.queryLog)
	return out
}

// Clear removes every record and truncates the query log. It does not
// reset the id counter: ids already handed out are never reused.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = make(map[uint64]GoalRecord)
	r.queryLog = nil
}
