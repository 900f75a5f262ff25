// Package relation implements the data-backed relation engine: a
// batched, cache-sharing, query-merging goal factory that projects an
// external tabular data source into a kanren.Goal.
package relation

import (
	"context"
	"errors"
	"fmt"

	"github.com/gokando/relquery/pkg/kanren"
)

// DataRow is a single row returned by a DataStore: a mapping from
// column name to a ground scalar value. It never contains a
// kanren.Var.
type DataRow map[string]interface{}

// Operator is a WHERE-clause comparison operator.
type Operator string

const (
	OpEq   Operator = "eq"
	OpIn   Operator = "in"
	OpGt   Operator = "gt"
	OpLt   Operator = "lt"
	OpGte  Operator = "gte"
	OpLte  Operator = "lte"
	OpLike Operator = "like"
)

// WhereCondition is one predicate in a planned query.
type WhereCondition struct {
	Column   string
	Operator Operator
	Value    interface{}   // set when Operator != OpIn
	Values   []interface{} // set when Operator == OpIn
}

// QueryParams is the fully-planned request a relation goal sends to a
// DataStore (spec.md §6).
type QueryParams struct {
	RelationIdentifier string
	SelectColumns      []string
	WhereConditions    []WhereCondition
	Limit              *int
	Offset             *int
	Options            RelationOptions
	GoalID             uint64
	LogSink            func(query string)
}

// RelationOptions carries relation-specific configuration (spec.md §6).
// The whole struct is passed to the DataStore on every QueryParams as
// Options. The engine itself reads only Limit and Offset; none of the
// adapters in this module read PrimaryKey, SelectColumns, FullScanKeys
// or RestPrimaryKey.
type RelationOptions struct {
	PrimaryKey     string
	SelectColumns  []string
	FullScanKeys   []string
	RestPrimaryKey string

	// Limit and Offset, when set, are placed on every QueryParams this
	// relation flushes (spec.md §4.H.3.e) — a cap applied uniformly to
	// every batch this relation ever queries, not a per-call knob.
	Limit  *int
	Offset *int
}

// DataStore is the external collaborator contract every adapter
// (SQL, REST, in-memory) implements (spec.md §6). It is deliberately
// the only boundary the relation engine crosses that can block or
// fail for reasons outside the engine's control.
type DataStore interface {
	// Type identifies the adapter kind ("sql", "rest", "memory", or a
	// custom value).
	Type() string

	// ExecuteQuery runs one planned query and returns its rows.
	ExecuteQuery(ctx context.Context, params QueryParams) ([]DataRow, error)
}

// ColumnLister is an optional capability a DataStore may implement to
// report a relation's columns. It is kept out of the required
// DataStore contract (spec.md §9 Open Questions); no component in this
// module checks for it or calls it.
type ColumnLister interface {
	GetColumns(relationIdentifier string) ([]string, error)
}

// Closer is an optional capability a DataStore may implement to
// release resources (a pooled connection, an HTTP client's idle
// conns). Like ColumnLister it is not part of DataStore, and nothing in
// this module checks for it or calls it.
type Closer interface {
	Close() error
}

// AbstractRelationConfig holds the tuning knobs shared by every
// relation, regardless of backing store (spec.md §6).
type AbstractRelationConfig struct {
	BatchSize          int
	DebounceMs         int
	EnableCaching      bool
	EnableQueryMerging bool
	CacheManager       *kanren.CacheManager

	// ErrorSink, if set, receives a DataStore error after a flush fails.
	// kanren.Stream carries no error channel of its own (spec.md's
	// Goal/Stream contract is values-only), so a failed flush simply
	// drops the substitutions in that batch from the goal's output
	// stream; ErrorSink is this package's adaptation for surfacing the
	// error that caused the drop to an observer instead of swallowing it
	// silently.
	ErrorSink func(goalID uint64, relationIdentifier string, err error)
}

// DefaultSQLConfig returns the defaults spec.md §6 prescribes for a
// SQL-backed (or in-memory) relation.
func DefaultSQLConfig() AbstractRelationConfig {
	return AbstractRelationConfig{
		BatchSize:          100,
		DebounceMs:         50,
		EnableCaching:      true,
		EnableQueryMerging: true,
	}
}

// DefaultRESTConfig returns the defaults spec.md §6 prescribes for a
// REST-backed relation: smaller batches, a longer debounce, and query
// merging off by default (fusing WHERE clauses across sibling REST
// calls is adapter-specific and not safe to assume).
func DefaultRESTConfig() AbstractRelationConfig {
	return AbstractRelationConfig{
		BatchSize:          50,
		DebounceMs:         100,
		EnableCaching:      true,
		EnableQueryMerging: false,
	}
}

// Error taxonomy (spec.md §7). UnificationFail and SuspendFail are not
// represented as errors at all — they simply drop a substitution, as
// kanren.Unify and kanren.Suspendable already do. Cancellation is not
// an error either: a cancelled goal just stops emitting. The three
// sentinels below cover the remaining kinds: two for a failed
// DataStore call and one for construction-time configuration.
var (
	// ErrStoreTransient marks a retryable backend failure (HTTP 5xx,
	// timeout). The engine never retries internally; this sentinel lets
	// a caller decide to.
	ErrStoreTransient = errors.New("relation: transient store error")

	// ErrStorePermanent marks a non-retryable backend failure (HTTP
	// 4xx, a SQL syntax/constraint error).
	ErrStorePermanent = errors.New("relation: permanent store error")

	// ErrConfigInvalid marks a construction-time configuration error;
	// New fails fast rather than letting a goal fail later.
	ErrConfigInvalid = errors.New("relation: invalid configuration")
)

// TransientError wraps err as an ErrStoreTransient.
func TransientError(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreTransient, err)
}

// PermanentError wraps err as an ErrStorePermanent.
func PermanentError(err error) error {
	return fmt.Errorf("%w: %v", ErrStorePermanent, err)
}
