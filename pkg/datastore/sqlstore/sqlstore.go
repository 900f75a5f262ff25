// Package sqlstore implements relation.DataStore over database/sql,
// translating a planned relation.QueryParams into a single
// parameterized SELECT per flush.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/lib/pq"

	"github.com/gokando/relquery/pkg/relation"
)

// Dialect selects the placeholder syntax and LIMIT/OFFSET clause a
// backend expects.
type Dialect int

const (
	// DialectPostgres uses $1, $2, ... placeholders (github.com/lib/pq).
	DialectPostgres Dialect = iota
	// DialectSQLite uses ? placeholders (modernc.org/sqlite).
	DialectSQLite
)

// Store is a relation.DataStore backed by a database/sql connection
// pool. A *Store is safe for concurrent use (it delegates to *sql.DB,
// which is itself concurrency-safe).
type Store struct {
	db      *sql.DB
	dialect Dialect
	stmts   *lru.Cache[string, *sql.Stmt]
}

// New builds a Store over an already-open db. stmtCacheSize bounds how
// many distinct prepared statements (one per distinct SELECT shape a
// relation's batching/merging produces) are kept; the cache evicts and
// closes the least-recently-used statement once full.
func New(db *sql.DB, dialect Dialect, stmtCacheSize int) (*Store, error) {
	if db == nil {
		return nil, relation.ErrConfigInvalid
	}
	if stmtCacheSize <= 0 {
		stmtCacheSize = 64
	}
	cache, err := lru.NewWithEvict(stmtCacheSize, func(_ string, stmt *sql.Stmt) {
		_ = stmt.Close()
	})
	if err != nil {
		return nil, fmt.Errorf("sqlstore: building statement cache: %w", err)
	}
	return &Store{db: db, dialect: dialect, stmts: cache}, nil
}

// Type identifies this adapter kind.
func (s *Store) Type() string { return "sql" }

// Close implements relation.Closer: it closes every cached prepared
// statement, then the underlying connection pool.
func (s *Store) Close() error {
	s.stmts.Purge()
	return s.db.Close()
}

// ExecuteQuery implements relation.DataStore: it renders params into
// one parameterized SELECT, prepares (or reuses a cached prepare of)
// it, and scans every returned row into a relation.DataRow keyed by
// the driver's reported column names.
func (s *Store) ExecuteQuery(ctx context.Context, params relation.QueryParams) ([]relation.DataRow, error) {
	query, args := s.render(params)
	if params.LogSink != nil {
		params.LogSink(query)
	}

	stmt, err := s.prepare(ctx, query)
	if err != nil {
		return nil, classifyError(err)
	}

	rows, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, classifyError(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, classifyError(err)
	}

	var out []relation.DataRow
	for rows.Next() {
		scanTargets := make([]interface{}, len(cols))
		scanValues := make([]interface{}, len(cols))
		for i := range scanValues {
			scanTargets[i] = &scanValues[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, classifyError(err)
		}
		row := make(relation.DataRow, len(cols))
		for i, col := range cols {
			row[col] = normalizeScanned(scanValues[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyError(err)
	}
	return out, nil
}

// normalizeScanned unwraps the []byte a database/sql driver commonly
// returns for text-like columns into a plain string, so a caller
// comparing scanned values against query-shape atoms doesn't need to
// know this driver's encoding.
func normalizeScanned(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func (s *Store) prepare(ctx context.Context, query string) (*sql.Stmt, error) {
	if stmt, ok := s.stmts.Get(query); ok {
		return stmt, nil
	}
	stmt, err := s.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	s.stmts.Add(query, stmt)
	return stmt, nil
}

// render builds the SELECT and its positional arguments for params.
func (s *Store) render(params relation.QueryParams) (string, []interface{}) {
	var b strings.Builder
	b.WriteString("SELECT ")
	if len(params.SelectColumns) == 0 {
		b.WriteString("*")
	} else {
		b.WriteString(strings.Join(quoteAll(params.SelectColumns), ", "))
	}
	b.WriteString(" FROM ")
	b.WriteString(quote(params.RelationIdentifier))

	var args []interface{}
	placeholder := 0
	nextPlaceholder := func() string {
		placeholder++
		if s.dialect == DialectPostgres {
			return "$" + strconv.Itoa(placeholder)
		}
		return "?"
	}

	if len(params.WhereConditions) > 0 {
		b.WriteString(" WHERE ")
		for i, cond := range params.WhereConditions {
			if i > 0 {
				b.WriteString(" AND ")
			}
			b.WriteString(renderCondition(cond, nextPlaceholder, &args))
		}
	}

	if params.Limit != nil {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(*params.Limit))
	}
	if params.Offset != nil {
		b.WriteString(" OFFSET ")
		b.WriteString(strconv.Itoa(*params.Offset))
	}

	return b.String(), args
}

func renderCondition(cond relation.WhereCondition, next func() string, args *[]interface{}) string {
	col := quote(cond.Column)
	switch cond.Operator {
	case relation.OpEq:
		*args = append(*args, cond.Value)
		return fmt.Sprintf("%s = %s", col, next())
	case relation.OpIn:
		placeholders := make([]string, len(cond.Values))
		for i, v := range cond.Values {
			*args = append(*args, v)
			placeholders[i] = next()
		}
		return fmt.Sprintf("%s IN (%s)", col, strings.Join(placeholders, ", "))
	case relation.OpGt:
		*args = append(*args, cond.Value)
		return fmt.Sprintf("%s > %s", col, next())
	case relation.OpLt:
		*args = append(*args, cond.Value)
		return fmt.Sprintf("%s < %s", col, next())
	case relation.OpGte:
		*args = append(*args, cond.Value)
		return fmt.Sprintf("%s >= %s", col, next())
	case relation.OpLte:
		*args = append(*args, cond.Value)
		return fmt.Sprintf("%s <= %s", col, next())
	case relation.OpLike:
		*args = append(*args, cond.Value)
		return fmt.Sprintf("%s LIKE %s", col, next())
	default:
		*args = append(*args, cond.Value)
		return fmt.Sprintf("%s = %s", col, next())
	}
}

func quote(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

func quoteAll(identifiers []string) []string {
	out := make([]string, len(identifiers))
	for i, id := range identifiers {
		out[i] = quote(id)
	}
	return out
}

// classifyError maps a database/sql-level error onto this module's
// transient/permanent taxonomy. Context cancellation/deadlines and
// connection-level failures are treated as transient (the caller may
// reasonably retry); anything else — a syntax error, a missing table —
// is permanent.
func classifyError(err error) error {
	if err == context.Canceled || err == context.DeadlineExceeded {
		return relation.TransientError(err)
	}
	if err == sql.ErrConnDone || err == sql.ErrTxDone {
		return relation.TransientError(err)
	}
	return relation.PermanentError(err)
}
