// Package main demonstrates the relation query engine end to end:
// core unification and disjunction, a batched in-memory relation, the
// SQL adapter against an embedded sqlite database, and the query
// frontend's select/where/iterate surface over a query-merging pair
// of sibling relation goals.
package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	_ "modernc.org/sqlite"

	"github.com/gokando/relquery/pkg/datastore/memory"
	"github.com/gokando/relquery/pkg/datastore/sqlstore"
	"github.com/gokando/relquery/pkg/kanren"
	"github.com/gokando/relquery/pkg/query"
	"github.com/gokando/relquery/pkg/relation"
)

func main() {
	fmt.Println(color.New(color.FgCyan, color.Bold).Sprint("=== relquery examples ==="))
	fmt.Println()

	basicUnification()
	disjunctionCardinality()
	batchedMemoryRelation()
	cacheSharingBetweenSiblings()
	sqliteBackedRelation()
}

// basicUnification runs spec.md §8 scenario 1: eq(X, 42).
func basicUnification() {
	section("1. Basic unification")

	results := kanren.Run(kanren.Eq(kanren.Fresh("x"), kanren.NewAtom(42)))
	fmt.Printf("   eq(X, 42) => %d result(s)\n", len(results))
}

// disjunctionCardinality runs spec.md §8 scenario 2: the four-way
// cross product of two independent disjunctions.
func disjunctionCardinality() {
	section("2. Disjunction cardinality")

	q := query.Select("x", "y").Where(
		func(p *query.Proxy) (kanren.Goal, []uint64) {
			x := p.Attr("x")
			return kanren.Or(kanren.Eq(x, kanren.NewAtom(1)), kanren.Eq(x, kanren.NewAtom(2))), nil
		},
		func(p *query.Proxy) (kanren.Goal, []uint64) {
			y := p.Attr("y")
			return kanren.Or(kanren.Eq(y, kanren.NewAtom("a")), kanren.Eq(y, kanren.NewAtom("b"))), nil
		},
	)
	rows, err := q.ToArray(context.Background())
	must(err)

	table := newTable("X", "Y")
	for _, r := range rows {
		table.Append([]string{fmt.Sprint(r["x"]), fmt.Sprint(r["y"])})
	}
	table.Render()
}

// batchedMemoryRelation runs spec.md §8 scenario 3: three ground ids
// fed into a relation goal with batchSize large enough to hold them
// all issue exactly one backend query.
func batchedMemoryRelation() {
	section("3. Batched in-memory relation")

	store := memory.New()
	store.Insert("users", relation.DataRow{"id": 1, "name": "Alice"})
	store.Insert("users", relation.DataRow{"id": 2, "name": "Bob"})
	store.Insert("users", relation.DataRow{"id": 3, "name": "Carol"})

	var queries int
	users, err := relation.New(loggingStore{store, &queries}, "users", relation.DefaultSQLConfig(), relation.RelationOptions{}, nil)
	must(err)

	q := query.Select("name").Where(
		func(p *query.Proxy) (kanren.Goal, []uint64) {
			x := p.Attr("id")
			return kanren.Or(
				kanren.Eq(x, kanren.NewAtom(1)),
				kanren.Eq(x, kanren.NewAtom(2)),
				kanren.Eq(x, kanren.NewAtom(3)),
			), nil
		},
		query.Rel(users, func(p *query.Proxy) map[string]kanren.Term {
			return map[string]kanren.Term{"id": p.Attr("id"), "name": p.Attr("name")}
		}),
	)
	rows, err := q.ToArray(context.Background())
	must(err)

	table := newTable("Name")
	for _, r := range rows {
		table.Append([]string{fmt.Sprint(r["name"])})
	}
	table.Render()
	fmt.Printf("   backend calls issued: %d\n", queries)
}

// cacheSharingBetweenSiblings runs spec.md §8 scenario 4: two relation
// goals over the same relation and the same ground id, sharing
// GROUP_ALL through a single Query, issue only one backend call
// between them.
func cacheSharingBetweenSiblings() {
	section("4. Cache sharing between sibling goals")

	store := memory.New()
	store.Insert("users", relation.DataRow{"id": 7, "name": "Dana"})

	var queries int
	users, err := relation.New(loggingStore{store, &queries}, "users", relation.DefaultSQLConfig(), relation.RelationOptions{}, nil)
	must(err)

	q := query.Select("first", "second").Where(
		query.Eq(query.Attr("id"), query.Val(7)),
		query.Rel(users, func(p *query.Proxy) map[string]kanren.Term {
			return map[string]kanren.Term{"id": p.Attr("id"), "name": p.Attr("first")}
		}),
		query.Rel(users, func(p *query.Proxy) map[string]kanren.Term {
			return map[string]kanren.Term{"id": p.Attr("id"), "name": p.Attr("second")}
		}),
	)
	rows, err := q.ToArray(context.Background())
	must(err)

	table := newTable("First", "Second")
	for _, r := range rows {
		table.Append([]string{fmt.Sprint(r["first"]), fmt.Sprint(r["second"])})
	}
	table.Render()
	fmt.Printf("   backend calls issued: %d (expect 1)\n", queries)
}

// sqliteBackedRelation demonstrates pkg/datastore/sqlstore against an
// embedded, pure-Go sqlite database (modernc.org/sqlite) — the same
// Store code path a production lib/pq connection would take, only the
// driver name and Dialect differ.
func sqliteBackedRelation() {
	section("5. SQL-backed relation (sqlite)")

	db, err := sql.Open("sqlite", ":memory:")
	must(err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE products (id INTEGER, sku TEXT, price REAL)`)
	must(err)
	_, err = db.Exec(`INSERT INTO products (id, sku, price) VALUES (1, 'widget', 9.99), (2, 'gadget', 19.99)`)
	must(err)

	store, err := sqlstore.New(db, sqlstore.DialectSQLite, 32)
	must(err)

	products, err := relation.New(store, "products", relation.DefaultSQLConfig(), relation.RelationOptions{}, nil)
	must(err)

	q := query.Select("sku", "price").Where(
		query.Eq(query.Attr("id"), query.Val(int64(1))),
		query.Rel(products, func(p *query.Proxy) map[string]kanren.Term {
			return map[string]kanren.Term{"id": p.Attr("id"), "sku": p.Attr("sku"), "price": p.Attr("price")}
		}),
	)
	rows, err := q.ToArray(context.Background())
	must(err)

	table := newTable("SKU", "Price")
	for _, r := range rows {
		table.Append([]string{fmt.Sprint(r["sku"]), fmt.Sprint(r["price"])})
	}
	table.Render()
}

// loggingStore wraps a relation.DataStore and increments a caller-
// owned counter on every ExecuteQuery call, for the demo's "backend
// calls issued" line.
type loggingStore struct {
	relation.DataStore
	n *int
}

func (s loggingStore) ExecuteQuery(ctx context.Context, params relation.QueryParams) ([]relation.DataRow, error) {
	*s.n++
	return s.DataStore.ExecuteQuery(ctx, params)
}

func newTable(headers ...string) *tablewriter.Table {
	table := tablewriter.NewTable(color.Output)
	table.Header(headers)
	return table
}

func section(title string) {
	fmt.Println(color.New(color.FgYellow, color.Bold).Sprint(title))
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
