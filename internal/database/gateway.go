package database

import (
	"context"
	"strconv"
)

// Execer executes a statement that returns no rows.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) error
}

// Rows iterates over a query result. It matches pgx.Rows so a pgx result can be
// returned directly.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// Querier runs a query that returns rows.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
}

// Tx is a unit of work with autocommit disabled. Rollback after a successful
// Commit is a no-op.
type Tx interface {
	Execer
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Beginner starts transactions.
type Beginner interface {
	Begin(ctx context.Context) (Tx, error)
}

// Gateway is the connection to the target database used by the changelog and
// the direct applier.
type Gateway interface {
	Execer
	Querier
	Beginner
	// CurrentUser returns the identity of the connected database principal.
	CurrentUser(ctx context.Context) (string, error)
	Dialect() Dialect
	Close()
}

// Dialect describes the bind parameter style of a database.
type Dialect struct {
	Name     string
	numbered bool
}

// Known dialects.
var (
	Postgres = Dialect{Name: "postgres", numbered: true} //nolint:gochecknoglobals // immutable value
	SQLite   = Dialect{Name: "sqlite"}                   //nolint:gochecknoglobals // immutable value
)

// Placeholder returns the bind parameter for the n-th (1-based) argument.
func (d Dialect) Placeholder(n int) string {
	if d.numbered {
		return "$" + strconv.Itoa(n)
	}

	return "?"
}
