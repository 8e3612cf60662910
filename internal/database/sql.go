package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SQLGateway is a Gateway backed by database/sql. It serves the lib/pq and
// SQLite drivers.
type SQLGateway struct {
	db      *sql.DB
	dialect Dialect
	user    string
}

// SQLOption configures an SQLGateway.
type SQLOption func(*SQLGateway)

// WithUser fixes the name reported by CurrentUser instead of asking the database.
func WithUser(name string) SQLOption {
	return func(g *SQLGateway) { g.user = name }
}

// NewSQLGateway wraps db. Close closes db.
func NewSQLGateway(db *sql.DB, dialect Dialect, opts ...SQLOption) *SQLGateway {
	g := &SQLGateway{db: db, dialect: dialect}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Exec runs a statement outside any transaction.
func (g *SQLGateway) Exec(ctx context.Context, query string, args ...any) error {
	_, err := g.db.ExecContext(ctx, query, args...)

	return err
}

// Query runs a query outside any transaction.
func (g *SQLGateway) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := g.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	return &sqlRows{rows: rows}, nil
}

// Begin starts a transaction.
func (g *SQLGateway) Begin(ctx context.Context) (Tx, error) {
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	return &sqlTx{tx: tx}, nil
}

// CurrentUser returns the configured user or, for PostgreSQL, current_user.
func (g *SQLGateway) CurrentUser(ctx context.Context) (string, error) {
	if g.user != "" {
		return g.user, nil
	}

	var name string
	if err := g.db.QueryRowContext(ctx, "SELECT current_user").Scan(&name); err != nil {
		return "", fmt.Errorf("querying current_user: %w", err)
	}

	return name, nil
}

// Dialect returns the dialect given at construction.
func (g *SQLGateway) Dialect() Dialect { return g.dialect }

// Close closes the underlying database handle.
func (g *SQLGateway) Close() { g.db.Close() } //nolint:errcheck // nothing useful to do on close failure

type sqlRows struct {
	rows *sql.Rows
}

func (r *sqlRows) Next() bool             { return r.rows.Next() }
func (r *sqlRows) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r *sqlRows) Err() error             { return r.rows.Err() }
func (r *sqlRows) Close()                 { r.rows.Close() } //nolint:errcheck // Err reports iteration failures

type sqlTx struct {
	tx *sql.Tx
}

func (t *sqlTx) Exec(ctx context.Context, query string, args ...any) error {
	_, err := t.tx.ExecContext(ctx, query, args...)

	return err
}

func (t *sqlTx) Commit(context.Context) error { return t.tx.Commit() }

func (t *sqlTx) Rollback(context.Context) error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}

	return nil
}
