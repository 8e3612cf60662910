package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolGateway is a Gateway backed by a pgx connection pool.
type PoolGateway struct {
	pool *pgxpool.Pool
}

// NewPoolGateway wraps an existing pool. Close closes the pool.
func NewPoolGateway(pool *pgxpool.Pool) *PoolGateway {
	return &PoolGateway{pool: pool}
}

// Exec runs a statement on a pooled connection.
func (g *PoolGateway) Exec(ctx context.Context, sql string, args ...any) error {
	_, err := g.pool.Exec(ctx, sql, args...)

	return err
}

// Query runs a query on a pooled connection.
func (g *PoolGateway) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	return g.pool.Query(ctx, sql, args...)
}

// Begin starts a transaction on a dedicated connection.
func (g *PoolGateway) Begin(ctx context.Context) (Tx, error) {
	tx, err := g.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}

	return &pgxTx{tx: tx}, nil
}

// CurrentUser returns the PostgreSQL current_user.
func (g *PoolGateway) CurrentUser(ctx context.Context) (string, error) {
	var name string
	if err := g.pool.QueryRow(ctx, "SELECT current_user").Scan(&name); err != nil {
		return "", fmt.Errorf("querying current_user: %w", err)
	}

	return name, nil
}

// Dialect returns Postgres.
func (g *PoolGateway) Dialect() Dialect { return Postgres }

// Close closes the pool.
func (g *PoolGateway) Close() { g.pool.Close() }

type pgxTx struct {
	tx pgx.Tx
}

func (t *pgxTx) Exec(ctx context.Context, sql string, args ...any) error {
	_, err := t.tx.Exec(ctx, sql, args...)

	return err
}

func (t *pgxTx) Commit(ctx context.Context) error { return t.tx.Commit(ctx) }

func (t *pgxTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}

	return nil
}
