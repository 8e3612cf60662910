package database

import (
	"context"
	"fmt"
)

// InTransaction runs fn inside a transaction started on b.
// On success the transaction is committed; on error or panic it is rolled back,
// so every exit path releases the transaction.
func InTransaction(ctx context.Context, b Beginner, fn func(tx Tx) error) error {
	tx, err := b.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}
