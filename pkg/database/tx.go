package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// TxRunner runs a function inside a database transaction.
// Repositories called with the context passed to fn use the transaction.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type scopeTxRunner struct{}

// NewTxRunner returns a TxRunner that opens transactions on the scoped
// connection in the caller's context.
func NewTxRunner() TxRunner {
	return &scopeTxRunner{}
}

// RunInTx commits if fn returns nil and rolls back otherwise. Nested calls
// join the outer transaction.
func (r *scopeTxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if InTx(ctx) {
		return fn(ctx)
	}

	scope, ok := GetScope(ctx)
	if !ok || scope == nil || scope.Conn == nil {
		return ErrNoScope
	}

	tx, err := scope.Conn.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(context.Background()); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = errors.Join(err, fmt.Errorf("failed to roll back transaction: %w", rbErr))
			}
		}
	}()

	if err = fn(withTx(ctx, tx)); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

var _ TxRunner = (*scopeTxRunner)(nil)
