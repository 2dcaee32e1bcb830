package database

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTx satisfies pgx.Tx; only identity matters in these tests.
type fakeTx struct {
	pgx.Tx
}

func TestGetQuerier_NoScope(t *testing.T) {
	_, err := GetQuerier(context.Background())
	assert.ErrorIs(t, err, ErrNoScope)

	ctx := SetScope(context.Background(), &Scope{})
	_, err = GetQuerier(ctx)
	assert.ErrorIs(t, err, ErrNoScope)
}

func TestGetQuerier_PrefersTransaction(t *testing.T) {
	tx := &fakeTx{}
	ctx := withTx(SetScope(context.Background(), &Scope{}), tx)

	q, err := GetQuerier(ctx)
	require.NoError(t, err)
	assert.Same(t, tx, q)
	assert.True(t, InTx(ctx))
	assert.False(t, InTx(context.Background()))
}

func TestRunInTx_RequiresScope(t *testing.T) {
	called := false
	err := NewTxRunner().RunInTx(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrNoScope)
	assert.False(t, called)
}

func TestRunInTx_JoinsOuterTransaction(t *testing.T) {
	tx := &fakeTx{}
	outer := withTx(context.Background(), tx)
	sentinel := errors.New("inner failure")

	err := NewTxRunner().RunInTx(outer, func(ctx context.Context) error {
		q, err := GetQuerier(ctx)
		require.NoError(t, err)
		assert.Same(t, tx, q)
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
}

func TestScope_CloseIsIdempotent(t *testing.T) {
	s := &Scope{}
	s.Close()
	s.Close()
	assert.Nil(t, s.Conn)
}

func TestPgErrorClassification(t *testing.T) {
	unique := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	fk := &pgconn.PgError{Code: "23503"}
	check := &pgconn.PgError{Code: "23514"}

	assert.True(t, IsUniqueViolation(unique))
	assert.False(t, IsUniqueViolation(fk))
	assert.True(t, IsForeignKeyViolation(fk))
	assert.True(t, IsCheckViolation(check))
	assert.False(t, IsCheckViolation(errors.New("23514")))
}
