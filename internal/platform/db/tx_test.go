package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

type fakeBeginner struct {
	begun []*fakeTx
}

func (b *fakeBeginner) Begin(context.Context) (pgx.Tx, error) {
	tx := &fakeTx{}
	b.begun = append(b.begun, tx)
	return tx, nil
}

func TestWithTx_Commits(t *testing.T) {
	b := &fakeBeginner{}
	var inner pgx.Tx

	err := WithTx(context.Background(), b, func(ctx context.Context) error {
		inner = TxFromContext(ctx)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, b.begun, 1)
	assert.Same(t, b.begun[0], inner)
	assert.True(t, b.begun[0].committed)
	assert.False(t, b.begun[0].rolledBack)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	b := &fakeBeginner{}
	boom := errors.New("boom")

	err := WithTx(context.Background(), b, func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.True(t, b.begun[0].rolledBack)
	assert.False(t, b.begun[0].committed)
}

func TestWithTx_NestedJoinsOuter(t *testing.T) {
	b := &fakeBeginner{}

	err := WithTx(context.Background(), b, func(ctx context.Context) error {
		return WithTx(ctx, b, func(ctx context.Context) error {
			assert.Same(t, b.begun[0], TxFromContext(ctx))
			return nil
		})
	})
	require.NoError(t, err)
	assert.Len(t, b.begun, 1)
}

func TestConn_PrefersTransaction(t *testing.T) {
	pool := &recorder{}
	assert.Same(t, pool, Conn(context.Background(), pool))

	tx := &fakeTx{}
	ctx := context.WithValue(context.Background(), txKey{}, pgx.Tx(tx))
	assert.Same(t, tx, Conn(ctx, pool))
}
