package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
	commitErr  error
}

func (f *fakeTx) Commit(ctx context.Context) error {
	f.committed = true
	return f.commitErr
}

func (f *fakeTx) Rollback(ctx context.Context) error {
	f.rolledBack = true
	return nil
}

type fakeBeginner struct {
	txs []*fakeTx
}

func (f *fakeBeginner) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	tx := &fakeTx{}
	f.txs = append(f.txs, tx)
	return tx, nil
}

func TestWithTxRetriesSerializationFailures(t *testing.T) {
	db := &fakeBeginner{}
	calls := 0
	err := WithTx(context.Background(), db, func(pgx.Tx) error {
		calls++
		if calls < 3 {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, db.txs[2].committed)
}

func TestWithTxStopsOnOtherErrors(t *testing.T) {
	db := &fakeBeginner{}
	boom := errors.New("boom")
	calls := 0
	err := WithTx(context.Background(), db, func(pgx.Tx) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
	assert.False(t, db.txs[0].committed)
	assert.True(t, db.txs[0].rolledBack)
}

func TestWithTxGivesUpAfterThreeAttempts(t *testing.T) {
	db := &fakeBeginner{}
	err := WithTx(context.Background(), db, func(pgx.Tx) error {
		return &pgconn.PgError{Code: "40P01"}
	})
	var pgErr *pgconn.PgError
	assert.ErrorAs(t, err, &pgErr)
	assert.Len(t, db.txs, maxTxAttempts)
}
