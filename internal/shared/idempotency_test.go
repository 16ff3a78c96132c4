package shared

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingExec struct {
	rows  int64
	err   error
	calls []string
	args  [][]any
}

func (e *recordingExec) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	e.calls = append(e.calls, sql)
	e.args = append(e.args, args)
	if e.err != nil {
		return pgconn.CommandTag{}, e.err
	}
	return pgconn.NewCommandTag("DELETE " + strconv.FormatInt(e.rows, 10)), nil
}

func TestReserveConflictWhenNothingInserted(t *testing.T) {
	exec := &recordingExec{rows: 1}
	store := NewIdempotencyStore(exec)

	require.NoError(t, store.Reserve(context.Background(), "products.import", " batch-1 "))
	assert.Equal(t, "batch-1", exec.args[0][1])

	exec.rows = 0
	assert.ErrorIs(t, store.Reserve(context.Background(), "products.import", "batch-1"), ErrIdempotencyConflict)
}

func TestReserveRequiresModuleAndKey(t *testing.T) {
	exec := &recordingExec{rows: 1}
	store := NewIdempotencyStore(exec)

	assert.Error(t, store.Reserve(context.Background(), "", "k"))
	assert.Error(t, store.Release(context.Background(), "m", "  "))
	assert.Empty(t, exec.calls)
}

func TestReserveWrapsDriverErrors(t *testing.T) {
	boom := errors.New("conn reset")
	store := NewIdempotencyStore(&recordingExec{err: boom})

	err := store.Reserve(context.Background(), "m", "k")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrIdempotencyConflict)
}

func TestCleanupUsesRetentionCutoff(t *testing.T) {
	exec := &recordingExec{rows: 7}
	store := NewIdempotencyStore(exec)
	fixed := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	n, err := store.Cleanup(context.Background(), 72*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 7, n)
	assert.Equal(t, fixed.Add(-72*time.Hour), exec.args[0][0])

	_, err = store.Cleanup(context.Background(), 0)
	assert.Error(t, err)
}
