package products

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRow struct {
	err error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*int64) = 42
	*dest[1].(*string) = "Teh Botol"
	return nil
}

func TestFindProductWrapsLookupErrors(t *testing.T) {
	p, err := findProduct("get", stubRow{})
	require.NoError(t, err)
	assert.Equal(t, int64(42), p.ID)
	assert.Equal(t, "Teh Botol", p.Name)

	_, err = findProduct("get", stubRow{err: pgx.ErrNoRows})
	assert.Same(t, ErrNotFound, err)

	_, err = findProduct("get by barcode", stubRow{err: context.DeadlineExceeded})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, "products: get by barcode: context deadline exceeded", err.Error())
}
