package shared

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrIdempotencyConflict is returned when a key was already reserved for the
// same module.
var ErrIdempotencyConflict = errors.New("idempotent request already processed")

var errEmptyIdempotencyKey = errors.New("idempotency: module and key are required")

// IdempotencyGuard reserves client supplied request keys. Keys are scoped by
// module so two endpoints may reuse the same client key.
type IdempotencyGuard interface {
	Reserve(ctx context.Context, module, key string) error
	Release(ctx context.Context, module, key string) error
}

// Execer is the subset of pgxpool.Pool used by IdempotencyStore.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// IdempotencyStore keeps reserved keys in the idempotency_keys table.
type IdempotencyStore struct {
	db  Execer
	now func() time.Time
}

func NewIdempotencyStore(db Execer) *IdempotencyStore {
	return &IdempotencyStore{db: db, now: time.Now}
}

// Reserve claims key for module. A second reservation of the same pair fails
// with ErrIdempotencyConflict until the first one is released or expires.
func (s *IdempotencyStore) Reserve(ctx context.Context, module, key string) error {
	module, key = strings.TrimSpace(module), strings.TrimSpace(key)
	if module == "" || key == "" {
		return errEmptyIdempotencyKey
	}
	tag, err := s.db.Exec(ctx, `
		INSERT INTO idempotency_keys (module, key, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (module, key) DO NOTHING`, module, key, s.now().UTC())
	if err != nil {
		return fmt.Errorf("reserve idempotency key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrIdempotencyConflict
	}
	return nil
}

// Release forgets a reservation so a failed request can be retried.
func (s *IdempotencyStore) Release(ctx context.Context, module, key string) error {
	module, key = strings.TrimSpace(module), strings.TrimSpace(key)
	if module == "" || key == "" {
		return errEmptyIdempotencyKey
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE module = $1 AND key = $2`, module, key); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

// Cleanup drops reservations older than retention and reports how many rows
// went away.
func (s *IdempotencyStore) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, fmt.Errorf("idempotency cleanup: retention must be positive, got %s", retention)
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, s.now().UTC().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("cleanup idempotency keys: %w", err)
	}
	return tag.RowsAffected(), nil
}
