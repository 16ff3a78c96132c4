package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
)

// Repository defines persistence operations for auth module.
type Repository interface {
	FindByLogin(ctx context.Context, login string) (*User, error)
	TouchLastLogin(ctx context.Context, userID int64, at time.Time) error
	StoreRefreshToken(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error
	RotateRefreshToken(ctx context.Context, tokenHash string, now time.Time, mint MintFunc) (*User, error)
	RevokeRefreshToken(ctx context.Context, tokenHash string, now time.Time) error
	PurgeRefreshTokens(ctx context.Context, before time.Time) (int64, error)
	CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error
	DeleteSession(ctx context.Context, id string) error
}

// MintFunc issues the replacement refresh token for user and returns its
// hash and expiry. It may run more than once when the transaction retries.
type MintFunc func(user User) (tokenHash string, expiresAt time.Time, err error)

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const selectUser = `SELECT u.id, u.username, u.email, u.name, u.password_hash, u.is_active, u.role_id, COALESCE(r.name, ''), u.created_at, u.updated_at
FROM users u
LEFT JOIN roles r ON r.id = u.role_id`

// FindByLogin fetches a user by username or email, case-insensitively.
func (r *PGRepository) FindByLogin(ctx context.Context, login string) (*User, error) {
	row := r.pool.QueryRow(ctx, selectUser+` WHERE lower(u.username) = lower($1) OR lower(u.email) = lower($1) LIMIT 1`, login)
	return scanUser(row)
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Name, &u.PasswordHash, &u.IsActive, &u.RoleID, &u.RoleName, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// TouchLastLogin stamps the last successful login.
func (r *PGRepository) TouchLastLogin(ctx context.Context, userID int64, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET last_login_at = $2 WHERE id = $1`, userID, at)
	return err
}

// StoreRefreshToken persists the hash of a newly issued refresh token.
func (r *PGRepository) StoreRefreshToken(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error {
	_, err := r.pool.Exec(ctx, insertRefreshToken, userID, tokenHash, expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("auth: store refresh token: %w", err)
	}
	return nil
}

const (
	consumeRefreshToken = `UPDATE refresh_tokens SET revoked_at = $2
WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > $2
RETURNING user_id`
	insertRefreshToken = `INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES ($1, $2, $3)`
	revokeUserTokens   = `UPDATE refresh_tokens SET revoked_at = $2 WHERE user_id = $1 AND revoked_at IS NULL`
)

// RotateRefreshToken consumes a live token and stores its replacement in one
// transaction: a failure anywhere leaves the presented token usable. A token
// that was already revoked counts as reuse; every live token of its owner is
// revoked in the same transaction and ErrRefreshTokenReused is returned.
func (r *PGRepository) RotateRefreshToken(ctx context.Context, tokenHash string, now time.Time, mint MintFunc) (*User, error) {
	var (
		user   *User
		reused bool
	)
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		user, reused = nil, false
		var userID int64
		err := tx.QueryRow(ctx, consumeRefreshToken, tokenHash, now.UTC()).Scan(&userID)
		if errors.Is(err, pgx.ErrNoRows) {
			var revoked bool
			err = tx.QueryRow(ctx, `SELECT user_id, revoked_at IS NOT NULL FROM refresh_tokens WHERE token_hash = $1`, tokenHash).Scan(&userID, &revoked)
			switch {
			case errors.Is(err, pgx.ErrNoRows), err == nil && !revoked:
				return ErrInvalidRefreshToken
			case err != nil:
				return fmt.Errorf("auth: lookup refresh token: %w", err)
			}
			reused = true
			if _, err := tx.Exec(ctx, revokeUserTokens, userID, now.UTC()); err != nil {
				return fmt.Errorf("auth: revoke token family: %w", err)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("auth: consume refresh token: %w", err)
		}
		u, err := scanUser(tx.QueryRow(ctx, selectUser+` WHERE u.id = $1`, userID))
		if errors.Is(err, ErrUserNotFound) {
			return ErrInvalidRefreshToken
		}
		if err != nil {
			return err
		}
		if !u.IsActive {
			return ErrInvalidRefreshToken
		}
		hash, expiresAt, err := mint(*u)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, insertRefreshToken, u.ID, hash, expiresAt.UTC()); err != nil {
			return fmt.Errorf("auth: store refresh token: %w", err)
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	if reused {
		return nil, ErrRefreshTokenReused
	}
	return user, nil
}

// RevokeRefreshToken marks a single token revoked. Unknown tokens are ignored.
func (r *PGRepository) RevokeRefreshToken(ctx context.Context, tokenHash string, now time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE refresh_tokens SET revoked_at = $2 WHERE token_hash = $1 AND revoked_at IS NULL`, tokenHash, now.UTC())
	return err
}

// RevokeAllForUser revokes every live refresh token owned by the user. The
// users module calls it when an account is disabled or its password reset.
func (r *PGRepository) RevokeAllForUser(ctx context.Context, userID int64, now time.Time) error {
	_, err := r.pool.Exec(ctx, revokeUserTokens, userID, now.UTC())
	return err
}

// PurgeRefreshTokens deletes tokens that expired or were revoked before the cutoff.
func (r *PGRepository) PurgeRefreshTokens(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1 OR revoked_at < $1`, before.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CreateSession persists a new login session in the database for auditing.
func (r *PGRepository) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO user_sessions (id, user_id, created_at, expires_at, ip, user_agent)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''))
ON CONFLICT (id) DO UPDATE SET user_id = EXCLUDED.user_id, expires_at = EXCLUDED.expires_at`,
		id, userID, time.Now().UTC(), expiresAt.UTC(), ip, ua)
	return err
}

// DeleteSession removes a session record from the database.
func (r *PGRepository) DeleteSession(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM user_sessions WHERE id = $1`, id)
	return err
}

var _ Repository = (*PGRepository)(nil)
