package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const selectUser = `SELECT u.id, u.username, u.email, u.name, u.is_active, u.role_id, COALESCE(r.name, ''), u.last_login_at, u.created_at, u.updated_at
FROM users u
LEFT JOIN roles r ON r.id = u.role_id`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Name, &u.IsActive, &u.RoleID, &u.RoleName, &u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

// ListUsers returns all users.
func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, selectUser+` ORDER BY u.username`)
	if err != nil {
		return nil, fmt.Errorf("users: list: %w", err)
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// GetUser loads one user.
func (r *Repository) GetUser(ctx context.Context, id int64) (User, error) {
	return scanUser(r.pool.QueryRow(ctx, selectUser+` WHERE u.id = $1`, id))
}

// CreateUser inserts an account with an already hashed password.
func (r *Repository) CreateUser(ctx context.Context, u User, passwordHash string) (User, error) {
	now := time.Now().UTC()
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO users (username, email, name, password_hash, is_active, role_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7) RETURNING id`,
		u.Username, u.Email, u.Name, passwordHash, u.IsActive, u.RoleID, now).Scan(&id)
	if err != nil {
		return User{}, translateError("create", err)
	}
	return r.GetUser(ctx, id)
}

// UpdateUser rewrites profile, role and active flag.
func (r *Repository) UpdateUser(ctx context.Context, u User) (User, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET email = $2, name = $3, is_active = $4, role_id = $5, updated_at = $6 WHERE id = $1`,
		u.ID, u.Email, u.Name, u.IsActive, u.RoleID, time.Now().UTC())
	if err != nil {
		return User{}, translateError("update", err)
	}
	if tag.RowsAffected() == 0 {
		return User{}, ErrNotFound
	}
	return r.GetUser(ctx, u.ID)
}

// PasswordHash returns the stored hash for id.
func (r *Repository) PasswordHash(ctx context.Context, id int64) (string, error) {
	var hash string
	err := r.pool.QueryRow(ctx, `SELECT password_hash FROM users WHERE id = $1`, id).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	return hash, err
}

// SetPasswordHash replaces the stored hash.
func (r *Repository) SetPasswordHash(ctx context.Context, id int64, hash string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`, id, hash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("users: set password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func translateError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ErrDuplicate
		case "23503":
			return ErrUnknownRole
		}
	}
	return fmt.Errorf("users: %s: %w", op, err)
}
