package roles

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
)

// Guard validates a write against the locked role hierarchy.
type Guard func(Hierarchy) error

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	CreateRole(ctx context.Context, role Role, guard Guard) (Role, error)
	UpdateRole(ctx context.Context, role Role, guard Guard) (Role, error)
	DeleteRole(ctx context.Context, id int64) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const roleColumns = `id, name, description, is_administrative, can_edit_model, parent_role_id, created_at, updated_at`

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Name, &role.Description, &role.IsAdministrative, &role.CanEditModel, &role.ParentRoleID, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, ErrNotFound
	}
	return role, err
}

// ListRoles returns all roles.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("roles: list: %w", err)
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// GetRole loads one role.
func (r *Repository) GetRole(ctx context.Context, id int64) (Role, error) {
	return scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
}

// CreateRole inserts a role after the guard accepted the locked hierarchy.
func (r *Repository) CreateRole(ctx context.Context, role Role, guard Guard) (Role, error) {
	var created Role
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := checkLocked(ctx, tx, guard); err != nil {
			return err
		}
		now := time.Now().UTC()
		row := tx.QueryRow(ctx, `INSERT INTO roles (name, description, is_administrative, can_edit_model, parent_role_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $6) RETURNING `+roleColumns,
			role.Name, role.Description, role.IsAdministrative, role.CanEditModel, role.ParentRoleID, now)
		var err error
		created, err = scanRole(row)
		return err
	})
	if err != nil {
		return Role{}, translateError("create", err)
	}
	return created, nil
}

// UpdateRole rewrites a role after the guard accepted the locked hierarchy.
func (r *Repository) UpdateRole(ctx context.Context, role Role, guard Guard) (Role, error) {
	var updated Role
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := checkLocked(ctx, tx, guard); err != nil {
			return err
		}
		row := tx.QueryRow(ctx, `UPDATE roles SET name = $2, description = $3, is_administrative = $4, can_edit_model = $5, parent_role_id = $6, updated_at = $7
WHERE id = $1 RETURNING `+roleColumns,
			role.ID, role.Name, role.Description, role.IsAdministrative, role.CanEditModel, role.ParentRoleID, time.Now().UTC())
		var err error
		updated, err = scanRole(row)
		return err
	})
	if err != nil {
		return Role{}, translateError("update", err)
	}
	return updated, nil
}

// DeleteRole removes a role that no user or child role references.
func (r *Repository) DeleteRole(ctx context.Context, id int64) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var refs int
		err := tx.QueryRow(ctx, `SELECT (SELECT COUNT(*) FROM users WHERE role_id = $1) + (SELECT COUNT(*) FROM roles WHERE parent_role_id = $1)`, id).Scan(&refs)
		if err != nil {
			return err
		}
		if refs > 0 {
			return ErrRoleInUse
		}
		tag, err := tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return translateError("delete", err)
	}
	return nil
}

// checkLocked snapshots the hierarchy with row locks held until commit, so
// two concurrent reparentings cannot together close a loop.
func checkLocked(ctx context.Context, tx pgx.Tx, guard Guard) error {
	if guard == nil {
		return nil
	}
	rows, err := tx.Query(ctx, `SELECT id, parent_role_id FROM roles FOR UPDATE`)
	if err != nil {
		return fmt.Errorf("roles: lock hierarchy: %w", err)
	}
	defer rows.Close()
	var snapshot []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.ParentRoleID); err != nil {
			return err
		}
		snapshot = append(snapshot, role)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	return guard(NewHierarchy(snapshot))
}

func translateError(op string, err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrCycle), errors.Is(err, ErrParentNotFound), errors.Is(err, ErrRoleInUse):
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ErrDuplicateName
		case "23503":
			if op == "delete" {
				return ErrRoleInUse
			}
			return ErrParentNotFound
		}
	}
	return fmt.Errorf("roles: %s: %w", op, err)
}
