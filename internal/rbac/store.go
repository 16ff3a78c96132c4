package rbac

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the persistence port of the RBAC service.
type Store interface {
	ListPermissions(ctx context.Context) ([]Permission, error)
	EnsurePermission(ctx context.Context, name, description string) (Permission, error)
	RolePermissionIDs(ctx context.Context, roleID int64) ([]int64, error)
	ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error
	UserEffectivePermissions(ctx context.Context, userID int64) ([]string, error)
}

// PGStore implements Store with PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs a PGStore.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, description FROM permissions ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func (s *PGStore) EnsurePermission(ctx context.Context, name, description string) (Permission, error) {
	var p Permission
	err := s.pool.QueryRow(ctx, `INSERT INTO permissions (name, description) VALUES ($1, $2)
ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description
RETURNING id, name, description`, name, description).Scan(&p.ID, &p.Name, &p.Description)
	return p, err
}

func (s *PGStore) RolePermissionIDs(ctx context.Context, roleID int64) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT permission_id FROM role_permissions WHERE role_id = $1 ORDER BY permission_id`, roleID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (s *PGStore) ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1 AND NOT (permission_id = ANY($2))`, roleID, permissionIDs); err != nil {
		return fmt.Errorf("rbac: detach permissions: %w", err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO role_permissions (role_id, permission_id)
SELECT $1, unnest($2::bigint[])
ON CONFLICT DO NOTHING`, roleID, permissionIDs); err != nil {
		return fmt.Errorf("rbac: attach permissions: %w", err)
	}
	return tx.Commit(ctx)
}

// UserEffectivePermissions walks the role parent chain. A role flagged
// administrative anywhere on the chain grants every permission.
func (s *PGStore) UserEffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.pool.Query(ctx, `WITH RECURSIVE chain(id, parent_role_id, is_administrative, depth) AS (
	SELECT r.id, r.parent_role_id, r.is_administrative, 0
	FROM users u JOIN roles r ON r.id = u.role_id
	WHERE u.id = $1 AND u.is_active
	UNION ALL
	SELECT r.id, r.parent_role_id, r.is_administrative, c.depth + 1
	FROM roles r JOIN chain c ON r.id = c.parent_role_id
	WHERE c.depth < 32
)
SELECT p.name FROM permissions p
WHERE EXISTS (SELECT 1 FROM chain WHERE is_administrative)
   OR EXISTS (SELECT 1 FROM role_permissions rp JOIN chain c ON c.id = rp.role_id WHERE rp.permission_id = p.id)
ORDER BY p.name`, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

var _ Store = (*PGStore)(nil)
