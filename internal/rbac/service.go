package rbac

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// ErrUnknownPermission is returned when an assignment names a missing permission.
var ErrUnknownPermission = errors.New("rbac: unknown permission")

// Catalog describes every permission the application checks.
var Catalog = map[string]string{
	shared.PermDashboardView:  "View the dashboard",
	shared.PermUsersView:      "List users",
	shared.PermUsersEdit:      "Create and edit users",
	shared.PermRolesView:      "List roles",
	shared.PermRolesEdit:      "Create and edit roles",
	shared.PermProductsView:   "Browse the product catalog",
	shared.PermProductsEdit:   "Create, edit and delete products",
	shared.PermProductsImport: "Bulk import products",
	shared.PermLabelsPrint:    "Print barcode labels",
	shared.PermPOSScan:        "Scan barcodes at the point of sale",
}

// Service orchestrates RBAC operations.
type Service struct {
	store Store
}

// NewService constructs a Service backed by the provided store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// ListPermissions returns all permissions ordered by name.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.store.ListPermissions(ctx)
}

// SyncCatalog makes sure every permission in Catalog exists.
func (s *Service) SyncCatalog(ctx context.Context) (map[string]int64, error) {
	names := make([]string, 0, len(Catalog))
	for name := range Catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	ids := make(map[string]int64, len(names))
	for _, name := range names {
		p, err := s.store.EnsurePermission(ctx, name, Catalog[name])
		if err != nil {
			return nil, err
		}
		ids[p.Name] = p.ID
	}
	return ids, nil
}

// RolePermissionIDs lists the permissions attached directly to a role.
func (s *Service) RolePermissionIDs(ctx context.Context, roleID int64) ([]int64, error) {
	return s.store.RolePermissionIDs(ctx, roleID)
}

// SetRolePermissions replaces permissions for a role.
func (s *Service) SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	known, err := s.store.ListPermissions(ctx)
	if err != nil {
		return err
	}
	valid := make(map[int64]struct{}, len(known))
	for _, p := range known {
		valid[p.ID] = struct{}{}
	}
	unique := make([]int64, 0, len(permissionIDs))
	seen := make(map[int64]struct{}, len(permissionIDs))
	for _, id := range permissionIDs {
		if _, ok := valid[id]; !ok {
			return ErrUnknownPermission
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	return s.store.ReplaceRolePermissions(ctx, roleID, unique)
}

// EffectivePermissions returns deduplicated permission names for a user,
// including those inherited from parent roles.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.store.UserEffectivePermissions(ctx, userID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(rows))
	perms := make([]string, 0, len(rows))
	for _, p := range rows {
		p = strings.ToLower(p)
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		perms = append(perms, p)
	}
	return perms, nil
}
