package rbac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	perms     []Permission
	rolePerms map[int64][]int64
	effective map[int64][]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{rolePerms: make(map[int64][]int64), effective: make(map[int64][]string)}
}

func (m *memoryStore) ListPermissions(ctx context.Context) ([]Permission, error) {
	return append([]Permission(nil), m.perms...), nil
}

func (m *memoryStore) EnsurePermission(ctx context.Context, name, description string) (Permission, error) {
	for i, p := range m.perms {
		if p.Name == name {
			m.perms[i].Description = description
			return m.perms[i], nil
		}
	}
	p := Permission{ID: int64(len(m.perms) + 1), Name: name, Description: description}
	m.perms = append(m.perms, p)
	return p, nil
}

func (m *memoryStore) RolePermissionIDs(ctx context.Context, roleID int64) ([]int64, error) {
	return m.rolePerms[roleID], nil
}

func (m *memoryStore) ReplaceRolePermissions(ctx context.Context, roleID int64, ids []int64) error {
	m.rolePerms[roleID] = ids
	return nil
}

func (m *memoryStore) UserEffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	return m.effective[userID], nil
}

func TestSyncCatalogIsIdempotent(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store)
	ctx := context.Background()

	first, err := svc.SyncCatalog(ctx)
	require.NoError(t, err)
	second, err := svc.SyncCatalog(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, store.perms, len(Catalog))
}

func TestSetRolePermissionsRejectsUnknownAndDedupes(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store)
	ctx := context.Background()
	ids, err := svc.SyncCatalog(ctx)
	require.NoError(t, err)

	view := ids["products.view"]
	require.NoError(t, svc.SetRolePermissions(ctx, 3, []int64{view, view}))
	got, err := svc.RolePermissionIDs(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{view}, got)

	assert.ErrorIs(t, svc.SetRolePermissions(ctx, 3, []int64{9999}), ErrUnknownPermission)
}

func TestEffectivePermissionsDedupes(t *testing.T) {
	store := newMemoryStore()
	store.effective[5] = []string{"Products.View", "products.view", "labels.print"}
	perms, err := NewService(store).EffectivePermissions(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"products.view", "labels.print"}, perms)
}
