package roles

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
)

type memoryRepo struct {
	mu     sync.Mutex
	nextID int64
	roles  map[int64]Role
	users  map[int64]int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{roles: make(map[int64]Role), users: make(map[int64]int)}
}

func (m *memoryRepo) snapshot() []Role {
	out := make([]Role, 0, len(m.roles))
	for _, r := range m.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (m *memoryRepo) ListRoles(ctx context.Context) ([]Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot(), nil
}

func (m *memoryRepo) GetRole(ctx context.Context, id int64) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[id]
	if !ok {
		return Role{}, ErrNotFound
	}
	return r, nil
}

func (m *memoryRepo) nameTaken(name string, except int64) bool {
	for _, r := range m.roles {
		if r.ID != except && r.Name == name {
			return true
		}
	}
	return false
}

func (m *memoryRepo) CreateRole(ctx context.Context, role Role, guard Guard) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := guard(NewHierarchy(m.snapshot())); err != nil {
		return Role{}, err
	}
	if m.nameTaken(role.Name, 0) {
		return Role{}, ErrDuplicateName
	}
	m.nextID++
	role.ID = m.nextID
	m.roles[role.ID] = role
	return role, nil
}

func (m *memoryRepo) UpdateRole(ctx context.Context, role Role, guard Guard) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := guard(NewHierarchy(m.snapshot())); err != nil {
		return Role{}, err
	}
	if m.nameTaken(role.Name, role.ID) {
		return Role{}, ErrDuplicateName
	}
	m.roles[role.ID] = role
	return role, nil
}

func (m *memoryRepo) DeleteRole(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[id]; !ok {
		return ErrNotFound
	}
	if m.users[id] > 0 {
		return ErrRoleInUse
	}
	for _, r := range m.roles {
		if r.ParentRoleID != nil && *r.ParentRoleID == id {
			return ErrRoleInUse
		}
	}
	delete(m.roles, id)
	return nil
}

func TestCreateRoleValidates(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.CreateRole(ctx, Input{Name: "   "})
	var fieldErrs FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Equal(t, "is required", fieldErrs["name"])
	assert.ErrorIs(t, err, httpx.ErrValidation)

	admin, err := svc.CreateRole(ctx, Input{Name: " Administrator ", IsAdministrative: true, CanEditModel: true})
	require.NoError(t, err)
	assert.Equal(t, "Administrator", admin.Name)

	_, err = svc.CreateRole(ctx, Input{Name: "Administrator"})
	assert.ErrorIs(t, err, ErrDuplicateName)

	_, err = svc.CreateRole(ctx, Input{Name: "Orphan", ParentRoleID: ptr(77)})
	assert.ErrorIs(t, err, ErrParentNotFound)
}

func TestUpdateRoleRejectsCycles(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	admin, err := svc.CreateRole(ctx, Input{Name: "Administrator"})
	require.NoError(t, err)
	inv, err := svc.CreateRole(ctx, Input{Name: "Inventory Admin", ParentRoleID: &admin.ID})
	require.NoError(t, err)
	clerk, err := svc.CreateRole(ctx, Input{Name: "Inventory Clerk", ParentRoleID: &inv.ID})
	require.NoError(t, err)

	_, err = svc.UpdateRole(ctx, admin.ID, Input{Name: "Administrator", ParentRoleID: &clerk.ID})
	assert.ErrorIs(t, err, ErrCycle)
	_, err = svc.UpdateRole(ctx, inv.ID, Input{Name: "Inventory Admin", ParentRoleID: &inv.ID})
	assert.ErrorIs(t, err, ErrCycle)

	updated, err := svc.UpdateRole(ctx, clerk.ID, Input{Name: "Stock Clerk", ParentRoleID: &admin.ID})
	require.NoError(t, err)
	assert.Equal(t, "Stock Clerk", updated.Name)

	tree, err := svc.Hierarchy(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{admin.ID}, tree.Ancestors(clerk.ID))

	_, err = svc.UpdateRole(ctx, 404, Input{Name: "Ghost"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteRoleInUse(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	parent, err := svc.CreateRole(ctx, Input{Name: "Administrator"})
	require.NoError(t, err)
	child, err := svc.CreateRole(ctx, Input{Name: "Cashier", ParentRoleID: &parent.ID})
	require.NoError(t, err)
	repo.users[child.ID] = 2

	assert.ErrorIs(t, svc.DeleteRole(ctx, parent.ID), ErrRoleInUse)
	assert.ErrorIs(t, svc.DeleteRole(ctx, child.ID), ErrRoleInUse)
	assert.ErrorIs(t, svc.DeleteRole(ctx, 0), ErrNotFound)

	repo.users[child.ID] = 0
	require.NoError(t, svc.DeleteRole(ctx, child.ID))
	require.NoError(t, svc.DeleteRole(ctx, parent.ID))
	roles, err := svc.ListRoles(ctx)
	require.NoError(t, err)
	assert.Empty(t, roles)
}
