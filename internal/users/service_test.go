package users

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
)

type memoryRepo struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]User
	hashes map[int64]string
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{users: make(map[int64]User), hashes: make(map[int64]string)}
}

func (m *memoryRepo) ListUsers(ctx context.Context) ([]User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]User, 0, len(m.users))
	for id := int64(1); id <= m.nextID; id++ {
		if u, ok := m.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memoryRepo) GetUser(ctx context.Context, id int64) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (m *memoryRepo) CreateUser(ctx context.Context, u User, hash string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return User{}, ErrDuplicate
		}
	}
	m.nextID++
	u.ID = m.nextID
	u.CreatedAt = time.Now().UTC()
	m.users[u.ID] = u
	m.hashes[u.ID] = hash
	return u, nil
}

func (m *memoryRepo) UpdateUser(ctx context.Context, u User) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; !ok {
		return User{}, ErrNotFound
	}
	m.users[u.ID] = u
	return u, nil
}

func (m *memoryRepo) PasswordHash(ctx context.Context, id int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hash, ok := m.hashes[id]
	if !ok {
		return "", ErrNotFound
	}
	return hash, nil
}

func (m *memoryRepo) SetPasswordHash(ctx context.Context, id int64, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.hashes[id]; !ok {
		return ErrNotFound
	}
	m.hashes[id] = hash
	return nil
}

type revocations struct {
	mu  sync.Mutex
	ids []int64
}

func (r *revocations) RevokeAllForUser(ctx context.Context, userID int64, now time.Time) error {
	r.mu.Lock()
	r.ids = append(r.ids, userID)
	r.mu.Unlock()
	return nil
}

func newTestService() (*Service, *memoryRepo, *revocations) {
	repo := newMemoryRepo()
	rev := &revocations{}
	return NewService(repo, bcrypt.MinCost, rev), repo, rev
}

func TestCreateUserHashesPassword(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	u, err := svc.CreateUser(ctx, CreateInput{Username: "apoteker", Email: " Apoteker@Example.com ", Name: "Apoteker", Password: "rahasia123", IsActive: true})
	require.NoError(t, err)
	assert.Equal(t, "apoteker@example.com", u.Email)
	assert.NotEqual(t, "rahasia123", repo.hashes[u.ID])
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.hashes[u.ID]), []byte("rahasia123")))

	_, err = svc.CreateUser(ctx, CreateInput{Username: "apoteker", Email: "other@example.com", Name: "Copy", Password: "rahasia123"})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.ErrorIs(t, err, httpx.ErrDuplicate)
}

func TestCreateUserValidation(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.CreateUser(context.Background(), CreateInput{Username: "a b", Email: "nope", Password: "short"})
	var fieldErrs FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Equal(t, "may only contain letters and digits", fieldErrs["username"])
	assert.Equal(t, "must be a valid email address", fieldErrs["email"])
	assert.Equal(t, "is required", fieldErrs["name"])
	assert.Equal(t, "must be at least 8 characters", fieldErrs["password"])
	assert.ErrorIs(t, err, httpx.ErrValidation)
}

func TestDeactivationRevokesTokens(t *testing.T) {
	svc, _, rev := newTestService()
	ctx := context.Background()
	u, err := svc.CreateUser(ctx, CreateInput{Username: "kasir", Email: "kasir@example.com", Name: "Kasir", Password: "rahasia123", IsActive: true})
	require.NoError(t, err)

	updated, err := svc.UpdateUser(ctx, u.ID, ProfileInput{Email: "kasir@example.com", Name: "Kasir Satu", IsActive: true})
	require.NoError(t, err)
	assert.Equal(t, "Kasir Satu", updated.Name)
	assert.Empty(t, rev.ids)

	_, err = svc.UpdateUser(ctx, u.ID, ProfileInput{Email: "kasir@example.com", Name: "Kasir Satu", IsActive: false})
	require.NoError(t, err)
	assert.Equal(t, []int64{u.ID}, rev.ids)

	_, err = svc.UpdateUser(ctx, 99, ProfileInput{Email: "x@example.com", Name: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChangePassword(t *testing.T) {
	svc, repo, rev := newTestService()
	ctx := context.Background()
	u, err := svc.CreateUser(ctx, CreateInput{Username: "gudang", Email: "gudang@example.com", Name: "Gudang", Password: "rahasia123", IsActive: true})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.ChangePassword(ctx, u.ID, "salah12345", "baru123456"), ErrWrongPassword)
	var fieldErrs FieldErrors
	assert.ErrorAs(t, svc.ChangePassword(ctx, u.ID, "rahasia123", "short"), &fieldErrs)

	require.NoError(t, svc.ChangePassword(ctx, u.ID, "rahasia123", "baru123456"))
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.hashes[u.ID]), []byte("baru123456")))
	assert.Equal(t, []int64{u.ID}, rev.ids)

	require.NoError(t, svc.ChangePassword(ctx, u.ID, "", "reset12345"))
	assert.ErrorIs(t, svc.ChangePassword(ctx, 404, "", "reset12345"), ErrNotFound)
}
