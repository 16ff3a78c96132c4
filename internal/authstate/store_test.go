package authstate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/token"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, 30*time.Minute), mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	rec := Record{
		Principal:    token.Principal{UserID: 3, Username: "gudang", Role: "Inventory Clerk"},
		AccessToken:  "access",
		RefreshToken: "refresh",
		UpdatedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, store.Save(ctx, "sid", rec))
	assert.Equal(t, 30*time.Minute, mr.TTL("authstate:sid"))

	loaded, err := store.Load(ctx, "sid")
	require.NoError(t, err)
	assert.Equal(t, rec.Principal.UserID, loaded.Principal.UserID)
	assert.Equal(t, rec.AccessToken, loaded.AccessToken)
	assert.Equal(t, rec.RefreshToken, loaded.RefreshToken)
	assert.True(t, rec.UpdatedAt.Equal(loaded.UpdatedAt))

	require.NoError(t, store.Clear(ctx, "sid"))
	_, err = store.Load(ctx, "sid")
	assert.ErrorIs(t, err, ErrNoRecord)
	require.NoError(t, store.Clear(ctx, "sid"))
}

func TestRedisStoreIdleTimeoutSlides(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "sid", Record{AccessToken: "a"}))

	mr.FastForward(20 * time.Minute)
	_, err := store.Load(ctx, "sid")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, mr.TTL("authstate:sid"))

	mr.FastForward(31 * time.Minute)
	_, err = store.Load(ctx, "sid")
	assert.ErrorIs(t, err, ErrNoRecord)
}

func TestRedisStoreRejectsEmptySession(t *testing.T) {
	store, _ := newRedisStore(t)
	_, err := store.Load(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoRecord)
	assert.Error(t, store.Save(context.Background(), "", Record{}))
}
