package shared

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
)

func newTestSessions(t *testing.T) (*SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionManager(client, "pos_session", 30*time.Minute, false), mr
}

func commitAndCookie(t *testing.T, sm *SessionManager, sess *Session) *http.Cookie {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(context.Background(), rec, req, sess))
	for _, c := range rec.Result().Cookies() {
		if c.Name == sm.CookieName() {
			return c
		}
	}
	t.Fatalf("session cookie not written")
	return nil
}

func TestSessionRoundTrip(t *testing.T) {
	sm, mr := newTestSessions(t)
	ctx := context.Background()

	sess, err := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	sess.SetUser(12)
	sess.Set("theme", "dark")
	sess.AddFlash(FlashMessage{Kind: "success", Message: "Saved"})
	cookie := commitAndCookie(t, sm, sess)
	assert.True(t, mr.Exists("pos:session:"+sess.ID))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	loaded, err := sm.Load(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, loaded.ID)
	assert.Equal(t, int64(12), loaded.UserID())
	assert.Equal(t, sess.IssuedAt.Unix(), loaded.IssuedAt.Unix())
	assert.Equal(t, "dark", loaded.Get("theme"))
	flash := loaded.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, "Saved", flash.Message)
	assert.Nil(t, loaded.PopFlash())
}

func TestSessionUnknownIDIsNotAdopted(t *testing.T) {
	sm, _ := newTestSessions(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: sm.CookieName(), Value: "3f1c9a4e-0c2b-4d6a-9f4e-5b7a8c9d0e1f"})
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	assert.NotEqual(t, "3f1c9a4e-0c2b-4d6a-9f4e-5b7a8c9d0e1f", sess.ID)
}

func TestSessionRenewDropsOldKey(t *testing.T) {
	sm, mr := newTestSessions(t)
	ctx := context.Background()
	sess, err := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	commitAndCookie(t, sm, sess)
	oldID := sess.ID

	sm.Renew(sess)
	commitAndCookie(t, sm, sess)
	assert.NotEqual(t, oldID, sess.ID)
	assert.False(t, mr.Exists("pos:session:"+oldID))
	assert.True(t, mr.Exists("pos:session:"+sess.ID))
}

func TestSessionDestroyExpiresCookie(t *testing.T) {
	sm, mr := newTestSessions(t)
	ctx := context.Background()
	sess, err := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	commitAndCookie(t, sm, sess)

	sm.Destroy(sess)
	cookie := commitAndCookie(t, sm, sess)
	assert.Equal(t, -1, cookie.MaxAge)
	assert.False(t, mr.Exists("pos:session:"+sess.ID))
}

func TestSessionCleanLoadOnlyExtendsExpiry(t *testing.T) {
	sm, mr := newTestSessions(t)
	ctx := context.Background()
	sess, err := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	sess.Set("theme", "dark")
	cookie := commitAndCookie(t, sm, sess)

	mr.FastForward(20 * time.Minute)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	loaded, err := sm.Load(ctx, req)
	require.NoError(t, err)
	commitAndCookie(t, sm, loaded)
	assert.Equal(t, 30*time.Minute, mr.TTL("pos:session:"+sess.ID))
	assert.Equal(t, "dark", mr.HGet("pos:session:"+sess.ID, "v:theme"))
}

func TestCSRFTokenLifecycle(t *testing.T) {
	m := NewCSRFManager("csrf-secret")
	sess := &Session{ID: "abc"}
	ctx := context.Background()

	token, err := m.EnsureToken(ctx, sess)
	require.NoError(t, err)
	again, err := m.EnsureToken(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, token, again)

	require.NoError(t, m.VerifyToken(ctx, sess, token))
	assert.ErrorIs(t, m.VerifyToken(ctx, sess, "forged"), ErrCSRFTokenMismatch)
	assert.ErrorIs(t, m.VerifyToken(ctx, sess, ""), ErrCSRFTokenMissing)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(CSRFHeaderAlt, token)
	assert.Equal(t, token, TokenFromRequest(req))
}

func TestCSRFTokenBoundToSessionID(t *testing.T) {
	m := NewCSRFManager("csrf-secret")
	ctx := context.Background()
	sess := &Session{ID: "before-login"}
	token, err := m.EnsureToken(ctx, sess)
	require.NoError(t, err)

	sess.ID = "after-login"
	assert.ErrorIs(t, m.VerifyToken(ctx, sess, token), ErrCSRFTokenMismatch)

	fresh, err := m.EnsureToken(ctx, sess)
	require.NoError(t, err)
	assert.NotEqual(t, token, fresh)
	require.NoError(t, m.VerifyToken(ctx, sess, fresh))

	other := NewCSRFManager("another-secret")
	assert.ErrorIs(t, other.VerifyToken(ctx, sess, fresh), ErrCSRFTokenMismatch)
}

func TestTokenFromRequestIgnoresFormForJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("csrf_token=abc"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	assert.Equal(t, "abc", TokenFromRequest(req))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"csrf_token":"abc"}`))
	req.Header.Set("Content-Type", "application/json")
	assert.Empty(t, TokenFromRequest(req))
}

func TestUserSafeMessageHidesDetails(t *testing.T) {
	err := fmt.Errorf("products: insert: %w", errors.Join(httpx.ErrDuplicate, errors.New("pq: duplicate key products_barcode_key")))
	msg := UserSafeMessage(err)
	assert.NotContains(t, msg, "products_barcode_key")
	assert.Equal(t, "A record with the same value already exists.", msg)
	assert.Equal(t, "Something went wrong. Please try again.", UserSafeMessage(errors.New("dial tcp: refused")))
	assert.Empty(t, UserSafeMessage(nil))
}
