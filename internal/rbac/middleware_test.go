package rbac

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/authstate"
	"github.com/odyssey-erp/odyssey-pos/internal/token"
)

type staticSource map[int64][]string

func (s staticSource) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	if userID == 99 {
		return nil, errors.New("db down")
	}
	return s[userID], nil
}

func serveAs(t *testing.T, mw func(http.Handler) http.Handler, path string, userID int64) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if userID > 0 {
		req = req.WithContext(authstate.ContextWithPrincipal(req.Context(), token.Principal{UserID: userID, Username: "u"}))
	}
	rec := httptest.NewRecorder()
	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})).ServeHTTP(rec, req)
	return rec
}

func TestRequireAny(t *testing.T) {
	m := Middleware{Service: staticSource{1: {"products.view"}, 2: {"users.view"}}}
	mw := m.RequireAny("Products.View", "labels.print")

	assert.Equal(t, http.StatusTeapot, serveAs(t, mw, "/products", 1).Code)
	assert.Equal(t, http.StatusForbidden, serveAs(t, mw, "/products", 2).Code)
	assert.Equal(t, http.StatusForbidden, serveAs(t, mw, "/products", 0).Code)
	assert.Equal(t, http.StatusInternalServerError, serveAs(t, mw, "/products", 99).Code)
}

func TestRequireAll(t *testing.T) {
	m := Middleware{Service: staticSource{1: {"products.view", "products.edit"}, 2: {"products.view"}}}
	mw := m.RequireAll("products.view", "products.edit")

	assert.Equal(t, http.StatusTeapot, serveAs(t, mw, "/products/new", 1).Code)
	assert.Equal(t, http.StatusForbidden, serveAs(t, mw, "/products/new", 2).Code)
}

func TestAPIDenialIsProblemJSON(t *testing.T) {
	m := Middleware{Service: staticSource{2: {"users.view"}}}
	rec := serveAs(t, m.RequireAny("products.view"), "/api/products", 2)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestEmptyRequirementPassesThrough(t *testing.T) {
	m := Middleware{}
	assert.Equal(t, http.StatusTeapot, serveAs(t, m.RequireAny(" "), "/", 0).Code)
}

type countingSource struct {
	calls int
	perms []string
}

func (c *countingSource) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	c.calls++
	return c.perms, nil
}

func TestGrantsResolvedOncePerRequest(t *testing.T) {
	src := &countingSource{perms: []string{"products.view", "labels.print"}}
	m := Middleware{Service: src}

	var allowed bool
	handler := m.RequireAny("products.view")(m.RequireAll("labels.print")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed = m.Allowed(r, "LABELS.PRINT")
		w.WriteHeader(http.StatusNoContent)
	})))
	req := httptest.NewRequest(http.MethodGet, "/products", nil)
	req = req.WithContext(authstate.ContextWithPrincipal(req.Context(), token.Principal{UserID: 1}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, allowed)
	assert.Equal(t, 1, src.calls)
}

func TestGrants(t *testing.T) {
	g := NewGrants([]string{" Products.View ", "", "pos.scan"})
	assert.True(t, g.Has("products.view"))
	assert.True(t, g.Any([]string{"users.edit", "pos.scan"}))
	assert.False(t, g.All([]string{"pos.scan", "users.edit"}))
	assert.True(t, g.Any(nil))
	assert.Len(t, g, 2)
}

func TestGroupPermissions(t *testing.T) {
	groups := GroupPermissions([]Permission{
		{Name: "users.view"},
		{Name: "products.edit"},
		{Name: "products.view"},
		{Name: "products.barcode.scan"},
	})
	require.Len(t, groups, 2)
	assert.Equal(t, "products", groups[0].Module)
	names := make([]string, 0, len(groups[0].Permissions))
	for _, p := range groups[0].Permissions {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"products.barcode.scan", "products.edit", "products.view"}, names)
	assert.Equal(t, "users", groups[1].Module)
}
