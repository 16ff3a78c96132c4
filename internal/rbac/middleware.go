package rbac

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/odyssey-erp/odyssey-pos/internal/authstate"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
)

// PermissionSource resolves the permissions granted to a user.
type PermissionSource interface {
	EffectivePermissions(ctx context.Context, userID int64) ([]string, error)
}

// Middleware guards routes by permission. Grants are resolved at most once
// per request, however many guards and Allowed calls the request passes.
type Middleware struct {
	Service PermissionSource
	Logger  *slog.Logger
}

type grantsKey struct{}

type grantsMemo struct {
	once   sync.Once
	grants Grants
	err    error
}

// RequireAny ensures the current user has at least one of the required permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return m.require("rbac require any", requirement(perms), Grants.Any)
}

// RequireAll ensures the current user has all required permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	return m.require("rbac require all", requirement(perms), Grants.All)
}

// Allowed reports whether the request's user holds perm. Lookup failures deny.
func (m Middleware) Allowed(r *http.Request, perm string) bool {
	grants, ok, err := m.grants(r)
	if err != nil {
		m.logError("rbac allowed", err)
		return false
	}
	return ok && grants.Has(perm)
}

func (m Middleware) require(op string, required []string, check func(Grants, []string) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(required) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			if r.Context().Value(grantsKey{}) == nil {
				r = r.WithContext(context.WithValue(r.Context(), grantsKey{}, &grantsMemo{}))
			}
			grants, ok, err := m.grants(r)
			switch {
			case err != nil:
				m.logError(op, err)
				deny(w, r, http.StatusInternalServerError)
			case !ok || !check(grants, required):
				deny(w, r, http.StatusForbidden)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// grants returns the user's grants; ok is false without a principal.
func (m Middleware) grants(r *http.Request) (Grants, bool, error) {
	principal, ok := authstate.PrincipalFromContext(r.Context())
	if !ok || m.Service == nil {
		return nil, false, nil
	}
	load := func() (Grants, error) {
		names, err := m.Service.EffectivePermissions(r.Context(), principal.UserID)
		if err != nil {
			return nil, err
		}
		return NewGrants(names), nil
	}
	memo, _ := r.Context().Value(grantsKey{}).(*grantsMemo)
	if memo == nil {
		g, err := load()
		return g, err == nil, err
	}
	memo.once.Do(func() { memo.grants, memo.err = load() })
	return memo.grants, memo.err == nil, memo.err
}

func (m Middleware) logError(op string, err error) {
	if m.Logger != nil {
		m.Logger.Error(op, slog.Any("error", err))
	}
}

func deny(w http.ResponseWriter, r *http.Request, status int) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		if status == http.StatusForbidden {
			httpx.RespondError(w, httpx.ErrForbidden)
		} else {
			httpx.Problem(w, status, "Internal Error", "")
		}
		return
	}
	http.Error(w, http.StatusText(status), status)
}
