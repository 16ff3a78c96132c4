package authstate

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
	"github.com/odyssey-erp/odyssey-pos/internal/token"
)

// DefaultLoginPath is where RequireLogin sends anonymous visitors.
const DefaultLoginPath = "/auth/login"

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p token.Principal) context.Context {
	ctx = context.WithValue(ctx, principalContextKey{}, p)
	return shared.ContextWithActor(ctx, p.UserID)
}

// PrincipalFromContext returns the principal resolved for the request.
func PrincipalFromContext(ctx context.Context) (token.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(token.Principal)
	if !ok || !p.Authenticated() {
		return token.Principal{}, false
	}
	return p, true
}

// BearerToken extracts the token from an Authorization: Bearer header.
func BearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(header[7:])
	return raw, raw != ""
}

// Middleware exposes the provider to HTTP handlers.
type Middleware struct {
	Provider  *Provider
	Tokens    Validator
	Logger    *slog.Logger
	LoginPath string
}

// Load resolves the session principal, if any, into the request context.
func (m Middleware) Load(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil || m.Provider == nil {
			next.ServeHTTP(w, r)
			return
		}
		if _, bearer := BearerToken(r); bearer {
			next.ServeHTTP(w, r)
			return
		}
		st := m.Provider.State(r.Context(), sess.ID)
		if st.IsAuthenticated() {
			r = r.WithContext(ContextWithPrincipal(r.Context(), st.Principal))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireLogin redirects anonymous visitors to the login page.
func (m Middleware) RequireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := PrincipalFromContext(r.Context()); ok {
			next.ServeHTTP(w, r)
			return
		}
		login := m.LoginPath
		if login == "" {
			login = DefaultLoginPath
		}
		if r.Method == http.MethodGet {
			login += "?next=" + url.QueryEscape(r.URL.RequestURI())
		}
		http.Redirect(w, r, login, http.StatusSeeOther)
	})
}

// RequireAPI authenticates API calls by bearer token, falling back to the
// session principal for calls made from the web UI.
func (m Middleware) RequireAPI(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if raw, ok := BearerToken(r); ok {
			if m.Tokens == nil {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			principal, valid := m.Tokens.Validate(raw)
			if !valid {
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
			return
		}
		if _, ok := PrincipalFromContext(r.Context()); ok {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("WWW-Authenticate", "Bearer")
		httpx.RespondError(w, httpx.ErrUnauthorized)
	})
}
