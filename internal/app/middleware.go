package app

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/odyssey-erp/odyssey-pos/internal/authstate"
	"github.com/odyssey-erp/odyssey-pos/internal/observability"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultRatePerMinute  = 120
)

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	AuthState      authstate.Middleware
	Metrics        *observability.Metrics
}

// MiddlewareStack returns the global chain in mount order.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout, perMinute := defaultRequestTimeout, defaultRatePerMinute
	if cfg.Config != nil {
		if cfg.Config.AppRequestTimeout > 0 {
			timeout = cfg.Config.AppRequestTimeout
		}
		if cfg.Config.RateLimitPerMinute > 0 {
			perMinute = cfg.Config.RateLimitPerMinute
		}
	}

	chain := []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		loadSession(cfg.SessionManager, logger),
		middleware.Recoverer,
		middleware.Timeout(timeout),
		securityHeaders(cfg.Config, logger),
		middleware.Compress(5),
		httprate.Limit(perMinute, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)),
		verifyCSRF(cfg.CSRFManager, cfg.SessionManager.CookieName(), logger),
		cfg.AuthState.Load,
	}
	if cfg.Metrics != nil {
		chain = append(chain, cfg.Metrics.Middleware)
	}
	return chain
}

// sessionless reports whether an API call authenticates without the browser
// session: it carries a bearer token or no session cookie at all.
func sessionless(r *http.Request, cookieName string) bool {
	if !strings.HasPrefix(r.URL.Path, "/api/") {
		return false
	}
	if _, bearer := authstate.BearerToken(r); bearer {
		return true
	}
	_, err := r.Cookie(cookieName)
	return err != nil
}

// csrfExempt lets safe methods and sessionless API calls through without a
// token.
func csrfExempt(r *http.Request, cookieName string) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return sessionless(r, cookieName)
}

// loadSession attaches the browser session to the request context and saves
// it right before the response header goes out.
func loadSession(sessions *shared.SessionManager, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sessionless(r, sessions.CookieName()) {
				next.ServeHTTP(w, r)
				return
			}
			sess, err := sessions.Load(r.Context(), r)
			if err != nil {
				logger.Error("load session", slog.Any("error", err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			r = r.WithContext(shared.ContextWithSession(r.Context(), sess))
			next.ServeHTTP(&committingWriter{ResponseWriter: w, req: r, sess: sess, sessions: sessions, logger: logger}, r)
		})
	}
}

// committingWriter persists the session on the first header write so the
// Set-Cookie header is still mutable.
type committingWriter struct {
	http.ResponseWriter
	req       *http.Request
	sess      *shared.Session
	sessions  *shared.SessionManager
	logger    *slog.Logger
	committed bool
}

func (w *committingWriter) commit() {
	if w.committed {
		return
	}
	w.committed = true
	if err := w.sessions.Commit(w.req.Context(), w.ResponseWriter, w.req, w.sess); err != nil {
		w.logger.Error("commit session", slog.Any("error", err))
	}
}

func (w *committingWriter) WriteHeader(code int) {
	w.commit()
	w.ResponseWriter.WriteHeader(code)
}

func (w *committingWriter) Write(p []byte) (int, error) {
	if !w.committed {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(p)
}

func (w *committingWriter) Flush() {
	w.commit()
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *committingWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// securityHeaders applies unrolled/secure. The CSP allows blob: and
// mediastream: media so the scanner page can read the camera.
func securityHeaders(cfg *Config, logger *slog.Logger) func(http.Handler) http.Handler {
	production := cfg != nil && cfg.IsProduction()
	sec := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		PermissionsPolicy:     "camera=(self), microphone=(), geolocation=()",
		ContentSecurityPolicy: "default-src 'self'; img-src 'self' data: blob:; media-src 'self' blob: mediastream:",
		SSLRedirect:           production,
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:         !production,
	})
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := sec.Process(w, r); err != nil {
				logger.Warn("secure headers blocked request", slog.Any("error", err))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func verifyCSRF(csrf *shared.CSRFManager, cookieName string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if csrfExempt(r, cookieName) {
				next.ServeHTTP(w, r)
				return
			}
			err := csrf.VerifyToken(r.Context(), shared.SessionFromContext(r.Context()), shared.TokenFromRequest(r))
			if err != nil {
				logger.Warn("csrf validation failed", slog.String("path", r.URL.Path), slog.Any("error", err))
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
