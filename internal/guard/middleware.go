package guard

import (
	"context"
	"net/http"
	"strings"

	"github.com/healthpoint/portal-gateway/pkg/logger"
)

type contextKey string

const tokenContextKey contextKey = "access_token"

// Guard decides, per request, between pass-through, redirect to login and
// cookie repair. It only checks that a credential is present; validity is
// enforced by the backend and by the token refresh protocol reacting to
// 401s. That separation is deliberate.
type Guard struct {
	policy       *Policy
	loginPath    string
	tokenCookie  string
	cookieDomain string
	cookieSecure bool
	cookieMaxAge int
	logger       *logger.Logger
}

// Config holds the guard configuration
type Config struct {
	LoginPath    string
	TokenCookie  string
	CookieDomain string
	CookieSecure bool
	CookieMaxAge int
}

// New creates a new route guard
func New(policy *Policy, cfg Config, log *logger.Logger) *Guard {
	return &Guard{
		policy:       policy,
		loginPath:    cfg.LoginPath,
		tokenCookie:  cfg.TokenCookie,
		cookieDomain: cfg.CookieDomain,
		cookieSecure: cfg.CookieSecure,
		cookieMaxAge: cfg.CookieMaxAge,
		logger:       log,
	}
}

// Middleware intercepts every request and applies the route policy
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Public paths pass unconditionally, before any token inspection
		if g.policy.Classify(r.URL.Path) == Public {
			next.ServeHTTP(w, r)
			return
		}

		token, fromHeader := g.resolveToken(r)
		if token == "" {
			// Proactively clear any stale cookie on the way to login
			g.clearCookie(w)
			g.logger.Debug("Redirecting unauthenticated request", "path", r.URL.Path)
			http.Redirect(w, r, g.loginPath, http.StatusFound)
			return
		}

		// Header-only token: pass the request through and mirror the token
		// into the cookie so subsequent requests resolve it there. This
		// repairs client/edge transport skew without failing the request.
		if fromHeader {
			g.setCookie(w, token)
		}

		ctx := context.WithValue(r.Context(), tokenContextKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TokenFromContext returns the access token the guard resolved for this
// request
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenContextKey).(string)
	return token, ok && token != ""
}

// resolveToken extracts the credential, preferring the cookie transport and
// falling back to the Authorization header
func (g *Guard) resolveToken(r *http.Request) (token string, fromHeader bool) {
	if c, err := r.Cookie(g.tokenCookie); err == nil && c.Value != "" {
		return c.Value, false
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func (g *Guard) setCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     g.tokenCookie,
		Value:    token,
		Path:     "/",
		Domain:   g.cookieDomain,
		MaxAge:   g.cookieMaxAge,
		Secure:   g.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (g *Guard) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     g.tokenCookie,
		Value:    "",
		Path:     "/",
		Domain:   g.cookieDomain,
		MaxAge:   -1,
		Secure:   g.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
