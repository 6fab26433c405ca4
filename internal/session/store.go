package session

import (
	"context"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/healthpoint/portal-gateway/internal/upstream"
	"github.com/healthpoint/portal-gateway/pkg/config"
	"github.com/healthpoint/portal-gateway/pkg/logger"
	"github.com/healthpoint/portal-gateway/pkg/monitoring"
	"github.com/healthpoint/portal-gateway/pkg/types"
)

// AuthAPI is the slice of the backend client the store depends on
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (*upstream.TokenGrant, error)
	RefreshToken(ctx context.Context, refresh string) (string, error)
	Logout(ctx context.Context, accessToken string) error
	GetUser(ctx context.Context, accessToken string) (*types.User, error)
}

// Store owns session state: tokens and user identity are created, mutated
// and destroyed only here. Persist writes the repository record and the
// cookie mirror as one operation so the two never diverge across call sites.
type Store struct {
	repo    Repository
	auth    AuthAPI
	logger  *logger.Logger
	cookies config.SessionConfig
	flight  singleflight.Group
}

// NewStore creates a new session store
func NewStore(repo Repository, auth AuthAPI, cookies config.SessionConfig, log *logger.Logger) *Store {
	return &Store{
		repo:    repo,
		auth:    auth,
		logger:  log,
		cookies: cookies,
	}
}

// Login exchanges credentials upstream and builds a session from the grant.
// The session is not persisted yet; callers follow up with Persist so that
// repository record and cookie mirror are written together.
func (s *Store) Login(ctx context.Context, email, password string) (*types.Session, error) {
	grant, err := s.auth.Login(ctx, email, password)
	if err != nil {
		monitoring.RecordAuthAttempt("login", false)
		return nil, err
	}
	sess, err := s.Establish(grant)
	if err != nil {
		monitoring.RecordAuthAttempt("login", false)
		return nil, err
	}
	monitoring.RecordAuthAttempt("login", true)
	return sess, nil
}

// Establish builds a session from a token grant obtained by any
// session-creating flow: login, email verification or social auth. The
// session invariant is enforced before anything becomes observable.
func (s *Store) Establish(grant *upstream.TokenGrant) (*types.Session, error) {
	now := time.Now()
	sess := &types.Session{
		ID:           uuid.New().String(),
		AccessToken:  grant.Access,
		RefreshToken: grant.Refresh,
		User:         grant.User,
		ExpiresAt:    tokenExpiry(grant.Access),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := sess.Validate(); err != nil {
		return nil, err
	}
	return sess, nil
}

// Persist writes the session record and mirrors the access token into the
// cookie transport in one operation
func (s *Store) Persist(ctx context.Context, w http.ResponseWriter, sess *types.Session) error {
	if err := sess.Validate(); err != nil {
		return err
	}
	if err := s.repo.Save(ctx, sess); err != nil {
		return types.NewInternalError(types.ErrCodeInternalError, "failed to persist session", err)
	}
	s.WriteCookies(w, sess)
	return nil
}

// Get returns the session for the given ID, or nil when none exists
func (s *Store) Get(ctx context.Context, id string) (*types.Session, error) {
	if id == "" {
		return nil, nil
	}
	return s.repo.Get(ctx, id)
}

// GetUser returns the cached identity for the session without any network
// call, or nil when no session exists
func (s *Store) GetUser(ctx context.Context, id string) *types.User {
	sess, err := s.Get(ctx, id)
	if err != nil {
		s.logger.Warn("Failed to read session", "session_id", id, "error", err)
		return nil
	}
	if sess == nil {
		return nil
	}
	return sess.User
}

// RefreshUser replaces the cached identity with the freshest backend record
// and persists the result. Used before capability-guarded decisions.
func (s *Store) RefreshUser(ctx context.Context, id string) (*types.Session, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, types.NewAuthenticationError(types.ErrCodeSessionNotFound, "no active session")
	}
	user, err := s.auth.GetUser(ctx, sess.AccessToken)
	if err != nil {
		return nil, err
	}
	sess.User = user
	sess.UpdatedAt = time.Now()
	if err := s.repo.Save(ctx, sess); err != nil {
		return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to persist session", err)
	}
	return sess, nil
}

// Refresh exchanges the session's refresh token for a new access token.
// Concurrent triggers for the same session coalesce into a single upstream
// call; every waiter observes the same outcome. Any failure is terminal for
// the session: the store logs out rather than leave ambiguous state.
func (s *Store) Refresh(ctx context.Context, id string) (string, error) {
	v, err, _ := s.flight.Do(id, func() (interface{}, error) {
		sess, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if sess == nil || sess.RefreshToken == "" {
			return nil, types.NewAuthenticationError(types.ErrCodeSessionNotFound, "no active session to refresh")
		}

		access, err := s.auth.RefreshToken(ctx, sess.RefreshToken)
		if err != nil {
			monitoring.RecordTokenRefresh(false)
			// The invariant is enforced on write, not re-checked on read: a
			// corrupt record may carry no user
			userID := ""
			if sess.User != nil {
				userID = sess.User.ID
			}
			s.logger.Security("token_refresh_failed", userID, map[string]interface{}{
				"session_id": id,
			})
			s.Logout(ctx, id)
			return nil, err
		}

		sess.AccessToken = access
		sess.ExpiresAt = tokenExpiry(access)
		sess.UpdatedAt = time.Now()
		if err := s.repo.Save(ctx, sess); err != nil {
			monitoring.RecordTokenRefresh(false)
			s.Logout(ctx, id)
			return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to persist refreshed session", err)
		}
		monitoring.RecordTokenRefresh(true)
		return access, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Logout tears down the session. The upstream invalidation is best-effort,
// failure is logged and never blocks local teardown. Logout is idempotent
// and never returns an error.
func (s *Store) Logout(ctx context.Context, id string) {
	if id == "" {
		return
	}
	sess, err := s.repo.Get(ctx, id)
	if err != nil {
		s.logger.Warn("Failed to read session during logout", "session_id", id, "error", err)
	}
	if sess != nil && sess.AccessToken != "" {
		if err := s.auth.Logout(ctx, sess.AccessToken); err != nil {
			s.logger.Warn("Upstream logout failed", "session_id", id, "error", err)
		}
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		s.logger.Warn("Failed to delete session", "session_id", id, "error", err)
	}
	if sess != nil {
		monitoring.SessionClosed()
	}
}

// WriteCookies mirrors the access token into its cookie alongside the
// opaque session cookie, so edge middleware and client code observe the
// same credential without a network round trip
func (s *Store) WriteCookies(w http.ResponseWriter, sess *types.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookies.CookieName,
		Value:    sess.ID,
		Path:     "/",
		Domain:   s.cookies.CookieDomain,
		MaxAge:   s.cookies.TTL,
		Secure:   s.cookies.CookieSecure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookies.TokenCookieName,
		Value:    sess.AccessToken,
		Path:     "/",
		Domain:   s.cookies.CookieDomain,
		MaxAge:   s.cookies.CookieMaxAge,
		Secure:   s.cookies.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookies expires both session cookies
func (s *Store) ClearCookies(w http.ResponseWriter) {
	for _, name := range []string{s.cookies.CookieName, s.cookies.TokenCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			Domain:   s.cookies.CookieDomain,
			MaxAge:   -1,
			Secure:   s.cookies.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

// tokenExpiry recovers the exp claim from the access token without
// verifying the signature. The value is bookkeeping only; token validity is
// always the backend's decision, never this layer's.
func tokenExpiry(accessToken string) time.Time {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
