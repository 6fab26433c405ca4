package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/healthpoint/portal-gateway/pkg/monitoring"
	"github.com/healthpoint/portal-gateway/pkg/types"
)

// handleHealth reports service health
func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleLogin establishes a session from credentials
func (s *Service) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, types.NewValidationError(types.ErrCodeValidationFailed, "invalid request body", nil))
		return
	}
	if req.Email == "" || req.Password == "" {
		s.writeError(w, types.NewValidationError(types.ErrCodeValidationFailed, "email and password are required", nil))
		return
	}

	sess, err := s.store.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if err := s.store.Persist(r.Context(), w, sess); err != nil {
		s.writeError(w, err)
		return
	}
	monitoring.SessionOpened()

	currentView := s.switcher.Bootstrap(r.Context(), sess)
	s.logger.Audit(sess.User.ID, "login", "session", true, nil)

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":         sess.User,
		"current_view": currentView,
		"expires_at":   sess.ExpiresAt,
	})
}

// handleRegister submits a registration; no session is established until
// the account completes email verification
func (s *Service) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req types.RegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, types.NewValidationError(types.ErrCodeValidationFailed, "invalid request body", nil))
		return
	}
	if req.Email == "" || req.Password == "" {
		s.writeError(w, types.NewValidationError(types.ErrCodeValidationFailed, "email and password are required", nil))
		return
	}

	result, err := s.auth.Register(r.Context(), &req)
	if err != nil {
		monitoring.RecordAuthAttempt("register", false)
		s.writeError(w, err)
		return
	}
	monitoring.RecordAuthAttempt("register", true)

	s.writeJSON(w, http.StatusCreated, result)
}

// handleVerifyEmail consumes the one-time token from the emailed link and
// establishes a session directly, without a subsequent login step
func (s *Service) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" && r.Method == http.MethodPost {
		var req struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			token = req.Token
		}
	}
	if token == "" {
		s.writeError(w, types.NewValidationError(types.ErrCodeValidationFailed, "verification token is required", nil))
		return
	}

	grant, err := s.auth.VerifyEmail(r.Context(), token)
	if err != nil {
		monitoring.RecordAuthAttempt("verify_email", false)
		s.writeError(w, err)
		return
	}

	sess, err := s.store.Establish(grant)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.store.Persist(r.Context(), w, sess); err != nil {
		s.writeError(w, err)
		return
	}
	monitoring.RecordAuthAttempt("verify_email", true)
	monitoring.SessionOpened()

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":         sess.User,
		"current_view": s.switcher.Bootstrap(r.Context(), sess),
		"expires_at":   sess.ExpiresAt,
	})
}

// handleSocialLogin exchanges a provider assertion for a session
func (s *Service) handleSocialLogin(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)["provider"]

	var req struct {
		Assertion string `json:"assertion"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Assertion == "" {
		s.writeError(w, types.NewValidationError(types.ErrCodeValidationFailed, "provider assertion is required", nil))
		return
	}

	grant, err := s.auth.SocialLogin(r.Context(), provider, req.Assertion)
	if err != nil {
		monitoring.RecordAuthAttempt("social_login", false)
		s.writeError(w, err)
		return
	}

	sess, err := s.store.Establish(grant)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.store.Persist(r.Context(), w, sess); err != nil {
		s.writeError(w, err)
		return
	}
	monitoring.RecordAuthAttempt("social_login", true)
	monitoring.SessionOpened()

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":         sess.User,
		"current_view": s.switcher.Bootstrap(r.Context(), sess),
		"expires_at":   sess.ExpiresAt,
	})
}

// handlePasswordReset requests a reset email. The response shape is the
// same whether or not the account exists.
func (s *Service) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	email, ok := s.decodeEmail(w, r)
	if !ok {
		return
	}
	if err := s.auth.RequestPasswordReset(r.Context(), email); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"message": "If an account exists for this address, an email has been sent",
	})
}

// handleResendVerification resends the verification email with the same
// non-leaking contract as handlePasswordReset
func (s *Service) handleResendVerification(w http.ResponseWriter, r *http.Request) {
	email, ok := s.decodeEmail(w, r)
	if !ok {
		return
	}
	if err := s.auth.ResendVerification(r.Context(), email); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"message": "If an account exists for this address, an email has been sent",
	})
}

// handleRefresh explicitly refreshes the session's access token
func (s *Service) handleRefresh(w http.ResponseWriter, r *http.Request) {
	sid := s.sessionID(r)
	if sid == "" {
		s.writeError(w, types.NewAuthenticationError(types.ErrCodeSessionNotFound, "no active session"))
		return
	}

	if _, err := s.store.Refresh(r.Context(), sid); err != nil {
		s.store.ClearCookies(w)
		s.writeError(w, err)
		return
	}

	sess, err := s.store.Get(r.Context(), sid)
	if err != nil || sess == nil {
		s.store.ClearCookies(w)
		s.writeError(w, types.NewAuthenticationError(types.ErrCodeSessionNotFound, "session is no longer available"))
		return
	}
	s.store.WriteCookies(w, sess)

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":    "token refreshed",
		"expires_at": sess.ExpiresAt,
	})
}

// handleLogout tears down the session. It always succeeds locally.
func (s *Service) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sid := s.sessionID(r); sid != "" {
		s.store.Logout(r.Context(), sid)
	}
	s.store.ClearCookies(w)
	s.writeJSON(w, http.StatusOK, map[string]string{
		"message":  "logged out",
		"redirect": "/auth/login",
	})
}

// handleSession returns the cached identity without a network call
func (s *Service) handleSession(w http.ResponseWriter, r *http.Request) {
	user := s.store.GetUser(r.Context(), s.sessionID(r))
	if user == nil {
		s.writeError(w, types.NewAuthenticationError(types.ErrCodeSessionNotFound, "no active session"))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"user": user,
	})
}

// handleSwitchView performs the guarded patient/professional transition.
// The capability invariant is re-validated against the freshest known user
// record on every attempt, not only at login.
func (s *Service) handleSwitchView(w http.ResponseWriter, r *http.Request) {
	sid := s.sessionID(r)
	if sid == "" {
		s.writeError(w, types.NewAuthenticationError(types.ErrCodeSessionNotFound, "no active session"))
		return
	}

	var req struct {
		View types.ViewRole `json:"view"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, types.NewValidationError(types.ErrCodeValidationFailed, "invalid request body", nil))
		return
	}

	sess, err := s.store.RefreshUser(r.Context(), sid)
	if err != nil {
		// Freshness is best-effort: fall back to the cached record rather
		// than fail the switch on a backend hiccup
		s.logger.Warn("Falling back to cached user for view switch", "session_id", sid, "error", err)
		sess, err = s.store.Get(r.Context(), sid)
		if err != nil || sess == nil {
			s.writeError(w, types.NewAuthenticationError(types.ErrCodeSessionNotFound, "no active session"))
			return
		}
	}

	route, err := s.switcher.Switch(r.Context(), sess, req.View)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"current_view": req.View,
		"route":        route,
	})
}

// decodeEmail reads the {"email": ...} request body shared by the
// password-reset and resend-verification endpoints
func (s *Service) decodeEmail(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		s.writeError(w, types.NewValidationError(types.ErrCodeValidationFailed, "email is required", nil))
		return "", false
	}
	return req.Email, true
}

// writeJSON writes a JSON response
func (s *Service) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}

// writeError maps an error onto the portal taxonomy and writes it
func (s *Service) writeError(w http.ResponseWriter, err error) {
	var perr *types.PortalError
	if errors.As(err, &perr) {
		s.writeJSON(w, perr.HTTPStatus(), map[string]interface{}{
			"error":   perr.Code,
			"message": perr.Message,
			"details": perr.Details,
		})
		return
	}

	s.logger.Error("Internal server error", "error", err)
	s.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
		"error":   types.ErrCodeInternalError,
		"message": "An internal error occurred",
	})
}
