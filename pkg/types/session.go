package types

import "time"

// Session represents an authenticated portal session. It is owned
// exclusively by the session store: created on login, email verification or
// social auth, mutated on token refresh, destroyed on logout or
// irrecoverable refresh failure.
type Session struct {
	ID           string    `json:"id"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	User         *User     `json:"user"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Validate enforces the session invariant: access token and user are both
// present or the session is not a session at all. A partial session must
// never be observable.
func (s *Session) Validate() error {
	if s == nil || s.ID == "" {
		return NewInternalError("INVALID_SESSION", "session has no identifier", nil)
	}
	if s.AccessToken == "" || s.User == nil {
		return NewInternalError("PARTIAL_SESSION", "session must carry both an access token and a user", nil)
	}
	return nil
}

// Clone returns a deep copy of the session
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	clone := *s
	clone.User = s.User.Clone()
	return &clone
}
