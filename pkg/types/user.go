package types

import "time"

// ViewRole represents the presentation context a session is operating in
type ViewRole string

const (
	ViewPatient      ViewRole = "patient"
	ViewProfessional ViewRole = "professional"
)

// Valid reports whether the view role is one of the known values
func (v ViewRole) Valid() bool {
	return v == ViewPatient || v == ViewProfessional
}

// ProfessionalData holds the professional identity attached to an account.
// IsVerified is an independent verification confirmed by the backend; it is
// not implied by the account-level capability flag.
type ProfessionalData struct {
	ID         string `json:"id"`
	Specialty  string `json:"specialty,omitempty"`
	IsVerified bool   `json:"is_verified"`
}

// User represents an authenticated portal account as reported by the backend
type User struct {
	ID                    string            `json:"id"`
	Email                 string            `json:"email"`
	FirstName             string            `json:"first_name,omitempty"`
	LastName              string            `json:"last_name,omitempty"`
	HPN                   string            `json:"hpn,omitempty"`
	Verified              bool              `json:"verified"`
	Role                  ViewRole          `json:"role"`
	HasProfessionalAccess bool              `json:"has_professional_access"`
	ProfessionalData      *ProfessionalData `json:"professional_data,omitempty"`
	LastActiveView        ViewRole          `json:"last_active_view,omitempty"`
	CreatedAt             time.Time         `json:"created_at,omitempty"`
}

// CanUseProfessionalView reports whether the professional view is reachable
// for this account. Both the capability flag and the professional identity
// verification must hold; callers re-check this on every switch attempt and
// every bootstrap, never only at login.
func (u *User) CanUseProfessionalView() bool {
	if u == nil {
		return false
	}
	return u.HasProfessionalAccess && u.ProfessionalData != nil && u.ProfessionalData.IsVerified
}

// Clone returns a deep copy of the user
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	clone := *u
	if u.ProfessionalData != nil {
		pd := *u.ProfessionalData
		clone.ProfessionalData = &pd
	}
	return &clone
}

// RegistrationRequest represents the profile submitted at registration.
// Registration does not establish a session; the account must complete email
// verification before first login.
type RegistrationRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Role      string `json:"role,omitempty"`
}

// RegistrationResult is the backend's response to a registration request
type RegistrationResult struct {
	Message string `json:"message"`
	User    *User  `json:"user"`
}
