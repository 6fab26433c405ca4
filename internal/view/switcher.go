package view

import (
	"context"

	"github.com/healthpoint/portal-gateway/pkg/logger"
	"github.com/healthpoint/portal-gateway/pkg/monitoring"
	"github.com/healthpoint/portal-gateway/pkg/types"
)

// Routes the portal navigates to after a switch
const (
	PatientRoute      = "/dashboard/patient"
	ProfessionalRoute = "/dashboard/professional"
)

// PreferenceSyncer reports the chosen view to the backend
type PreferenceSyncer interface {
	SaveDashboardPreference(ctx context.Context, accessToken string, view types.ViewRole) error
}

// Switcher is the patient/professional two-state machine. All capability
// checking lives in the single guarded transition; the professional view is
// reachable only when both the account capability flag and the professional
// identity verification hold, re-checked on every attempt.
type Switcher struct {
	prefs  PreferenceStore
	syncer PreferenceSyncer
	logger *logger.Logger
}

// NewSwitcher creates a new view switcher
func NewSwitcher(prefs PreferenceStore, syncer PreferenceSyncer, log *logger.Logger) *Switcher {
	return &Switcher{
		prefs:  prefs,
		syncer: syncer,
		logger: log,
	}
}

// Switch performs the guarded transition to the target view. A denied
// switch makes no state change at all. On success the local preference is
// updated and the server is notified best-effort: sync failure is logged
// and never rolls back the local switch.
func (s *Switcher) Switch(ctx context.Context, sess *types.Session, target types.ViewRole) (string, error) {
	if !target.Valid() {
		return "", types.NewValidationError(types.ErrCodeValidationFailed, "unknown view: "+string(target), nil)
	}

	if target == types.ViewProfessional && !sess.User.CanUseProfessionalView() {
		monitoring.RecordViewSwitch(string(target), false)
		s.logger.Security("professional_view_denied", sess.User.ID, map[string]interface{}{
			"has_professional_access": sess.User.HasProfessionalAccess,
		})
		return "", types.NewAuthorizationError(types.ErrCodeAccessDenied, "professional view is not available for this account")
	}

	if err := s.prefs.Save(ctx, sess.User.ID, target); err != nil {
		return "", types.NewInternalError(types.ErrCodeInternalError, "failed to store view preference", err)
	}

	if err := s.syncer.SaveDashboardPreference(ctx, sess.AccessToken, target); err != nil {
		// Preference sync is eventually consistent, not transactional
		s.logger.Warn("Failed to sync view preference upstream", "user_id", sess.User.ID, "view", target, "error", err)
	}

	monitoring.RecordViewSwitch(string(target), true)
	return RouteFor(target), nil
}

// Bootstrap derives the view for a cold start. Precedence, first match
// wins: locally cached preference when still valid, then the server's
// last_active_view when valid, then patient. An invalid cached preference
// silently downgrades to patient and overwrites the stale cache; the user
// never sees an error from bootstrap.
func (s *Switcher) Bootstrap(ctx context.Context, sess *types.Session) types.ViewRole {
	user := sess.User

	cached, ok, err := s.prefs.Get(ctx, user.ID)
	if err != nil {
		s.logger.Warn("Failed to read cached view preference", "user_id", user.ID, "error", err)
	}
	if ok {
		if s.allowed(user, cached) {
			return cached
		}
		if err := s.prefs.Save(ctx, user.ID, types.ViewPatient); err != nil {
			s.logger.Warn("Failed to overwrite stale view preference", "user_id", user.ID, "error", err)
		}
		return types.ViewPatient
	}

	if s.allowed(user, user.LastActiveView) {
		return user.LastActiveView
	}

	return types.ViewPatient
}

// RouteFor returns the dashboard route for a view
func RouteFor(v types.ViewRole) string {
	if v == types.ViewProfessional {
		return ProfessionalRoute
	}
	return PatientRoute
}

func (s *Switcher) allowed(user *types.User, v types.ViewRole) bool {
	switch v {
	case types.ViewPatient:
		return true
	case types.ViewProfessional:
		return user.CanUseProfessionalView()
	default:
		return false
	}
}
