package view

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/healthpoint/portal-gateway/pkg/logger"
	"github.com/healthpoint/portal-gateway/pkg/types"
)

type MockSyncer struct {
	mock.Mock
}

func (m *MockSyncer) SaveDashboardPreference(ctx context.Context, accessToken string, view types.ViewRole) error {
	args := m.Called(ctx, accessToken, view)
	return args.Error(0)
}

func patientSession() *types.Session {
	return &types.Session{
		ID:          "sess-1",
		AccessToken: "access-token",
		User: &types.User{
			ID:       "user-1",
			Email:    "pat@example.com",
			Verified: true,
			Role:     types.ViewPatient,
		},
	}
}

func professionalSession() *types.Session {
	sess := patientSession()
	sess.User.HasProfessionalAccess = true
	sess.User.ProfessionalData = &types.ProfessionalData{ID: "pro-1", IsVerified: true}
	return sess
}

func newTestSwitcher(syncer PreferenceSyncer) (*Switcher, *MemoryPreferences) {
	prefs := NewMemoryPreferences()
	return NewSwitcher(prefs, syncer, logger.New("error")), prefs
}

func TestSwitch_DeniedWithoutCapabilityFlag(t *testing.T) {
	sw, prefs := newTestSwitcher(new(MockSyncer))
	sess := patientSession()

	_, err := sw.Switch(context.Background(), sess, types.ViewProfessional)

	var perr *types.PortalError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, types.ErrCodeAccessDenied, perr.Code)

	// A denied switch makes no state change
	_, ok, _ := prefs.Get(context.Background(), "user-1")
	assert.False(t, ok)
}

func TestSwitch_DeniedWithoutIdentityVerification(t *testing.T) {
	sw, prefs := newTestSwitcher(new(MockSyncer))

	// Capability flag alone is not enough: the professional identity
	// verification is independent and must also hold
	sess := patientSession()
	sess.User.HasProfessionalAccess = true
	sess.User.ProfessionalData = &types.ProfessionalData{ID: "pro-1", IsVerified: false}

	_, err := sw.Switch(context.Background(), sess, types.ViewProfessional)

	var perr *types.PortalError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, types.ErrCodeAccessDenied, perr.Code)

	_, ok, _ := prefs.Get(context.Background(), "user-1")
	assert.False(t, ok)
}

func TestSwitch_AllowedForVerifiedProfessional(t *testing.T) {
	syncer := new(MockSyncer)
	sw, prefs := newTestSwitcher(syncer)
	sess := professionalSession()

	syncer.On("SaveDashboardPreference", mock.Anything, "access-token", types.ViewProfessional).Return(nil)

	route, err := sw.Switch(context.Background(), sess, types.ViewProfessional)
	require.NoError(t, err)
	assert.Equal(t, ProfessionalRoute, route)

	cached, ok, err := prefs.Get(context.Background(), "user-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.ViewProfessional, cached)
	syncer.AssertExpectations(t)
}

func TestSwitch_SyncFailureDoesNotRollBack(t *testing.T) {
	syncer := new(MockSyncer)
	sw, prefs := newTestSwitcher(syncer)
	sess := professionalSession()

	syncer.On("SaveDashboardPreference", mock.Anything, "access-token", types.ViewProfessional).
		Return(errors.New("backend down"))

	route, err := sw.Switch(context.Background(), sess, types.ViewProfessional)
	require.NoError(t, err, "preference sync is eventually consistent, not transactional")
	assert.Equal(t, ProfessionalRoute, route)

	cached, ok, _ := prefs.Get(context.Background(), "user-1")
	require.True(t, ok)
	assert.Equal(t, types.ViewProfessional, cached)
}

func TestSwitch_ToPatientAlwaysAllowed(t *testing.T) {
	syncer := new(MockSyncer)
	sw, _ := newTestSwitcher(syncer)
	sess := patientSession()

	syncer.On("SaveDashboardPreference", mock.Anything, "access-token", types.ViewPatient).Return(nil)

	route, err := sw.Switch(context.Background(), sess, types.ViewPatient)
	require.NoError(t, err)
	assert.Equal(t, PatientRoute, route)
}

func TestSwitch_UnknownViewRejected(t *testing.T) {
	sw, _ := newTestSwitcher(new(MockSyncer))

	_, err := sw.Switch(context.Background(), patientSession(), types.ViewRole("admin"))

	var perr *types.PortalError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, types.ErrCodeValidationFailed, perr.Code)
}

func TestBootstrap_DefaultsToPatient(t *testing.T) {
	sw, _ := newTestSwitcher(new(MockSyncer))

	got := sw.Bootstrap(context.Background(), patientSession())
	assert.Equal(t, types.ViewPatient, got)
}

func TestBootstrap_ValidCachedPreferenceWins(t *testing.T) {
	sw, prefs := newTestSwitcher(new(MockSyncer))
	sess := professionalSession()

	require.NoError(t, prefs.Save(context.Background(), "user-1", types.ViewProfessional))

	// No switch call needed: the cold start lands on professional directly
	got := sw.Bootstrap(context.Background(), sess)
	assert.Equal(t, types.ViewProfessional, got)
}

func TestBootstrap_StaleCacheSilentlyDowngrades(t *testing.T) {
	sw, prefs := newTestSwitcher(new(MockSyncer))

	// Professional access revoked since last session: server now reports
	// the identity as unverified
	sess := professionalSession()
	sess.User.ProfessionalData.IsVerified = false
	sess.User.LastActiveView = types.ViewProfessional

	require.NoError(t, prefs.Save(context.Background(), "user-1", types.ViewProfessional))

	got := sw.Bootstrap(context.Background(), sess)
	assert.Equal(t, types.ViewPatient, got)

	// The stale cache is overwritten, not merely ignored
	cached, ok, _ := prefs.Get(context.Background(), "user-1")
	require.True(t, ok)
	assert.Equal(t, types.ViewPatient, cached)
}

func TestBootstrap_ServerPreferenceUsedWithoutCache(t *testing.T) {
	sw, _ := newTestSwitcher(new(MockSyncer))
	sess := professionalSession()
	sess.User.LastActiveView = types.ViewProfessional

	got := sw.Bootstrap(context.Background(), sess)
	assert.Equal(t, types.ViewProfessional, got)
}

func TestBootstrap_InvalidServerPreferenceFallsBack(t *testing.T) {
	sw, _ := newTestSwitcher(new(MockSyncer))

	sess := patientSession()
	sess.User.LastActiveView = types.ViewProfessional

	got := sw.Bootstrap(context.Background(), sess)
	assert.Equal(t, types.ViewPatient, got)
}
