package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthpoint/portal-gateway/pkg/config"
	"github.com/healthpoint/portal-gateway/pkg/logger"
	"github.com/healthpoint/portal-gateway/pkg/types"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := NewClient(&config.UpstreamConfig{BaseURL: server.URL, Timeout: 5}, logger.New("error"))
	return client, server
}

func TestLogin_Success(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/login/", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "pat@example.com", req["email"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"access":  "access-token",
			"refresh": "refresh-token",
			"user": map[string]interface{}{
				"id":       "user-1",
				"email":    "pat@example.com",
				"verified": true,
				"role":     "patient",
			},
		})
	})

	grant, err := client.Login(context.Background(), "pat@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "access-token", grant.Access)
	assert.Equal(t, "refresh-token", grant.Refresh)
	require.NotNil(t, grant.User)
	assert.Equal(t, "user-1", grant.User.ID)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"detail": "No active account found"})
	})

	_, err := client.Login(context.Background(), "pat@example.com", "wrong")

	var perr *types.PortalError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, types.ErrCodeInvalidCredentials, perr.Code)
	assert.Equal(t, types.ErrorTypeAuthentication, perr.Type)
}

func TestLogin_BackendDown(t *testing.T) {
	client, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	server.Close()

	_, err := client.Login(context.Background(), "pat@example.com", "secret")

	var perr *types.PortalError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, types.ErrCodeServiceUnavailable, perr.Code)
}

func TestLogin_ServerError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.Login(context.Background(), "pat@example.com", "secret")

	var perr *types.PortalError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, types.ErrCodeServiceUnavailable, perr.Code)
}

func TestRefreshToken_Expired(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"detail": "Token is invalid or expired"})
	})

	_, err := client.RefreshToken(context.Background(), "dead-refresh")

	var perr *types.PortalError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, types.ErrCodeTokenExpired, perr.Code)
}

func TestRefreshToken_Success(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/token/refresh/", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{"access": "new-access"})
	})

	access, err := client.RefreshToken(context.Background(), "refresh-token")
	require.NoError(t, err)
	assert.Equal(t, "new-access", access)
}

func TestRequestPasswordReset_DoesNotLeakAccountExistence(t *testing.T) {
	// Backend rejects the unknown address; the client still reports success
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"detail": "User not found"})
	})

	err := client.RequestPasswordReset(context.Background(), "nobody@example.com")
	assert.NoError(t, err)
}

func TestRequestPasswordReset_SurfacesOutage(t *testing.T) {
	client, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	server.Close()

	err := client.RequestPasswordReset(context.Background(), "pat@example.com")

	var perr *types.PortalError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, types.ErrCodeServiceUnavailable, perr.Code)
}

func TestResendVerification_DoesNotLeakAccountExistence(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	err := client.ResendVerification(context.Background(), "nobody@example.com")
	assert.NoError(t, err)
}

func TestGetUser_SendsBearerToken(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer access-token", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":    "user-1",
			"email": "pat@example.com",
			"role":  "patient",
			"professional_data": map[string]interface{}{
				"id":          "pro-1",
				"is_verified": true,
			},
			"has_professional_access": true,
		})
	})

	user, err := client.GetUser(context.Background(), "access-token")
	require.NoError(t, err)
	assert.Equal(t, "user-1", user.ID)
	assert.True(t, user.CanUseProfessionalView())
}

func TestGetUser_ExpiredToken(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.GetUser(context.Background(), "stale-token")

	var perr *types.PortalError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, types.ErrCodeTokenExpired, perr.Code)
}

func TestSaveDashboardPreference(t *testing.T) {
	var got map[string]string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/user/dashboard-preference/", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	})

	err := client.SaveDashboardPreference(context.Background(), "access-token", types.ViewProfessional)
	require.NoError(t, err)
	assert.Equal(t, "professional", got["view_type"])
}

func TestRegister_ValidationRejected(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"detail": "password too short"})
	})

	_, err := client.Register(context.Background(), &types.RegistrationRequest{
		Email:    "pat@example.com",
		Password: "x",
	})

	var perr *types.PortalError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, types.ErrCodeValidationFailed, perr.Code)
	assert.Contains(t, perr.Message, "password too short")
}
