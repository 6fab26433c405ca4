package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/healthpoint/portal-gateway/pkg/config"
	"github.com/healthpoint/portal-gateway/pkg/logger"
	"github.com/healthpoint/portal-gateway/pkg/types"
)

// Client is a typed HTTP client for the external backend API. Every
// operation maps transport and API failures onto the portal error taxonomy;
// none of them retries internally, callers decide whether a retry is safe.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

// TokenGrant is the token payload the backend returns whenever a session is
// established (login, email verification, social auth)
type TokenGrant struct {
	Access  string      `json:"access"`
	Refresh string      `json:"refresh"`
	User    *types.User `json:"user"`
}

// NewClient creates a new backend API client
func NewClient(cfg *config.UpstreamConfig, log *logger.Logger) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     log,
	}
}

// Login exchanges credentials for a token grant
func (c *Client) Login(ctx context.Context, email, password string) (*TokenGrant, error) {
	var grant TokenGrant
	err := c.do(ctx, http.MethodPost, "/api/login/", "", map[string]string{
		"email":    email,
		"password": password,
	}, &grant)
	if err != nil {
		if isClientError(err) {
			return nil, types.NewAuthenticationError(types.ErrCodeInvalidCredentials, "invalid email or password")
		}
		return nil, err
	}
	return &grant, nil
}

// Register submits a new account profile. No session is established; the
// account requires email verification before first login.
func (c *Client) Register(ctx context.Context, req *types.RegistrationRequest) (*types.RegistrationResult, error) {
	var result types.RegistrationResult
	err := c.do(ctx, http.MethodPost, "/api/register/", "", req, &result)
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.status < 500 {
			return nil, types.NewValidationError(types.ErrCodeValidationFailed, apiErr.detailOr("registration rejected"), nil)
		}
		return nil, err
	}
	return &result, nil
}

// VerifyEmail consumes a one-time verification token delivered out-of-band
// and establishes a session directly from the verification callback.
func (c *Client) VerifyEmail(ctx context.Context, token string) (*TokenGrant, error) {
	var grant TokenGrant
	err := c.do(ctx, http.MethodPost, "/api/verify-email/", "", map[string]string{
		"token": token,
	}, &grant)
	if err != nil {
		if isClientError(err) {
			return nil, types.NewAuthenticationError(types.ErrCodeInvalidCredentials, "verification link is invalid or has expired")
		}
		return nil, err
	}
	return &grant, nil
}

// SocialLogin exchanges a provider assertion for a token grant
func (c *Client) SocialLogin(ctx context.Context, provider, assertion string) (*TokenGrant, error) {
	var grant TokenGrant
	path := fmt.Sprintf("/api/social-auth/%s/", provider)
	err := c.do(ctx, http.MethodPost, path, "", map[string]string{
		"access_token": assertion,
	}, &grant)
	if err != nil {
		if isClientError(err) {
			return nil, types.NewAuthenticationError(types.ErrCodeInvalidCredentials, "social sign-in was rejected")
		}
		return nil, err
	}
	return &grant, nil
}

// RefreshToken exchanges a refresh token for a new access token
func (c *Client) RefreshToken(ctx context.Context, refresh string) (string, error) {
	var resp struct {
		Access string `json:"access"`
	}
	err := c.do(ctx, http.MethodPost, "/api/token/refresh/", "", map[string]string{
		"refresh": refresh,
	}, &resp)
	if err != nil {
		if isClientError(err) {
			return "", types.NewAuthenticationError(types.ErrCodeTokenExpired, "refresh token is no longer valid")
		}
		return "", err
	}
	if resp.Access == "" {
		return "", types.NewUnavailableError("backend returned an empty access token", nil)
	}
	return resp.Access, nil
}

// Logout invalidates the session server-side. Callers treat this as
// best-effort; local teardown proceeds regardless of the outcome.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, "/api/logout/", accessToken, nil, nil)
}

// GetUser fetches the freshest identity record for the bearer
func (c *Client) GetUser(ctx context.Context, accessToken string) (*types.User, error) {
	var user types.User
	err := c.do(ctx, http.MethodGet, "/api/user/", accessToken, nil, &user)
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.status == http.StatusUnauthorized {
			return nil, types.NewAuthenticationError(types.ErrCodeTokenExpired, "access token has expired")
		}
		return nil, err
	}
	return &user, nil
}

// RequestPasswordReset asks the backend to send a reset email. The response
// is success-shaped whether or not the address exists; account existence
// must not leak to the caller.
func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	err := c.do(ctx, http.MethodPost, "/api/reset-password/", "", map[string]string{
		"email": email,
	}, nil)
	if isClientError(err) {
		c.logger.Debug("Password reset rejected upstream", "error", err)
		return nil
	}
	return err
}

// ResendVerification asks the backend to resend the verification email,
// with the same non-leaking contract as RequestPasswordReset
func (c *Client) ResendVerification(ctx context.Context, email string) error {
	err := c.do(ctx, http.MethodPost, "/api/resend-verification/", "", map[string]string{
		"email": email,
	}, nil)
	if isClientError(err) {
		c.logger.Debug("Verification resend rejected upstream", "error", err)
		return nil
	}
	return err
}

// SaveDashboardPreference reports the user's chosen view to the backend.
// Failures are tolerated by callers; the preference is eventually consistent.
func (c *Client) SaveDashboardPreference(ctx context.Context, accessToken string, view types.ViewRole) error {
	err := c.do(ctx, http.MethodPost, "/api/user/dashboard-preference/", accessToken, map[string]string{
		"view_type": string(view),
	}, nil)
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.status == http.StatusUnauthorized {
			return types.NewAuthenticationError(types.ErrCodeTokenExpired, "access token has expired")
		}
	}
	return err
}

// apiError carries a non-2xx backend response back to the operation that
// issued the request; each operation decides how it maps onto the taxonomy
type apiError struct {
	status int
	detail string
}

func (e *apiError) Error() string {
	if e.detail != "" {
		return fmt.Sprintf("backend responded %d: %s", e.status, e.detail)
	}
	return fmt.Sprintf("backend responded %d", e.status)
}

func (e *apiError) detailOr(fallback string) string {
	if e.detail != "" {
		return e.detail
	}
	return fallback
}

// isClientError reports whether err is a backend 4xx response
func isClientError(err error) bool {
	var apiErr *apiError
	return errors.As(err, &apiErr) && apiErr.status >= 400 && apiErr.status < 500
}

// do issues a JSON request against the backend. Network failures and 5xx
// responses become ServiceUnavailable; 4xx responses come back as *apiError
// so the caller can map them per operation.
func (c *Client) do(ctx context.Context, method, path, accessToken string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return types.NewInternalError(types.ErrCodeInternalError, "failed to encode request body", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return types.NewInternalError(types.ErrCodeInternalError, "failed to build backend request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return types.NewUnavailableError("backend is unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return types.NewUnavailableError(fmt.Sprintf("backend responded %d", resp.StatusCode), nil)
	}

	if resp.StatusCode >= 400 {
		return &apiError{status: resp.StatusCode, detail: readDetail(resp.Body)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return types.NewUnavailableError("backend returned a malformed response", err)
		}
	}
	return nil
}

// readDetail extracts the conventional {"detail": "..."} error message
func readDetail(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return ""
	}
	var payload struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return ""
	}
	if payload.Detail != "" {
		return payload.Detail
	}
	return payload.Message
}
