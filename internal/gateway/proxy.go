package gateway

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/healthpoint/portal-gateway/internal/guard"
	"github.com/healthpoint/portal-gateway/pkg/types"
)

// hop-by-hop headers are not forwarded either direction
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// handleProxy forwards a portal API request to the backend with the
// session's bearer credential attached. A 401 from the backend triggers the
// token refresh protocol exactly once; on refreshed credentials the request
// is retried once, on refresh failure the session is gone and the client is
// told to re-authenticate.
func (s *Service) handleProxy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token, _ := guard.TokenFromContext(ctx)
	sid := s.sessionID(r)
	if token == "" && sid != "" {
		if sess, err := s.store.Get(ctx, sid); err == nil && sess != nil {
			token = sess.AccessToken
		}
	}

	// Buffer the body so the request can be replayed after a refresh
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, types.NewValidationError(types.ErrCodeValidationFailed, "failed to read request body", nil))
		return
	}

	resp, err := s.forward(ctx, r, body, token)
	if err != nil {
		s.writeError(w, types.NewUnavailableError("backend is unreachable", err))
		return
	}

	if resp.StatusCode == http.StatusUnauthorized && sid != "" {
		resp.Body.Close()

		access, refreshErr := s.store.Refresh(ctx, sid)
		if refreshErr != nil {
			// Terminal: the refresh protocol already tore the session down
			s.store.ClearCookies(w)
			s.writeError(w, types.NewAuthenticationError(types.ErrCodeTokenExpired, "session has expired, sign in again"))
			return
		}

		if sess, err := s.store.Get(ctx, sid); err == nil && sess != nil {
			s.store.WriteCookies(w, sess)
		}

		resp, err = s.forward(ctx, r, body, access)
		if err != nil {
			s.writeError(w, types.NewUnavailableError("backend is unreachable", err))
			return
		}
	}
	defer resp.Body.Close()

	copyHeaders(w.Header(), resp.Header)
	for _, h := range hopHeaders {
		w.Header().Del(h)
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		s.logger.Warn("Failed to stream backend response", "path", r.URL.Path, "error", err)
	}
}

// forward issues the proxied request against the backend
func (s *Service) forward(ctx context.Context, r *http.Request, body []byte, token string) (*http.Response, error) {
	target := *s.upstreamBase
	target.Path = s.upstreamBase.Path + r.URL.Path
	target.RawQuery = r.URL.RawQuery

	req, err := http.NewRequestWithContext(ctx, r.Method, target.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	copyHeaders(req.Header, r.Header)
	for _, h := range hopHeaders {
		req.Header.Del(h)
	}
	// The gateway owns the credential; never forward client cookies or
	// authorization headers upstream
	req.Header.Del("Cookie")
	req.Header.Del("Authorization")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return s.proxyClient.Do(req)
}

func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}
