package gateway

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/healthpoint/portal-gateway/pkg/monitoring"
)

// corsMiddleware handles CORS headers. The origin is echoed rather than
// wildcarded: credentialed requests carry the session cookies, and browsers
// refuse Allow-Credentials combined with a wildcard origin.
func (s *Service) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Max-Age", "86400")
			w.Header().Add("Vary", "Origin")
		}

		// Handle preflight requests
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// securityHeadersMiddleware adds security headers
func (s *Service) securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs requests and responses
func (s *Service) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		recorder := &responseRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(recorder, r)

		duration := time.Since(start)

		s.logger.Info("Request processed",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"status_code", recorder.statusCode,
			"duration_ms", duration.Milliseconds(),
		)
	})
}

// metricsMiddleware records request metrics
func (s *Service) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		recorder := &responseRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(recorder, r)

		monitoring.RecordRequest(r.Method, r.URL.Path, recorder.statusCode, time.Since(start))
	})
}

// rateLimitMiddleware applies rate limiting to the credential endpoints.
// Those are reachable before authentication, so buckets are keyed by client
// address rather than user.
func (s *Service) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil || !isCredentialPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		client := clientAddr(r)
		if !s.limiter.Allow(client) {
			monitoring.RecordRateLimited(r.URL.Path)
			s.logger.Warn("Rate limit exceeded", "client", client, "path", r.URL.Path)
			s.writeJSON(w, http.StatusTooManyRequests, map[string]string{
				"error":   "RATE_LIMITED",
				"message": "too many requests, try again later",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// isCredentialPath reports whether the path is one of the auth endpoints
// worth protecting against brute force. Session reads and logout are cheap
// and harmless to repeat.
func isCredentialPath(path string) bool {
	if !strings.HasPrefix(path, "/auth/") {
		return false
	}
	return path != "/auth/session" && path != "/auth/logout"
}

// clientAddr extracts the client host from the request
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// responseRecorder captures response status code
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}
