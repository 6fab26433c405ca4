package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/healthpoint/portal-gateway/internal/guard"
	"github.com/healthpoint/portal-gateway/internal/session"
	"github.com/healthpoint/portal-gateway/internal/upstream"
	"github.com/healthpoint/portal-gateway/internal/view"
	"github.com/healthpoint/portal-gateway/pkg/config"
	"github.com/healthpoint/portal-gateway/pkg/logger"
	"github.com/healthpoint/portal-gateway/pkg/monitoring"
)

// Service implements the portal edge gateway: auth endpoints, the route
// guard, and the authenticated reverse proxy to the backend API
type Service struct {
	router        *mux.Router
	server        *http.Server
	store         *session.Store
	switcher      *view.Switcher
	auth          *upstream.Client
	guard         *guard.Guard
	limiter       *RateLimiter
	upstreamBase  *url.URL
	proxyClient   *http.Client
	sessionCookie string
	logger        *logger.Logger
}

// NewService creates a new portal gateway service
func NewService(cfg *config.Config, store *session.Store, switcher *view.Switcher, auth *upstream.Client, rg *guard.Guard, log *logger.Logger) (*Service, error) {
	base, err := url.Parse(strings.TrimRight(cfg.Upstream.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid upstream base URL: %w", err)
	}

	s := &Service{
		router:        mux.NewRouter(),
		store:         store,
		switcher:      switcher,
		auth:          auth,
		guard:         rg,
		upstreamBase:  base,
		proxyClient:   &http.Client{Timeout: time.Duration(cfg.Upstream.Timeout) * time.Second},
		sessionCookie: cfg.Session.CookieName,
		logger:        log,
	}

	if cfg.RateLimit.Enabled {
		s.limiter = NewRateLimiter(cfg.RateLimit.Requests, time.Duration(cfg.RateLimit.Period)*time.Second)
		s.limiter.StartCleanup(time.Hour)
	}

	s.setupRoutes(cfg)
	s.setupMiddleware()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	return s, nil
}

// Start starts the gateway server
func (s *Service) Start(addr string) error {
	if addr != "" {
		s.server.Addr = addr
	}

	s.logger.Info("Starting portal gateway", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Stop stops the gateway server
func (s *Service) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.logger.Info("Stopping portal gateway")
	return s.server.Shutdown(ctx)
}

// Handler exposes the router, used by tests
func (s *Service) Handler() http.Handler {
	return s.router
}

// setupRoutes sets up the routing
func (s *Service) setupRoutes(cfg *config.Config) {
	// Health and metrics
	s.router.HandleFunc(cfg.Monitoring.HealthPath, s.handleHealth).Methods("GET")
	if cfg.Monitoring.Enabled {
		s.router.Handle(cfg.Monitoring.MetricsPath, monitoring.Handler()).Methods("GET")
	}

	// Authentication endpoints
	auth := s.router.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/login", s.handleLogin).Methods("POST")
	auth.HandleFunc("/register", s.handleRegister).Methods("POST")
	auth.HandleFunc("/verify-email", s.handleVerifyEmail).Methods("GET", "POST")
	auth.HandleFunc("/social/{provider}", s.handleSocialLogin).Methods("POST")
	auth.HandleFunc("/password-reset", s.handlePasswordReset).Methods("POST")
	auth.HandleFunc("/resend-verification", s.handleResendVerification).Methods("POST")
	auth.HandleFunc("/refresh", s.handleRefresh).Methods("POST")
	auth.HandleFunc("/logout", s.handleLogout).Methods("POST")
	auth.HandleFunc("/session", s.handleSession).Methods("GET")
	auth.HandleFunc("/view", s.handleSwitchView).Methods("POST")

	// Everything under /api/ proxies to the backend with the session's
	// bearer credential attached
	s.router.PathPrefix("/api/").HandlerFunc(s.handleProxy)
}

// setupMiddleware sets up the middleware chain
func (s *Service) setupMiddleware() {
	s.router.Use(s.corsMiddleware)
	s.router.Use(s.securityHeadersMiddleware)
	s.router.Use(s.metricsMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.rateLimitMiddleware)
	s.router.Use(s.guard.Middleware)
}

// sessionID resolves the opaque session cookie
func (s *Service) sessionID(r *http.Request) string {
	c, err := r.Cookie(s.sessionCookie)
	if err != nil {
		return ""
	}
	return c.Value
}
