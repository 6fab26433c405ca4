package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/healthpoint/portal-gateway/internal/gateway"
	"github.com/healthpoint/portal-gateway/internal/guard"
	"github.com/healthpoint/portal-gateway/internal/session"
	"github.com/healthpoint/portal-gateway/internal/upstream"
	"github.com/healthpoint/portal-gateway/internal/view"
	"github.com/healthpoint/portal-gateway/pkg/config"
	"github.com/healthpoint/portal-gateway/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	appLogger := logger.New(cfg.LogLevel)

	// Backend API client
	authClient := upstream.NewClient(&cfg.Upstream, appLogger)

	// Session persistence: Redis when configured, in-process otherwise
	var sessionRepo session.Repository
	var prefs view.PreferenceStore
	if cfg.Redis.Enabled {
		redisClient := session.NewRedisClient(&cfg.Redis)
		sessionRepo = session.NewRedisRepository(redisClient, time.Duration(cfg.Session.TTL)*time.Second)
		prefs = view.NewRedisPreferences(redisClient, 30*24*time.Hour)
		appLogger.Info("Using Redis session storage", "host", cfg.Redis.Host, "port", cfg.Redis.Port)
	} else {
		sessionRepo = session.NewMemoryRepository()
		prefs = view.NewMemoryPreferences()
		appLogger.Info("Using in-memory session storage")
	}

	sessionStore := session.NewStore(sessionRepo, authClient, cfg.Session, appLogger)
	switcher := view.NewSwitcher(prefs, authClient, appLogger)

	// Route guard
	policy := guard.NewPolicy(cfg.Routes.PublicPrefixes)
	routeGuard := guard.New(policy, guard.Config{
		LoginPath:    cfg.Routes.LoginPath,
		TokenCookie:  cfg.Session.TokenCookieName,
		CookieDomain: cfg.Session.CookieDomain,
		CookieSecure: cfg.Session.CookieSecure,
		CookieMaxAge: cfg.Session.CookieMaxAge,
	}, appLogger)

	// Gateway service
	gatewayService, err := gateway.NewService(cfg, sessionStore, switcher, authClient, routeGuard, appLogger)
	if err != nil {
		appLogger.Error("Failed to build gateway service", "error", err)
		os.Exit(1)
	}

	// Start the server in a goroutine
	go func() {
		appLogger.Info("Starting portal gateway server", "port", cfg.Server.Port, "upstream", cfg.Upstream.BaseURL)
		if err := gatewayService.Start(""); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down portal gateway server...")

	if err := gatewayService.Stop(); err != nil {
		appLogger.Error("Failed to shutdown server gracefully", "error", err)
		os.Exit(1)
	}

	appLogger.Info("Portal gateway server stopped")
}
