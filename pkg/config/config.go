package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the portal gateway
type Config struct {
	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Upstream backend API configuration
	Upstream UpstreamConfig `mapstructure:"upstream"`

	// Session configuration
	Session SessionConfig `mapstructure:"session"`

	// Redis configuration
	Redis RedisConfig `mapstructure:"redis"`

	// Route policy configuration
	Routes RoutesConfig `mapstructure:"routes"`

	// Rate limiting configuration for the credential endpoints
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// Logging configuration
	LogLevel string `mapstructure:"log_level"`

	// Monitoring configuration
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	IdleTimeout  int    `mapstructure:"idle_timeout"`
}

// UpstreamConfig holds the external backend API configuration
type UpstreamConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Timeout int    `mapstructure:"timeout"`
}

// SessionConfig holds session and cookie configuration
type SessionConfig struct {
	CookieName      string `mapstructure:"cookie_name"`
	TokenCookieName string `mapstructure:"token_cookie_name"`
	CookieDomain    string `mapstructure:"cookie_domain"`
	CookieSecure    bool   `mapstructure:"cookie_secure"`
	CookieMaxAge    int    `mapstructure:"cookie_max_age"`
	TTL             int    `mapstructure:"ttl"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// RoutesConfig holds the route policy configuration
type RoutesConfig struct {
	LoginPath      string   `mapstructure:"login_path"`
	PublicPrefixes []string `mapstructure:"public_prefixes"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled  bool `mapstructure:"enabled"`
	Requests int  `mapstructure:"requests"`
	Period   int  `mapstructure:"period"`
}

// MonitoringConfig holds monitoring configuration
type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPath string `mapstructure:"metrics_path"`
	HealthPath  string `mapstructure:"health_path"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/healthpoint")

	// Set default values
	setDefaults()

	// Enable environment variable support
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Override with environment variables
	overrideWithEnv(&config)

	// Validate configuration
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 30)
	viper.SetDefault("server.idle_timeout", 120)

	// Upstream defaults
	viper.SetDefault("upstream.timeout", 15)

	// Session defaults
	viper.SetDefault("session.cookie_name", "portal_session")
	viper.SetDefault("session.token_cookie_name", "access_token")
	viper.SetDefault("session.cookie_secure", true)
	viper.SetDefault("session.cookie_max_age", 3600) // 1 hour
	viper.SetDefault("session.ttl", 604800)          // 7 days

	// Redis defaults
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 10)

	// Route policy defaults: everything not listed here is protected
	viper.SetDefault("routes.login_path", "/auth/login")
	viper.SetDefault("routes.public_prefixes", []string{
		"/auth/login",
		"/auth/register",
		"/auth/verify-email",
		"/auth/password-reset",
		"/auth/resend-verification",
		"/auth/social",
		"/auth/refresh",
		"/auth/logout",
		"/health",
		"/metrics",
		"/static/",
	})

	// Rate limit defaults: per client, across the credential endpoints
	viper.SetDefault("rate_limit.enabled", true)
	viper.SetDefault("rate_limit.requests", 10)
	viper.SetDefault("rate_limit.period", 60)

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", true)
	viper.SetDefault("monitoring.metrics_path", "/metrics")
	viper.SetDefault("monitoring.health_path", "/health")

	// Logging defaults
	viper.SetDefault("log_level", "info")
}

// overrideWithEnv overrides configuration with environment variables
func overrideWithEnv(config *Config) {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if baseURL := os.Getenv("UPSTREAM_BASE_URL"); baseURL != "" {
		config.Upstream.BaseURL = baseURL
	}

	if redisHost := os.Getenv("REDIS_HOST"); redisHost != "" {
		config.Redis.Host = redisHost
		config.Redis.Enabled = true
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		config.LogLevel = logLevel
	}
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream base URL is required")
	}

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Session.CookieMaxAge <= 0 {
		return fmt.Errorf("invalid session cookie max age: %d", config.Session.CookieMaxAge)
	}

	if config.RateLimit.Enabled && (config.RateLimit.Requests <= 0 || config.RateLimit.Period <= 0) {
		return fmt.Errorf("invalid rate limit: %d requests per %d seconds", config.RateLimit.Requests, config.RateLimit.Period)
	}

	return nil
}
