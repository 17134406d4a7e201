package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/guildboard/guildboard/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Identity      IdentityConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Tenant        TenantConfig
	Session       SessionConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// IdentityConfig holds remote identity service settings
type IdentityConfig struct {
	// BaseURL is the identity service root, e.g. https://id.example.com/auth/v1
	BaseURL string
	// APIKey is the public API key sent with every identity request
	APIKey string
	// SessionFile persists the provider session blob across restarts
	SessionFile string
	// OIDCIssuer enables access-token verification against the issuer's
	// JWKS when set
	OIDCIssuer string
	// OIDCClientID restricts verified tokens to one audience; empty skips
	// the audience check
	OIDCClientID string
}

// DatabaseConfig holds the profile/tenant store settings
type DatabaseConfig struct {
	// PostgresURL is the lib/pq connection string
	PostgresURL string
}

// RedisConfig holds the rate-limit store settings. An empty URL selects
// the SQL rate-limit store instead.
type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

// TenantConfig holds tenant routing settings
type TenantConfig struct {
	// BaseDomain anchors subdomain parsing, e.g. guildboard.io
	BaseDomain string
}

// SessionConfig holds session manager settings
type SessionConfig struct {
	// StateDir is where user/tenant snapshots persist
	StateDir string
	// ProbeSchedule is the liveness probe cron spec
	ProbeSchedule string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("GUILDBOARD_HOST", "0.0.0.0"),
			Port:            getEnv("GUILDBOARD_PORT", "8080"),
			ReadTimeout:     getEnvDuration("GUILDBOARD_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("GUILDBOARD_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("GUILDBOARD_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("GUILDBOARD_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Identity: IdentityConfig{
			BaseURL:      getEnv("GUILDBOARD_IDENTITY_URL", ""),
			APIKey:       getEnv("GUILDBOARD_IDENTITY_API_KEY", ""),
			SessionFile:  getEnv("GUILDBOARD_SESSION_FILE", ""),
			OIDCIssuer:   getEnv("GUILDBOARD_OIDC_ISSUER", ""),
			OIDCClientID: getEnv("GUILDBOARD_OIDC_CLIENT_ID", ""),
		},
		Database: DatabaseConfig{
			PostgresURL: getEnv("GUILDBOARD_POSTGRES_URL", ""),
		},
		Redis: RedisConfig{
			URL:      getEnv("GUILDBOARD_REDIS_URL", ""),
			Password: getEnv("GUILDBOARD_REDIS_PASSWORD", ""),
			DB:       getEnvInt("GUILDBOARD_REDIS_DB", 0),
		},
		Tenant: TenantConfig{
			BaseDomain: getEnv("GUILDBOARD_BASE_DOMAIN", "guildboard.io"),
		},
		Session: SessionConfig{
			StateDir:      getEnv("GUILDBOARD_STATE_DIR", ""),
			ProbeSchedule: getEnv("GUILDBOARD_PROBE_SCHEDULE", "@every 5m"),
		},
		Observability: ObservabilityConfig{
			LogLevel:       observability.ParseLogLevel(getEnv("GUILDBOARD_LOG_LEVEL", "info")),
			MetricsEnabled: getEnvBool("GUILDBOARD_METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Identity.BaseURL == "" {
		return fmt.Errorf("identity service URL is required")
	}
	if c.Database.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Tenant.BaseDomain == "" {
		return fmt.Errorf("base domain is required")
	}
	if c.Identity.OIDCClientID != "" && c.Identity.OIDCIssuer == "" {
		return fmt.Errorf("OIDC issuer is required when a client ID is set")
	}
	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
