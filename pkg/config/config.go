package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/croplink/croplink/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Auth          AuthConfig
	Audit         AuditConfig
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

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL         string
	ReplicaURLs string
	MaxConns    int
	MaxIdle     int
	ConnTimeout time.Duration
}

// RedisConfig holds Redis configuration for distributed rate limiting
type RedisConfig struct {
	URL      string
	Password string
	DB       int
	Enabled  bool
}

// AuthConfig holds authentication and principal-cache configuration
type AuthConfig struct {
	PrincipalCacheSize int
	PrincipalCacheTTL  time.Duration
	TokenCleanupCron   string
}

// AuditConfig holds audit trail settings. Events always go to the database;
// a file path adds a newline-delimited JSON copy.
type AuditConfig struct {
	FilePath string
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
			Host:            getEnv("CROPLINK_HOST", "0.0.0.0"),
			Port:            getEnv("CROPLINK_PORT", "8080"),
			ReadTimeout:     getEnvDuration("CROPLINK_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("CROPLINK_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("CROPLINK_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("CROPLINK_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("CROPLINK_HEALTH_PORT", "9090"),
		},
		Database: DatabaseConfig{
			URL:         getEnv("CROPLINK_POSTGRES_URL", ""),
			ReplicaURLs: getEnv("CROPLINK_POSTGRES_REPLICA_URLS", ""),
			MaxConns:    getEnvInt("CROPLINK_POSTGRES_MAX_CONNS", 25),
			MaxIdle:     getEnvInt("CROPLINK_POSTGRES_MAX_IDLE", 5),
			ConnTimeout: getEnvDuration("CROPLINK_POSTGRES_TIMEOUT", 10*time.Second),
		},
		Redis: RedisConfig{
			URL:      getEnv("CROPLINK_REDIS_URL", ""),
			Password: getEnv("CROPLINK_REDIS_PASSWORD", ""),
			DB:       getEnvInt("CROPLINK_REDIS_DB", 0),
			Enabled:  getEnvBool("CROPLINK_REDIS_ENABLED", false),
		},
		Auth: AuthConfig{
			PrincipalCacheSize: getEnvInt("CROPLINK_PRINCIPAL_CACHE_SIZE", 4096),
			PrincipalCacheTTL:  getEnvDuration("CROPLINK_PRINCIPAL_CACHE_TTL", 30*time.Second),
			TokenCleanupCron:   getEnv("CROPLINK_TOKEN_CLEANUP_CRON", "@hourly"),
		},
		Audit: AuditConfig{
			FilePath: getEnv("CROPLINK_AUDIT_LOG_FILE", ""),
		},
		Observability: ObservabilityConfig{
			LogLevel:       parseLogLevel(getEnv("CROPLINK_LOG_LEVEL", "info")),
			MetricsEnabled: getEnvBool("CROPLINK_METRICS_ENABLED", true),
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
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Redis.Enabled && c.Redis.URL == "" {
		return fmt.Errorf("redis URL is required when redis is enabled")
	}
	if c.Auth.PrincipalCacheSize <= 0 {
		return fmt.Errorf("principal cache size must be positive")
	}
	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
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
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
