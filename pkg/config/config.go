package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/opendesk-io/opendesk/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration (session store)
	Redis RedisConfig

	// Permission cache configuration
	Cache CacheConfig

	// Observability configuration
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

	// Metrics server (separate port for scrapers and probes)
	MetricsPort string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
}

// RedisConfig holds session store configuration
type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

// CacheConfig holds permission cache configuration
type CacheConfig struct {
	UserTTL             time.Duration
	UserCapacity        int
	SessionTTL          time.Duration
	SessionCapacity     int
	SessionMinRemaining time.Duration
	CleanupInterval     time.Duration
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
			Host:            getEnv("DESK_HOST", "0.0.0.0"),
			Port:            getEnv("DESK_PORT", "8080"),
			ReadTimeout:     getEnvDuration("DESK_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("DESK_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("DESK_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("DESK_SHUTDOWN_TIMEOUT", 30*time.Second),
			MetricsPort:     getEnv("DESK_METRICS_PORT", "9090"),
		},
		Database: DatabaseConfig{
			URL:          getEnv("DESK_POSTGRES_URL", "postgres://localhost/opendesk?sslmode=disable"),
			MaxOpenConns: getEnvInt("DESK_POSTGRES_MAX_CONNS", 25),
			MaxIdleConns: getEnvInt("DESK_POSTGRES_IDLE_CONNS", 5),
			ConnLifetime: getEnvDuration("DESK_POSTGRES_CONN_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:      getEnv("DESK_REDIS_URL", "redis://localhost:6379/0"),
			Password: getEnv("DESK_REDIS_PASSWORD", ""),
			DB:       getEnvInt("DESK_REDIS_DB", -1),
		},
		Cache: CacheConfig{
			UserTTL:             getEnvDuration("DESK_CACHE_USER_TTL", 5*time.Minute),
			UserCapacity:        getEnvInt("DESK_CACHE_USER_CAPACITY", 1000),
			SessionTTL:          getEnvDuration("DESK_CACHE_SESSION_TTL", 10*time.Minute),
			SessionCapacity:     getEnvInt("DESK_CACHE_SESSION_CAPACITY", 2000),
			SessionMinRemaining: getEnvDuration("DESK_CACHE_SESSION_MIN_REMAINING", time.Minute),
			CleanupInterval:     getEnvDuration("DESK_CACHE_CLEANUP_INTERVAL", 5*time.Minute),
		},
		Observability: ObservabilityConfig{
			LogLevel:       observability.ParseLogLevel(getEnv("DESK_LOG_LEVEL", "info")),
			MetricsEnabled: getEnvBool("DESK_METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DESK_POSTGRES_URL is required")
	}
	if c.Cache.UserTTL <= 0 || c.Cache.SessionTTL <= 0 {
		return fmt.Errorf("cache TTLs must be positive")
	}
	if c.Cache.UserCapacity <= 0 || c.Cache.SessionCapacity <= 0 {
		return fmt.Errorf("cache capacities must be positive")
	}
	if c.Cache.CleanupInterval <= 0 {
		return fmt.Errorf("cache cleanup interval must be positive")
	}
	if c.Server.Port == "" {
		return fmt.Errorf("DESK_PORT is required")
	}
	return nil
}

// Addr returns the host:port address for the HTTP server
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// MetricsAddr returns the host:port address for the metrics server
func (s ServerConfig) MetricsAddr() string {
	return s.Host + ":" + s.MetricsPort
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
