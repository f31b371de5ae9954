// Package config handles application configuration loading and validation
// from environment variables, providing a type-safe configuration structure.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration values loaded from environment variables.
// It provides a centralized, type-safe way to access configuration throughout the application.
type Config struct {
	// Server configuration
	ListenAddr     string        // Address to listen on (e.g., ":8080")
	RequestTimeout time.Duration // Timeout for domain collaborator requests
	MaxRequestSize int64         // Maximum size of incoming requests in bytes

	// Environment
	APIEnv string // API environment: 'production', 'development', 'test'

	// Database configuration
	DatabasePath     string // Path to the SQLite database file
	DatabasePoolSize int    // Number of connections in the database pool

	// Authentication
	ManagementToken string // Token for admin operations on keys and access requests

	// Rate limiting
	CostProfilePath  string        // Path to the endpoint cost profile YAML (empty for built-in defaults)
	StoreTimeout     time.Duration // Timeout for credential store lookups
	RedisRateLimitOn bool          // Use Redis-backed rate limit counters
	RedisAddr        string        // Redis server address (e.g., "localhost:6379")
	RedisDB          int           // Redis database number
	RedisKeyPrefix   string        // Namespace prefix for Redis keys

	// Response cache
	CacheEnabled bool          // Toggle the response cache for the public data surface
	CacheTTL     time.Duration // Default TTL for cached responses
	RedisCacheOn bool          // Use the shared Redis cache backend

	// Logging
	LogLevel  string // Log level (debug, info, warn, error)
	LogFormat string // Log format (json, console)
	LogFile   string // Path to log file (empty for stdout)

	// Audit logging
	AuditLogFile   string        // Path to the append-only audit log file (empty to disable the file sink)
	AuditCreateDir bool          // Create parent directories for the audit log file
	AuditStoreInDB bool          // Persist audit entries in the database as well
	AuditTimeout   time.Duration // Per-write timeout for audit appends
}

// New creates a new configuration with values from environment variables.
// It applies default values where environment variables are not set,
// and validates required configuration settings.
func New() (*Config, error) {
	config := &Config{
		ListenAddr:     getEnvString("LISTEN_ADDR", ":8080"),
		RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		MaxRequestSize: getEnvInt64("MAX_REQUEST_SIZE", 10*1024*1024), // 10MB

		APIEnv: getEnvString("API_ENV", "development"),

		DatabasePath:     getEnvString("DATABASE_PATH", "./data/data-gateway.db"),
		DatabasePoolSize: getEnvInt("DATABASE_POOL_SIZE", 10),

		ManagementToken: getEnvString("MANAGEMENT_TOKEN", ""),

		CostProfilePath:  getEnvString("COST_PROFILE_PATH", ""),
		StoreTimeout:     getEnvDuration("STORE_TIMEOUT", 5*time.Second),
		RedisRateLimitOn: getEnvBool("REDIS_RATE_LIMIT_ENABLED", false),
		RedisAddr:        getEnvString("REDIS_ADDR", "localhost:6379"),
		RedisDB:          getEnvInt("REDIS_DB", 0),
		RedisKeyPrefix:   getEnvString("REDIS_KEY_PREFIX", "govgateway:"),

		CacheEnabled: getEnvBool("CACHE_ENABLED", true),
		CacheTTL:     getEnvDuration("CACHE_TTL", 5*time.Minute),
		RedisCacheOn: getEnvBool("REDIS_CACHE_ENABLED", false),

		LogLevel:  getEnvString("LOG_LEVEL", "info"),
		LogFormat: getEnvString("LOG_FORMAT", "json"),
		LogFile:   getEnvString("LOG_FILE", ""),

		AuditLogFile:   getEnvString("AUDIT_LOG_FILE", ""),
		AuditCreateDir: getEnvBool("AUDIT_CREATE_DIR", true),
		AuditStoreInDB: getEnvBool("AUDIT_STORE_IN_DB", true),
		AuditTimeout:   getEnvDuration("AUDIT_TIMEOUT", 2*time.Second),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the configuration for invalid or inconsistent values.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address cannot be empty")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.IsProduction() && c.ManagementToken == "" {
		return fmt.Errorf("MANAGEMENT_TOKEN is required in production")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}
	return nil
}

// IsProduction returns true when the API environment is 'production'.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.APIEnv, "production")
}

// getEnvString retrieves a string value from an environment variable,
// falling back to the provided default value if the variable is not set.
func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer value from an environment variable,
// falling back to the provided default value if the variable is not set
// or cannot be parsed as an integer.
func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		parsedValue, err := strconv.Atoi(value)
		if err == nil {
			return parsedValue
		}
	}
	return defaultValue
}

// getEnvInt64 retrieves a 64-bit integer value from an environment variable,
// falling back to the provided default value if the variable is not set
// or cannot be parsed as a 64-bit integer.
func getEnvInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		parsedValue, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			return parsedValue
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean value from an environment variable,
// falling back to the provided default value if the variable is not set
// or cannot be parsed as a boolean.
func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		parsedValue, err := strconv.ParseBool(value)
		if err == nil {
			return parsedValue
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration value from an environment variable,
// falling back to the provided default value if the variable is not set
// or cannot be parsed as a duration.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		parsedValue, err := time.ParseDuration(value)
		if err == nil {
			return parsedValue
		}
	}
	return defaultValue
}
