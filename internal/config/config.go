package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Bearer token lookup location constants
const (
	TokenLocationHeaders = "headers"
	TokenLocationForm    = "form"
	TokenLocationCookies = "cookies"
)

// Consent cache backend constants
const (
	ConsentCacheMemory = "memory"
	ConsentCacheRedis  = "redis"
)

type Config struct {
	// Server settings
	ServerAddr string
	BaseURL    string

	// Session settings
	SessionSecret string

	// Token lifetimes
	AccessTokenLifetime time.Duration // access token lifetime; refresh window is 2x this
	AuthCodeLifetime    time.Duration // authorization code lifetime

	// Scope settings
	RecognizedScopes    []string // full scope catalogue known to the server
	DefaultClientScopes []string // scopes granted to newly registered clients when none requested

	// Bearer token lookup locations, checked in order. The "headers" location
	// is absent from the default set: a discovered Authorization header fails
	// the request unless headers lookup is explicitly enabled.
	TokenLookupLocations []string

	// Database
	DatabaseDriver string // "sqlite" or "postgres"
	DatabaseDSN    string

	// Rate limiting (token endpoint)
	RateLimitEnabled   bool
	RateLimitPerMinute int
	RateLimitStore     string // "memory" or "redis"
	RedisAddr          string
	RedisPassword      string
	RedisDB            int

	// Consent request cache
	ConsentCacheBackend string // "memory" or "redis"
	ConsentRequestTTL   time.Duration

	// Expiry sweeper
	SweepInterval time.Duration

	// Observability
	MetricsEnabled  bool
	AuditEnabled    bool
	AuditBufferSize int

	// DebugMode makes rule-misuse failures panic instead of logging CRITICAL
	DebugMode bool
}

func Load() *Config {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	driver := getEnv("DATABASE_DRIVER", "sqlite")
	var dsn string
	if driver == "sqlite" {
		dsn = getEnv("DATABASE_DSN", "houston.db")
	} else {
		dsn = getEnv("DATABASE_DSN", "")
	}

	return &Config{
		ServerAddr:    getEnv("SERVER_ADDR", ":8080"),
		BaseURL:       getEnv("BASE_URL", "http://localhost:8080"),
		SessionSecret: getEnv("SESSION_SECRET", "session-secret-change-in-production"),

		AccessTokenLifetime: getEnvDuration("ACCESS_TOKEN_LIFETIME", time.Hour),
		AuthCodeLifetime:    getEnvDuration("AUTH_CODE_LIFETIME", 100*time.Second),

		RecognizedScopes: getEnvSlice("RECOGNIZED_SCOPES", []string{
			"users:read", "users:write",
			"encounters:read", "encounters:write",
			"submissions:read", "submissions:write",
			"assets:read", "assets:write",
			"organizations:read", "organizations:write",
			"teams:read", "teams:write",
			"auth:read", "auth:write",
			"admin:read", "admin:write",
		}),
		DefaultClientScopes: getEnvSlice("DEFAULT_CLIENT_SCOPES", []string{
			"users:read", "users:write",
		}),

		TokenLookupLocations: getEnvSlice("TOKEN_LOOKUP_LOCATIONS", []string{
			TokenLocationForm,
			TokenLocationCookies,
		}),

		DatabaseDriver: driver,
		DatabaseDSN:    dsn,

		RateLimitEnabled:   getEnvBool("RATE_LIMIT_ENABLED", true),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		RateLimitStore:     getEnv("RATE_LIMIT_STORE", "memory"),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisDB:            getEnvInt("REDIS_DB", 0),

		ConsentCacheBackend: getEnv("CONSENT_CACHE_BACKEND", ConsentCacheMemory),
		ConsentRequestTTL:   getEnvDuration("CONSENT_REQUEST_TTL", 5*time.Minute),

		SweepInterval: getEnvDuration("SWEEP_INTERVAL", 10*time.Minute),

		MetricsEnabled:  getEnvBool("METRICS_ENABLED", true),
		AuditEnabled:    getEnvBool("AUDIT_ENABLED", true),
		AuditBufferSize: getEnvInt("AUDIT_BUFFER_SIZE", 1000),

		DebugMode: getEnvBool("DEBUG_MODE", false),
	}
}

// Validate rejects configurations the server could not run under.
func (c *Config) Validate() error {
	if c.AccessTokenLifetime <= 0 {
		return fmt.Errorf("ACCESS_TOKEN_LIFETIME must be positive, got %s", c.AccessTokenLifetime)
	}
	if c.AuthCodeLifetime <= 0 {
		return fmt.Errorf("AUTH_CODE_LIFETIME must be positive, got %s", c.AuthCodeLifetime)
	}
	if len(c.TokenLookupLocations) == 0 {
		return fmt.Errorf("TOKEN_LOOKUP_LOCATIONS must name at least one location")
	}
	for _, loc := range c.TokenLookupLocations {
		switch loc {
		case TokenLocationHeaders, TokenLocationForm, TokenLocationCookies:
		default:
			return fmt.Errorf("unknown token lookup location %q", loc)
		}
	}
	switch c.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown database driver %q", c.DatabaseDriver)
	}
	switch c.ConsentCacheBackend {
	case ConsentCacheMemory, ConsentCacheRedis:
	default:
		return fmt.Errorf("unknown consent cache backend %q", c.ConsentCacheBackend)
	}
	return nil
}

// RefreshTokenLifetime returns the refresh validity window relative to issuance.
func (c *Config) RefreshTokenLifetime() time.Duration {
	return 2 * c.AccessTokenLifetime
}

// HeaderLookupEnabled reports whether the Authorization header is an accepted
// bearer token location.
func (c *Config) HeaderLookupEnabled() bool {
	for _, loc := range c.TokenLookupLocations {
		if loc == TokenLocationHeaders {
			return true
		}
	}
	return false
}

// IsRecognizedScope reports whether scope is part of the server catalogue.
func (c *Config) IsRecognizedScope(scope string) bool {
	for _, s := range c.RecognizedScopes {
		if s == scope {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := []string{}
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				parts = append(parts, trimmed)
			}
		}
		if len(parts) > 0 {
			return parts
		}
	}
	return defaultValue
}
