// Package config loads catalog-proxy settings from the environment.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the runtime configuration of the proxy.
type Config struct {
	Port      string // HTTP listen port
	LogLevel  string // "debug", "info", "warn", "error"
	LogPretty bool   // console output instead of JSON

	CatalogBaseURL     string        // catalog API root, e.g. https://api-stg-catalogo.redeancora.com.br
	CatalogTimeout     time.Duration // per-request timeout against the catalog
	CatalogMaxRetries  int           // attempts for server/network failures, including the first
	CatalogInsecureTLS bool          // skip TLS verification (staging endpoints only)

	TokenURL     string // OAuth2 token endpoint
	ClientID     string
	ClientSecret string

	RedisURL string // optional; shares the OAuth2 token between replicas when set

	CacheMaxEntries int // 0 keeps the response cache unbounded

	ShutdownTimeout time.Duration
}

// Load reads a .env file when present, then the environment.
func Load() *Config {
	// .env is optional
	_ = godotenv.Load()

	return &Config{
		Port:      GetEnv("PORT", "5000"),
		LogLevel:  GetEnv("LOG_LEVEL", "info"),
		LogPretty: GetEnvBool("LOG_PRETTY", false),

		CatalogBaseURL:     strings.TrimRight(GetEnv("CATALOG_BASE_URL", "https://api-stg-catalogo.redeancora.com.br"), "/"),
		CatalogTimeout:     GetEnvDuration("CATALOG_TIMEOUT", 20*time.Second),
		CatalogMaxRetries:  GetEnvInt("CATALOG_MAX_RETRIES", 3),
		CatalogInsecureTLS: GetEnvBool("CATALOG_INSECURE_TLS", false),

		TokenURL:     GetEnv("CATALOG_TOKEN_URL", "https://sso-catalogo.redeancora.com.br/connect/token"),
		ClientID:     GetEnv("CATALOG_CLIENT_ID", ""),
		ClientSecret: GetEnv("CATALOG_CLIENT_SECRET", ""),

		RedisURL: GetEnv("REDIS_URL", ""),

		CacheMaxEntries: GetEnvInt("CACHE_MAX_ENTRIES", 0),

		ShutdownTimeout: GetEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

// Validate reports missing or inconsistent settings.
func (c *Config) Validate() error {
	var errs []error
	if c.ClientID == "" {
		errs = append(errs, errors.New("CATALOG_CLIENT_ID is required"))
	}
	if c.ClientSecret == "" {
		errs = append(errs, errors.New("CATALOG_CLIENT_SECRET is required"))
	}
	if c.CatalogBaseURL == "" {
		errs = append(errs, errors.New("CATALOG_BASE_URL is required"))
	}
	if c.TokenURL == "" {
		errs = append(errs, errors.New("CATALOG_TOKEN_URL is required"))
	}
	if c.CatalogMaxRetries < 1 {
		errs = append(errs, errors.New("CATALOG_MAX_RETRIES must be >= 1"))
	}
	if c.CacheMaxEntries < 0 {
		errs = append(errs, errors.New("CACHE_MAX_ENTRIES must be >= 0"))
	}
	return errors.Join(errs...)
}

// GetEnv returns the value of key, or def if unset or empty.
func GetEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// GetEnvInt returns key parsed as int, or def if unset or invalid.
func GetEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return def
}

// GetEnvBool returns key parsed with strconv.ParseBool, or def if unset or invalid.
func GetEnvBool(key string, def bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return def
}

// GetEnvDuration returns key parsed as time.Duration, or def if unset or invalid.
func GetEnvDuration(key string, def time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return def
}
