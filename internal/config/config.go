// Package config loads storefront client and proxy settings from the
// environment, optionally seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// DefaultAPIURL is the production backend origin.
	DefaultAPIURL = "https://api.emerite.store"

	DefaultPort        = "8080"
	DefaultHTTPTimeout = 30 * time.Second
	DefaultCacheTTL    = 30 * time.Second
	DefaultUserAgent   = "storefront-client/0.1.0"
)

// Environment variable names.
const (
	EnvAPIURL      = "STOREFRONT_API_URL"
	EnvSessionFile = "STOREFRONT_SESSION_FILE"
	EnvUserAgent   = "STOREFRONT_USER_AGENT"
	EnvRedisURL    = "REDIS_URL"
	EnvLogLevel    = "LOG_LEVEL"
	EnvLogPretty   = "LOG_PRETTY"
	EnvPort        = "PORT"
	EnvUpstreamURL = "PROXY_UPSTREAM_URL"
	EnvHTTPTimeout = "HTTP_TIMEOUT"
	EnvCacheTTL    = "CACHE_TTL"
)

// Config is the resolved configuration shared by both binaries.
type Config struct {
	APIURL      string
	SessionFile string
	UserAgent   string
	RedisURL    string
	LogLevel    string
	LogPretty   bool
	Port        string
	UpstreamURL string
	HTTPTimeout time.Duration
	CacheTTL    time.Duration
}

// Load reads envFiles (missing files are ignored) and then the process
// environment. Variables already set in the environment win over .env.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	timeout, err := getDuration(EnvHTTPTimeout, DefaultHTTPTimeout)
	if err != nil {
		return nil, err
	}
	ttl, err := getDuration(EnvCacheTTL, DefaultCacheTTL)
	if err != nil {
		return nil, err
	}

	apiURL := strings.TrimRight(GetEnv(EnvAPIURL, DefaultAPIURL), "/")
	cfg := &Config{
		APIURL:      apiURL,
		SessionFile: GetEnv(EnvSessionFile, defaultSessionFile()),
		UserAgent:   GetEnv(EnvUserAgent, DefaultUserAgent),
		RedisURL:    GetEnv(EnvRedisURL, ""),
		LogLevel:    GetEnv(EnvLogLevel, "info"),
		LogPretty:   getBool(EnvLogPretty, false),
		Port:        GetEnv(EnvPort, DefaultPort),
		UpstreamURL: strings.TrimRight(GetEnv(EnvUpstreamURL, apiURL), "/"),
		HTTPTimeout: timeout,
		CacheTTL:    ttl,
	}
	return cfg, nil
}

// Addr returns the proxy listen address.
func (c *Config) Addr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

// GetEnv returns the value of envVar, or defaultValue when unset or empty.
func GetEnv(envVar, defaultValue string) string {
	if value := os.Getenv(envVar); value != "" {
		return value
	}
	return defaultValue
}

func getBool(envVar string, defaultValue bool) bool {
	v, err := strconv.ParseBool(os.Getenv(envVar))
	if err != nil {
		return defaultValue
	}
	return v
}

func getDuration(envVar string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(envVar)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", envVar, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive (got %s)", envVar, raw)
	}
	return d, nil
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", ".storefront-session.json")
	}
	return filepath.Join(dir, "storefront", "session.json")
}
