// Package config provides unified configuration for the completion bridge.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (OPENAI_* and BRIDGE_* variables)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for the completion bridge.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Upstream      UpstreamConfig      `yaml:"upstream"`
	Storage       StorageConfig       `yaml:"storage"`
	Auth          AuthConfig          `yaml:"auth"`
	Webhook       WebhookConfig       `yaml:"webhook"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`          // default: 8080
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"` // default: 520s, above the upstream budget
}

// UpstreamConfig holds upstream chat API settings.
type UpstreamConfig struct {
	// BaseURL is the upstream API base, including any version prefix
	// (e.g., "https://api.openai.com/v1"). Path segments such as
	// "chat/completions" are appended by the client.
	BaseURL string `yaml:"base_url"` // required

	APIKey     string `yaml:"api_key"`      // required
	APIKeyFile string `yaml:"api_key_file"` // _file variant for api_key

	// DefaultModel is used when a request does not name a model.
	DefaultModel string `yaml:"default_model"`

	// Timeout bounds a single upstream call end to end. Default: 500s.
	Timeout time.Duration `yaml:"timeout"`

	// ConnectTimeout bounds TCP connection establishment. Default: 10s.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// RequestsPerMinute throttles outbound upstream calls. 0 disables.
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

// StorageConfig holds completion record persistence settings.
type StorageConfig struct {
	Type     string         `yaml:"type"`     // "none", "memory" or "postgres", default: "none"
	MaxSize  int            `yaml:"max_size"` // for memory store, default: 10000
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`        // default: 25
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: false
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	Type    string         `yaml:"type"`     // "none", "apikey" or "jwt", default: "none"
	APIKeys []APIKeyConfig `yaml:"api_keys"` // API key entries for type=apikey
	JWT     JWTConfig      `yaml:"jwt"`      // settings for type=jwt

	// RateLimit applies per-subject request limits after authentication.
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key         string `yaml:"key"`
	KeyFile     string `yaml:"key_file"` // _file variant for key
	Subject     string `yaml:"subject"`
	TenantID    string `yaml:"tenant_id"`
	ServiceTier string `yaml:"service_tier"`
}

// JWTConfig holds JWT/OIDC validation settings.
type JWTConfig struct {
	Issuer      string `yaml:"issuer"`
	Audience    string `yaml:"audience"`
	JWKSURL     string `yaml:"jwks_url"`
	UserClaim   string `yaml:"user_claim"`
	TenantClaim string `yaml:"tenant_claim"`
	ScopesClaim string `yaml:"scopes_claim"`
}

// RateLimitConfig holds per-tier rate limit settings.
type RateLimitConfig struct {
	Enabled    bool           `yaml:"enabled"`
	DefaultRPM int            `yaml:"default_rpm"` // default: 60
	Tiers      map[string]int `yaml:"tiers"`       // tier name -> requests per minute
}

// WebhookConfig holds asynchronous result delivery settings.
type WebhookConfig struct {
	// DeliveryTimeout bounds a single webhook POST. Default: 30s.
	DeliveryTimeout time.Duration `yaml:"delivery_timeout"`

	// MaxAttempts is the number of delivery attempts per webhook URL,
	// including the first. Default: 3.
	MaxAttempts int `yaml:"max_attempts"`

	// RetryBackoff is the base delay between delivery attempts,
	// doubled per retry. Default: 2s.
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 520 * time.Second,
		},
		Upstream: UpstreamConfig{
			Timeout:        500 * time.Second,
			ConnectTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			Type:    "none",
			MaxSize: 10000,
			Postgres: PostgresConfig{
				MaxConns: 25,
			},
		},
		Auth: AuthConfig{
			Type: "none",
			RateLimit: RateLimitConfig{
				DefaultRPM: 60,
			},
		},
		Webhook: WebhookConfig{
			DeliveryTimeout: 30 * time.Second,
			MaxAttempts:     3,
			RetryBackoff:    2 * time.Second,
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}
