package config

import (
	"errors"
	"fmt"
)

// Validate checks required fields and value ranges, reporting every
// problem at once via errors.Join. Error messages carry the config field
// path so they point straight at the offending setting.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Upstream.BaseURL == "" {
		fail("upstream.base_url is required (set OPENAI_BASE_URL)")
	}
	// A missing API key must fail startup, never surface as a
	// per-request error.
	if c.Upstream.APIKey == "" && c.Upstream.APIKeyFile == "" {
		fail("upstream.api_key is required (set OPENAI_API_KEY)")
	}
	if c.Upstream.Timeout <= 0 {
		fail("upstream.timeout must be > 0, got %s", c.Upstream.Timeout)
	}

	if c.Server.Port <= 0 {
		fail("server.port must be > 0, got %d", c.Server.Port)
	}

	switch c.Storage.Type {
	case "none", "memory":
	case "postgres":
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			fail("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\"")
		}
	default:
		fail("storage.type must be \"none\", \"memory\" or \"postgres\", got %q", c.Storage.Type)
	}

	switch c.Auth.Type {
	case "none", "apikey":
	case "jwt":
		if c.Auth.JWT.JWKSURL == "" {
			fail("auth.jwt.jwks_url is required when auth.type is \"jwt\"")
		}
	default:
		fail("auth.type must be \"none\", \"apikey\", or \"jwt\", got %q", c.Auth.Type)
	}

	if c.Webhook.MaxAttempts <= 0 {
		fail("webhook.max_attempts must be > 0, got %d", c.Webhook.MaxAttempts)
	}

	return errors.Join(errs...)
}
