package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load builds the configuration from layered sources: built-in defaults,
// then an optional YAML file, then environment overrides, then _file
// secret resolution, and finally validation. Later layers win.
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	if path := findConfigFile(configPath); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &cfg, nil
}

// findConfigFile resolves the config file location. An explicit path wins,
// then BRIDGE_CONFIG, then ./config.yaml, then /etc/llmbridge/config.yaml.
// Empty means run on defaults and environment alone.
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv("BRIDGE_CONFIG"); env != "" {
		return env
	}
	for _, candidate := range []string{"config.yaml", "/etc/llmbridge/config.yaml"} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// applyEnvOverrides layers environment variables over the current config.
// OPENAI_* and MODEL follow the common SDK conventions; BRIDGE_* variables
// cover the bridge's own settings.
func applyEnvOverrides(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	setString("OPENAI_BASE_URL", &cfg.Upstream.BaseURL)
	setString("OPENAI_API_KEY", &cfg.Upstream.APIKey)
	setString("MODEL", &cfg.Upstream.DefaultModel)
	setInt("BRIDGE_PORT", &cfg.Server.Port)
	setString("BRIDGE_STORAGE", &cfg.Storage.Type)
	setInt("BRIDGE_STORAGE_SIZE", &cfg.Storage.MaxSize)
	setString("BRIDGE_POSTGRES_DSN", &cfg.Storage.Postgres.DSN)
	setString("BRIDGE_AUTH_TYPE", &cfg.Auth.Type)

	if v := os.Getenv("BRIDGE_UPSTREAM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Upstream.Timeout = d
		}
	}

	// BRIDGE_API_KEYS carries a JSON array of key entries.
	if v := os.Getenv("BRIDGE_API_KEYS"); v != "" {
		var keys []APIKeyConfig
		if err := json.Unmarshal([]byte(v), &keys); err == nil && len(keys) > 0 {
			cfg.Auth.APIKeys = keys
		}
	}
}

// resolveFileReferences fills each secret field from its _file companion
// when the direct value is unset. File contents are trimmed so a trailing
// newline in a mounted secret does not corrupt the value.
func resolveFileReferences(cfg *Config) error {
	secrets := []struct {
		field string
		file  string
		dst   *string
	}{
		{"upstream.api_key_file", cfg.Upstream.APIKeyFile, &cfg.Upstream.APIKey},
		{"storage.postgres.dsn_file", cfg.Storage.Postgres.DSNFile, &cfg.Storage.Postgres.DSN},
	}
	for i := range cfg.Auth.APIKeys {
		secrets = append(secrets, struct {
			field string
			file  string
			dst   *string
		}{
			fmt.Sprintf("auth.api_keys[%d].key_file", i),
			cfg.Auth.APIKeys[i].KeyFile,
			&cfg.Auth.APIKeys[i].Key,
		})
	}

	for _, s := range secrets {
		if s.file == "" || *s.dst != "" {
			continue
		}
		data, err := os.ReadFile(s.file)
		if err != nil {
			return fmt.Errorf("%s: %w", s.field, err)
		}
		*s.dst = strings.TrimSpace(string(data))
	}
	return nil
}
