// Command server runs the llmbridge completion gateway.
//
// Configuration is layered: built-in defaults, then an optional YAML file
// (-config flag, BRIDGE_CONFIG, ./config.yaml, /etc/llmbridge/config.yaml),
// then environment variables:
//
//	OPENAI_BASE_URL         - Upstream API base URL, including /v1 (required)
//	OPENAI_API_KEY          - Upstream API key (required)
//	MODEL                   - Default model name (optional)
//	BRIDGE_PORT             - Listen port (default: 8080)
//	BRIDGE_UPSTREAM_TIMEOUT - Upstream call budget, e.g. "500s"
//	BRIDGE_STORAGE          - Storage type: "none", "memory" or "postgres"
//	BRIDGE_STORAGE_SIZE     - Max completions in memory store
//	BRIDGE_POSTGRES_DSN     - PostgreSQL connection string
//	BRIDGE_AUTH_TYPE        - Auth mode: "none", "apikey" or "jwt"
//	BRIDGE_DEBUG            - Debug log categories, e.g. "bridge,webhook"
//	BRIDGE_LOG_LEVEL        - Log level: DEBUG, INFO, WARN, ERROR
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/monk-after-90s/llmbridge/pkg/auth"
	"github.com/monk-after-90s/llmbridge/pkg/auth/apikey"
	"github.com/monk-after-90s/llmbridge/pkg/auth/jwt"
	"github.com/monk-after-90s/llmbridge/pkg/auth/noop"
	"github.com/monk-after-90s/llmbridge/pkg/bridge"
	"github.com/monk-after-90s/llmbridge/pkg/config"
	"github.com/monk-after-90s/llmbridge/pkg/debug"
	"github.com/monk-after-90s/llmbridge/pkg/storage/memory"
	"github.com/monk-after-90s/llmbridge/pkg/storage/postgres"
	"github.com/monk-after-90s/llmbridge/pkg/transport"
	transporthttp "github.com/monk-after-90s/llmbridge/pkg/transport/http"
	"github.com/monk-after-90s/llmbridge/pkg/upstream"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to YAML configuration file")
	flag.Parse()

	// A config that fails validation (missing upstream key, bad storage
	// type) aborts here, before any listener opens.
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	debug.Init("", "")

	client, err := upstream.NewClient(upstream.Config{
		BaseURL:           cfg.Upstream.BaseURL,
		APIKey:            cfg.Upstream.APIKey,
		Timeout:           cfg.Upstream.Timeout,
		ConnectTimeout:    cfg.Upstream.ConnectTimeout,
		RequestsPerMinute: cfg.Upstream.RequestsPerMinute,
	})
	if err != nil {
		return fmt.Errorf("creating upstream client: %w", err)
	}

	store, err := buildStore(cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	webhooks := bridge.NewWebhookDeliverer(bridge.WebhookConfig{
		DeliveryTimeout: cfg.Webhook.DeliveryTimeout,
		MaxAttempts:     cfg.Webhook.MaxAttempts,
		RetryBackoff:    cfg.Webhook.RetryBackoff,
	})

	b, err := bridge.New(client, store, webhooks, bridge.Config{
		DefaultModel:    cfg.Upstream.DefaultModel,
		UpstreamTimeout: cfg.Upstream.Timeout,
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}

	wrappers, err := buildAuthMiddleware(cfg)
	if err != nil {
		return err
	}

	srv := transporthttp.NewServer(b, store, client, b.InFlight(),
		transporthttp.WithAddr(fmt.Sprintf(":%d", cfg.Server.Port)),
		transporthttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
		transporthttp.WithHandlerMiddleware(wrappers...),
	)

	slog.Info("llmbridge starting",
		"port", cfg.Server.Port,
		"upstream", cfg.Upstream.BaseURL,
		"model", cfg.Upstream.DefaultModel,
		"storage", cfg.Storage.Type,
		"auth", cfg.Auth.Type,
	)
	return srv.ListenAndServe()
}

// buildStore constructs the configured completion store, or nil for
// stateless deployments.
func buildStore(cfg *config.Config) (transport.CompletionStore, error) {
	switch cfg.Storage.Type {
	case "none", "":
		slog.Info("storage disabled")
		return nil, nil
	case "memory":
		slog.Info("storage enabled", "type", "memory", "max_size", cfg.Storage.MaxSize)
		return memory.New(cfg.Storage.MaxSize), nil
	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		store, err := postgres.New(ctx, postgres.Config{
			DSN:            cfg.Storage.Postgres.DSN,
			MaxConns:       cfg.Storage.Postgres.MaxConns,
			MigrateOnStart: cfg.Storage.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		slog.Info("storage enabled", "type", "postgres")
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
	}
}

// buildAuthMiddleware assembles the HTTP-level auth wrapper for the
// configured mode. Type "none" leaves the server open, unless rate limiting
// is enabled, in which case every caller is limited under the anonymous
// identity.
func buildAuthMiddleware(cfg *config.Config) ([]func(http.Handler) http.Handler, error) {
	if cfg.Auth.Type == "none" || cfg.Auth.Type == "" {
		if !cfg.Auth.RateLimit.Enabled {
			return nil, nil
		}
		chain := &auth.AuthChain{
			Authenticators:  []auth.Authenticator{&noop.Authenticator{}},
			DefaultDecision: auth.Yes,
		}
		return []func(http.Handler) http.Handler{
			auth.Middleware(chain, buildLimiter(cfg), auth.DefaultBypassEndpoints),
		}, nil
	}

	chain := &auth.AuthChain{DefaultDecision: auth.No}

	switch cfg.Auth.Type {
	case "apikey":
		entries := make([]apikey.RawKeyEntry, 0, len(cfg.Auth.APIKeys))
		for _, k := range cfg.Auth.APIKeys {
			entries = append(entries, apikey.RawKeyEntry{
				Key: k.Key,
				Identity: auth.Identity{
					Subject:     k.Subject,
					ServiceTier: k.ServiceTier,
					Metadata:    map[string]string{"tenant_id": k.TenantID},
				},
			})
		}
		chain.Authenticators = []auth.Authenticator{apikey.New(entries)}
	case "jwt":
		chain.Authenticators = []auth.Authenticator{jwt.New(jwt.Config{
			Issuer:      cfg.Auth.JWT.Issuer,
			Audience:    cfg.Auth.JWT.Audience,
			JWKSURL:     cfg.Auth.JWT.JWKSURL,
			UserClaim:   cfg.Auth.JWT.UserClaim,
			TenantClaim: cfg.Auth.JWT.TenantClaim,
			ScopesClaim: cfg.Auth.JWT.ScopesClaim,
		})}
	default:
		return nil, fmt.Errorf("unknown auth type %q", cfg.Auth.Type)
	}

	return []func(http.Handler) http.Handler{
		auth.Middleware(chain, buildLimiter(cfg), auth.DefaultBypassEndpoints),
	}, nil
}

// buildLimiter constructs the per-subject rate limiter, or nil when
// limiting is disabled.
func buildLimiter(cfg *config.Config) auth.RateLimiter {
	if !cfg.Auth.RateLimit.Enabled {
		return nil
	}
	tiers := make(map[string]auth.TierConfig, len(cfg.Auth.RateLimit.Tiers))
	for name, rpm := range cfg.Auth.RateLimit.Tiers {
		tiers[name] = auth.TierConfig{RequestsPerMinute: rpm}
	}
	return auth.NewInProcessLimiter(tiers, cfg.Auth.RateLimit.DefaultRPM)
}
