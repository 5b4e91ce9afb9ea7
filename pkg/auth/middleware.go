package auth

import (
	"log/slog"
	"net/http"

	"github.com/monk-after-90s/llmbridge/pkg/observability"
	"github.com/monk-after-90s/llmbridge/pkg/storage"
)

// DefaultBypassEndpoints are served without credentials.
var DefaultBypassEndpoints = []string{"/healthz", "/readyz", "/metrics", "/docs", "/openapi.json"}

// Middleware wraps a handler with the auth chain and an optional rate
// limiter. Requests to bypass endpoints pass through untouched; everything
// else must produce a Yes vote, after which the identity and its tenant are
// attached to the request context.
func Middleware(chain *AuthChain, limiter RateLimiter, bypassEndpoints []string) func(http.Handler) http.Handler {
	bypass := make(map[string]struct{}, len(bypassEndpoints))
	for _, ep := range bypassEndpoints {
		bypass[ep] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, open := bypass[r.URL.Path]; open {
				next.ServeHTTP(w, r)
				return
			}

			identity, ok := authenticate(w, r, chain)
			if !ok {
				return
			}

			if limiter != nil {
				if err := limiter.Allow(r.Context(), identity); err != nil {
					slog.Warn("rate limit exceeded",
						"subject", identity.Subject,
						"tier", identity.ServiceTier,
					)
					observability.RateLimitRejectedTotal.WithLabelValues(identity.ServiceTier).Inc()
					writeAuthError(w, http.StatusTooManyRequests, "too_many_requests", "rate limit exceeded")
					return
				}
			}

			ctx := SetIdentity(r.Context(), identity)
			if tenantID := identity.TenantID(); tenantID != "" {
				ctx = storage.SetTenant(ctx, tenantID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// authenticate runs the chain and writes the rejection response itself.
// It returns ok=false when the request must not proceed.
func authenticate(w http.ResponseWriter, r *http.Request, chain *AuthChain) (*Identity, bool) {
	result := chain.Authenticate(r.Context(), r)

	switch {
	case result.Decision == No:
		slog.Warn("authentication failed",
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"error", result.Err,
		)
		writeAuthError(w, http.StatusUnauthorized, "invalid_request", "authentication required")
		return nil, false
	case result.Decision != Yes || result.Identity == nil:
		writeAuthError(w, http.StatusUnauthorized, "invalid_request", "authentication required")
		return nil, false
	case result.Identity.Subject == "":
		slog.Error("authenticator returned identity with empty subject")
		writeAuthError(w, http.StatusInternalServerError, "server_error", "internal authentication error")
		return nil, false
	}

	slog.Debug("authentication succeeded",
		"subject", result.Identity.Subject,
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr,
	)
	return result.Identity, true
}

// writeAuthError emits the API error envelope by hand so this package does
// not depend on transport.
func writeAuthError(w http.ResponseWriter, status int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":{"type":"` + errType + `","message":"` + message + `"}}`))
}
