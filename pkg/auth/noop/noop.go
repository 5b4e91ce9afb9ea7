// Package noop accepts every request without checking credentials. It
// anchors the auth chain when no real authenticator is configured, for
// example to run the rate limiter alone during development.
package noop

import (
	"context"
	"net/http"

	"github.com/monk-after-90s/llmbridge/pkg/auth"
)

// Authenticator votes Yes for every request and attaches an anonymous
// identity on the default service tier.
type Authenticator struct{}

func (a *Authenticator) Authenticate(_ context.Context, _ *http.Request) auth.AuthResult {
	anon := auth.Identity{
		Subject:     "anonymous",
		ServiceTier: "default",
	}
	return auth.AuthResult{Decision: auth.Yes, Identity: &anon}
}
