package auth

import (
	"context"
	"errors"
	"net/http"
)

// AuthDecision is an authenticator's vote on a request.
type AuthDecision int

const (
	// Yes accepts the request; the chain stops and the returned identity
	// is attached to the request context.
	Yes AuthDecision = iota

	// No rejects the request; credentials were presented but invalid.
	// The chain stops.
	No

	// Abstain passes the vote to the next authenticator, used when the
	// request carries no credentials this authenticator understands.
	Abstain
)

// AuthResult is the outcome of one Authenticate call. Identity is set only
// on Yes; Err only on No.
type AuthResult struct {
	Decision AuthDecision
	Identity *Identity
	Err      error
}

// Identity describes an authenticated caller.
type Identity struct {
	// Subject uniquely names the caller. Never empty on a Yes result.
	Subject string

	// ServiceTier selects the caller's rate limit bucket.
	ServiceTier string

	// Scopes lists granted authorization scopes.
	Scopes []string

	// Metadata carries provider-specific attributes. The "tenant_id" key
	// scopes storage access in multi-tenant deployments.
	Metadata map[string]string
}

// TenantID returns the caller's tenant from metadata, or "" when unscoped.
func (id *Identity) TenantID() string {
	if id == nil || id.Metadata == nil {
		return ""
	}
	return id.Metadata["tenant_id"]
}

// Authenticator inspects a request's credentials and votes Yes, No, or
// Abstain.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) AuthResult
}

var (
	// ErrUnauthenticated reports missing or invalid credentials.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrForbidden reports valid credentials lacking permission.
	ErrForbidden = errors.New("access denied")

	// ErrTooManyRequests reports an exhausted rate limit budget.
	ErrTooManyRequests = errors.New("rate limit exceeded")
)

// AuthChain runs authenticators left to right until one votes Yes or No.
// When every authenticator abstains, DefaultDecision applies: Yes grants an
// anonymous identity (development), anything else rejects (production).
type AuthChain struct {
	Authenticators  []Authenticator
	DefaultDecision AuthDecision
}

// Authenticate evaluates the chain for one request.
func (c *AuthChain) Authenticate(ctx context.Context, r *http.Request) AuthResult {
	for _, authn := range c.Authenticators {
		if result := authn.Authenticate(ctx, r); result.Decision != Abstain {
			return result
		}
	}

	if c.DefaultDecision == Yes {
		return AuthResult{
			Decision: Yes,
			Identity: &Identity{Subject: "anonymous", ServiceTier: "default"},
		}
	}
	return AuthResult{Decision: No, Err: ErrUnauthenticated}
}
