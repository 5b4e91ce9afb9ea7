// Package jwt provides a bearer-token authenticator for RSA-signed JWTs,
// verified against a JWKS endpoint. Issuer, audience, and the claims used
// for subject, tenant, and scopes are configurable.
package jwt

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/monk-after-90s/llmbridge/pkg/auth"
)

// Config holds JWT validation settings.
type Config struct {
	// Issuer, when set, must match the token's iss claim.
	Issuer string

	// Audience, when set, must match the token's aud claim.
	Audience string

	// JWKSURL locates the JSON Web Key Set for signature verification.
	JWKSURL string

	// UserClaim names the claim used as the identity subject. Default "sub".
	UserClaim string

	// TenantClaim names the claim stored as tenant_id metadata.
	// Default "tenant_id".
	TenantClaim string

	// ScopesClaim names the claim carrying authorization scopes, either a
	// space-separated string or a string array. Default "scope".
	ScopesClaim string

	// CacheTTL bounds how long fetched JWKS keys are reused. Default 1h.
	CacheTTL time.Duration

	// HTTPClient performs the JWKS fetches. Defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// Authenticator validates JWT bearer tokens.
type Authenticator struct {
	cfg  Config
	keys *keyCache
}

// New creates an Authenticator. Zero-value config fields get defaults.
func New(cfg Config) *Authenticator {
	if cfg.UserClaim == "" {
		cfg.UserClaim = "sub"
	}
	if cfg.TenantClaim == "" {
		cfg.TenantClaim = "tenant_id"
	}
	if cfg.ScopesClaim == "" {
		cfg.ScopesClaim = "scope"
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = time.Hour
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	return &Authenticator{
		cfg: cfg,
		keys: &keyCache{
			url:    cfg.JWKSURL,
			ttl:    cfg.CacheTTL,
			client: cfg.HTTPClient,
			byKid:  make(map[string]*rsa.PublicKey),
		},
	}
}

// Authenticate validates the request's bearer token as a JWT. Requests
// without a bearer token abstain; a present but invalid token (expired,
// wrong issuer or audience, unknown key, bad signature) is a No; a valid
// token yields an identity populated from the configured claims.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) auth.AuthResult {
	header := r.Header.Get("Authorization")
	raw, isBearer := strings.CutPrefix(header, "Bearer ")
	if header == "" || !isBearer {
		return auth.AuthResult{Decision: auth.Abstain}
	}
	if raw == "" {
		return auth.AuthResult{Decision: auth.No, Err: errors.New("empty bearer token")}
	}

	// The verification key is resolved inside the parse callback from the
	// token's kid header.
	token, err := jwtlib.Parse(raw, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token missing kid header")
		}
		key, err := a.keys.lookup(ctx, kid)
		if err != nil {
			return nil, fmt.Errorf("fetching JWKS key for kid %q: %w", kid, err)
		}
		return key, nil
	}, a.parserOptions()...)
	if err != nil {
		slog.Debug("JWT validation failed", "error", err)
		return auth.AuthResult{Decision: auth.No, Err: fmt.Errorf("invalid JWT: %w", err)}
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok || !token.Valid {
		return auth.AuthResult{Decision: auth.No, Err: errors.New("invalid JWT claims")}
	}

	subject := stringClaim(claims, a.cfg.UserClaim)
	if subject == "" {
		return auth.AuthResult{
			Decision: auth.No,
			Err:      fmt.Errorf("JWT missing %q claim", a.cfg.UserClaim),
		}
	}

	identity := &auth.Identity{
		Subject:  subject,
		Scopes:   scopesClaim(claims, a.cfg.ScopesClaim),
		Metadata: make(map[string]string),
	}
	if tenant := stringClaim(claims, a.cfg.TenantClaim); tenant != "" {
		identity.Metadata["tenant_id"] = tenant
	}

	return auth.AuthResult{Decision: auth.Yes, Identity: identity}
}

func (a *Authenticator) parserOptions() []jwtlib.ParserOption {
	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
	}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(a.cfg.Issuer))
	}
	if a.cfg.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(a.cfg.Audience))
	}
	return opts
}

// stringClaim returns the claim as a string, or "" when absent or typed
// differently.
func stringClaim(claims jwtlib.MapClaims, key string) string {
	s, _ := claims[key].(string)
	return s
}

// scopesClaim accepts both a space-separated scope string and a string
// array.
func scopesClaim(claims jwtlib.MapClaims, key string) []string {
	switch v := claims[key].(type) {
	case string:
		if parts := strings.Fields(v); len(parts) > 0 {
			return parts
		}
	case []interface{}:
		var scopes []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				scopes = append(scopes, s)
			}
		}
		return scopes
	}
	return nil
}

// keyCache holds RSA public keys fetched from the JWKS endpoint, refreshed
// when the TTL expires or an unknown kid appears.
type keyCache struct {
	url    string
	ttl    time.Duration
	client *http.Client

	mu        sync.RWMutex
	byKid     map[string]*rsa.PublicKey
	fetchedAt time.Time
}

// lookup returns the key for kid, refreshing the set when the cache is
// stale or the kid is unknown.
func (c *keyCache) lookup(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	c.mu.RLock()
	key, fresh := c.byKid[kid], time.Since(c.fetchedAt) < c.ttl
	c.mu.RUnlock()
	if key != nil && fresh {
		return key, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another goroutine may have refreshed while we waited for the lock.
	if key, ok := c.byKid[kid]; ok && time.Since(c.fetchedAt) < c.ttl {
		return key, nil
	}

	if err := c.refresh(ctx); err != nil {
		return nil, err
	}
	key, ok := c.byKid[kid]
	if !ok {
		return nil, fmt.Errorf("key %q not found in JWKS", kid)
	}
	return key, nil
}

// refresh re-fetches the key set. Caller holds the write lock.
func (c *keyCache) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("creating JWKS request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading JWKS response: %w", err)
	}

	var doc struct {
		Keys []jwk `json:"keys"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("parsing JWKS: %w", err)
	}

	byKid := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || (k.Use != "" && k.Use != "sig") {
			continue
		}
		pub, err := k.rsaPublicKey()
		if err != nil {
			slog.Warn("skipping JWKS key", "kid", k.Kid, "error", err)
			continue
		}
		byKid[k.Kid] = pub
	}

	c.byKid = byKid
	c.fetchedAt = time.Now()
	slog.Debug("JWKS cache refreshed", "keys", len(byKid), "url", c.url)
	return nil
}

// jwk is a single JSON Web Key as served by the JWKS endpoint.
type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// rsaPublicKey decodes the base64url modulus and exponent.
func (k jwk) rsaPublicKey() (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decoding modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decoding exponent: %w", err)
	}

	e := new(big.Int).SetBytes(eBytes)
	if !e.IsInt64() {
		return nil, errors.New("RSA exponent too large")
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(e.Int64()),
	}, nil
}
