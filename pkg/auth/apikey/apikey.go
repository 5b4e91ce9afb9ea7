// Package apikey provides a bearer-token authenticator backed by a static
// set of API keys. Keys are held only as SHA-256 digests and matched with
// constant-time comparison.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/monk-after-90s/llmbridge/pkg/auth"
)

// RawKeyEntry pairs a plaintext key with the identity it grants. It only
// exists at construction time; the plaintext never outlives New.
type RawKeyEntry struct {
	Key      string
	Identity auth.Identity
}

// hashedKey is the stored form of a key entry.
type hashedKey struct {
	digest   [sha256.Size]byte
	identity auth.Identity
}

// Authenticator matches bearer tokens against the configured key set.
type Authenticator struct {
	keys []hashedKey
}

// New builds an Authenticator from raw key entries, hashing each key
// immediately.
func New(entries []RawKeyEntry) *Authenticator {
	keys := make([]hashedKey, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, hashedKey{
			digest:   sha256.Sum256([]byte(e.Key)),
			identity: e.Identity,
		})
	}
	return &Authenticator{keys: keys}
}

// Authenticate checks the Authorization header. A valid key yields Yes with
// its identity; a bearer token that matches no key yields No; requests
// without a bearer token abstain so other authenticators in the chain can
// vote.
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.AuthResult {
	token, ok := bearerToken(r)
	if !ok {
		return auth.AuthResult{Decision: auth.Abstain}
	}
	if token == "" {
		return auth.AuthResult{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}

	digest := sha256.Sum256([]byte(token))

	// Every entry is compared even after a match so the scan cost does
	// not reveal key positions.
	var found *auth.Identity
	for i := range a.keys {
		if subtle.ConstantTimeCompare(digest[:], a.keys[i].digest[:]) == 1 && found == nil {
			id := a.keys[i].identity
			found = &id
		}
	}
	if found != nil {
		return auth.AuthResult{Decision: auth.Yes, Identity: found}
	}
	return auth.AuthResult{Decision: auth.No, Err: auth.ErrUnauthenticated}
}

// bearerToken extracts the token from an Authorization header. The second
// return is false when the header is absent or uses another scheme.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", false
	}
	return token, true
}
