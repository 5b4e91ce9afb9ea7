// Package auth guards the bridge's HTTP surface with pluggable
// authenticators.
//
// Authenticators form a chain with three-outcome voting. Each one answers
// Yes (identity established), No (credentials present but invalid), or
// Abstain (not my credential type). The first non-Abstain vote decides; a
// configured default applies when every voter abstains.
//
// The chain runs as HTTP middleware so bridge logic never sees raw
// credentials. On success the middleware stores the identity and its
// tenant in the request context, where the storage layer picks up the
// tenant for row scoping.
package auth
