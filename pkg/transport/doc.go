// Package transport defines the protocol-agnostic contracts between the
// HTTP surface and the bridge: the CompletionCreator handler interface, the
// optional CompletionStore, middleware, error-to-status mapping, and the
// in-flight registry used to cancel asynchronous dispatches.
package transport
