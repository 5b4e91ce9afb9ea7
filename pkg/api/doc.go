// Package api defines the wire types for the llmbridge completion service.
//
// This package provides the data types exchanged on the inbound HTTP surface:
// CompletionRequest, Completion, Message, Usage, the APIError taxonomy, and
// ID generation/validation helpers.
//
// The package has zero external dependencies (Go standard library only) and
// performs no I/O. The upstream Chat Completions wire format lives in
// pkg/upstream; this package is the bridge's own normalized vocabulary.
package api
