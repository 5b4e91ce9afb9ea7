// Package bridge orchestrates completion requests between the transport
// layer and the upstream chat API. It implements transport.CompletionCreator.
//
// Requests without webhooks are served synchronously: the caller blocks
// while the bridge performs the upstream exchange, bounded by the
// configured timeout. Requests carrying webhooks are acknowledged
// immediately with an in_progress completion; the upstream exchange runs
// in a detached goroutine and the terminal completion is delivered to
// each webhook URL.
package bridge
