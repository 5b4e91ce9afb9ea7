// Package upstream implements the HTTP client for the OpenAI-compatible
// Chat Completions provider that the bridge delegates to. It translates
// between the bridge's normalized types (pkg/api) and the provider's wire
// format, and maps provider failures onto the bridge's error taxonomy:
// application-level rejections become upstream_rejected with the provider's
// message preserved, exceeded time budgets become upstream_timeout.
package upstream
