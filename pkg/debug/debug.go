// Package debug provides category-based debug logging for llmbridge.
//
// Two orthogonal knobs control output. BRIDGE_DEBUG selects WHICH
// categories emit (upstream, bridge, webhook, auth, transport, storage,
// config, or all), and BRIDGE_LOG_LEVEL selects HOW MUCH detail (ERROR,
// WARN, INFO, DEBUG, TRACE). Both can also come from the config file;
// the environment wins.
//
//	debug.Log("upstream", "dispatching completion", "url", url)
//	if debug.Enabled("upstream") { /* expensive formatting */ }
package debug

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// LevelTrace sits below slog.LevelDebug. At TRACE, full untruncated
// request and response bodies are logged.
const LevelTrace = slog.LevelDebug - 4

// active is the set of enabled categories. It is written only by Init and
// the package init, both of which run before any concurrent reader.
var active map[string]bool

func init() {
	active = splitCategories(os.Getenv("BRIDGE_DEBUG"))
}

// Init applies category and level settings at startup. Config values fill
// in only where the corresponding environment variable is unset.
func Init(configCategories string, configLevel string) {
	active = splitCategories(envOr("BRIDGE_DEBUG", configCategories))

	level := envOr("BRIDGE_LOG_LEVEL", configLevel)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Enabled reports whether the category emits debug output.
func Enabled(category string) bool {
	return active["all"] || active[category]
}

// Log emits a debug message when the category is enabled.
func Log(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Debug(msg, append([]any{"debug", category}, args...)...)
}

// Trace emits at TRACE level, visible only with BRIDGE_LOG_LEVEL=TRACE.
func Trace(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Log(nil, LevelTrace, msg, append([]any{"debug", category}, args...)...)
}

// TraceIsEnabled reports whether Trace output for the category would be
// visible under the current handler level.
func TraceIsEnabled(category string) bool {
	return Enabled(category) && slog.Default().Enabled(nil, LevelTrace)
}

// Raw writes plain text straight to stderr, bypassing slog formatting, so
// HTTP bodies and headers stay copy-paste ready. Emitted only when the
// category is enabled at TRACE.
func Raw(category string, text string) {
	if TraceIsEnabled(category) {
		fmt.Fprintln(os.Stderr, text)
	}
}

// ParseLevel converts a level name to a slog.Level. Unknown names and the
// empty string mean INFO.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Categories lists the enabled categories for status reporting.
func Categories() []string {
	out := make([]string, 0, len(active))
	for c := range active {
		out = append(out, c)
	}
	return out
}

// Truncate shortens s to maxLen characters, marking the cut with "...".
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func splitCategories(s string) map[string]bool {
	set := make(map[string]bool)
	for _, c := range strings.Split(s, ",") {
		if c = strings.TrimSpace(strings.ToLower(c)); c != "" {
			set[c] = true
		}
	}
	return set
}
