package bridge

import (
	"time"

	"github.com/monk-after-90s/llmbridge/pkg/api"
)

// Config holds bridge behavior settings.
type Config struct {
	// DefaultModel is applied when a request omits the model. If both are
	// empty the request is rejected.
	DefaultModel string

	// UpstreamTimeout bounds a single upstream exchange, for both the
	// synchronous path and each asynchronous dispatch. Default: 500s.
	UpstreamTimeout time.Duration

	// Validation tunes request validation limits.
	Validation api.ValidationConfig
}

// withDefaults fills in zero-value fields.
func (c Config) withDefaults() Config {
	if c.UpstreamTimeout == 0 {
		c.UpstreamTimeout = 500 * time.Second
	}
	if c.Validation == (api.ValidationConfig{}) {
		c.Validation = api.DefaultValidationConfig()
	}
	return c
}
