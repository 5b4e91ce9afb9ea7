package api

import (
	"fmt"
	"net/url"
)

// ValidationConfig holds configurable limits for request validation.
type ValidationConfig struct {
	MaxMessages    int
	MaxContentSize int
	MaxWebhooks    int
}

// DefaultValidationConfig returns a ValidationConfig with sensible defaults.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MaxMessages:    1000,
		MaxContentSize: 10 * 1024 * 1024, // 10MB
		MaxWebhooks:    16,
	}
}

// ValidateCompletionRequest checks a CompletionRequest for validity. It
// returns an *APIError describing the first validation failure, or nil if
// the request is valid. Model defaulting happens in the bridge, so an empty
// model is accepted here.
func ValidateCompletionRequest(req *CompletionRequest, cfg ValidationConfig) *APIError {
	msgs := req.EffectiveMessages()
	if len(msgs) == 0 {
		return NewInvalidRequestError("messages", "messages must contain at least one message")
	}

	if cfg.MaxMessages > 0 && len(msgs) > cfg.MaxMessages {
		return NewInvalidRequestError("messages",
			fmt.Sprintf("messages exceeds maximum of %d", cfg.MaxMessages))
	}

	total := 0
	for i, m := range msgs {
		switch m.Role {
		case RoleSystem, RoleUser, RoleAssistant:
			// valid
		default:
			return NewInvalidRequestError("messages",
				fmt.Sprintf("messages[%d].role must be 'system', 'user', or 'assistant', got %q", i, m.Role))
		}
		total += len(m.Content)
	}
	if cfg.MaxContentSize > 0 && total > cfg.MaxContentSize {
		return NewInvalidRequestError("messages",
			fmt.Sprintf("total message content exceeds maximum of %d bytes", cfg.MaxContentSize))
	}

	if req.Temperature != nil {
		if *req.Temperature < 0.0 || *req.Temperature > 2.0 {
			return NewInvalidRequestError("temperature", "temperature must be between 0.0 and 2.0")
		}
	}

	if req.TopP != nil {
		if *req.TopP < 0.0 || *req.TopP > 1.0 {
			return NewInvalidRequestError("top_p", "top_p must be between 0.0 and 1.0")
		}
	}

	if req.MaxTokens != nil && *req.MaxTokens <= 0 {
		return NewInvalidRequestError("max_tokens", "max_tokens must be positive")
	}

	if cfg.MaxWebhooks > 0 && len(req.Webhooks) > cfg.MaxWebhooks {
		return NewInvalidRequestError("webhooks",
			fmt.Sprintf("webhooks exceeds maximum of %d", cfg.MaxWebhooks))
	}
	for i, wh := range req.Webhooks {
		u, err := url.Parse(wh)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return NewInvalidRequestError("webhooks",
				fmt.Sprintf("webhooks[%d] must be an absolute http(s) URL", i))
		}
	}

	return nil
}
