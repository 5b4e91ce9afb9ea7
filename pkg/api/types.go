package api

import "encoding/json"

// MessageRole represents the role of a message sender.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is a single role/content pair in a conversation.
type Message struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// CompletionRequest describes one inbound completion call. Either Prompt or
// Messages must be set; Prompt is shorthand for a single user message.
type CompletionRequest struct {
	Model       string    `json:"model,omitempty"`
	Prompt      string    `json:"prompt,omitempty"`
	Messages    []Message `json:"messages,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	Stop        []string  `json:"stop,omitempty"`
	User        string    `json:"user,omitempty"`

	// Webhooks selects asynchronous dispatch: when non-empty, the bridge
	// acknowledges immediately and posts the finished completion to each URL.
	Webhooks []string `json:"webhooks,omitempty"`

	// Store controls whether the finished completion is persisted when a
	// store is configured. Defaults to true; asynchronous callers that
	// disable it give up polling and rely on webhooks alone.
	Store *bool `json:"store,omitempty"`
}

// EffectiveMessages returns the message sequence for upstream dispatch.
// A non-empty Prompt is folded into a single user message; explicit
// Messages take precedence.
func (r *CompletionRequest) EffectiveMessages() []Message {
	if len(r.Messages) > 0 {
		return r.Messages
	}
	if r.Prompt != "" {
		return []Message{{Role: RoleUser, Content: r.Prompt}}
	}
	return nil
}

// Async reports whether the request selects asynchronous webhook dispatch.
func (r *CompletionRequest) Async() bool {
	return len(r.Webhooks) > 0
}

// FinishReason enumerates why generation stopped.
type FinishReason string

const (
	FinishReasonStop   FinishReason = "stop"
	FinishReasonLength FinishReason = "length"
	FinishReasonError  FinishReason = "error"
)

// CompletionStatus represents the lifecycle state of a completion.
type CompletionStatus string

const (
	StatusInProgress CompletionStatus = "in_progress"
	StatusCompleted  CompletionStatus = "completed"
	StatusFailed     CompletionStatus = "failed"
)

// Usage holds token accounting reported by the upstream provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is the normalized result of one completion call. It is
// immutable once constructed: the bridge builds a fresh value per request
// and never mutates it after handing it to the transport or a webhook.
type Completion struct {
	ID           string           `json:"id"`
	Object       string           `json:"object"`
	Status       CompletionStatus `json:"status"`
	Model        string           `json:"model,omitempty"`
	Text         string           `json:"text"`
	FinishReason FinishReason     `json:"finish_reason,omitempty"`
	Usage        *Usage           `json:"usage,omitempty"`
	Error        *APIError        `json:"error,omitempty"`
	CreatedAt    int64            `json:"created_at"`
}

// MarshalJSON ensures the object field is always populated on the wire.
func (c Completion) MarshalJSON() ([]byte, error) {
	type alias Completion
	a := alias(c)
	if a.Object == "" {
		a.Object = "completion"
	}
	return json.Marshal(a)
}

// ModelInfo describes a model served by the upstream provider.
type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object,omitempty"`
	OwnedBy string `json:"owned_by,omitempty"`
}
