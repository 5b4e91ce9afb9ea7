package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/monk-after-90s/llmbridge/pkg/api"
	"github.com/monk-after-90s/llmbridge/pkg/debug"
)

// Config holds upstream client settings.
type Config struct {
	// BaseURL is the provider API root, typically including the version
	// segment (e.g., "https://api.openai.com/v1"). The client appends
	// "/chat/completions" and "/models" to it.
	BaseURL string

	// APIKey is sent as a Bearer token on every request.
	APIKey string

	// Timeout bounds a single completion exchange end to end.
	// Defaults to 120s.
	Timeout time.Duration

	// ConnectTimeout bounds connection establishment separately from the
	// overall budget. Defaults to 10s.
	ConnectTimeout time.Duration

	// RequestsPerMinute paces calls to the provider. Zero means unlimited.
	RequestsPerMinute int
}

// Client performs HTTP requests against an OpenAI-compatible Chat
// Completions provider. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
}

// NewClient creates a new Client for the configured provider.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("upstream: BaseURL is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		rps := float64(cfg.RequestsPerMinute) / 60.0
		burst := cfg.RequestsPerMinute / 5
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout: cfg.ConnectTimeout,
		}).DialContext,
		TLSHandshakeTimeout: cfg.ConnectTimeout,
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		limiter: limiter,
	}, nil
}

// Complete performs a single non-streaming completion exchange. The request
// must already carry its effective model; the bridge applies defaulting
// before dispatch. The returned Completion has text, finish reason, and
// usage populated; the bridge assigns identity and lifecycle fields.
func (c *Client) Complete(ctx context.Context, req *api.CompletionRequest) (*api.Completion, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, MapNetworkError(err)
		}
	}

	chatReq := translateRequest(req)

	body, err := json.Marshal(chatReq)
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to marshal upstream request: %s", err.Error()))
	}

	url := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to create upstream request: %s", err.Error()))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	debug.Log("upstream", "dispatching completion", "url", url, "model", chatReq.Model)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, MapNetworkError(err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, MapHTTPError(httpResp)
	}

	var chatResp ChatCompletionResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&chatResp); err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to parse upstream response: %s", err.Error()))
	}

	return translateResponse(&chatResp)
}

// ListModels returns the models the provider serves.
func (c *Client) ListModels(ctx context.Context) ([]api.ModelInfo, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to create upstream request: %s", err.Error()))
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, MapNetworkError(err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, MapHTTPError(httpResp)
	}

	var modelsResp ChatModelsResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&modelsResp); err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to parse models response: %s", err.Error()))
	}

	models := make([]api.ModelInfo, 0, len(modelsResp.Data))
	for _, m := range modelsResp.Data {
		models = append(models, api.ModelInfo{
			ID:      m.ID,
			Object:  m.Object,
			OwnedBy: m.OwnedBy,
		})
	}
	return models, nil
}

// Close releases client resources.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// translateRequest converts a normalized request to the Chat Completions format.
func translateRequest(req *api.CompletionRequest) *ChatCompletionRequest {
	msgs := req.EffectiveMessages()
	chatMsgs := make([]ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		chatMsgs = append(chatMsgs, ChatMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	return &ChatCompletionRequest{
		Model:       req.Model,
		Messages:    chatMsgs,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
		Stop:        req.Stop,
		User:        req.User,
	}
}

// translateResponse converts a Chat Completions response to a normalized
// Completion. A stop finish reason with empty text is treated as a provider
// fault so callers can rely on non-empty text when finish_reason is "stop".
func translateResponse(resp *ChatCompletionResponse) (*api.Completion, error) {
	if len(resp.Choices) == 0 {
		return nil, api.NewServerError("upstream produced no choices")
	}

	choice := resp.Choices[0]

	var text string
	if choice.Message.Content != nil {
		text = *choice.Message.Content
	}

	reason := normalizeFinishReason(choice.FinishReason)
	if reason == api.FinishReasonStop && text == "" {
		return nil, api.NewServerError("upstream reported stop with empty output")
	}

	c := &api.Completion{
		Model:        resp.Model,
		Text:         text,
		FinishReason: reason,
	}
	if resp.Usage != nil {
		c.Usage = &api.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return c, nil
}

// normalizeFinishReason maps provider finish reasons onto the bridge's
// three-value enumeration.
func normalizeFinishReason(reason string) api.FinishReason {
	switch reason {
	case "stop", "":
		return api.FinishReasonStop
	case "length":
		return api.FinishReasonLength
	default:
		return api.FinishReasonError
	}
}
