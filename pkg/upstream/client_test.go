package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/monk-after-90s/llmbridge/pkg/api"
)

func testRequest() *api.CompletionRequest {
	return &api.CompletionRequest{
		Model: "test-model",
		Messages: []api.Message{
			{Role: api.RoleUser, Content: "Hello"},
		},
	}
}

func textResponse(text string) ChatCompletionResponse {
	return ChatCompletionResponse{
		ID:     "chatcmpl-1",
		Object: "chat.completion",
		Model:  "test-model",
		Choices: []ChatChoice{
			{
				Index:        0,
				Message:      ChatChoiceMessage{Role: "assistant", Content: &text},
				FinishReason: "stop",
			},
		},
		Usage: &ChatUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
}

func TestClient_Complete_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("expected path /v1/chat/completions, got %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("expected bearer auth header, got %q", got)
		}

		var chatReq ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&chatReq); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if chatReq.Model != "test-model" {
			t.Errorf("expected model test-model, got %q", chatReq.Model)
		}
		if len(chatReq.Messages) != 1 || chatReq.Messages[0].Content != "Hello" {
			t.Errorf("unexpected messages: %+v", chatReq.Messages)
		}

		json.NewEncoder(w).Encode(textResponse("Hi there!"))
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL + "/v1", APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	defer c.Close()

	comp, err := c.Complete(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if comp.Text != "Hi there!" {
		t.Errorf("expected text 'Hi there!', got %q", comp.Text)
	}
	if comp.FinishReason != api.FinishReasonStop {
		t.Errorf("expected finish reason stop, got %q", comp.FinishReason)
	}
	if comp.Usage == nil || comp.Usage.TotalTokens != 15 {
		t.Errorf("usage not translated: %+v", comp.Usage)
	}
}

func TestClient_Complete_RejectionPreservesMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"message":"The model 'gpt-x' does not exist","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	defer c.Close()

	_, err = c.Complete(context.Background(), testRequest())
	if err == nil {
		t.Fatal("expected error")
	}

	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *api.APIError, got %T", err)
	}
	if apiErr.Type != api.ErrorTypeUpstreamRejected {
		t.Errorf("expected upstream_rejected, got %q", apiErr.Type)
	}
	if apiErr.Message != "The model 'gpt-x' does not exist" {
		t.Errorf("upstream message not preserved: %q", apiErr.Message)
	}
}

func TestClient_Complete_RejectionWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, _ := NewClient(Config{BaseURL: srv.URL})
	defer c.Close()

	_, err := c.Complete(context.Background(), testRequest())
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *api.APIError, got %T", err)
	}
	if apiErr.Type != api.ErrorTypeUpstreamRejected {
		t.Errorf("expected upstream_rejected, got %q", apiErr.Type)
	}
}

func TestClient_Complete_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(5 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	c, _ := NewClient(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	defer c.Close()

	start := time.Now()
	_, err := c.Complete(context.Background(), testRequest())
	elapsed := time.Since(start)

	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *api.APIError, got %v (%T)", err, err)
	}
	if apiErr.Type != api.ErrorTypeUpstreamTimeout {
		t.Errorf("expected upstream_timeout, got %q", apiErr.Type)
	}
	if elapsed > 2*time.Second {
		t.Errorf("timeout took too long: %v", elapsed)
	}
}

func TestClient_Complete_ContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(5 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	c, _ := NewClient(Config{BaseURL: srv.URL})
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Complete(ctx, testRequest())
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *api.APIError, got %v (%T)", err, err)
	}
	if apiErr.Type != api.ErrorTypeUpstreamTimeout {
		t.Errorf("expected upstream_timeout, got %q", apiErr.Type)
	}
}

func TestClient_Complete_CallerCancelPassthrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server's background read notices the
		// client disconnect and cancels the request context; otherwise
		// srv.Close deadlocks waiting for this handler.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	c, _ := NewClient(Config{BaseURL: srv.URL})
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := c.Complete(ctx, testRequest())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled passthrough, got %v", err)
	}
}

func TestClient_Complete_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ChatCompletionResponse{ID: "chatcmpl-1", Model: "test-model"})
	}))
	defer srv.Close()

	c, _ := NewClient(Config{BaseURL: srv.URL})
	defer c.Close()

	_, err := c.Complete(context.Background(), testRequest())
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) || apiErr.Type != api.ErrorTypeServerError {
		t.Fatalf("expected server_error for empty choices, got %v", err)
	}
}

func TestClient_Complete_NetworkError(t *testing.T) {
	c, _ := NewClient(Config{BaseURL: "http://127.0.0.1:1"})
	defer c.Close()

	_, err := c.Complete(context.Background(), testRequest())
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *api.APIError, got %T", err)
	}
	if apiErr.Type != api.ErrorTypeServerError {
		t.Errorf("expected server_error for connection failure, got %q", apiErr.Type)
	}
}

func TestClient_ListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("expected path /models, got %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(ChatModelsResponse{
			Object: "list",
			Data: []ChatModel{
				{ID: "model-a", Object: "model", OwnedBy: "test"},
				{ID: "model-b", Object: "model", OwnedBy: "test"},
			},
		})
	}))
	defer srv.Close()

	c, _ := NewClient(Config{BaseURL: srv.URL})
	defer c.Close()

	models, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(models) != 2 || models[0].ID != "model-a" {
		t.Errorf("unexpected models: %+v", models)
	}
}

func TestClient_RateLimiterPacesRequests(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(textResponse("ok"))
	}))
	defer srv.Close()

	// 60 rpm = 1 rps with burst 12; the first burst goes through instantly,
	// subsequent requests wait.
	c, _ := NewClient(Config{BaseURL: srv.URL, RequestsPerMinute: 60})
	defer c.Close()

	for i := 0; i < 3; i++ {
		if _, err := c.Complete(context.Background(), testRequest()); err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
	}
	if calls != 3 {
		t.Errorf("expected 3 upstream calls, got %d", calls)
	}
}

func TestNewClient_MissingBaseURL(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error for missing BaseURL")
	}
}

func TestNormalizeFinishReason(t *testing.T) {
	tests := []struct {
		in   string
		want api.FinishReason
	}{
		{"stop", api.FinishReasonStop},
		{"", api.FinishReasonStop},
		{"length", api.FinishReasonLength},
		{"content_filter", api.FinishReasonError},
		{"tool_calls", api.FinishReasonError},
	}
	for _, tt := range tests {
		if got := normalizeFinishReason(tt.in); got != tt.want {
			t.Errorf("normalizeFinishReason(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
