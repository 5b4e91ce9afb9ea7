package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/monk-after-90s/llmbridge/pkg/api"
	"github.com/monk-after-90s/llmbridge/pkg/storage/memory"
)

// TestMain runs goleak verification for all tests in the package: the
// dispatch path spawns goroutines, and every one of them must exit.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("testing.(*T).Run"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

// mockCompleter is a configurable upstream double that counts calls.
type mockCompleter struct {
	calls    atomic.Int32
	complete func(ctx context.Context, req *api.CompletionRequest) (*api.Completion, error)
}

func (m *mockCompleter) Complete(ctx context.Context, req *api.CompletionRequest) (*api.Completion, error) {
	m.calls.Add(1)
	if m.complete != nil {
		return m.complete(ctx, req)
	}
	return &api.Completion{
		Text:         "mock output",
		FinishReason: api.FinishReasonStop,
		Usage:        &api.Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5},
	}, nil
}

func newTestBridge(t *testing.T, completer Completer, cfg Config) *Bridge {
	t.Helper()
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "test-model"
	}
	b, err := New(completer, nil, nil, cfg)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return b
}

func userRequest(content string) *api.CompletionRequest {
	return &api.CompletionRequest{
		Messages: []api.Message{{Role: api.RoleUser, Content: content}},
	}
}

func TestCreateCompletion_Success(t *testing.T) {
	mock := &mockCompleter{}
	b := newTestBridge(t, mock, Config{})

	got, err := b.CreateCompletion(context.Background(), userRequest("hello"))
	if err != nil {
		t.Fatalf("CreateCompletion() error: %v", err)
	}

	if got.ID == "" {
		t.Error("completion ID should be assigned")
	}
	if !api.ValidateCompletionID(got.ID) {
		t.Errorf("completion ID %q invalid", got.ID)
	}
	if got.Status != api.StatusCompleted {
		t.Errorf("Status = %q, want %q", got.Status, api.StatusCompleted)
	}
	if got.Text != "mock output" {
		t.Errorf("Text = %q, want %q", got.Text, "mock output")
	}
	if got.FinishReason != api.FinishReasonStop {
		t.Errorf("FinishReason = %q, want %q", got.FinishReason, api.FinishReasonStop)
	}
	if got.Model != "test-model" {
		t.Errorf("Model = %q, want default applied", got.Model)
	}
	if got.Usage == nil || got.Usage.TotalTokens != 5 {
		t.Errorf("Usage = %+v, want total 5", got.Usage)
	}
	if got.CreatedAt == 0 {
		t.Error("CreatedAt should be set")
	}
}

func TestCreateCompletion_EmptyMessagesNoUpstreamCall(t *testing.T) {
	mock := &mockCompleter{}
	b := newTestBridge(t, mock, Config{})

	_, err := b.CreateCompletion(context.Background(), &api.CompletionRequest{})

	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *api.APIError, got %T: %v", err, err)
	}
	if apiErr.Type != api.ErrorTypeInvalidRequest {
		t.Errorf("error type = %q, want %q", apiErr.Type, api.ErrorTypeInvalidRequest)
	}
	if n := mock.calls.Load(); n != 0 {
		t.Errorf("upstream calls = %d, want 0 for rejected request", n)
	}
}

func TestCreateCompletion_ValidationRejectsBeforeUpstream(t *testing.T) {
	bad := 3.5
	tests := []struct {
		name string
		req  *api.CompletionRequest
	}{
		{"bad role", &api.CompletionRequest{
			Messages: []api.Message{{Role: "robot", Content: "hi"}},
		}},
		{"bad temperature", &api.CompletionRequest{
			Messages:    []api.Message{{Role: api.RoleUser, Content: "hi"}},
			Temperature: &bad,
		}},
		{"bad webhook URL", &api.CompletionRequest{
			Messages: []api.Message{{Role: api.RoleUser, Content: "hi"}},
			Webhooks: []string{"not-a-url"},
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mock := &mockCompleter{}
			b := newTestBridge(t, mock, Config{})

			_, err := b.CreateCompletion(context.Background(), tc.req)

			var apiErr *api.APIError
			if !errors.As(err, &apiErr) || apiErr.Type != api.ErrorTypeInvalidRequest {
				t.Fatalf("expected invalid_request, got %v", err)
			}
			if n := mock.calls.Load(); n != 0 {
				t.Errorf("upstream calls = %d, want 0", n)
			}
		})
	}
}

func TestCreateCompletion_PromptFoldsToMessages(t *testing.T) {
	var gotMessages []api.Message
	mock := &mockCompleter{
		complete: func(_ context.Context, req *api.CompletionRequest) (*api.Completion, error) {
			gotMessages = req.EffectiveMessages()
			return &api.Completion{Text: "ok", FinishReason: api.FinishReasonStop}, nil
		},
	}
	b := newTestBridge(t, mock, Config{})

	_, err := b.CreateCompletion(context.Background(), &api.CompletionRequest{Prompt: "just a prompt"})
	if err != nil {
		t.Fatalf("CreateCompletion() error: %v", err)
	}

	if len(gotMessages) != 1 {
		t.Fatalf("got %d messages, want 1", len(gotMessages))
	}
	if gotMessages[0].Role != api.RoleUser || gotMessages[0].Content != "just a prompt" {
		t.Errorf("messages[0] = %+v, want user prompt", gotMessages[0])
	}
}

func TestCreateCompletion_NoModelNoDefault(t *testing.T) {
	mock := &mockCompleter{}
	b, err := New(mock, nil, nil, Config{})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	_, err = b.CreateCompletion(context.Background(), userRequest("hello"))

	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *api.APIError, got %v", err)
	}
	if apiErr.Type != api.ErrorTypeInvalidRequest || apiErr.Param != "model" {
		t.Errorf("error = %+v, want invalid_request on model", apiErr)
	}
	if n := mock.calls.Load(); n != 0 {
		t.Errorf("upstream calls = %d, want 0", n)
	}
}

func TestCreateCompletion_ExplicitModelWins(t *testing.T) {
	var gotModel string
	mock := &mockCompleter{
		complete: func(_ context.Context, req *api.CompletionRequest) (*api.Completion, error) {
			gotModel = req.Model
			return &api.Completion{Text: "ok", FinishReason: api.FinishReasonStop}, nil
		},
	}
	b := newTestBridge(t, mock, Config{DefaultModel: "default-model"})

	req := userRequest("hello")
	req.Model = "explicit-model"
	if _, err := b.CreateCompletion(context.Background(), req); err != nil {
		t.Fatalf("CreateCompletion() error: %v", err)
	}

	if gotModel != "explicit-model" {
		t.Errorf("upstream model = %q, want explicit model", gotModel)
	}
}

func TestCreateCompletion_TimeoutNearBound(t *testing.T) {
	mock := &mockCompleter{
		complete: func(ctx context.Context, _ *api.CompletionRequest) (*api.Completion, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	b := newTestBridge(t, mock, Config{UpstreamTimeout: 60 * time.Millisecond})

	start := time.Now()
	_, err := b.CreateCompletion(context.Background(), userRequest("slow"))
	elapsed := time.Since(start)

	var apiErr *api.APIError
	if !errors.As(err, &apiErr) || apiErr.Type != api.ErrorTypeUpstreamTimeout {
		t.Fatalf("expected upstream_timeout, got %v", err)
	}
	if elapsed < 50*time.Millisecond {
		t.Errorf("returned after %v, before the configured bound", elapsed)
	}
	if elapsed > 2*time.Second {
		t.Errorf("returned after %v, far beyond the configured bound", elapsed)
	}
}

func TestCreateCompletion_UpstreamErrorMessagePreserved(t *testing.T) {
	mock := &mockCompleter{
		complete: func(_ context.Context, _ *api.CompletionRequest) (*api.Completion, error) {
			return nil, api.NewUpstreamRejectedError("model overloaded, try again later")
		},
	}
	b := newTestBridge(t, mock, Config{})

	_, err := b.CreateCompletion(context.Background(), userRequest("hello"))

	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *api.APIError, got %v", err)
	}
	if apiErr.Type != api.ErrorTypeUpstreamRejected {
		t.Errorf("error type = %q, want %q", apiErr.Type, api.ErrorTypeUpstreamRejected)
	}
	if apiErr.Message != "model overloaded, try again later" {
		t.Errorf("message = %q, upstream detail must be preserved", apiErr.Message)
	}
}

func TestCreateCompletion_ConcurrentRequestsIndependent(t *testing.T) {
	mock := &mockCompleter{
		complete: func(_ context.Context, req *api.CompletionRequest) (*api.Completion, error) {
			// Echo the request content so each caller can verify it got
			// its own answer.
			return &api.Completion{
				Text:         "echo: " + req.Messages[0].Content,
				FinishReason: api.FinishReasonStop,
			}, nil
		},
	}
	b := newTestBridge(t, mock, Config{})

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	results := make([]*api.Completion, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = b.CreateCompletion(context.Background(),
				userRequest(fmt.Sprintf("request-%d", i)))
		}(i)
	}
	wg.Wait()

	ids := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("request %d failed: %v", i, errs[i])
		}
		want := fmt.Sprintf("echo: request-%d", i)
		if results[i].Text != want {
			t.Errorf("request %d: Text = %q, want %q", i, results[i].Text, want)
		}
		if ids[results[i].ID] {
			t.Errorf("request %d: duplicate completion ID %q", i, results[i].ID)
		}
		ids[results[i].ID] = true
	}
	if got := mock.calls.Load(); got != n {
		t.Errorf("upstream calls = %d, want %d", got, n)
	}
}

func TestCreateCompletion_OneFailureDoesNotAffectOthers(t *testing.T) {
	mock := &mockCompleter{
		complete: func(_ context.Context, req *api.CompletionRequest) (*api.Completion, error) {
			if req.Messages[0].Content == "poison" {
				return nil, api.NewUpstreamRejectedError("bad request content")
			}
			return &api.Completion{Text: "fine", FinishReason: api.FinishReasonStop}, nil
		},
	}
	b := newTestBridge(t, mock, Config{})

	var wg sync.WaitGroup
	var failures, successes atomic.Int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			content := "ok"
			if i%2 == 0 {
				content = "poison"
			}
			_, err := b.CreateCompletion(context.Background(), userRequest(content))
			if err != nil {
				failures.Add(1)
			} else {
				successes.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if failures.Load() != 5 || successes.Load() != 5 {
		t.Errorf("failures = %d, successes = %d, want 5 and 5", failures.Load(), successes.Load())
	}
}

func TestDispatch_AcknowledgesImmediately(t *testing.T) {
	release := make(chan struct{})
	mock := &mockCompleter{
		complete: func(ctx context.Context, _ *api.CompletionRequest) (*api.Completion, error) {
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return &api.Completion{Text: "late", FinishReason: api.FinishReasonStop}, nil
		},
	}

	store := memory.New(0)
	b, err := New(mock, store, nil, Config{DefaultModel: "test-model"})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	req := userRequest("async")
	req.Webhooks = []string{"http://127.0.0.1:1/hook"}

	start := time.Now()
	ack, err := b.CreateCompletion(context.Background(), req)
	if err != nil {
		t.Fatalf("CreateCompletion() error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("ack took %v, must not wait for upstream", elapsed)
	}

	if ack.Status != api.StatusInProgress {
		t.Errorf("ack Status = %q, want %q", ack.Status, api.StatusInProgress)
	}
	if b.InFlight().Len() != 1 {
		t.Errorf("in-flight = %d, want 1", b.InFlight().Len())
	}

	// The acknowledgment must be retrievable while the dispatch runs.
	stored, err := store.GetCompletion(context.Background(), ack.ID)
	if err != nil {
		t.Fatalf("GetCompletion(ack) error: %v", err)
	}
	if stored.Status != api.StatusInProgress {
		t.Errorf("stored Status = %q, want %q", stored.Status, api.StatusInProgress)
	}

	close(release)
	waitForStatus(t, store, ack.ID, api.StatusCompleted)

	if b.InFlight().Len() != 0 {
		t.Errorf("in-flight = %d after completion, want 0", b.InFlight().Len())
	}
}

func TestDispatch_CancelMarksFailed(t *testing.T) {
	mock := &mockCompleter{
		complete: func(ctx context.Context, _ *api.CompletionRequest) (*api.Completion, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}

	store := memory.New(0)
	b, err := New(mock, store, nil, Config{DefaultModel: "test-model"})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	req := userRequest("to cancel")
	req.Webhooks = []string{"http://127.0.0.1:1/hook"}

	ack, err := b.CreateCompletion(context.Background(), req)
	if err != nil {
		t.Fatalf("CreateCompletion() error: %v", err)
	}

	if !b.InFlight().Cancel(ack.ID) {
		t.Fatal("Cancel() = false, dispatch should be registered")
	}

	final := waitForStatus(t, store, ack.ID, api.StatusFailed)
	if final.Error == nil {
		t.Fatal("cancelled dispatch should carry an error")
	}
	if final.Error.Message != "dispatch cancelled" {
		t.Errorf("error message = %q, want %q", final.Error.Message, "dispatch cancelled")
	}

	// A second cancel is a no-op.
	if b.InFlight().Cancel(ack.ID) {
		t.Error("second Cancel() = true, want false")
	}
}

func TestDispatch_TimeoutDeliversFailedWebhook(t *testing.T) {
	// The completer holds the request until the dispatch budget expires,
	// so the terminal phase starts with an already-dead dispatch context.
	mock := &mockCompleter{
		complete: func(ctx context.Context, _ *api.CompletionRequest) (*api.Completion, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}

	delivered := make(chan *api.Completion, 1)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var c api.Completion
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
			t.Errorf("decoding webhook payload: %v", err)
		}
		delivered <- &c
		w.WriteHeader(http.StatusOK)
	}))
	defer hook.Close()

	store := memory.New(0)
	b, err := New(mock, store, fastDeliverer(), Config{
		DefaultModel:    "test-model",
		UpstreamTimeout: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	req := userRequest("will time out")
	req.Webhooks = []string{hook.URL}

	ack, err := b.CreateCompletion(context.Background(), req)
	if err != nil {
		t.Fatalf("CreateCompletion() error: %v", err)
	}

	var got *api.Completion
	select {
	case got = <-delivered:
	case <-time.After(5 * time.Second):
		t.Fatal("webhook never received the failed terminal completion")
	}

	if got.ID != ack.ID {
		t.Errorf("delivered ID = %q, want %q", got.ID, ack.ID)
	}
	if got.Status != api.StatusFailed {
		t.Errorf("delivered Status = %q, want %q", got.Status, api.StatusFailed)
	}
	if got.Error == nil {
		t.Fatal("delivered completion should embed the timeout error")
	}
	if got.Error.Type != api.ErrorTypeUpstreamTimeout {
		t.Errorf("delivered error type = %q, want %q", got.Error.Type, api.ErrorTypeUpstreamTimeout)
	}

	// The stored record must reach the same terminal state.
	final := waitForStatus(t, store, ack.ID, api.StatusFailed)
	if final.Error == nil || final.Error.Type != api.ErrorTypeUpstreamTimeout {
		t.Errorf("stored error = %+v, want upstream_timeout", final.Error)
	}
}

func TestDispatch_CancelDeliversFailedWebhook(t *testing.T) {
	mock := &mockCompleter{
		complete: func(ctx context.Context, _ *api.CompletionRequest) (*api.Completion, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}

	delivered := make(chan *api.Completion, 1)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var c api.Completion
		json.NewDecoder(r.Body).Decode(&c)
		delivered <- &c
		w.WriteHeader(http.StatusOK)
	}))
	defer hook.Close()

	b, err := New(mock, nil, fastDeliverer(), Config{DefaultModel: "test-model"})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	req := userRequest("to cancel")
	req.Webhooks = []string{hook.URL}

	ack, err := b.CreateCompletion(context.Background(), req)
	if err != nil {
		t.Fatalf("CreateCompletion() error: %v", err)
	}
	if !b.InFlight().Cancel(ack.ID) {
		t.Fatal("Cancel() = false, dispatch should be registered")
	}

	select {
	case got := <-delivered:
		if got.Status != api.StatusFailed {
			t.Errorf("delivered Status = %q, want %q", got.Status, api.StatusFailed)
		}
		if got.Error == nil || got.Error.Message != "dispatch cancelled" {
			t.Errorf("delivered error = %+v, want message %q", got.Error, "dispatch cancelled")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("webhook never received the cancelled terminal completion")
	}
}

// waitForStatus polls the store until the completion reaches the wanted
// status or the deadline expires.
func waitForStatus(t *testing.T, store *memory.Store, id string, want api.CompletionStatus) *api.Completion {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		c, err := store.GetCompletion(context.Background(), id)
		if err == nil && c.Status == want {
			return c
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("completion %s never reached status %q", id, want)
	return nil
}
