package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/monk-after-90s/llmbridge/pkg/api"
	"github.com/monk-after-90s/llmbridge/pkg/storage"
	"github.com/monk-after-90s/llmbridge/pkg/transport"
)

// Adapter serves the completion API over HTTP. It routes requests to the
// appropriate handler and serializes responses.
type Adapter struct {
	creator  transport.CompletionCreator
	store    transport.CompletionStore // nil in stateless deployments
	models   transport.ModelLister     // nil when the upstream catalog is not exposed
	inflight *transport.InFlightRegistry
	mux      *http.ServeMux
	config   Config
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	Addr        string
	MaxBodySize int64
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		Addr:        ":8080",
		MaxBodySize: 10 << 20, // 10 MB
	}
}

// NewAdapter creates an HTTP adapter for the given CompletionCreator.
// The CompletionStore and ModelLister are optional; when nil, the
// corresponding endpoints report the operation as unavailable. The in-flight
// registry lets DELETE cancel asynchronous dispatches that are still
// pending; pass nil to disable cancellation. Middleware is applied to the
// CompletionCreator in the given order.
func NewAdapter(creator transport.CompletionCreator, store transport.CompletionStore, models transport.ModelLister, inflight *transport.InFlightRegistry, cfg Config, middlewares ...transport.Middleware) *Adapter {
	if len(middlewares) > 0 {
		creator = transport.Chain(middlewares...)(creator)
	}
	if inflight == nil {
		inflight = transport.NewInFlightRegistry()
	}

	a := &Adapter{
		creator:  creator,
		store:    store,
		models:   models,
		inflight: inflight,
		mux:      http.NewServeMux(),
		config:   cfg,
	}

	a.mux.HandleFunc("POST /v1/completions", a.handleCreateCompletion)
	a.mux.HandleFunc("GET /v1/completions/{id}", a.handleGetCompletion)
	a.mux.HandleFunc("GET /v1/completions", a.handleListCompletions)
	a.mux.HandleFunc("DELETE /v1/completions/{id}", a.handleDeleteCompletion)
	a.mux.HandleFunc("GET /v1/models", a.handleListModels)
	a.mux.HandleFunc("GET /healthz", a.handleHealthz)
	a.mux.HandleFunc("GET /readyz", a.handleReadyz)
	a.mux.Handle("GET /metrics", promhttp.Handler())
	registerDocs(a.mux)

	return a
}

// Handler returns the http.Handler for this adapter. Use this to integrate
// with an http.Server or test with httptest. The returned handler includes
// HTTP-level middleware for request ID propagation.
func (a *Adapter) Handler() http.Handler {
	return httpRequestIDMiddleware(a.mux)
}

// httpRequestIDMiddleware assigns every request an ID for log correlation.
// A client-supplied X-Request-ID is kept, otherwise one is minted here. The
// ID goes into the request context, where the transport-level RequestID
// middleware leaves it untouched, and onto the response headers.
func httpRequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = transport.NewRequestID()
		}
		r = r.WithContext(transport.ContextWithRequestID(r.Context(), id))
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

// handleCreateCompletion handles POST /v1/completions. A synchronous
// request blocks until the upstream answers and returns 200; a webhook
// request returns 202 with an in_progress acknowledgment.
func (a *Adapter) handleCreateCompletion(w http.ResponseWriter, r *http.Request) {
	ct := r.Header.Get("Content-Type")
	if ct != "" && ct != "application/json" {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("content_type", "Content-Type must be application/json"),
			http.StatusUnsupportedMediaType,
		)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)

	var req api.CompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", a.config.MaxBodySize)),
				http.StatusRequestEntityTooLarge,
			)
			return
		}
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()),
			http.StatusBadRequest,
		)
		return
	}

	completion, err := a.creator.CreateCompletion(r.Context(), &req)
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusOK
	if completion.Status == api.StatusInProgress {
		status = http.StatusAccepted
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(completion)
}

// handleGetCompletion handles GET /v1/completions/{id}.
func (a *Adapter) handleGetCompletion(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("", "completion retrieval is not available (no store configured)"),
			http.StatusNotImplemented,
		)
		return
	}

	id := r.PathValue("id")
	if !api.ValidateCompletionID(id) {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("id", "malformed completion ID"),
			http.StatusBadRequest,
		)
		return
	}

	completion, err := a.store.GetCompletion(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			transport.WriteAPIError(w, api.NewNotFoundError("completion "+id+" not found"))
			return
		}
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(completion)
}

// handleDeleteCompletion handles DELETE /v1/completions/{id}. An in-flight
// asynchronous dispatch is cancelled; otherwise the stored record is
// soft-deleted.
func (a *Adapter) handleDeleteCompletion(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !api.ValidateCompletionID(id) {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("id", "malformed completion ID"),
			http.StatusBadRequest,
		)
		return
	}

	if a.inflight.Cancel(id) {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if a.store == nil {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("", "completion deletion is not available (no store configured)"),
			http.StatusNotImplemented,
		)
		return
	}

	if err := a.store.DeleteCompletion(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			transport.WriteAPIError(w, api.NewNotFoundError("completion "+id+" not found"))
			return
		}
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleListCompletions handles GET /v1/completions.
func (a *Adapter) handleListCompletions(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("", "completion listing is not available (no store configured)"),
			http.StatusNotImplemented,
		)
		return
	}

	opts, optsErr := parseListOptions(r)
	if optsErr != nil {
		transport.WriteErrorResponse(w, optsErr, http.StatusBadRequest)
		return
	}

	result, err := a.store.ListCompletions(r.Context(), opts)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// modelList is the wire format for GET /v1/models.
type modelList struct {
	Object string          `json:"object"`
	Data   []api.ModelInfo `json:"data"`
}

// handleListModels handles GET /v1/models by proxying the upstream model
// catalog.
func (a *Adapter) handleListModels(w http.ResponseWriter, r *http.Request) {
	if a.models == nil {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("", "model listing is not available"),
			http.StatusNotImplemented,
		)
		return
	}

	models, err := a.models.ListModels(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(modelList{Object: "list", Data: models})
}

// handleHealthz reports process liveness.
func (a *Adapter) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz reports readiness. A configured store must answer its health
// check; without a store the process is ready as soon as it serves.
func (a *Adapter) handleReadyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if a.store != nil {
		if err := a.store.HealthCheck(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, `{"status":"unavailable","reason":%q}`, err.Error())
			return
		}
	}
	w.Write([]byte(`{"status":"ready"}`))
}

// parseListOptions extracts pagination parameters from the query string.
func parseListOptions(r *http.Request) (transport.ListOptions, *api.APIError) {
	q := r.URL.Query()
	opts := transport.ListOptions{
		After: q.Get("after"),
		Model: q.Get("model"),
		Order: q.Get("order"),
	}

	if opts.Order != "" && opts.Order != "asc" && opts.Order != "desc" {
		return opts, api.NewInvalidRequestError("order", "order must be 'asc' or 'desc'")
	}
	if opts.Order == "" {
		opts.Order = "desc"
	}

	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			return opts, api.NewInvalidRequestError("limit", "limit must be a positive integer")
		}
		opts.Limit = limit
	}

	return opts, nil
}

// writeError writes any handler error as a JSON error response, deriving
// the HTTP status from the error type when it is an APIError.
func writeError(w http.ResponseWriter, err error) {
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		apiErr = api.NewServerError(err.Error())
	}
	transport.WriteAPIError(w, apiErr)
}
