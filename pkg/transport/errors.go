package transport

import (
	"encoding/json"
	"net/http"

	"github.com/monk-after-90s/llmbridge/pkg/api"
)

// errorStatus maps every error type in the taxonomy to an HTTP status.
var errorStatus = map[api.ErrorType]int{
	api.ErrorTypeInvalidRequest:   http.StatusBadRequest,
	api.ErrorTypeUpstreamTimeout:  http.StatusGatewayTimeout,
	api.ErrorTypeUpstreamRejected: http.StatusBadGateway,
	api.ErrorTypeNotFound:         http.StatusNotFound,
	api.ErrorTypeTooManyRequests:  http.StatusTooManyRequests,
	api.ErrorTypeServerError:      http.StatusInternalServerError,
}

// HTTPStatusFromError resolves the status code for an APIError. Unknown
// types degrade to 500. Purely transport-level failures such as an
// oversized body never reach this mapping; the HTTP adapter handles them
// directly.
func HTTPStatusFromError(err *api.APIError) int {
	if status, ok := errorStatus[err.Type]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteErrorResponse encodes apiErr in the standard error envelope with the
// given status code.
func WriteErrorResponse(w http.ResponseWriter, apiErr *api.APIError, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(api.ErrorResponse{Error: apiErr})
}

// WriteAPIError is WriteErrorResponse with the status derived from the
// error type.
func WriteAPIError(w http.ResponseWriter, apiErr *api.APIError) {
	WriteErrorResponse(w, apiErr, HTTPStatusFromError(apiErr))
}
