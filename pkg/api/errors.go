package api

import "fmt"

// ErrorType classifies an API error. The type alone tells callers who is
// at fault and whether a retry can help.
type ErrorType string

const (
	// ErrorTypeInvalidRequest: the request itself is malformed. Retrying
	// unchanged cannot succeed.
	ErrorTypeInvalidRequest ErrorType = "invalid_request"
	// ErrorTypeUpstreamTimeout: the upstream call outlived its budget.
	// Transient; a retry may succeed.
	ErrorTypeUpstreamTimeout ErrorType = "upstream_timeout"
	// ErrorTypeUpstreamRejected: the upstream answered with an
	// application-level refusal. Its message is preserved verbatim.
	ErrorTypeUpstreamRejected ErrorType = "upstream_rejected"
	// ErrorTypeNotFound: the referenced resource does not exist.
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeTooManyRequests: the caller exceeded its rate budget.
	ErrorTypeTooManyRequests ErrorType = "too_many_requests"
	// ErrorTypeServerError: a fault inside the bridge itself.
	ErrorTypeServerError ErrorType = "server_error"
)

// APIError is the structured error carried in responses and stored on
// failed completions.
type APIError struct {
	Type    ErrorType `json:"type"`
	Param   string    `json:"param,omitempty"`
	Message string    `json:"message"`
}

func (e *APIError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: %s (param: %s)", e.Type, e.Message, e.Param)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorResponse is the top-level JSON envelope for error bodies.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

// NewInvalidRequestError builds an invalid_request error naming the
// offending parameter.
func NewInvalidRequestError(param, message string) *APIError {
	return &APIError{Type: ErrorTypeInvalidRequest, Param: param, Message: message}
}

func NewUpstreamTimeoutError(message string) *APIError {
	return &APIError{Type: ErrorTypeUpstreamTimeout, Message: message}
}

func NewUpstreamRejectedError(message string) *APIError {
	return &APIError{Type: ErrorTypeUpstreamRejected, Message: message}
}

func NewNotFoundError(message string) *APIError {
	return &APIError{Type: ErrorTypeNotFound, Message: message}
}

func NewTooManyRequestsError(message string) *APIError {
	return &APIError{Type: ErrorTypeTooManyRequests, Message: message}
}

func NewServerError(message string) *APIError {
	return &APIError{Type: ErrorTypeServerError, Message: message}
}
