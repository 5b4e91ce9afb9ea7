package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/monk-after-90s/llmbridge/pkg/api"
)

// MapHTTPError converts a provider response with a non-2xx status code into
// an APIError. Any application-level rejection, regardless of status code,
// surfaces as upstream_rejected with the provider's own message preserved.
func MapHTTPError(resp *http.Response) *api.APIError {
	message := ExtractErrorMessage(resp.Body)
	if message == "" {
		message = fmt.Sprintf("upstream returned HTTP %d", resp.StatusCode)
	}
	return api.NewUpstreamRejectedError(message)
}

// MapNetworkError converts a network-level failure into an APIError.
// Exceeded deadlines become upstream_timeout; everything else (connection
// refused, DNS failure) becomes a server error with a descriptive message.
// A caller-initiated cancellation is passed through untouched so the
// transport can tell it apart from a timeout.
func MapNetworkError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return api.NewUpstreamTimeoutError("upstream did not respond within the configured budget")
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return api.NewUpstreamTimeoutError("upstream did not respond within the configured budget")
	}
	return api.NewServerError(fmt.Sprintf("upstream connection error: %s", err.Error()))
}

// ExtractErrorMessage tries to parse the response body as a ChatErrorResponse
// and returns the error message if found.
func ExtractErrorMessage(body io.Reader) string {
	if body == nil {
		return ""
	}

	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}

	var errResp ChatErrorResponse
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		return errResp.Error.Message
	}

	return ""
}
