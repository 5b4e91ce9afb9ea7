package observability

import (
	"net/http"
	"strconv"
	"time"
)

// MetricsMiddleware records llmbridge_requests_total and
// llmbridge_request_duration_seconds for every request passing through.
// Status codes collapse into classes ("2xx", "4xx", "5xx") to keep label
// cardinality flat.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		// The resolved model is not visible at this layer; the bridge
		// labels its upstream metrics with it instead.
		const model = "unknown"
		class := strconv.Itoa(rec.status/100) + "xx"

		RequestsTotal.WithLabelValues(r.Method, class, model).Inc()
		RequestDuration.WithLabelValues(r.Method, model).Observe(time.Since(start).Seconds())
	})
}

// statusRecorder remembers the first status code written. Later calls to
// WriteHeader are passed through but do not change the recorded value.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written bool
}

func (w *statusRecorder) WriteHeader(status int) {
	if !w.written {
		w.status = status
		w.written = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	w.written = true
	return w.ResponseWriter.Write(b)
}

// Unwrap exposes the wrapped writer for http.ResponseController.
func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
