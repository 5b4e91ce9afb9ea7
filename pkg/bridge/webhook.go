package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/monk-after-90s/llmbridge/pkg/api"
	"github.com/monk-after-90s/llmbridge/pkg/debug"
	"github.com/monk-after-90s/llmbridge/pkg/observability"
)

// WebhookConfig holds delivery settings for asynchronous results.
type WebhookConfig struct {
	// DeliveryTimeout bounds a single POST attempt. Default: 30s.
	DeliveryTimeout time.Duration

	// MaxAttempts is the number of attempts per URL, including the first.
	// Default: 3.
	MaxAttempts int

	// RetryBackoff is the base delay between attempts, doubled per retry.
	// Default: 2s.
	RetryBackoff time.Duration
}

// WebhookDeliverer POSTs terminal completions to caller-supplied webhook
// URLs. Deliveries to distinct URLs run concurrently; failed deliveries are
// retried with exponential backoff.
type WebhookDeliverer struct {
	client *http.Client
	cfg    WebhookConfig
}

// NewWebhookDeliverer creates a deliverer with the given settings.
func NewWebhookDeliverer(cfg WebhookConfig) *WebhookDeliverer {
	if cfg.DeliveryTimeout == 0 {
		cfg.DeliveryTimeout = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = 2 * time.Second
	}
	return &WebhookDeliverer{
		client: &http.Client{Timeout: cfg.DeliveryTimeout},
		cfg:    cfg,
	}
}

// retryBudget returns the worst-case duration of one URL's delivery cycle:
// every attempt at its full timeout plus the backoff waits between them.
// Distinct URLs deliver concurrently, so the budget does not scale with
// their count.
func (d *WebhookDeliverer) retryBudget() time.Duration {
	budget := time.Duration(d.cfg.MaxAttempts) * d.cfg.DeliveryTimeout
	backoff := d.cfg.RetryBackoff
	for i := 1; i < d.cfg.MaxAttempts; i++ {
		budget += backoff
		backoff *= 2
	}
	return budget
}

// Deliver POSTs the completion to every webhook URL and blocks until all
// deliveries have finished or exhausted their retries. Callers on the
// dispatch path invoke it from the detached goroutine, so blocking here
// never delays an HTTP response.
func (d *WebhookDeliverer) Deliver(ctx context.Context, urls []string, c *api.Completion) {
	if len(urls) == 0 {
		return
	}

	body, err := json.Marshal(c)
	if err != nil {
		slog.Error("marshaling webhook payload", "completion_id", c.ID, "error", err)
		return
	}

	done := make(chan struct{})
	for _, url := range urls {
		go func(url string) {
			defer func() { done <- struct{}{} }()
			d.deliverOne(ctx, url, body, c.ID)
		}(url)
	}
	for range urls {
		<-done
	}
}

// deliverOne attempts delivery to a single URL with retries.
func (d *WebhookDeliverer) deliverOne(ctx context.Context, url string, body []byte, completionID string) {
	backoff := d.cfg.RetryBackoff

	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		err := d.post(ctx, url, body)
		if err == nil {
			observability.WebhookDeliveriesTotal.WithLabelValues("ok").Inc()
			debug.Log("webhook", "delivered",
				"completion_id", completionID, "url", url, "attempt", attempt)
			return
		}

		debug.Log("webhook", "delivery attempt failed",
			"completion_id", completionID, "url", url, "attempt", attempt, "error", err)

		if attempt == d.cfg.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			observability.WebhookDeliveriesTotal.WithLabelValues("cancelled").Inc()
			return
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	observability.WebhookDeliveriesTotal.WithLabelValues("error").Inc()
	slog.Warn("webhook delivery failed",
		"completion_id", completionID, "url", url, "attempts", d.cfg.MaxAttempts)
}

// post performs a single delivery attempt.
func (d *WebhookDeliverer) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &webhookStatusError{status: resp.StatusCode}
	}
	return nil
}

// webhookStatusError reports a non-2xx webhook response.
type webhookStatusError struct {
	status int
}

func (e *webhookStatusError) Error() string {
	return http.StatusText(e.status)
}
