// Package webhook delivers rule-triggered HTTP callbacks. Failures are
// logged and swallowed: a webhook can never abort the rule or batch
// that fired it.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/freed-reader/automations/automation"
	"github.com/freed-reader/automations/internal/logger"
)

// Sender posts webhook payloads as JSON. The client timeout bounds
// outbound calls so a hung endpoint cannot stall the scheduled scan.
type Sender struct {
	client *http.Client
}

// NewSender creates a sender with the given per-request timeout. A
// non-positive timeout falls back to 10 seconds.
func NewSender(timeout time.Duration) *Sender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Sender{
		client: &http.Client{Timeout: timeout},
	}
}

// Send posts the payload to the URL. Transport errors and non-2xx
// responses are logged and counted, never returned.
func (s *Sender) Send(ctx context.Context, url string, payload automation.WebhookPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		logger.TotalWebhookFailures.Add(1)
		logger.Error("webhook payload marshal failed", "rule", payload.Rule, "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		logger.TotalWebhookFailures.Add(1)
		logger.Error("webhook request failed", "rule", payload.Rule, "url", url, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		logger.TotalWebhookFailures.Add(1)
		logger.Error("webhook call failed", "rule", payload.Rule, "url", url, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.TotalWebhookFailures.Add(1)
		logger.Error("webhook returned non-2xx", "rule", payload.Rule, "url", url, "status", resp.StatusCode)
		return
	}

	logger.Debug("webhook delivered", "rule", payload.Rule, "url", url)
}
