package orchestrator

import (
	"bytes"
	"log/slog"
	"net/http"
	"time"
)

// WebhookSender fires the fire-and-forget POST described in spec §6/§7:
// on terminal status, the resolved on_success/on_failure URL is hit with
// no required body, and delivery failures are silently ignored.
//
// Grounded on the teacher's internal/alerting/channels/webhook.go, with
// the alert-specific payload schema and retry/backoff stripped: this
// domain's webhook contract is strictly "POST, ignore the outcome".
type WebhookSender struct {
	client *http.Client
	logger *slog.Logger
}

// NewWebhookSender returns a sender with a bounded default timeout,
// mirroring the teacher's own 30s HTTP client default.
func NewWebhookSender(logger *slog.Logger) *WebhookSender {
	return &WebhookSender{
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

// Send resolves urlTemplate against result and fires a best-effort POST.
// Runs synchronously but errors never propagate to the caller — the
// executor calls this without checking a return value, by design.
func (w *WebhookSender) Send(resolver *Resolver, urlTemplate string, result BuildResult) {
	url := resolver.ResolveWebhook(urlTemplate, result.Payload, result)
	if url == "" {
		return
	}

	go func() {
		req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(nil))
		if err != nil {
			w.logger.Warn("webhook request build failed", "url", url, "error", err)
			return
		}
		resp, err := w.client.Do(req)
		if err != nil {
			w.logger.Warn("webhook delivery failed", "url", url, "error", err)
			return
		}
		resp.Body.Close()
	}()
}
