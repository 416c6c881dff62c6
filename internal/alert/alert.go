// Package alert delivers operational alerts when a pipeline run degrades.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Notifier receives operational alerts raised by the pipeline.
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}

// WebhookNotifier POSTs alerts as JSON to a configured endpoint.
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger *zap.SugaredLogger
}

// NewWebhookNotifier creates a webhook notifier. An empty URL returns a
// LogNotifier instead so callers never need a nil check.
func NewWebhookNotifier(url string, logger *zap.SugaredLogger) Notifier {
	if url == "" {
		return &LogNotifier{logger: logger}
	}
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, subject, body string) error {
	payload, err := json.Marshal(map[string]string{
		"subject": subject,
		"body":    body,
		"sent_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("error encoding alert payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("error building alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("error delivering alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("alert webhook returned status %d", resp.StatusCode)
	}
	n.logger.Infow("alert delivered", "subject", subject)
	return nil
}

// LogNotifier writes alerts to the log. Used when no webhook is configured.
type LogNotifier struct {
	logger *zap.SugaredLogger
}

func NewLogNotifier(logger *zap.SugaredLogger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, subject, body string) error {
	n.logger.Warnw("pipeline alert", "subject", subject, "body", body)
	return nil
}
