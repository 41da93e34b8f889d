package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// WebhookNotifier posts messages as JSON to an HTTP endpoint.
type WebhookNotifier struct {
	url    string
	client *http.Client
	now    func() time.Time
}

// NewWebhookNotifier creates a webhook notifier.
// url: The HTTP endpoint to POST messages to.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		now: time.Now,
	}
}

func (w *WebhookNotifier) Send(ctx context.Context, chatID, text string) bool {
	body, err := json.Marshal(map[string]interface{}{
		"chat_id": chatID,
		"text":    text,
		"ts":      w.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		w.logFailure(err.Error())
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		w.logFailure(err.Error())
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		w.logFailure(http.StatusText(resp.StatusCode))
		return false
	}
	return true
}

func (w *WebhookNotifier) logFailure(reason string) {
	slog.Warn("webhook send failed",
		slog.String("component", "notify"),
		slog.String("url", w.url),
		slog.String("error", reason),
	)
}
