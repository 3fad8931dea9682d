// Package notify delivers run reports to a Discord-style webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Sender is the name shown as the message author.
const Sender = "Windscribe Port Manager"

// Message is the webhook payload.
type Message struct {
	Content  string `json:"content"`
	Username string `json:"username"`
}

// Notifier delivers a report. Implementations must not panic; callers treat
// any error as non-fatal.
type Notifier interface {
	Notify(ctx context.Context, text string, isError bool) error
}

// Webhook posts messages to a webhook URL.
type Webhook struct {
	url    string
	logger *slog.Logger
	httpDo func(req *http.Request) (*http.Response, error)
}

// NewWebhook returns a notifier for url. An empty url yields a notifier that
// only logs.
func NewWebhook(url string, logger *slog.Logger) *Webhook {
	hc := &http.Client{Timeout: 10 * time.Second}
	return &Webhook{url: url, logger: logger, httpDo: hc.Do}
}

// Format prefixes text with a status emoji and the bold sender title.
func Format(text string, isError bool) string {
	emoji := "✅"
	if isError {
		emoji = "❌"
	}
	return fmt.Sprintf("%s **%s**\n%s", emoji, Sender, text)
}

// Notify posts text. Delivery failures are logged and returned; they never
// panic.
func (w *Webhook) Notify(ctx context.Context, text string, isError bool) error {
	if w.url == "" {
		w.logger.Info("Webhook URL not configured, skipping notification")
		return nil
	}

	body, err := json.Marshal(Message{Content: Format(text, isError), Username: Sender})
	if err != nil {
		return w.fail(fmt.Errorf("encoding message: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return w.fail(fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpDo(req)
	if err != nil {
		return w.fail(fmt.Errorf("posting notification: %w", err))
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return w.fail(fmt.Errorf("webhook returned HTTP %d", resp.StatusCode))
	}
	w.logger.Info("Notification sent", "error_report", isError)
	return nil
}

func (w *Webhook) fail(err error) error {
	w.logger.Error("Failed to send notification", "error", err)
	return err
}
