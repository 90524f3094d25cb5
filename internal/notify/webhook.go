// File: internal/notify/webhook.go

// Package notify delivers run outcomes to a webhook endpoint. Delivery is
// strictly best-effort: failures are logged and swallowed, never propagated
// to the visit loop.
package notify

import (
	"bytes"
	"context"
	"io"
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/hevesm/linkvisitor/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Sink accepts a free-text message for delivery.
type Sink interface {
	Notify(ctx context.Context, text string)
}

// payload is the webhook body, compatible with Slack-style incoming webhooks.
type payload struct {
	Text string `json:"text"`
}

// WebhookSink posts messages to a configured webhook URL.
type WebhookSink struct {
	logger *zap.Logger
	client *http.Client
	url    string
}

// NewWebhookSink builds a sink from configuration. When the sink is disabled
// or has no URL, a no-op sink is returned instead.
func NewWebhookSink(logger *zap.Logger, cfg config.NotifyConfig) Sink {
	if !cfg.Enabled || cfg.WebhookURL == "" {
		return NopSink{}
	}
	return &WebhookSink{
		logger: logger.Named("notify"),
		client: &http.Client{Timeout: cfg.Timeout},
		url:    cfg.WebhookURL,
	}
}

// Notify posts the message. Any failure is logged and dropped.
func (s *WebhookSink) Notify(ctx context.Context, text string) {
	body, err := json.Marshal(payload{Text: text})
	if err != nil {
		s.logger.Error("Could not encode notification payload.", zap.Error(err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		s.logger.Error("Could not build notification request.", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("Notification delivery failed.", zap.Error(err))
		return
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.logger.Warn("Notification endpoint returned a non-2xx status.",
			zap.Int("status", resp.StatusCode))
		return
	}
	s.logger.Debug("Notification delivered.")
}

// NopSink discards all messages.
type NopSink struct{}

// Notify implements Sink.
func (NopSink) Notify(context.Context, string) {}
