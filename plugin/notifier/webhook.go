package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// WebhookConfig holds webhook delivery configuration.
type WebhookConfig struct {
	URL     string
	Secret  string
	Timeout time.Duration
	Headers map[string]string
}

// WebhookSender POSTs triggered reminders as JSON. A per-reminder destination
// target overrides the configured URL.
type WebhookSender struct {
	config     WebhookConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// webhookPayload is the webhook request body.
type webhookPayload struct {
	Event        string `json:"event"`
	Notification `json:"reminder"`
}

func NewWebhookSender(config WebhookConfig, logger *slog.Logger) *WebhookSender {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookSender{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}
}

func (s *WebhookSender) Name() string {
	return "webhook"
}

func (s *WebhookSender) Send(ctx context.Context, n Notification) error {
	url := s.config.URL
	if n.Target != "" {
		url = n.Target
	}
	if url == "" {
		return errors.New("no webhook URL configured")
	}

	body, err := json.Marshal(webhookPayload{Event: "reminder.triggered", Notification: n})
	if err != nil {
		return errors.Wrap(err, "failed to marshal webhook payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "failed to create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")
	if s.config.Secret != "" {
		req.Header.Set("X-Webhook-Secret", s.config.Secret)
	}
	for k, v := range s.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Error("webhook request failed", "url", url, "error", err)
		return errors.Wrap(err, "webhook request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		s.logger.Error("webhook returned error",
			"url", url,
			"status", resp.StatusCode,
			"response", string(respBody),
		)
		return errors.Errorf("webhook returned status %d", resp.StatusCode)
	}

	s.logger.Debug("webhook notification sent",
		"owner", n.Owner,
		"reminder_uid", n.ReminderUID,
		"status", resp.StatusCode,
	)
	return nil
}
