package notification

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

// Client defines the interface for notification operations
type Client interface {
	Send(ctx context.Context, message string) error
}

// WebhookURLSource resolves the webhook URL at send time
type WebhookURLSource func(ctx context.Context) (string, error)

// SlackPayload is the body posted to a Slack incoming webhook
type SlackPayload struct {
	Channel  string `json:"channel"`
	Username string `json:"username"`
	Text     string `json:"text"`
}

// SlackClient posts messages to a Slack incoming webhook
type SlackClient struct {
	webhookURL WebhookURLSource
	channel    string
	username   string
	httpClient *http.Client
	logger     *slog.Logger
	maxRetries int
	backoff    time.Duration
}

// SlackClientConfig holds configuration for the Slack client
type SlackClientConfig struct {
	WebhookURL WebhookURLSource
	Channel    string
	Username   string
	Timeout    time.Duration
	MaxRetries int
	// Backoff is the first retry delay; it doubles on every attempt
	Backoff time.Duration
	Logger  *slog.Logger
}

// StaticURL returns a WebhookURLSource for a fixed URL
func StaticURL(url string) WebhookURLSource {
	return func(context.Context) (string, error) {
		return url, nil
	}
}

// NewSlackClient creates a new Slack webhook client
func NewSlackClient(config SlackClientConfig) *SlackClient {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.Backoff == 0 {
		config.Backoff = time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &SlackClient{
		webhookURL: config.WebhookURL,
		channel:    config.Channel,
		username:   config.Username,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger:     config.Logger,
		maxRetries: config.MaxRetries,
		backoff:    config.Backoff,
	}
}

// Send posts a message to the webhook with retry logic
func (c *SlackClient) Send(ctx context.Context, message string) error {
	if c.webhookURL == nil {
		return fmt.Errorf("slack webhook URL source is not configured")
	}

	url, err := c.webhookURL(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve slack webhook URL: %w", err)
	}

	body, err := json.Marshal(SlackPayload{
		Channel:  c.channel,
		Username: c.username,
		Text:     message,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal slack payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.backoff * time.Duration(1<<uint(attempt-1))
			c.logger.DebugContext(ctx, "retrying slack notification",
				slog.Int("attempt", attempt+1),
				slog.Int("max_retries", c.maxRetries),
				slog.Duration("backoff", backoff),
			)

			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled during retry: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}

		err := c.sendOnce(ctx, url, body)
		if err == nil {
			c.logger.DebugContext(ctx, "slack notification sent",
				slog.Int("attempt", attempt+1),
			)
			return nil
		}

		lastErr = err
		c.logger.WarnContext(ctx, "failed to send slack notification",
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)
	}

	return fmt.Errorf("failed to send slack notification after %d attempts: %w", c.maxRetries, lastErr)
}

func (c *SlackClient) sendOnce(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send HTTP request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("slack returned non-success status code %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}
