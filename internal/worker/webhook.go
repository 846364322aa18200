package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/illegalcall/profile-resolver/internal/models"
)

// WebhookPayload is POSTed to a job's callback URL once it finishes.
type WebhookPayload struct {
	JobID     int                   `json:"job_id"`
	RequestID string                `json:"request_id"`
	Status    string                `json:"status"`
	Profile   *models.Profile       `json:"profile,omitempty"`
	Attempts  []models.AttemptBody  `json:"attempts"`
	Error     *models.ErrorResponse `json:"error,omitempty"`
}

// WebhookClient delivers job outcomes.
type WebhookClient interface {
	Send(ctx context.Context, url string, payload WebhookPayload) error
}

// HTTPWebhookClient sends JSON over HTTP.
type HTTPWebhookClient struct {
	client *http.Client
}

func NewHTTPWebhookClient(timeout time.Duration) *HTTPWebhookClient {
	return &HTTPWebhookClient{client: &http.Client{Timeout: timeout}}
}

func (c *HTTPWebhookClient) Send(ctx context.Context, url string, payload WebhookPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook data: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook request failed with status %d", resp.StatusCode)
	}
	return nil
}

// RecordingWebhookClient keeps every payload instead of sending it.
type RecordingWebhookClient struct {
	mu    sync.Mutex
	Calls []WebhookCall
}

type WebhookCall struct {
	URL     string
	Payload WebhookPayload
}

func (m *RecordingWebhookClient) Send(_ context.Context, url string, payload WebhookPayload) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, WebhookCall{URL: url, Payload: payload})
	return nil
}
