package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ProviderConfig points the built-in handlers at their downstream
// services. Empty endpoints are a first-class "not configured" value: the
// handler fails the job with a descriptive error instead of guessing.
type ProviderConfig struct {
	EmailEndpoint     string
	EmbeddingEndpoint string
	Token             string
	RequestTimeout    time.Duration
}

func newProviderClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// postJSON sends body to url and treats any non-2xx response as an error.
func postJSON(ctx context.Context, client *http.Client, url, token string, body any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(snippet))
	}

	return nil
}

// EmailPayload is the payload for email.send jobs.
type EmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewEmailHandler returns the handler for email.send: it relays the
// message to the configured email provider endpoint.
func NewEmailHandler(cfg ProviderConfig) Handler {
	client := newProviderClient(cfg.RequestTimeout)

	return HandlerFunc(func(ctx context.Context, payload json.RawMessage) error {
		if cfg.EmailEndpoint == "" {
			return fmt.Errorf("email provider endpoint not configured")
		}

		var email EmailPayload
		if err := json.Unmarshal(payload, &email); err != nil {
			return fmt.Errorf("failed to parse email payload: %w", err)
		}
		if email.To == "" {
			return fmt.Errorf("email payload missing recipient")
		}

		if err := postJSON(ctx, client, cfg.EmailEndpoint, cfg.Token, email); err != nil {
			return fmt.Errorf("failed to send email: %w", err)
		}
		return nil
	})
}

// EmbeddingPayload is the payload for embedding.generate jobs.
type EmbeddingPayload struct {
	EntityID string `json:"entity_id"`
	Text     string `json:"text"`
}

// NewEmbeddingHandler returns the handler for embedding.generate: it asks
// the configured embeddings provider to (re)build the vector for an entity.
func NewEmbeddingHandler(cfg ProviderConfig) Handler {
	client := newProviderClient(cfg.RequestTimeout)

	return HandlerFunc(func(ctx context.Context, payload json.RawMessage) error {
		if cfg.EmbeddingEndpoint == "" {
			return fmt.Errorf("embedding provider endpoint not configured")
		}

		var embed EmbeddingPayload
		if err := json.Unmarshal(payload, &embed); err != nil {
			return fmt.Errorf("failed to parse embedding payload: %w", err)
		}
		if embed.EntityID == "" {
			return fmt.Errorf("embedding payload missing entity_id")
		}

		if err := postJSON(ctx, client, cfg.EmbeddingEndpoint, cfg.Token, embed); err != nil {
			return fmt.Errorf("failed to generate embedding: %w", err)
		}
		return nil
	})
}

// ScheduledProcessPayload is the payload carried by
// skillstore.scheduled_process jobs, written by the cron scheduler (timed
// tick or manual trigger).
type ScheduledProcessPayload struct {
	ScheduleID    string          `json:"schedule_id"`
	OwnerID       string          `json:"owner_id"`
	CollectionID  string          `json:"collection_id"`
	WebhookURL    string          `json:"webhook_url"`
	Payload       json.RawMessage `json:"payload"`
	ManualTrigger bool            `json:"manual_trigger"`
}

// NewScheduledProcessHandler returns the handler for
// skillstore.scheduled_process: it delivers the schedule's payload
// template to the schedule's webhook URL.
func NewScheduledProcessHandler(cfg ProviderConfig) Handler {
	client := newProviderClient(cfg.RequestTimeout)

	return HandlerFunc(func(ctx context.Context, payload json.RawMessage) error {
		var run ScheduledProcessPayload
		if err := json.Unmarshal(payload, &run); err != nil {
			return fmt.Errorf("failed to parse scheduled process payload: %w", err)
		}
		if run.WebhookURL == "" {
			return fmt.Errorf("scheduled process payload missing webhook_url")
		}

		body := map[string]any{
			"schedule_id":    run.ScheduleID,
			"owner_id":       run.OwnerID,
			"collection_id":  run.CollectionID,
			"manual_trigger": run.ManualTrigger,
			"payload":        run.Payload,
			"fired_at":       time.Now().UTC().Format(time.RFC3339),
		}

		if err := postJSON(ctx, client, run.WebhookURL, "", body); err != nil {
			return fmt.Errorf("failed to deliver scheduled webhook: %w", err)
		}
		return nil
	})
}
