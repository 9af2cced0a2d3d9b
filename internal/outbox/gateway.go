package outbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Gateway delivers outbox entries to the downstream webhook receiver.
// A zero-value Gateway is valid and reports itself unconfigured.
type Gateway struct {
	BaseURL string
	Token   string
	client  *http.Client
}

// NewGateway creates a Gateway with the given base URL and bearer token.
func NewGateway(baseURL, token string, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Gateway{
		BaseURL: baseURL,
		Token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// Configured reports whether a delivery target has been set.
func (g *Gateway) Configured() bool {
	return g != nil && g.BaseURL != ""
}

// Deliver posts the entry body to {base}/hooks/{destination}.
func (g *Gateway) Deliver(ctx context.Context, entry Entry) error {
	url := fmt.Sprintf("%s/hooks/%s", g.BaseURL, entry.Destination)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(entry.Body))
	if err != nil {
		return fmt.Errorf("failed to create delivery request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.Token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook receiver returned status %d: %s", resp.StatusCode, snippet)
	}

	return nil
}
