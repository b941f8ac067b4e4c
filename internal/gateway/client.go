package gateway

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/leadflow-server/leadflow-server/internal/config"
)

// Sender delivers outbound messages to recipients through the messaging
// gateway. Delivery is at-least-once; the gateway deduplicates on its side.
type Sender interface {
	Send(ctx context.Context, recipientID, text string) error
}

// Client is the HTTP client for the messaging gateway
type Client struct {
	http *resty.Client
}

// NewClient creates a new gateway client
func NewClient(cfg *config.GatewayConfig) *Client {
	http := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetAuthToken(cfg.Token).
		SetTimeout(cfg.RequestTimeout).
		SetRetryCount(cfg.RetryCount)

	return &Client{http: http}
}

// Send implements Sender
func (c *Client) Send(ctx context.Context, recipientID, text string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"to":   recipientID,
			"text": text,
		}).
		Post("/messages")

	if err != nil {
		return fmt.Errorf("gateway send: %w", err)
	}

	if resp.IsError() {
		return fmt.Errorf("gateway send: status %d: %s", resp.StatusCode(), resp.String())
	}

	return nil
}

// Compile-time check that Client implements Sender.
var _ Sender = (*Client)(nil)
