package fallback

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dmehra2102/storefront-checkout/internal/order/domain"
	"github.com/dmehra2102/storefront-checkout/pkg/httpclient"
)

// Client creates orders through the secondary order endpoint.
type Client struct {
	log  *slog.Logger
	http *httpclient.Client
}

func NewClient(log *slog.Logger, hc *httpclient.Client) *Client {
	return &Client{log: log, http: hc}
}

func (c *Client) Create(ctx context.Context, o domain.Order) (string, error) {
	resp, err := c.http.Post(ctx, "/orders", o, map[string]string{"Idempotency-Key": o.Payment.ProviderTxID})
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("fallback order endpoint: unexpected status %d", resp.StatusCode)
	}
	var out struct {
		OrderID string `json:"orderId"`
	}
	if err := resp.Decode(&out); err != nil {
		return "", fmt.Errorf("fallback order endpoint: decode response: %w", err)
	}
	if out.OrderID == "" {
		return o.ID, nil
	}
	return out.OrderID, nil
}
