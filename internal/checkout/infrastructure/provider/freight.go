package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dmehra2102/storefront-checkout/internal/checkout/domain"
	"github.com/dmehra2102/storefront-checkout/pkg/httpclient"
)

type FreightClient struct {
	log  *slog.Logger
	http *httpclient.Client
}

func NewFreightClient(log *slog.Logger, hc *httpclient.Client) *FreightClient {
	return &FreightClient{log: log, http: hc}
}

type freightItem struct {
	ID          string `json:"id"`
	Quantity    int    `json:"quantity"`
	PriceMinor  int64  `json:"priceMinorUnits"`
	WeightGrams int    `json:"weightGrams"`
	HeightCm    int    `json:"heightCm"`
	WidthCm     int    `json:"widthCm"`
	LengthCm    int    `json:"lengthCm"`
}

type freightRequest struct {
	PostalCode string        `json:"postalCode"`
	Items      []freightItem `json:"items"`
}

type freightResponse struct {
	Options []domain.FreightOption `json:"options"`
}

func (c *FreightClient) Rate(ctx context.Context, postalCode string, lines []domain.CartLine) ([]domain.FreightOption, error) {
	body := freightRequest{PostalCode: postalCode, Items: make([]freightItem, 0, len(lines))}
	for _, l := range lines {
		body.Items = append(body.Items, freightItem{
			ID:          l.ProductID,
			Quantity:    l.Quantity,
			PriceMinor:  l.UnitPriceMinor,
			WeightGrams: l.WeightGrams,
			HeightCm:    l.Dimensions.HeightCm,
			WidthCm:     l.Dimensions.WidthCm,
			LengthCm:    l.Dimensions.LengthCm,
		})
	}

	resp, err := c.http.Post(ctx, "/freight/quotes", body, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("freight quote %s: unexpected status %d", postalCode, resp.StatusCode)
	}

	var out freightResponse
	if err := resp.Decode(&out); err != nil {
		return nil, fmt.Errorf("freight quote %s: decode: %w", postalCode, err)
	}

	opts := out.Options[:0]
	for _, o := range out.Options {
		if o.ID == "" || o.PriceMinor < 0 {
			c.log.Debug("freight option skipped", "id", o.ID, "price", o.PriceMinor)
			continue
		}
		opts = append(opts, o)
	}
	return opts, nil
}
