package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	checkout "github.com/dmehra2102/storefront-checkout/internal/checkout/domain"
	"github.com/dmehra2102/storefront-checkout/internal/payment/application"
	"github.com/dmehra2102/storefront-checkout/internal/payment/domain"
	"github.com/dmehra2102/storefront-checkout/pkg/httpclient"
)

const IdempotencyHeader = "Idempotency-Key"

type Client struct {
	log  *slog.Logger
	http *httpclient.Client
}

func NewClient(log *slog.Logger, hc *httpclient.Client) *Client {
	return &Client{log: log, http: hc}
}

type paymentLine struct {
	ID         string `json:"id"`
	PriceMinor int64  `json:"priceMinorUnits"`
	Quantity   int    `json:"quantity"`
}

type submitRequest struct {
	AmountMinor  int64               `json:"amountMinorUnits"`
	Currency     string              `json:"currency"`
	Method       domain.Method       `json:"method"`
	Installments int                 `json:"installments,omitempty"`
	Customer     checkout.Customer   `json:"customer"`
	Address      checkout.Address    `json:"address"`
	CartLines    []paymentLine       `json:"cartLines"`
	Card         *domain.CardDetails `json:"cardDetails,omitempty"`
}

type submitResponse struct {
	ProviderTxID string `json:"providerTxId"`
	Status       string `json:"status"`
	Reason       string `json:"reason"`
	Message      string `json:"message"`
	Payload      struct {
		QRPayload         string    `json:"qrPayload"`
		CopyCode          string    `json:"copyCode"`
		ExpiresAt         time.Time `json:"expiresAt"`
		AuthorizationCode string    `json:"authorizationCode"`
		DocumentURL       string    `json:"documentUrl"`
		ReferenceLine     string    `json:"referenceLine"`
		DueDate           time.Time `json:"dueDate"`
	} `json:"payload"`
}

func (c *Client) Submit(ctx context.Context, req application.Request) (application.ProviderResponse, error) {
	body := submitRequest{
		AmountMinor: req.AmountMinor,
		Currency:    req.Currency,
		Method:      req.Intent.Method(),
		Customer:    req.Customer,
		Address:     req.Address,
		CartLines:   make([]paymentLine, 0, len(req.Lines)),
	}
	for _, l := range req.Lines {
		body.CartLines = append(body.CartLines, paymentLine{ID: l.ProductID, PriceMinor: l.UnitPriceMinor, Quantity: l.Quantity})
	}
	if ci, ok := req.Intent.(domain.CardIntent); ok {
		body.Installments = ci.Installments
		body.Card = ci.Card
	}

	headers := map[string]string{}
	if req.IdempotencyKey != "" {
		headers[IdempotencyHeader] = req.IdempotencyKey
	}

	resp, err := c.http.Post(ctx, "/payments", body, headers)
	if err != nil {
		return application.ProviderResponse{}, &domain.TransientNetworkError{Op: "POST /payments", Err: err}
	}

	var out submitResponse
	if derr := resp.Decode(&out); derr != nil && resp.StatusCode < http.StatusBadRequest {
		return application.ProviderResponse{}, &domain.TransientNetworkError{Op: "POST /payments", Err: fmt.Errorf("%w: %v", domain.ErrMalformedResponse, derr)}
	}
	reason := out.Reason
	if reason == "" {
		reason = out.Message
	}
	return application.ProviderResponse{
		StatusCode:        resp.StatusCode,
		TxID:              out.ProviderTxID,
		Status:            out.Status,
		Reason:            reason,
		QRPayload:         out.Payload.QRPayload,
		CopyCode:          out.Payload.CopyCode,
		ExpiresAt:         out.Payload.ExpiresAt,
		AuthorizationCode: out.Payload.AuthorizationCode,
		DocumentURL:       out.Payload.DocumentURL,
		ReferenceLine:     out.Payload.ReferenceLine,
		DueDate:           out.Payload.DueDate,
	}, nil
}

func (c *Client) Status(ctx context.Context, txID string) (string, error) {
	resp, err := c.http.Get(ctx, "/payments/"+url.PathEscape(txID), nil)
	if err != nil {
		return "", &domain.TransientNetworkError{Op: "GET /payments/{txid}", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("payment status %s: unexpected status %d", txID, resp.StatusCode)
	}
	var out struct {
		Status string `json:"status"`
	}
	if err := resp.Decode(&out); err != nil {
		return "", fmt.Errorf("payment status %s: %w", txID, domain.ErrMalformedResponse)
	}
	return out.Status, nil
}
