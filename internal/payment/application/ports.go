package application

import (
	"context"
	"time"

	"github.com/dmehra2102/storefront-checkout/internal/payment/domain"
)

// ProviderResponse is the raw answer of the payment provider. A 4xx answer is a
// response, not an error.
type ProviderResponse struct {
	StatusCode        int
	TxID              string
	Status            string
	Reason            string
	QRPayload         string
	CopyCode          string
	ExpiresAt         time.Time
	AuthorizationCode string
	DocumentURL       string
	ReferenceLine     string
	DueDate           time.Time
}

type Provider interface {
	// Submit returns an error only when no usable response was obtained.
	Submit(ctx context.Context, req Request) (ProviderResponse, error)
	Status(ctx context.Context, txID string) (string, error)
}

type StatusSource interface {
	Status(ctx context.Context, txID string) (string, error)
}

type AttemptRecorder interface {
	Record(ctx context.Context, a domain.Attempt) error
}
