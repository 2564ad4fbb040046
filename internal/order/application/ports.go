package application

import (
	"context"

	"github.com/dmehra2102/storefront-checkout/internal/order/domain"
	"github.com/dmehra2102/storefront-checkout/pkg/outbox"
)

type OrderRepository interface {
	// SaveWithOutbox stores the order and its event in one transaction. It returns the
	// id of the stored order, which is the existing id when the provider transaction
	// was already recorded.
	SaveWithOutbox(ctx context.Context, o domain.Order, msg outbox.Message) (string, error)
	UpdatePaymentStatus(ctx context.Context, providerTxID, status string, msg outbox.Message) (string, error)
	GetByProviderTx(ctx context.Context, providerTxID string) (domain.Order, error)
}

// FallbackOrders is the alternate persistence path with the same contract as the primary.
type FallbackOrders interface {
	Create(ctx context.Context, o domain.Order) (string, error)
}

type ReconciliationJournal interface {
	Record(ctx context.Context, item domain.ReconciliationItem) error
	Pending(ctx context.Context) ([]domain.ReconciliationItem, error)
	SetPaymentStatus(ctx context.Context, providerTxID, status string) error
	Resolve(ctx context.Context, providerTxID string) error
}
