package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	orderdomain "github.com/dmehra2102/storefront-checkout/internal/order/domain"
	"github.com/dmehra2102/storefront-checkout/internal/payment/domain"
)

var ErrInvalidStatusEvent = errors.New("status event without tx id or status")

// IsPermanent reports whether redelivering the event can never succeed.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrInvalidStatusEvent) || errors.Is(err, orderdomain.ErrOrderNotFound)
}

type OrderStatusUpdater interface {
	UpdatePaymentStatus(ctx context.Context, providerTxID, status string) error
}

// WebhookService applies provider status changes delivered out of band.
type WebhookService struct {
	log    *slog.Logger
	orders OrderStatusUpdater
}

func NewWebhookService(log *slog.Logger, orders OrderStatusUpdater) *WebhookService {
	return &WebhookService{log: log, orders: orders}
}

func (s *WebhookService) Apply(ctx context.Context, ev domain.StatusReported) error {
	status := domain.NormalizeStatus(ev.Status)
	if ev.ProviderTxID == "" || status == "" {
		return ErrInvalidStatusEvent
	}
	if err := s.orders.UpdatePaymentStatus(ctx, ev.ProviderTxID, status); err != nil {
		return fmt.Errorf("apply status %s to %s: %w", status, ev.ProviderTxID, err)
	}
	s.log.Info("payment status applied", "tx_id", ev.ProviderTxID, "status", status, "event_id", ev.EventID)
	return nil
}
