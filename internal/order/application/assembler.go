package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	checkout "github.com/dmehra2102/storefront-checkout/internal/checkout/domain"
	"github.com/dmehra2102/storefront-checkout/internal/order/domain"
	"github.com/dmehra2102/storefront-checkout/pkg/outbox"
)

const (
	aggregateOrder        = "order"
	defaultPersistTimeout = 10 * time.Second
	defaultPlacedTTL      = time.Hour
)

// Assembler persists exactly one order per successful payment. The primary path
// is tried once, the fallback once, and if both fail the order is journaled for
// reconciliation. Payments are never retried here.
type Assembler struct {
	log      *slog.Logger
	repo     OrderRepository
	fallback FallbackOrders
	journal  ReconciliationJournal
	tracer   trace.Tracer
	timeout  time.Duration
	newID    func() string
	now      func() time.Time

	sf        singleflight.Group
	mu        sync.Mutex
	placed    map[string]placedEntry
	placedTTL time.Duration
	swept     time.Time
}

// placedEntry remembers a placement long enough to absorb repeated calls. Older
// repeats fall through to the stores, which are idempotent per tx id.
type placedEntry struct {
	placement domain.Placement
	at        time.Time
}

func NewAssembler(log *slog.Logger, repo OrderRepository, fallback FallbackOrders, journal ReconciliationJournal) *Assembler {
	return &Assembler{
		log:      log,
		repo:     repo,
		fallback: fallback,
		journal:  journal,
		tracer:   otel.Tracer("order-assembler"),
		timeout:  defaultPersistTimeout,
		newID:    uuid.NewString,
		now:      func() time.Time { return time.Now().UTC() },
		placed:   make(map[string]placedEntry),

		placedTTL: defaultPlacedTTL,
	}
}

func (a *Assembler) Place(ctx context.Context, d domain.Draft) (domain.Placement, error) {
	txID := d.Payment.ProviderTxID
	if txID == "" {
		return domain.Placement{}, domain.ErrMissingProvider
	}
	if len(d.Lines) == 0 {
		return domain.Placement{}, checkout.ErrEmptyCart
	}
	if p, ok := a.lookup(txID); ok {
		return p, nil
	}

	v, _, _ := a.sf.Do(txID, func() (any, error) {
		if p, ok := a.lookup(txID); ok {
			return p, nil
		}
		p := a.persist(ctx, d)
		a.remember(txID, p)
		return p, nil
	})
	return v.(domain.Placement), nil
}

func (a *Assembler) lookup(txID string) (domain.Placement, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.placed[txID]
	if !ok || a.now().Sub(e.at) >= a.placedTTL {
		return domain.Placement{}, false
	}
	return e.placement, true
}

func (a *Assembler) remember(txID string, p domain.Placement) {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.now()
	a.placed[txID] = placedEntry{placement: p, at: now}
	if now.Sub(a.swept) < a.placedTTL {
		return
	}
	for id, e := range a.placed {
		if now.Sub(e.at) >= a.placedTTL {
			delete(a.placed, id)
		}
	}
	a.swept = now
}

func (a *Assembler) persist(ctx context.Context, d domain.Draft) domain.Placement {
	// The payment is already taken; the caller going away must not abort persistence.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
	defer cancel()

	ctx, span := a.tracer.Start(ctx, "PlaceOrder")
	defer span.End()

	o := domain.NewOrder(a.newID(), d, a.now())
	log := a.log.With("order_id", o.ID, "tx_id", o.Payment.ProviderTxID, "session_id", o.SessionID)
	span.SetAttributes(attribute.String("order.id", o.ID), attribute.Int64("order.total_minor", o.TotalMinor))

	primaryErr := a.savePrimary(ctx, &o)
	if primaryErr == nil {
		log.Info("order placed")
		return domain.Placement{OrderID: o.ID}
	}
	log.Warn("primary order persistence failed, trying fallback", "err", primaryErr)

	id, fallbackErr := a.fallback.Create(ctx, o)
	if fallbackErr == nil {
		if id == "" {
			id = o.ID
		}
		log.Info("order placed via fallback", "fallback_order_id", id)
		return domain.Placement{OrderID: id}
	}

	span.RecordError(fallbackErr)
	item := domain.ReconciliationItem{
		Order:         o,
		PrimaryError:  primaryErr.Error(),
		FallbackError: fallbackErr.Error(),
		RecordedAt:    a.now(),
	}
	if err := a.journal.Record(ctx, item); err != nil {
		log.Error("reconciliation journal write failed", "err", err)
	}
	log.Error("order registration pending reconciliation",
		"primary_err", primaryErr, "fallback_err", fallbackErr, "total_minor", o.TotalMinor)
	return domain.Placement{OrderID: o.ID, RegistrationPending: true}
}

func (a *Assembler) savePrimary(ctx context.Context, o *domain.Order) error {
	event := domain.OrderPlaced{
		OrderID:      o.ID,
		SessionID:    o.SessionID,
		ProviderTxID: o.Payment.ProviderTxID,
		Method:       string(o.Payment.Method),
		TotalMinor:   o.TotalMinor,
		Currency:     o.Currency,
		ItemCount:    checkout.ItemCount(o.Lines),
		PlacedAt:     o.CreatedAt,
	}
	msg, err := outbox.NewMessage(ctx, aggregateOrder, o.ID, domain.EventOrderPlaced, event)
	if err != nil {
		return err
	}
	id, err := a.repo.SaveWithOutbox(ctx, *o, msg)
	if err != nil {
		return err
	}
	o.ID = id
	return nil
}

// UpdatePaymentStatus applies a watcher or webhook status change. Orders still
// waiting in the journal are updated there.
func (a *Assembler) UpdatePaymentStatus(ctx context.Context, providerTxID, status string) error {
	ev := domain.OrderPaymentStatusChanged{ProviderTxID: providerTxID, Status: status, ChangedAt: a.now()}
	msg, err := outbox.NewMessage(ctx, aggregateOrder, providerTxID, domain.EventOrderPaymentStatusChanged, ev)
	if err != nil {
		return err
	}
	orderID, err := a.repo.UpdatePaymentStatus(ctx, providerTxID, status, msg)
	if err == nil {
		a.log.Info("order payment status updated", "order_id", orderID, "tx_id", providerTxID, "status", status)
		return nil
	}
	if !errors.Is(err, domain.ErrOrderNotFound) {
		return fmt.Errorf("update payment status: %w", err)
	}
	if jerr := a.journal.SetPaymentStatus(ctx, providerTxID, status); jerr != nil {
		return fmt.Errorf("update payment status: %w", errors.Join(err, jerr))
	}
	a.log.Info("pending order payment status updated", "tx_id", providerTxID, "status", status)
	return nil
}

// Reconcile retries journaled orders through the primary path and resolves the
// ones that were stored. It returns how many were resolved.
func (a *Assembler) Reconcile(ctx context.Context) (int, error) {
	items, err := a.journal.Pending(ctx)
	if err != nil {
		return 0, err
	}
	resolved := 0
	for _, item := range items {
		o := item.Order
		if err := a.savePrimary(ctx, &o); err != nil {
			a.log.Warn("reconciliation retry failed", "order_id", o.ID, "tx_id", o.Payment.ProviderTxID, "err", err)
			continue
		}
		if err := a.journal.Resolve(ctx, o.Payment.ProviderTxID); err != nil {
			a.log.Error("journal resolve failed", "tx_id", o.Payment.ProviderTxID, "err", err)
			continue
		}
		resolved++
		a.log.Info("order reconciled", "order_id", o.ID, "tx_id", o.Payment.ProviderTxID)
	}
	return resolved, nil
}

// Lookup returns the order of a payment. Orders still waiting for registration
// come from the journal.
func (a *Assembler) Lookup(ctx context.Context, providerTxID string) (domain.Order, error) {
	o, err := a.repo.GetByProviderTx(ctx, providerTxID)
	if err == nil || !errors.Is(err, domain.ErrOrderNotFound) {
		return o, err
	}
	items, jerr := a.journal.Pending(ctx)
	if jerr != nil {
		return domain.Order{}, errors.Join(err, jerr)
	}
	for _, item := range items {
		if item.Order.Payment.ProviderTxID == providerTxID {
			return item.Order, nil
		}
	}
	return domain.Order{}, err
}

func (a *Assembler) Pending(ctx context.Context) ([]domain.ReconciliationItem, error) {
	return a.journal.Pending(ctx)
}
