package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/storefront-checkout/internal/order/domain"
)

type OrderReader interface {
	Lookup(ctx context.Context, providerTxID string) (domain.Order, error)
	Pending(ctx context.Context) ([]domain.ReconciliationItem, error)
}

type Handler struct {
	log    *slog.Logger
	orders OrderReader
	tracer trace.Tracer
}

func NewHandler(log *slog.Logger, orders OrderReader) *Handler {
	return &Handler{
		log:    log,
		orders: orders,
		tracer: otel.Tracer("order-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/by-payment/{txid}", h.getByPayment)
	r.Get("/reconciliation", h.listPending)

	return r
}

func (h *Handler) getByPayment(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "txid")
	ctx, span := h.tracer.Start(r.Context(), "GetOrderByPayment", trace.WithAttributes(attribute.String("payment.tx_id", txID)))
	defer span.End()

	o, err := h.orders.Lookup(ctx, txID)
	if errors.Is(err, domain.ErrOrderNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "order not found"})
		return
	}
	if err != nil {
		h.log.Error("order lookup failed", "tx_id", txID, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "order lookup failed"})
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type pendingItem struct {
	OrderID       string `json:"orderId"`
	ProviderTxID  string `json:"providerTxId"`
	PaymentStatus string `json:"paymentStatus"`
	TotalMinor    int64  `json:"totalMinorUnits"`
	PrimaryError  string `json:"primaryError"`
	FallbackError string `json:"fallbackError"`
	RecordedAt    string `json:"recordedAt"`
}

func (h *Handler) listPending(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListPendingOrders")
	defer span.End()

	items, err := h.orders.Pending(ctx)
	if err != nil {
		h.log.Error("reconciliation listing failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "reconciliation listing failed"})
		return
	}
	out := make([]pendingItem, 0, len(items))
	for _, it := range items {
		out = append(out, pendingItem{
			OrderID:       it.Order.ID,
			ProviderTxID:  it.Order.Payment.ProviderTxID,
			PaymentStatus: it.Order.Payment.Status,
			TotalMinor:    it.Order.TotalMinor,
			PrimaryError:  it.PrimaryError,
			FallbackError: it.FallbackError,
			RecordedAt:    it.RecordedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
