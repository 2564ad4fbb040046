package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/storefront-checkout/internal/checkout/application"
	"github.com/dmehra2102/storefront-checkout/internal/checkout/domain"
	paydomain "github.com/dmehra2102/storefront-checkout/internal/payment/domain"
)

type TenantResolver interface {
	Tenant(id string) (application.Tenant, bool)
}

type AttemptHistory interface {
	ListBySession(ctx context.Context, sessionID string) ([]paydomain.Attempt, error)
}

type RedeemedRecorder interface {
	Remember(ctx context.Context, owner, code string) error
}

type Handler struct {
	log      *slog.Logger
	sessions *application.Registry
	tenants  TenantResolver
	attempts AttemptHistory
	redeemed RedeemedRecorder
	tracer   trace.Tracer
}

// NewHandler wires the checkout routes. attempts and redeemed may be nil.
func NewHandler(log *slog.Logger, sessions *application.Registry, tenants TenantResolver, attempts AttemptHistory, redeemed RedeemedRecorder) *Handler {
	return &Handler{
		log:      log,
		sessions: sessions,
		tenants:  tenants,
		attempts: attempts,
		redeemed: redeemed,
		tracer:   otel.Tracer("checkout-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/sessions", h.start)
	r.Post("/redeemed-coupons", h.rememberCoupon)
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/", h.view)
		r.Delete("/", h.close)
		r.Post("/identity", h.identify)
		r.Put("/customer", h.submitCustomer)
		r.Post("/postal-code", h.lookupPostalCode)
		r.Put("/address", h.updateAddress)
		r.Put("/freight", h.selectFreight)
		r.Post("/freight/retry", h.retryFreight)
		r.Post("/shipping/confirm", h.confirmShipping)
		r.Put("/lines", h.setQuantity)
		r.Post("/coupons", h.applyCoupon)
		r.Delete("/coupons/{code}", h.removeCoupon)
		r.Post("/back", h.back)
		r.Post("/retry", h.retry)
		r.Post("/payments", h.pay)
		r.Get("/payments", h.listAttempts)
	})

	return r
}

type identityReq struct {
	CustomerID string          `json:"customerId"`
	Verified   bool            `json:"verified"`
	Customer   domain.Customer `json:"customer"`
	Address    *domain.Address `json:"address,omitempty"`
}

func (r identityReq) identity() application.Identity {
	return application.Identity{CustomerID: r.CustomerID, Verified: r.Verified, Customer: r.Customer, Address: r.Address}
}

type startReq struct {
	Tenant    string            `json:"tenant"`
	Owner     string            `json:"owner"`
	Identity  *identityReq      `json:"identity,omitempty"`
	CartLines []domain.CartLine `json:"cartLines"`
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "StartCheckout")
	defer span.End()

	var req startReq
	if !decode(w, r, &req) {
		return
	}
	tenant, ok := h.tenants.Tenant(req.Tenant)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Banner: "unknown store"})
		return
	}
	in := application.StartInput{Tenant: tenant, Owner: req.Owner, Lines: req.CartLines}
	if req.Identity != nil {
		id := req.Identity.identity()
		in.Identity = &id
	}

	s, err := h.sessions.Start(ctx, in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	span.SetAttributes(attribute.String("checkout.session_id", s.ID()))
	writeJSON(w, http.StatusCreated, s.View())
}

func (h *Handler) view(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, "ViewCheckout", func(_ context.Context, s *application.Session) error {
		return nil
	})
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Close(chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) identify(w http.ResponseWriter, r *http.Request) {
	var req identityReq
	if !decode(w, r, &req) {
		return
	}
	h.withSession(w, r, "Identify", func(ctx context.Context, s *application.Session) error {
		return s.Identify(ctx, req.identity())
	})
}

func (h *Handler) submitCustomer(w http.ResponseWriter, r *http.Request) {
	var req domain.Customer
	if !decode(w, r, &req) {
		return
	}
	h.withSession(w, r, "SubmitCustomer", func(ctx context.Context, s *application.Session) error {
		return s.SubmitCustomer(ctx, req)
	})
}

func (h *Handler) lookupPostalCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PostalCode string `json:"postalCode"`
	}
	if !decode(w, r, &req) {
		return
	}
	h.withSession(w, r, "LookupPostalCode", func(ctx context.Context, s *application.Session) error {
		_, err := s.LookupPostalCode(ctx, req.PostalCode)
		return err
	})
}

func (h *Handler) updateAddress(w http.ResponseWriter, r *http.Request) {
	var req domain.Address
	if !decode(w, r, &req) {
		return
	}
	h.withSession(w, r, "UpdateAddress", func(ctx context.Context, s *application.Session) error {
		return s.UpdateAddress(ctx, req)
	})
}

func (h *Handler) selectFreight(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OptionID string `json:"optionId"`
	}
	if !decode(w, r, &req) {
		return
	}
	h.withSession(w, r, "SelectFreight", func(_ context.Context, s *application.Session) error {
		_, err := s.SelectFreight(req.OptionID)
		return err
	})
}

func (h *Handler) retryFreight(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, "RetryFreight", func(ctx context.Context, s *application.Session) error {
		return s.RetryFreight(ctx)
	})
}

func (h *Handler) confirmShipping(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, "ConfirmShipping", func(ctx context.Context, s *application.Session) error {
		return s.ConfirmShipping(ctx)
	})
}

func (h *Handler) setQuantity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID string `json:"productId"`
		Variant   string `json:"variant"`
		Quantity  int    `json:"quantity"`
	}
	if !decode(w, r, &req) {
		return
	}
	h.withSession(w, r, "SetQuantity", func(ctx context.Context, s *application.Session) error {
		return s.SetQuantity(ctx, req.ProductID, req.Variant, req.Quantity)
	})
}

func (h *Handler) applyCoupon(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if !decode(w, r, &req) {
		return
	}
	h.withSession(w, r, "ApplyCoupon", func(ctx context.Context, s *application.Session) error {
		_, err := s.ApplyCoupon(ctx, req.Code)
		return err
	})
}

func (h *Handler) removeCoupon(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	h.withSession(w, r, "RemoveCoupon", func(ctx context.Context, s *application.Session) error {
		return s.RemoveCoupon(ctx, code)
	})
}

func (h *Handler) back(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, "Back", func(_ context.Context, s *application.Session) error {
		return s.Back()
	})
}

func (h *Handler) retry(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, "Retry", func(_ context.Context, s *application.Session) error {
		return s.Retry()
	})
}

type payReq struct {
	Method       paydomain.Method       `json:"method"`
	Installments int                    `json:"installments"`
	Card         *paydomain.CardDetails `json:"card,omitempty"`
}

func (h *Handler) pay(w http.ResponseWriter, r *http.Request) {
	var req payReq
	if !decode(w, r, &req) {
		return
	}
	h.withSession(w, r, "Pay", func(ctx context.Context, s *application.Session) error {
		_, err := s.Pay(ctx, application.PayInput{Method: req.Method, Installments: req.Installments, Card: req.Card})
		return err
	})
}

type attemptView struct {
	ProviderTxID string           `json:"providerTxId,omitempty"`
	Method       paydomain.Method `json:"method"`
	AmountMinor  int64            `json:"amountMinorUnits"`
	Status       string           `json:"status"`
	MaskedCard   string           `json:"maskedCard,omitempty"`
	Reason       string           `json:"reason,omitempty"`
	CreatedAt    string           `json:"createdAt"`
}

func (h *Handler) listAttempts(w http.ResponseWriter, r *http.Request) {
	if h.attempts == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody{Banner: "payment history unavailable"})
		return
	}
	ctx, span := h.tracer.Start(r.Context(), "ListPaymentAttempts")
	defer span.End()

	id := chi.URLParam(r, "id")
	list, err := h.attempts.ListBySession(ctx, id)
	if err != nil {
		h.log.Error("list payment attempts", "session_id", id, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Banner: "payment history unavailable"})
		return
	}
	out := make([]attemptView, 0, len(list))
	for _, a := range list {
		out = append(out, attemptView{
			ProviderTxID: a.ProviderTxID,
			Method:       a.Method,
			AmountMinor:  a.AmountMinor,
			Status:       a.Status,
			MaskedCard:   a.MaskedCard,
			Reason:       a.Reason,
			CreatedAt:    a.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"attempts": out})
}

func (h *Handler) rememberCoupon(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Owner string `json:"owner"`
		Code  string `json:"code"`
	}
	if !decode(w, r, &req) {
		return
	}
	if h.redeemed == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody{Banner: "redeemed coupons unavailable"})
		return
	}
	if req.Owner == "" || domain.NormalizeCouponCode(req.Code) == "" {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Fields: map[string]string{"code": "owner and code are required"}})
		return
	}
	if err := h.redeemed.Remember(r.Context(), req.Owner, req.Code); err != nil {
		h.log.Error("remember redeemed coupon", "owner", req.Owner, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Banner: "could not save coupon"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// withSession runs op on the addressed session and answers with its view.
func (h *Handler) withSession(w http.ResponseWriter, r *http.Request, name string, op func(context.Context, *application.Session) error) {
	id := chi.URLParam(r, "id")
	ctx, span := h.tracer.Start(r.Context(), name, trace.WithAttributes(attribute.String("checkout.session_id", id)))
	defer span.End()

	s, err := h.sessions.Get(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := op(ctx, s); err != nil {
		span.RecordError(err)
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.View())
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Banner: "invalid body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
