package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	checkout "github.com/dmehra2102/storefront-checkout/internal/checkout/domain"
	"github.com/dmehra2102/storefront-checkout/internal/payment/domain"
)

const nonCardRejectionMessage = "We could not generate this payment. Check your details and try again."

// Request is the uniform submission for every payment method.
type Request struct {
	SessionID      string
	IdempotencyKey string
	Intent         domain.Intent
	AmountMinor    int64
	Currency       string
	Customer       checkout.Customer
	Address        checkout.Address
	Lines          []checkout.CartLine
}

type Gateway struct {
	log      *slog.Logger
	provider Provider
	attempts AttemptRecorder
	rules    domain.DeclineRules
	tracer   trace.Tracer
	now      func() time.Time
}

func NewGateway(log *slog.Logger, provider Provider, attempts AttemptRecorder) *Gateway {
	return &Gateway{
		log:      log,
		provider: provider,
		attempts: attempts,
		rules:    domain.DefaultDeclineRules,
		tracer:   otel.Tracer("payment-gateway"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Submit sends the intent exactly once. It never retries. Card details are wiped
// before it returns whatever the outcome.
func (g *Gateway) Submit(ctx context.Context, req Request) (domain.Result, error) {
	ctx, span := g.tracer.Start(ctx, "SubmitPayment")
	defer span.End()

	if req.Intent == nil {
		return domain.Result{}, domain.ErrUnsupportedIntent
	}
	method := req.Intent.Method()
	span.SetAttributes(attribute.String("payment.method", string(method)), attribute.Int64("payment.amount_minor", req.AmountMinor))

	var masked string
	if ci, ok := req.Intent.(domain.CardIntent); ok {
		defer ci.Card.Wipe()
		masked = ci.Card.Masked()
		if err := validateCard(ci); err != nil {
			return domain.Result{}, err
		}
	}

	resp, err := g.provider.Submit(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submit failed")
		var tne *domain.TransientNetworkError
		if !errors.As(err, &tne) {
			err = &domain.TransientNetworkError{Op: "submit payment", Err: err}
		}
		g.record(ctx, req, "", "error", masked, err.Error())
		return domain.Result{}, err
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		err := &domain.TransientNetworkError{Op: "submit payment", Err: fmt.Errorf("provider status %d", resp.StatusCode)}
		g.record(ctx, req, resp.TxID, "error", masked, err.Error())
		return domain.Result{}, err
	}

	if rej := g.rejection(method, resp); rej != nil {
		g.log.Info("payment rejected", "session_id", req.SessionID, "method", method, "field", rej.Field, "reason", rej.Reason)
		g.record(ctx, req, resp.TxID, domain.StatusDeclined, masked, rej.Reason)
		return domain.Result{}, rej
	}

	if resp.TxID == "" {
		err := &domain.TransientNetworkError{Op: "submit payment", Err: domain.ErrMalformedResponse}
		g.record(ctx, req, "", "error", masked, err.Error())
		return domain.Result{}, err
	}

	res := domain.Result{ProviderTxID: resp.TxID, Method: method, Status: domain.NormalizeStatus(resp.Status)}
	switch in := req.Intent.(type) {
	case domain.InstantTransferIntent:
		if res.Status == "" {
			res.Status = domain.StatusPending
		}
		res.Payload = domain.InstantTransferPayload{QRPayload: resp.QRPayload, CopyCode: resp.CopyCode, ExpiresAt: resp.ExpiresAt}
	case domain.CardIntent:
		if res.Status == "" {
			res.Status = domain.StatusApproved
		}
		res.Payload = domain.CardPayload{MaskedCard: masked, Installments: in.Installments, AuthorizationCode: resp.AuthorizationCode}
	case domain.BankSlipIntent:
		if res.Status == "" {
			res.Status = domain.StatusIssued
		}
		res.Payload = domain.BankSlipPayload{DocumentURL: resp.DocumentURL, ReferenceLine: resp.ReferenceLine, DueDate: resp.DueDate}
	default:
		return domain.Result{}, domain.ErrUnsupportedIntent
	}

	span.SetAttributes(attribute.String("payment.tx_id", res.ProviderTxID), attribute.String("payment.status", res.Status))
	g.log.Info("payment submitted", "session_id", req.SessionID, "method", method, "tx_id", res.ProviderTxID, "status", res.Status)
	g.record(ctx, req, res.ProviderTxID, res.Status, masked, "")
	return res, nil
}

func (g *Gateway) rejection(method domain.Method, resp ProviderResponse) *domain.GatewayRejection {
	declined := resp.StatusCode >= http.StatusBadRequest || domain.IsDeclineStatus(resp.Status)
	if !declined {
		return nil
	}
	reason := resp.Reason
	if reason == "" {
		reason = resp.Status
	}
	if method == domain.MethodCard {
		return g.rules.Classify(reason)
	}
	return &domain.GatewayRejection{Field: domain.FieldNone, Message: nonCardRejectionMessage, Reason: reason}
}

func (g *Gateway) record(ctx context.Context, req Request, txID, status, masked, reason string) {
	if g.attempts == nil {
		return
	}
	a := domain.Attempt{
		IdempotencyKey: req.IdempotencyKey,
		SessionID:      req.SessionID,
		Method:         req.Intent.Method(),
		AmountMinor:    req.AmountMinor,
		ProviderTxID:   txID,
		Status:         status,
		MaskedCard:     masked,
		Reason:         reason,
		CreatedAt:      g.now(),
	}
	if err := g.attempts.Record(context.WithoutCancel(ctx), a); err != nil {
		g.log.Error("record payment attempt failed", "session_id", req.SessionID, "err", err)
	}
}

func validateCard(ci domain.CardIntent) error {
	verr := &checkout.ValidationError{}
	for _, f := range ci.Card.Missing() {
		verr.Add(string(f), "required")
	}
	if ci.Installments < 1 {
		verr.Add(string(domain.FieldInstallments), "must be at least 1, got "+strconv.Itoa(ci.Installments))
	}
	return verr.OrNil()
}
