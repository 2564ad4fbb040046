package domain

import (
	"errors"
	"time"

	checkout "github.com/dmehra2102/storefront-checkout/internal/checkout/domain"
	payment "github.com/dmehra2102/storefront-checkout/internal/payment/domain"
)

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrMissingProvider = errors.New("order draft has no provider transaction id")
)

// PaymentSnapshot is the persisted view of a payment. Card data is masked.
type PaymentSnapshot struct {
	Method            payment.Method `json:"method"`
	ProviderTxID      string         `json:"providerTxId"`
	Status            string         `json:"status"`
	MaskedCard        string         `json:"maskedCard,omitempty"`
	Installments      int            `json:"installments,omitempty"`
	AuthorizationCode string         `json:"authorizationCode,omitempty"`
	DocumentURL       string         `json:"documentUrl,omitempty"`
	ReferenceLine     string         `json:"referenceLine,omitempty"`
	DueDate           time.Time      `json:"dueDate,omitzero"`
}

func SnapshotPayment(r payment.Result) PaymentSnapshot {
	s := PaymentSnapshot{Method: r.Method, ProviderTxID: r.ProviderTxID, Status: r.Status}
	switch p := r.Payload.(type) {
	case payment.CardPayload:
		s.MaskedCard = p.MaskedCard
		s.Installments = p.Installments
		s.AuthorizationCode = p.AuthorizationCode
	case payment.BankSlipPayload:
		s.DocumentURL = p.DocumentURL
		s.ReferenceLine = p.ReferenceLine
		s.DueDate = p.DueDate
	}
	return s
}

// Draft is everything the checkout knows at the moment a payment succeeded.
type Draft struct {
	SessionID string
	Lines     []checkout.CartLine
	Customer  checkout.Customer
	Address   checkout.Address
	Coupons   []checkout.AppliedCoupon
	Freight   *checkout.FreightOption
	Currency  string
	Payment   payment.Result
}

// Order is immutable after creation except for Payment.Status.
type Order struct {
	ID            string                   `json:"id"`
	SessionID     string                   `json:"sessionId"`
	Lines         []checkout.CartLine      `json:"cartSnapshot"`
	Customer      checkout.Customer        `json:"customer"`
	Address       checkout.Address         `json:"address"`
	Coupons       []checkout.AppliedCoupon `json:"appliedCoupons"`
	Freight       *checkout.FreightOption  `json:"freight,omitempty"`
	Payment       PaymentSnapshot          `json:"payment"`
	SubtotalMinor int64                    `json:"subtotalMinorUnits"`
	DiscountMinor int64                    `json:"discountMinorUnits"`
	ShippingMinor int64                    `json:"shippingMinorUnits"`
	TotalMinor    int64                    `json:"totalMinorUnits"`
	Currency      string                   `json:"currency"`
	CreatedAt     time.Time                `json:"createdAt"`
	UpdatedAt     time.Time                `json:"updatedAt"`
}

func NewOrder(id string, d Draft, now time.Time) Order {
	b := checkout.Price(d.Lines, d.Coupons, d.Freight)
	var freight *checkout.FreightOption
	if d.Freight != nil {
		f := *d.Freight
		freight = &f
	}
	return Order{
		ID:            id,
		SessionID:     d.SessionID,
		Lines:         checkout.CloneLines(d.Lines),
		Customer:      d.Customer.Normalize(),
		Address:       d.Address.Normalize(),
		Coupons:       append([]checkout.AppliedCoupon(nil), d.Coupons...),
		Freight:       freight,
		Payment:       SnapshotPayment(d.Payment),
		SubtotalMinor: b.Subtotal,
		DiscountMinor: b.Discount,
		ShippingMinor: b.Shipping,
		TotalMinor:    b.Total,
		Currency:      d.Currency,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Placement is what the checkout learns from the assembler. RegistrationPending
// means the payment succeeded but the order record still needs reconciliation.
type Placement struct {
	OrderID             string `json:"orderId"`
	RegistrationPending bool   `json:"registrationPending"`
}

// ReconciliationItem is an order whose payment succeeded but which no persistence
// path accepted.
type ReconciliationItem struct {
	Order         Order     `json:"order"`
	PrimaryError  string    `json:"primaryError"`
	FallbackError string    `json:"fallbackError"`
	RecordedAt    time.Time `json:"recordedAt"`
}
