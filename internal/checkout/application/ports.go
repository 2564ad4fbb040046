package application

import (
	"context"
	"time"

	"github.com/dmehra2102/storefront-checkout/internal/checkout/domain"
	orderdomain "github.com/dmehra2102/storefront-checkout/internal/order/domain"
	payapp "github.com/dmehra2102/storefront-checkout/internal/payment/application"
	paydomain "github.com/dmehra2102/storefront-checkout/internal/payment/domain"
)

type PostalLookup interface {
	// Lookup returns domain.ErrPostalCodeNotFound for unknown codes.
	Lookup(ctx context.Context, postalCode string) (domain.Address, error)
}

type FreightRater interface {
	Rate(ctx context.Context, postalCode string, lines []domain.CartLine) ([]domain.FreightOption, error)
}

type CouponValidator interface {
	// Validate returns *domain.CouponRejectedError when the coupon cannot be used.
	Validate(ctx context.Context, code string, cart domain.CouponCart) (domain.AppliedCoupon, error)
}

// RedeemedCouponStore holds codes redeemed outside the checkout, per cart owner.
type RedeemedCouponStore interface {
	Load(ctx context.Context, owner string) ([]string, error)
	Remember(ctx context.Context, owner, code string) error
	Forget(ctx context.Context, owner, code string) error
}

type RecoverySnapshot struct {
	SessionID string            `json:"sessionId"`
	Owner     string            `json:"owner"`
	Step      domain.Step       `json:"stepName"`
	Lines     []domain.CartLine `json:"cartLines"`
	Customer  *domain.Customer  `json:"customer,omitempty"`
	Address   *domain.Address   `json:"address,omitempty"`
	At        time.Time         `json:"at"`
}

// RecoverySink receives abandoned-cart snapshots. Errors are ignored by callers.
type RecoverySink interface {
	Snapshot(ctx context.Context, s RecoverySnapshot) error
}

type NotificationSink interface {
	Notify(ctx context.Context, n Notification) error
}

type CartClearer interface {
	Clear(ctx context.Context, owner string) error
}

type PaymentGateway interface {
	Submit(ctx context.Context, req payapp.Request) (paydomain.Result, error)
}

type PaymentWatcher interface {
	Watch(ctx context.Context, txID string, cb payapp.WatchCallbacks) bool
	Stop()
}

type OrderPlacer interface {
	Place(ctx context.Context, d orderdomain.Draft) (orderdomain.Placement, error)
	UpdatePaymentStatus(ctx context.Context, providerTxID, status string) error
}

// SubmissionGuard claims a payment attempt before it is sent.
type SubmissionGuard interface {
	PaymentKey(sessionID string, attempt int) string
	Claim(ctx context.Context, key, value string) error
}
