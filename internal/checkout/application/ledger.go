package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/dmehra2102/storefront-checkout/internal/checkout/domain"
)

// CouponLedger is the set of coupons applied to one checkout, keyed by uppercase code.
type CouponLedger struct {
	log       *slog.Logger
	validator CouponValidator
	store     RedeemedCouponStore
	owner     string

	mu       sync.Mutex
	applied  []domain.AppliedCoupon
	imported bool
}

func NewCouponLedger(log *slog.Logger, validator CouponValidator, store RedeemedCouponStore, owner string) *CouponLedger {
	return &CouponLedger{log: log, validator: validator, store: store, owner: owner}
}

// Apply validates code remotely and adds it. A code already present is rejected
// and the set is left untouched.
func (l *CouponLedger) Apply(ctx context.Context, code string, cart domain.CouponCart) (domain.AppliedCoupon, error) {
	norm := domain.NormalizeCouponCode(code)
	if norm == "" {
		return domain.AppliedCoupon{}, domain.NewValidationError("coupon", "enter a coupon code")
	}

	// Held across validation so two applies of one code cannot both pass.
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.indexOf(norm) >= 0 {
		return domain.AppliedCoupon{}, domain.ErrCouponAlreadyApplied
	}

	c, err := l.validator.Validate(ctx, norm, cart)
	if err != nil {
		var rejected *domain.CouponRejectedError
		if errors.As(err, &rejected) {
			return domain.AppliedCoupon{}, err
		}
		return domain.AppliedCoupon{}, &domain.QuoteError{Op: "coupon validation", Err: err}
	}

	c.Code = domain.NormalizeCouponCode(c.Code)
	if c.Code == "" {
		c.Code = norm
	}
	if reason := invalidDefinition(c); reason != "" {
		return domain.AppliedCoupon{}, &domain.CouponRejectedError{Code: norm, Reason: reason}
	}
	if c.Code != norm && l.indexOf(c.Code) >= 0 {
		return domain.AppliedCoupon{}, domain.ErrCouponAlreadyApplied
	}

	l.applied = append(l.applied, c)
	return c, nil
}

// Remove deletes code and forgets any redeemed record of it so it does not come
// back on the next session.
func (l *CouponLedger) Remove(ctx context.Context, code string) error {
	norm := domain.NormalizeCouponCode(code)

	l.mu.Lock()
	i := l.indexOf(norm)
	if i < 0 {
		l.mu.Unlock()
		return domain.ErrCouponNotApplied
	}
	l.applied = append(l.applied[:i:i], l.applied[i+1:]...)
	l.mu.Unlock()

	l.forget(ctx, norm)
	return nil
}

// ImportRedeemed applies the owner's redeemed coupons once. Codes that fail
// validation are dropped silently and forgotten.
func (l *CouponLedger) ImportRedeemed(ctx context.Context, cart domain.CouponCart) int {
	l.mu.Lock()
	if l.imported || l.store == nil || l.owner == "" {
		l.imported = true
		l.mu.Unlock()
		return 0
	}
	l.imported = true
	l.mu.Unlock()

	codes, err := l.store.Load(ctx, l.owner)
	if err != nil {
		l.log.Warn("redeemed coupons load failed", "owner", l.owner, "err", err)
		return 0
	}

	applied := 0
	for _, code := range codes {
		_, err := l.Apply(ctx, code, cart)
		switch {
		case err == nil:
			applied++
		case errors.Is(err, domain.ErrCouponAlreadyApplied):
		default:
			l.log.Debug("redeemed coupon dropped", "code", code, "err", err)
			l.forget(ctx, domain.NormalizeCouponCode(code))
		}
	}
	return applied
}

func (l *CouponLedger) Applied() []domain.AppliedCoupon {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.AppliedCoupon(nil), l.applied...)
}

func (l *CouponLedger) indexOf(code string) int {
	for i, c := range l.applied {
		if c.Code == code {
			return i
		}
	}
	return -1
}

func (l *CouponLedger) forget(ctx context.Context, code string) {
	if l.store == nil || l.owner == "" {
		return
	}
	if err := l.store.Forget(ctx, l.owner, code); err != nil {
		l.log.Warn("forget redeemed coupon failed", "owner", l.owner, "code", code, "err", err)
	}
}

func invalidDefinition(c domain.AppliedCoupon) string {
	switch c.Kind {
	case domain.CouponPercent:
		if c.Value <= 0 || c.Value > 100 {
			return "invalid percentage"
		}
	case domain.CouponFixed:
		if c.Value <= 0 {
			return "invalid amount"
		}
	case domain.CouponFreeShipping:
	default:
		return "unknown coupon kind"
	}
	return ""
}
