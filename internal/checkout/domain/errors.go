package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrCheckoutUnavailable is the fatal configuration error: the tenant has no payment
	// provider, so the flow cannot be entered at all.
	ErrCheckoutUnavailable = errors.New("checkout unavailable: no payment provider configured")
	ErrIllegalTransition   = errors.New("illegal checkout step transition")
	ErrCheckoutClosed      = errors.New("checkout session closed")
	ErrEmptyCart           = errors.New("cart is empty, nothing to checkout")

	ErrCouponAlreadyApplied = errors.New("coupon already applied")
	ErrCouponNotApplied     = errors.New("coupon not applied")
	ErrUnknownFreightOption = errors.New("unknown freight option")
	ErrPostalCodeNotFound   = errors.New("postal code not found")
	ErrQuoteInProgress      = errors.New("freight quote in progress")
)

// ValidationError is a local, field-scoped error. It never reaches the network.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

// OrNil returns nil when no field failed, so callers can return it directly.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// QuoteError wraps a failed freight or coupon lookup. It is retryable and does not
// block unrelated steps.
type QuoteError struct {
	Op  string
	Err error
}

func (e *QuoteError) Error() string { return fmt.Sprintf("%s failed: %v", e.Op, e.Err) }
func (e *QuoteError) Unwrap() error { return e.Err }

// CouponRejectedError is a remote validation rejection (expired, exhausted, minimum not met...).
type CouponRejectedError struct {
	Code   string
	Reason string
}

func (e *CouponRejectedError) Error() string {
	return fmt.Sprintf("coupon %s rejected: %s", e.Code, e.Reason)
}
