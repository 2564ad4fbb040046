package domain

import "strings"

type CouponKind string

const (
	CouponPercent      CouponKind = "percent"
	CouponFixed        CouponKind = "fixed"
	CouponFreeShipping CouponKind = "free_shipping"
)

func (k CouponKind) Valid() bool {
	switch k {
	case CouponPercent, CouponFixed, CouponFreeShipping:
		return true
	}
	return false
}

// AppliedCoupon is a redeemed coupon. Value is a whole percentage for percent coupons
// and minor units for fixed coupons; it is ignored for free shipping.
type AppliedCoupon struct {
	Code  string     `json:"code"`
	Kind  CouponKind `json:"kind"`
	Value int64      `json:"value"`
}

// CouponCart is what the remote validator needs to know about the cart.
type CouponCart struct {
	SubtotalMinor int64
	ProductIDs    []string
}

func NewCouponCart(lines []CartLine) CouponCart {
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	return CouponCart{SubtotalMinor: Subtotal(lines), ProductIDs: ids}
}

func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func HasFreeShipping(coupons []AppliedCoupon) bool {
	for _, c := range coupons {
		if c.Kind == CouponFreeShipping {
			return true
		}
	}
	return false
}
