package domain

import "github.com/shopspring/decimal"

// Breakdown is the priced view of a checkout. All values are minor currency units.
type Breakdown struct {
	Subtotal int64 `json:"subtotalMinorUnits"`
	Discount int64 `json:"discountMinorUnits"`
	Shipping int64 `json:"shippingMinorUnits"`
	Total    int64 `json:"totalMinorUnits"`
}

func Price(lines []CartLine, coupons []AppliedCoupon, selected *FreightOption) Breakdown {
	subtotal := Subtotal(lines)
	shipping := EffectiveShipping(coupons, selected)
	discount := Discount(subtotal, shipping, coupons)
	return Breakdown{
		Subtotal: subtotal,
		Discount: discount,
		Shipping: shipping,
		Total:    Total(subtotal, discount, shipping),
	}
}

func Subtotal(lines []CartLine) int64 {
	var subtotal int64
	for _, l := range lines {
		subtotal += l.TotalMinor()
	}
	return subtotal
}

// EffectiveShipping is zero when any free shipping coupon is applied, however many there are.
func EffectiveShipping(coupons []AppliedCoupon, selected *FreightOption) int64 {
	if HasFreeShipping(coupons) || selected == nil || selected.PriceMinor < 0 {
		return 0
	}
	return selected.PriceMinor
}

// Discount sums percent and fixed coupons independently. Percent coupons apply to
// subtotal plus effective shipping and round half away from zero.
func Discount(subtotal, effectiveShipping int64, coupons []AppliedCoupon) int64 {
	base := decimal.NewFromInt(subtotal + effectiveShipping)
	hundred := decimal.NewFromInt(100)

	var discount int64
	for _, c := range coupons {
		if c.Value <= 0 {
			continue
		}
		switch c.Kind {
		case CouponPercent:
			discount += base.Mul(decimal.NewFromInt(c.Value)).Div(hundred).Round(0).IntPart()
		case CouponFixed:
			discount += c.Value
		}
	}
	return discount
}

func Total(subtotal, discount, effectiveShipping int64) int64 {
	total := subtotal - discount + effectiveShipping
	if total < 0 {
		return 0
	}
	return total
}

// FormatMinor renders minor units with two decimal places, e.g. 10800 -> "108.00".
func FormatMinor(amount int64) string {
	return decimal.New(amount, -2).StringFixed(2)
}
