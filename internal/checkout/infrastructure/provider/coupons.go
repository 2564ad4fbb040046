package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dmehra2102/storefront-checkout/internal/checkout/domain"
	"github.com/dmehra2102/storefront-checkout/pkg/httpclient"
)

type CouponClient struct {
	log  *slog.Logger
	http *httpclient.Client
}

func NewCouponClient(log *slog.Logger, hc *httpclient.Client) *CouponClient {
	return &CouponClient{log: log, http: hc}
}

type couponRequest struct {
	Code          string   `json:"code"`
	SubtotalMinor int64    `json:"subtotalMinorUnits"`
	ProductIDs    []string `json:"productIds"`
}

type couponResponse struct {
	Code    string `json:"code"`
	Kind    string `json:"kind"`
	Value   int64  `json:"value"`
	Message string `json:"message"`
}

var couponKinds = map[string]domain.CouponKind{
	"percent":       domain.CouponPercent,
	"percentage":    domain.CouponPercent,
	"fixed":         domain.CouponFixed,
	"amount":        domain.CouponFixed,
	"free_shipping": domain.CouponFreeShipping,
	"freeshipping":  domain.CouponFreeShipping,
}

func (c *CouponClient) Validate(ctx context.Context, code string, cart domain.CouponCart) (domain.AppliedCoupon, error) {
	resp, err := c.http.Post(ctx, "/coupons/validate", couponRequest{
		Code:          code,
		SubtotalMinor: cart.SubtotalMinor,
		ProductIDs:    cart.ProductIDs,
	}, nil)
	if err != nil {
		return domain.AppliedCoupon{}, err
	}

	var out couponResponse
	decodeErr := resp.Decode(&out)

	switch {
	case resp.StatusCode == http.StatusOK:
		if decodeErr != nil {
			return domain.AppliedCoupon{}, fmt.Errorf("coupon %s: decode response: %w", code, decodeErr)
		}
	case resp.StatusCode >= http.StatusBadRequest && resp.StatusCode < http.StatusInternalServerError:
		reason := out.Message
		if reason == "" {
			reason = "coupon is not valid"
		}
		return domain.AppliedCoupon{}, &domain.CouponRejectedError{Code: code, Reason: reason}
	default:
		return domain.AppliedCoupon{}, fmt.Errorf("coupon %s: unexpected status %d", code, resp.StatusCode)
	}

	kind, ok := couponKinds[strings.ToLower(strings.TrimSpace(out.Kind))]
	if !ok {
		return domain.AppliedCoupon{}, &domain.CouponRejectedError{Code: code, Reason: "unknown coupon kind " + out.Kind}
	}
	if out.Code == "" {
		out.Code = code
	}
	return domain.AppliedCoupon{Code: out.Code, Kind: kind, Value: out.Value}, nil
}
