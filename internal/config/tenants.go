package config

import (
	"fmt"
	"strings"

	"github.com/dmehra2102/storefront-checkout/internal/checkout/application"
	paydomain "github.com/dmehra2102/storefront-checkout/internal/payment/domain"
)

// Tenants resolves a store id to its checkout settings. Ids are case-insensitive.
type Tenants map[string]application.Tenant

func (t Tenants) Tenant(id string) (application.Tenant, bool) {
	tn, ok := t[strings.ToLower(strings.TrimSpace(id))]
	return tn, ok
}

// TenantSet validates the configured tenants. A tenant with no payment methods is
// kept: its sessions are refused as unavailable.
func (c *Config) TenantSet() (Tenants, error) {
	out := make(Tenants, len(c.Tenants))
	for id, tc := range c.Tenants {
		id = strings.ToLower(id)
		methods := make([]paydomain.Method, 0, len(tc.PaymentMethods))
		for _, m := range tc.PaymentMethods {
			pm := paydomain.Method(strings.ToLower(strings.TrimSpace(m)))
			if !pm.Valid() {
				return nil, fmt.Errorf("tenant %s: unknown payment method %q", id, m)
			}
			methods = append(methods, pm)
		}
		currency := strings.ToUpper(tc.Currency)
		if currency == "" {
			currency = DefaultTenant.Currency
		}
		out[id] = application.Tenant{
			ID:              id,
			Currency:        currency,
			PaymentMethods:  methods,
			MaxInstallments: tc.MaxInstallments,
			RequireAccount:  tc.RequireAccount,
		}
	}
	return out, nil
}
