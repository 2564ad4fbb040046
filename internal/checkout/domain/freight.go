package domain

import "strings"

const PostalCodeLength = 8

type FreightOption struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	PriceMinor     int64  `json:"priceMinorUnits"`
	DeliveryDays   int    `json:"deliveryDays"`
	CarrierLogoURL string `json:"carrierLogoUrl,omitempty"`
}

// QuoteKey identifies a freight quote. A quote is only valid for the key it was computed for.
type QuoteKey struct {
	PostalCode  string
	Fingerprint string
}

func (k QuoteKey) IsZero() bool {
	return k.PostalCode == "" && k.Fingerprint == ""
}

// NormalizePostalCode keeps digits only.
func NormalizePostalCode(code string) string {
	var b strings.Builder
	for _, r := range code {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func IsCompletePostalCode(code string) bool {
	return len(NormalizePostalCode(code)) == PostalCodeLength
}
