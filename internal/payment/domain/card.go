package domain

import (
	"strings"
)

// CardDetails lives only in request-scoped memory and is never persisted.
type CardDetails struct {
	Number      string `json:"number"`
	HolderName  string `json:"holderName"`
	HolderTaxID string `json:"holderTaxId"`
	ExpMonth    string `json:"expMonth"`
	ExpYear     string `json:"expYear"`
	CVV         string `json:"cvv"`
}

func (c *CardDetails) Masked() string {
	if c == nil {
		return ""
	}
	d := onlyDigits(c.Number)
	if len(d) < 4 {
		return "****"
	}
	return "**** " + d[len(d)-4:]
}

// Wipe drops every reference to the card data held by c.
func (c *CardDetails) Wipe() {
	if c == nil {
		return
	}
	*c = CardDetails{}
}

// Missing lists empty fields using the same keys as decline classification.
func (c *CardDetails) Missing() []Field {
	if c == nil {
		return []Field{FieldCardNumber, FieldHolderName, FieldHolderTaxID, FieldExpiry, FieldCVV}
	}
	var out []Field
	if l := len(onlyDigits(c.Number)); l < 12 || l > 19 {
		out = append(out, FieldCardNumber)
	}
	if strings.TrimSpace(c.HolderName) == "" {
		out = append(out, FieldHolderName)
	}
	if onlyDigits(c.HolderTaxID) == "" {
		out = append(out, FieldHolderTaxID)
	}
	if onlyDigits(c.ExpMonth) == "" || onlyDigits(c.ExpYear) == "" {
		out = append(out, FieldExpiry)
	}
	if l := len(onlyDigits(c.CVV)); l < 3 || l > 4 {
		out = append(out, FieldCVV)
	}
	return out
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
