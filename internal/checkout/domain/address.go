package domain

import "strings"

type Address struct {
	PostalCode string `json:"postalCode"`
	Street     string `json:"street"`
	Number     string `json:"number"`
	Complement string `json:"complement,omitempty"`
	District   string `json:"district"`
	City       string `json:"city"`
	StateCode  string `json:"stateCode"`
}

func (a Address) Normalize() Address {
	return Address{
		PostalCode: NormalizePostalCode(a.PostalCode),
		Street:     strings.TrimSpace(a.Street),
		Number:     strings.TrimSpace(a.Number),
		Complement: strings.TrimSpace(a.Complement),
		District:   strings.TrimSpace(a.District),
		City:       strings.TrimSpace(a.City),
		StateCode:  strings.ToUpper(strings.TrimSpace(a.StateCode)),
	}
}

// Validate checks the address is complete enough to ship to.
func (a Address) Validate() error {
	n := a.Normalize()
	verr := &ValidationError{}
	if len(n.PostalCode) != PostalCodeLength {
		verr.Add("postalCode", "postal code must have 8 digits")
	}
	required := map[string]string{
		"street":   n.Street,
		"number":   n.Number,
		"district": n.District,
		"city":     n.City,
	}
	for field, v := range required {
		if v == "" {
			verr.Add(field, field+" is required")
		}
	}
	if len(n.StateCode) != 2 {
		verr.Add("stateCode", "state code must have 2 letters")
	}
	return verr.OrNil()
}

// MergeLookup fills street-level fields from a postal lookup, keeping what only the
// customer can know (number, complement).
func (a Address) MergeLookup(found Address) Address {
	out := found.Normalize()
	out.Number = a.Number
	out.Complement = a.Complement
	if out.PostalCode == "" {
		out.PostalCode = NormalizePostalCode(a.PostalCode)
	}
	return out
}
