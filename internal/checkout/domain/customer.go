package domain

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

type Customer struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
	TaxID       string `json:"taxId"`
}

var emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)

// Normalize trims text fields and strips formatting from phone and tax id.
func (c Customer) Normalize() Customer {
	return Customer{
		Name:        strings.Join(strings.Fields(c.Name), " "),
		Email:       strings.ToLower(strings.TrimSpace(c.Email)),
		PhoneNumber: digits(c.PhoneNumber),
		TaxID:       digits(c.TaxID),
	}
}

func (c Customer) Validate() error {
	n := c.Normalize()
	verr := &ValidationError{}

	if utf8.RuneCountInString(n.Name) < 2 {
		verr.Add("name", "name must have at least 2 characters")
	}
	if !emailPattern.MatchString(n.Email) {
		verr.Add("email", "email is invalid")
	}
	if l := len(n.PhoneNumber); l < 10 || l > 11 {
		verr.Add("phoneNumber", "phone number must have 10 or 11 digits")
	}
	if !ValidTaxID(n.TaxID) {
		verr.Add("taxId", "tax id is invalid")
	}
	return verr.OrNil()
}

// ValidTaxID accepts an 11-digit CPF or a 14-digit CNPJ with valid check digits.
func ValidTaxID(id string) bool {
	d := digits(id)
	switch len(d) {
	case 11:
		return validCPF(d)
	case 14:
		return validCNPJ(d)
	}
	return false
}

func validCPF(d string) bool {
	if repeated(d) {
		return false
	}
	for _, n := range []int{9, 10} {
		sum := 0
		for i := 0; i < n; i++ {
			sum += int(d[i]-'0') * (n + 1 - i)
		}
		check := (sum * 10) % 11
		if check == 10 {
			check = 0
		}
		if check != int(d[n]-'0') {
			return false
		}
	}
	return true
}

var (
	cnpjWeights1 = []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	cnpjWeights2 = []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
)

func validCNPJ(d string) bool {
	if repeated(d) {
		return false
	}
	for n, weights := range map[int][]int{12: cnpjWeights1, 13: cnpjWeights2} {
		sum := 0
		for i, w := range weights {
			sum += int(d[i]-'0') * w
		}
		check := 0
		if r := sum % 11; r >= 2 {
			check = 11 - r
		}
		if check != int(d[n]-'0') {
			return false
		}
	}
	return true
}

func repeated(d string) bool {
	return strings.Count(d, d[:1]) == len(d)
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
