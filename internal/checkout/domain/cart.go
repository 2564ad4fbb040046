package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

type Dimensions struct {
	HeightCm int `json:"heightCm"`
	WidthCm  int `json:"widthCm"`
	LengthCm int `json:"lengthCm"`
}

// CartLine is one product in the cart. Only Quantity changes after the line is added.
type CartLine struct {
	ProductID      string     `json:"productId"`
	Name           string     `json:"name,omitempty"`
	UnitPriceMinor int64      `json:"unitPriceMinorUnits"`
	Quantity       int        `json:"quantity"`
	Variant        string     `json:"variant,omitempty"`
	WeightGrams    int        `json:"weightGrams,omitempty"`
	Dimensions     Dimensions `json:"dimensions"`
}

func (l CartLine) TotalMinor() int64 {
	if l.Quantity <= 0 || l.UnitPriceMinor <= 0 {
		return 0
	}
	return l.UnitPriceMinor * int64(l.Quantity)
}

func ItemCount(lines []CartLine) int {
	var n int
	for _, l := range lines {
		if l.Quantity > 0 {
			n += l.Quantity
		}
	}
	return n
}

// Fingerprint is a stable hash of productId:quantity pairs, independent of line order.
func Fingerprint(lines []CartLine) string {
	qty := make(map[string]int, len(lines))
	for _, l := range lines {
		if l.Quantity <= 0 {
			continue
		}
		key := l.ProductID
		if l.Variant != "" {
			key += "/" + l.Variant
		}
		qty[key] += l.Quantity
	}
	pairs := make([]string, 0, len(qty))
	for id, q := range qty {
		pairs = append(pairs, fmt.Sprintf("%s:%d", id, q))
	}
	sort.Strings(pairs)

	sum := sha256.Sum256([]byte(strings.Join(pairs, "|")))
	return hex.EncodeToString(sum[:8])
}

func CloneLines(lines []CartLine) []CartLine {
	if lines == nil {
		return nil
	}
	out := make([]CartLine, len(lines))
	copy(out, lines)
	return out
}
