package domain

import "time"

const (
	EventOrderPlaced               = "OrderPlaced"
	EventOrderPaymentStatusChanged = "OrderPaymentStatusChanged"
)

type OrderPlaced struct {
	OrderID      string    `json:"orderId"`
	SessionID    string    `json:"sessionId"`
	ProviderTxID string    `json:"providerTxId"`
	Method       string    `json:"method"`
	TotalMinor   int64     `json:"totalMinorUnits"`
	Currency     string    `json:"currency"`
	ItemCount    int       `json:"itemCount"`
	PlacedAt     time.Time `json:"placedAt"`
}

// OrderPaymentStatusChanged is keyed by the order id on the broker.
type OrderPaymentStatusChanged struct {
	ProviderTxID string    `json:"providerTxId"`
	Status       string    `json:"status"`
	ChangedAt    time.Time `json:"changedAt"`
}
