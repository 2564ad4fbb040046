package domain

import "time"

// StatusReported is a provider status change delivered by the payment webhook.
type StatusReported struct {
	EventID      string    `json:"eventId"`
	ProviderTxID string    `json:"providerTxId"`
	Status       string    `json:"status"`
	OccurredAt   time.Time `json:"occurredAt"`
}
