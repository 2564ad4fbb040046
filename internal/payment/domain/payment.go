package domain

import (
	"strings"
	"time"
)

type Method string

const (
	MethodInstantTransfer Method = "instant_transfer"
	MethodCard            Method = "card"
	MethodBankSlip        Method = "bank_slip"
)

func (m Method) Valid() bool {
	switch m {
	case MethodInstantTransfer, MethodCard, MethodBankSlip:
		return true
	}
	return false
}

// Intent is the payment the customer chose. Exactly one of the concrete intent types below.
type Intent interface {
	Method() Method
	isIntent()
}

type InstantTransferIntent struct{}

type CardIntent struct {
	Installments int
	// Card is wiped after the single outbound request.
	Card *CardDetails
}

type BankSlipIntent struct{}

func (InstantTransferIntent) Method() Method { return MethodInstantTransfer }
func (CardIntent) Method() Method            { return MethodCard }
func (BankSlipIntent) Method() Method        { return MethodBankSlip }

func (InstantTransferIntent) isIntent() {}
func (CardIntent) isIntent()            {}
func (BankSlipIntent) isIntent()        {}

const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusDeclined = "declined"
	StatusIssued   = "issued"
)

var declineStatuses = map[string]bool{
	"declined":      true,
	"refused":       true,
	"canceled":      true,
	"cancelled":     true,
	"risk_declined": true,
}

var confirmedStatuses = map[string]bool{
	"paid":      true,
	"approved":  true,
	"confirmed": true,
	"completed": true,
}

func NormalizeStatus(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func IsDeclineStatus(s string) bool {
	return declineStatuses[NormalizeStatus(s)]
}

// IsConfirmedStatus reports whether an instant transfer status is terminal success.
func IsConfirmedStatus(s string) bool {
	return confirmedStatuses[NormalizeStatus(s)]
}

// Payload carries what each method returns. Exactly one of the concrete payload types below.
type Payload interface {
	isPayload()
}

type InstantTransferPayload struct {
	QRPayload string    `json:"qrPayload"`
	CopyCode  string    `json:"copyCode"`
	ExpiresAt time.Time `json:"expiresAt,omitzero"`
}

type CardPayload struct {
	MaskedCard        string `json:"maskedCard"`
	Installments      int    `json:"installments"`
	AuthorizationCode string `json:"authorizationCode,omitempty"`
}

type BankSlipPayload struct {
	DocumentURL   string    `json:"documentUrl,omitempty"`
	ReferenceLine string    `json:"referenceLine,omitempty"`
	DueDate       time.Time `json:"dueDate,omitzero"`
}

func (InstantTransferPayload) isPayload() {}
func (CardPayload) isPayload()            {}
func (BankSlipPayload) isPayload()        {}

type Result struct {
	ProviderTxID string  `json:"providerTxId"`
	Method       Method  `json:"method"`
	Status       string  `json:"status"`
	Payload      Payload `json:"payload"`
}

// AwaitingConfirmation is true for instant transfers until the watcher sees a terminal status.
func (r Result) AwaitingConfirmation() bool {
	return r.Method == MethodInstantTransfer && !IsConfirmedStatus(r.Status)
}

// Attempt is the audit record of one submission. It never holds card data beyond the mask.
type Attempt struct {
	IdempotencyKey string
	SessionID      string
	Method         Method
	AmountMinor    int64
	ProviderTxID   string
	Status         string
	MaskedCard     string
	Reason         string
	CreatedAt      time.Time
}
