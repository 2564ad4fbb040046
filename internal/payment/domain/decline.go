package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Field is the card input a decline is attributed to. Empty means banner-level.
type Field string

const (
	FieldNone         Field = ""
	FieldCardNumber   Field = "cardNumber"
	FieldHolderName   Field = "holderName"
	FieldHolderTaxID  Field = "holderTaxId"
	FieldExpiry       Field = "expiry"
	FieldCVV          Field = "cvv"
	FieldInstallments Field = "installments"
	FieldMethod       Field = "method"
)

const DefaultDeclineMessage = "Your card was declined. Check the details or try another card."

// DeclineRule maps a substring of the provider's raw reason to a message and field.
type DeclineRule struct {
	Pattern string
	Field   Field
	Message string
}

// DeclineRules are evaluated in order; the first match wins. A pattern that contains
// another pattern must come before it.
type DeclineRules []DeclineRule

var DefaultDeclineRules = DeclineRules{
	{Pattern: "holder_document", Field: FieldHolderTaxID, Message: "The card holder's tax id is invalid."},
	{Pattern: "holder.document", Field: FieldHolderTaxID, Message: "The card holder's tax id is invalid."},
	{Pattern: "holder_name", Field: FieldHolderName, Message: "The card holder's name does not match the card."},
	{Pattern: "holder", Field: FieldHolderName, Message: "Check the card holder's details."},
	{Pattern: "security_code", Field: FieldCVV, Message: "The security code is invalid."},
	{Pattern: "cvv", Field: FieldCVV, Message: "The security code is invalid."},
	{Pattern: "exp_month", Field: FieldExpiry, Message: "The expiry date is invalid."},
	{Pattern: "exp_year", Field: FieldExpiry, Message: "The expiry date is invalid."},
	{Pattern: "expir", Field: FieldExpiry, Message: "The card is expired or the expiry date is invalid."},
	{Pattern: "card_number", Field: FieldCardNumber, Message: "The card number is invalid."},
	{Pattern: "insufficient", Field: FieldNone, Message: "Insufficient funds. Try another card or payment method."},
	{Pattern: "risk", Field: FieldNone, Message: "The payment was not approved by the risk analysis. Try another payment method."},
	{Pattern: "number", Field: FieldCardNumber, Message: "Check the card number."},
	{Pattern: "document", Field: FieldNone, Message: "The issuer rejected the document provided. Check your details."},
}

// Classify returns the rejection for a raw provider reason.
func (rs DeclineRules) Classify(reason string) *GatewayRejection {
	lower := strings.ToLower(reason)
	for _, r := range rs {
		if strings.Contains(lower, r.Pattern) {
			return &GatewayRejection{Field: r.Field, Message: r.Message, Reason: reason}
		}
	}
	return &GatewayRejection{Field: FieldNone, Message: DefaultDeclineMessage, Reason: reason}
}

// GatewayRejection is a provider decline. It is recoverable by re-entering payment data
// and never advances the checkout.
type GatewayRejection struct {
	Field   Field
	Message string
	Reason  string
}

func (e *GatewayRejection) Error() string {
	if e.Field != FieldNone {
		return fmt.Sprintf("payment rejected (%s): %s", e.Field, e.Message)
	}
	return "payment rejected: " + e.Message
}

// TransientNetworkError is a failed request (timeout, 5xx). The outcome of the
// operation is unknown to the caller and it is never retried automatically for payments.
type TransientNetworkError struct {
	Op  string
	Err error
}

func (e *TransientNetworkError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *TransientNetworkError) Unwrap() error { return e.Err }

var (
	ErrPaymentInFlight      = errors.New("a payment submission is already in flight")
	ErrAlreadyPaid          = errors.New("checkout already paid")
	ErrDuplicateSubmission  = errors.New("payment attempt already submitted")
	ErrMethodUnavailable    = errors.New("payment method not available for this store")
	ErrMalformedResponse    = errors.New("malformed payment provider response")
	ErrUnsupportedIntent    = errors.New("unsupported payment intent")
	ErrConfirmationTimedOut = errors.New("payment still pending confirmation")
)
