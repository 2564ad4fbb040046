package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		reason string
		field  Field
	}{
		{"invalid holder_document", FieldHolderTaxID},
		{"card.holder.document is not valid", FieldHolderTaxID},
		{"HOLDER_NAME mismatch", FieldHolderName},
		{"holder missing", FieldHolderName},
		{"bad security_code", FieldCVV},
		{"CVV check failed", FieldCVV},
		{"exp_month out of range", FieldExpiry},
		{"exp_year in the past", FieldExpiry},
		{"card expired", FieldExpiry},
		{"invalid card_number", FieldCardNumber},
		{"insufficient funds", FieldNone},
		{"high risk transaction", FieldNone},
		{"number does not pass luhn", FieldCardNumber},
		{"document rejected", FieldNone},
	}
	for _, tc := range cases {
		t.Run(tc.reason, func(t *testing.T) {
			rej := DefaultDeclineRules.Classify(tc.reason)
			require.NotNil(t, rej)
			assert.Equal(t, tc.field, rej.Field)
			assert.Equal(t, tc.reason, rej.Reason)
			assert.NotEqual(t, DefaultDeclineMessage, rej.Message)
		})
	}
}

func TestClassify_Fallback(t *testing.T) {
	rej := DefaultDeclineRules.Classify("do_not_honor")
	assert.Equal(t, FieldNone, rej.Field)
	assert.Equal(t, DefaultDeclineMessage, rej.Message)

	rej = DefaultDeclineRules.Classify("")
	assert.Equal(t, DefaultDeclineMessage, rej.Message)
}

func TestDefaultDeclineRules_SpecificBeforeGeneric(t *testing.T) {
	// A pattern that contains another pattern would be shadowed if listed after it.
	for i, later := range DefaultDeclineRules {
		for _, earlier := range DefaultDeclineRules[:i] {
			assert.Falsef(t, strings.Contains(later.Pattern, earlier.Pattern),
				"rule %q is shadowed by earlier rule %q", later.Pattern, earlier.Pattern)
		}
	}
}

func TestDefaultDeclineRules_HolderDocumentIsTaxID(t *testing.T) {
	rej := DefaultDeclineRules.Classify("holder_document")
	assert.Equal(t, FieldHolderTaxID, rej.Field)

	rej = DefaultDeclineRules.Classify("document")
	assert.Equal(t, FieldNone, rej.Field)
}

func TestGatewayRejection_Error(t *testing.T) {
	err := &GatewayRejection{Field: FieldCVV, Message: "bad"}
	assert.Equal(t, "payment rejected (cvv): bad", err.Error())
	err = &GatewayRejection{Message: "no"}
	assert.Equal(t, "payment rejected: no", err.Error())
}

func TestCardDetails(t *testing.T) {
	c := &CardDetails{Number: "4111 1111 1111 1234", HolderName: "Ana", HolderTaxID: "529.982.247-25", ExpMonth: "12", ExpYear: "2030", CVV: "123"}
	assert.Equal(t, "**** 1234", c.Masked())
	assert.Empty(t, c.Missing())

	c.Wipe()
	assert.Equal(t, CardDetails{}, *c)
	assert.Len(t, c.Missing(), 5)

	var nilCard *CardDetails
	assert.Equal(t, "", nilCard.Masked())
	nilCard.Wipe()
}

func TestStatuses(t *testing.T) {
	for _, s := range []string{"paid", "APPROVED", " Confirmed ", "completed"} {
		assert.True(t, IsConfirmedStatus(s), s)
	}
	assert.False(t, IsConfirmedStatus("pending"))
	for _, s := range []string{"declined", "Refused", "canceled", "cancelled", "risk_declined"} {
		assert.True(t, IsDeclineStatus(s), s)
	}
	assert.False(t, IsDeclineStatus("approved"))

	assert.True(t, Result{Method: MethodInstantTransfer, Status: "pending"}.AwaitingConfirmation())
	assert.False(t, Result{Method: MethodInstantTransfer, Status: "paid"}.AwaitingConfirmation())
	assert.False(t, Result{Method: MethodCard, Status: "pending"}.AwaitingConfirmation())
}
