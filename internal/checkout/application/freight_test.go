package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/storefront-checkout/internal/checkout/domain"
)

var quoteLines = []domain.CartLine{{ProductID: "p-1", UnitPriceMinor: 5000, Quantity: 2}}

func TestFreightQuoter_DigitByDigitQuotesOnce(t *testing.T) {
	r := newFakeRater()
	r.options["01310930"] = []domain.FreightOption{{ID: "std", PriceMinor: 1500}}
	q := NewFreightQuoter(testLogger(), r)

	cep := "01310930"
	for i := 1; i <= len(cep); i++ {
		_, err := q.Input(context.Background(), cep[:i], quoteLines)
		require.NoError(t, err)
	}
	dispatched, err := q.Input(context.Background(), "01310-930", quoteLines)
	require.NoError(t, err)
	assert.False(t, dispatched, "same key is not quoted again")

	assert.Equal(t, 1, r.callCount())
	st := q.State()
	assert.Equal(t, QuoteReady, st.Status)
	require.Len(t, st.Options, 1)
}

func TestFreightQuoter_CartChangeRequotesAndClearsSelection(t *testing.T) {
	r := newFakeRater()
	r.options["01310930"] = []domain.FreightOption{{ID: "std", PriceMinor: 1500}}
	q := NewFreightQuoter(testLogger(), r)

	_, err := q.Input(context.Background(), "01310930", quoteLines)
	require.NoError(t, err)
	_, err = q.Select("std")
	require.NoError(t, err)
	require.NotNil(t, q.Selected())

	changed := domain.CloneLines(quoteLines)
	changed[0].Quantity = 3
	dispatched, err := q.Input(context.Background(), "01310930", changed)
	require.NoError(t, err)
	assert.True(t, dispatched)
	assert.Equal(t, 2, r.callCount())
	assert.Nil(t, q.Selected())
}

func TestFreightQuoter_StaleResultIsDiscarded(t *testing.T) {
	r := newFakeRater()
	r.options["11111111"] = []domain.FreightOption{{ID: "old", PriceMinor: 100}}
	r.options["22222222"] = []domain.FreightOption{{ID: "new", PriceMinor: 200}}
	gate := make(chan struct{})
	r.gates["11111111"] = gate
	q := NewFreightQuoter(testLogger(), r)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = q.Input(context.Background(), "11111111", quoteLines)
	}()
	select {
	case <-r.started:
	case <-time.After(time.Second):
		t.Fatal("first quote never started")
	}
	assert.Equal(t, QuoteLoading, q.State().Status)

	_, err := q.Input(context.Background(), "22222222", quoteLines)
	require.NoError(t, err)
	<-r.started

	close(gate)
	<-done

	st := q.State()
	assert.Equal(t, QuoteReady, st.Status)
	require.Len(t, st.Options, 1)
	assert.Equal(t, "new", st.Options[0].ID)
	assert.Equal(t, "22222222", st.Key.PostalCode)
}

func TestFreightQuoter_EmptyAndUnknownOption(t *testing.T) {
	q := NewFreightQuoter(testLogger(), newFakeRater())

	_, err := q.Input(context.Background(), "99999999", quoteLines)
	require.NoError(t, err)
	assert.Equal(t, QuoteEmpty, q.State().Status)

	_, err = q.Select("std")
	require.ErrorIs(t, err, domain.ErrUnknownFreightOption)
}
