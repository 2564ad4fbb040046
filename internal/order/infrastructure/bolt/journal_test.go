package bolt_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/storefront-checkout/internal/order/domain"
	journal "github.com/dmehra2102/storefront-checkout/internal/order/infrastructure/bolt"
	payment "github.com/dmehra2102/storefront-checkout/internal/payment/domain"
)

func newTestJournal(t *testing.T) *journal.Journal {
	t.Helper()
	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func item(txID string) domain.ReconciliationItem {
	return domain.ReconciliationItem{
		Order: domain.Order{
			ID:         "o-" + txID,
			Payment:    domain.PaymentSnapshot{Method: payment.MethodCard, ProviderTxID: txID, Status: "approved"},
			TotalMinor: 10800,
		},
		PrimaryError:  "pg down",
		FallbackError: "503",
		RecordedAt:    time.Now().UTC(),
	}
}

func TestJournal_RecordIsIdempotent(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.Record(ctx, item("tx-1")))
	second := item("tx-1")
	second.Order.ID = "o-other"
	require.NoError(t, j.Record(ctx, second))

	items, err := j.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "o-tx-1", items[0].Order.ID)
	assert.Equal(t, int64(10800), items[0].Order.TotalMinor)
}

func TestJournal_SetPaymentStatus(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()
	require.NoError(t, j.Record(ctx, item("tx-2")))

	require.NoError(t, j.SetPaymentStatus(ctx, "tx-2", "paid"))
	items, err := j.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, "paid", items[0].Order.Payment.Status)

	require.ErrorIs(t, j.SetPaymentStatus(ctx, "tx-missing", "paid"), domain.ErrOrderNotFound)
}

func TestJournal_Resolve(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()
	require.NoError(t, j.Record(ctx, item("tx-3")))

	require.NoError(t, j.Resolve(ctx, "tx-3"))
	require.NoError(t, j.Resolve(ctx, "tx-3"))

	items, err := j.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}
