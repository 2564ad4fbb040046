package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/storefront-checkout/internal/order/domain"
)

type stubOrders struct {
	orders  map[string]domain.Order
	pending []domain.ReconciliationItem
}

func (s stubOrders) Lookup(_ context.Context, txID string) (domain.Order, error) {
	o, ok := s.orders[txID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return o, nil
}

func (s stubOrders) Pending(context.Context) ([]domain.ReconciliationItem, error) {
	return s.pending, nil
}

func newServer(t *testing.T, orders OrderReader) *httptest.Server {
	t.Helper()
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), orders)
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return srv
}

func TestHandler_GetByPayment(t *testing.T) {
	o := domain.Order{ID: "o-1", TotalMinor: 10800, Payment: domain.PaymentSnapshot{ProviderTxID: "tx-1", Status: "approved"}}
	srv := newServer(t, stubOrders{orders: map[string]domain.Order{"tx-1": o}})

	res, err := http.Get(srv.URL + "/by-payment/tx-1")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var got map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&got))
	assert.Equal(t, "o-1", got["id"])
	assert.EqualValues(t, 10800, got["totalMinorUnits"])

	res2, err := http.Get(srv.URL + "/by-payment/tx-2")
	require.NoError(t, err)
	defer res2.Body.Close()
	assert.Equal(t, http.StatusNotFound, res2.StatusCode)
}

func TestHandler_ListPending(t *testing.T) {
	item := domain.ReconciliationItem{
		Order:        domain.Order{ID: "o-9", Payment: domain.PaymentSnapshot{ProviderTxID: "tx-9", Status: "pending"}},
		PrimaryError: "connection refused",
		RecordedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	srv := newServer(t, stubOrders{pending: []domain.ReconciliationItem{item}})

	res, err := http.Get(srv.URL + "/reconciliation")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var got struct {
		Items []pendingItem `json:"items"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&got))
	require.Len(t, got.Items, 1)
	assert.Equal(t, "tx-9", got.Items[0].ProviderTxID)
	assert.Equal(t, "2026-03-01T12:00:00Z", got.Items[0].RecordedAt)
}
