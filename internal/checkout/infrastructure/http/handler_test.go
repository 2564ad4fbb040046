package http

import (
	"bytes"
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

	"github.com/dmehra2102/storefront-checkout/internal/checkout/application"
	"github.com/dmehra2102/storefront-checkout/internal/checkout/domain"
	orderdomain "github.com/dmehra2102/storefront-checkout/internal/order/domain"
	payapp "github.com/dmehra2102/storefront-checkout/internal/payment/application"
	paydomain "github.com/dmehra2102/storefront-checkout/internal/payment/domain"
)

type stubGateway struct{ err error }

func (g stubGateway) Submit(_ context.Context, req payapp.Request) (paydomain.Result, error) {
	if g.err != nil {
		return paydomain.Result{}, g.err
	}
	return paydomain.Result{ProviderTxID: "tx-http", Method: req.Intent.Method(), Status: "approved", Payload: paydomain.CardPayload{MaskedCard: "**** 1111"}}, nil
}

type stubOrders struct{}

func (stubOrders) Place(_ context.Context, d orderdomain.Draft) (orderdomain.Placement, error) {
	return orderdomain.Placement{OrderID: "order-" + d.Payment.ProviderTxID}, nil
}

func (stubOrders) UpdatePaymentStatus(context.Context, string, string) error { return nil }

type stubPostal struct{}

func (stubPostal) Lookup(_ context.Context, cep string) (domain.Address, error) {
	if cep == "00000000" {
		return domain.Address{}, domain.ErrPostalCodeNotFound
	}
	return domain.Address{PostalCode: cep, Street: "Avenida Paulista", District: "Bela Vista", City: "São Paulo", StateCode: "SP"}, nil
}

type stubRater struct{}

func (stubRater) Rate(context.Context, string, []domain.CartLine) ([]domain.FreightOption, error) {
	return []domain.FreightOption{{ID: "std", Name: "Standard", PriceMinor: 1500, DeliveryDays: 4}}, nil
}

type stubTenants map[string]application.Tenant

func (s stubTenants) Tenant(id string) (application.Tenant, bool) {
	t, ok := s[id]
	return t, ok
}

type stubAttempts struct{}

func (stubAttempts) ListBySession(_ context.Context, id string) ([]paydomain.Attempt, error) {
	return []paydomain.Attempt{{SessionID: id, ProviderTxID: "tx-http", Method: paydomain.MethodCard, Status: "approved", CreatedAt: time.Unix(0, 0)}}, nil
}

type client struct {
	t   *testing.T
	url string
}

func (c client) do(method, path string, body any) (int, map[string]any) {
	c.t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(c.t, err)
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.url+path, rdr)
	require.NoError(c.t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer res.Body.Close()

	out := map[string]any{}
	if res.StatusCode != http.StatusNoContent {
		require.NoError(c.t, json.NewDecoder(res.Body).Decode(&out))
	}
	return res.StatusCode, out
}

func newTestServer(t *testing.T, gw payapp.Provider) client {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	var gateway application.PaymentGateway = stubGateway{}
	if gw != nil {
		gateway = payapp.NewGateway(log, gw, nil)
	}
	reg := application.NewRegistry(log, application.Deps{
		Gateway: gateway,
		Orders:  stubOrders{},
		Postal:  stubPostal{},
		Freight: stubRater{},
	})
	t.Cleanup(reg.CloseAll)

	tenants := stubTenants{"store-1": {
		ID: "store-1", Currency: "BRL", MaxInstallments: 3,
		PaymentMethods: []paydomain.Method{paydomain.MethodCard},
	}}
	h := NewHandler(log, reg, tenants, stubAttempts{}, nil)
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return client{t: t, url: srv.URL}
}

func startSession(c client) string {
	status, body := c.do(http.MethodPost, "/sessions", map[string]any{
		"tenant":    "store-1",
		"owner":     "owner-1",
		"cartLines": []map[string]any{{"productId": "p-1", "unitPriceMinorUnits": 5000, "quantity": 2}},
	})
	require.Equal(c.t, http.StatusCreated, status)
	return body["id"].(string)
}

func TestHandler_FullCheckout(t *testing.T) {
	c := newTestServer(t, nil)
	id := startSession(c)
	base := "/sessions/" + id

	status, body := c.do(http.MethodPut, base+"/customer", map[string]any{
		"name": "Maria Souza", "email": "maria@example.com.br", "phoneNumber": "11987654321", "taxId": "52998224725",
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "shipping", body["step"])

	status, body = c.do(http.MethodPost, base+"/postal-code", map[string]any{"postalCode": "01310-930"})
	require.Equal(t, http.StatusOK, status)
	addr := body["address"].(map[string]any)
	addr["number"] = "1578"

	status, _ = c.do(http.MethodPut, base+"/address", addr)
	require.Equal(t, http.StatusOK, status)

	status, body = c.do(http.MethodPost, base+"/shipping/confirm", nil)
	require.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Contains(t, body["fields"], "freight")

	status, _ = c.do(http.MethodPut, base+"/freight", map[string]any{"optionId": "std"})
	require.Equal(t, http.StatusOK, status)
	status, body = c.do(http.MethodPost, base+"/shipping/confirm", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "payment", body["step"])

	status, body = c.do(http.MethodPost, base+"/payments", map[string]any{
		"method": "card", "installments": 1,
		"card": map[string]any{"number": "4111111111111111", "holderName": "Maria Souza", "holderTaxId": "52998224725", "expMonth": "12", "expYear": "2031", "cvv": "123"},
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "confirmed", body["step"])
	assert.Equal(t, "order-tx-http", body["orderId"])
	breakdown := body["breakdown"].(map[string]any)
	assert.EqualValues(t, 11500, breakdown["totalMinorUnits"])

	status, body = c.do(http.MethodGet, base+"/payments", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["attempts"], 1)
}

func TestHandler_ErrorMapping(t *testing.T) {
	c := newTestServer(t, nil)

	status, _ := c.do(http.MethodGet, "/sessions/nope/", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = c.do(http.MethodPost, "/sessions", map[string]any{"tenant": "unknown"})
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = c.do(http.MethodPost, "/sessions", map[string]any{"tenant": "store-1"})
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	id := startSession(c)
	status, body := c.do(http.MethodPut, "/sessions/"+id+"/customer", map[string]any{"name": "M"})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Contains(t, body["fields"], "email")

	status, _ = c.do(http.MethodPost, "/sessions/"+id+"/payments", map[string]any{"method": "card"})
	assert.Equal(t, http.StatusConflict, status)

	status, _ = c.do(http.MethodPost, "/sessions/"+id+"/back", nil)
	assert.Equal(t, http.StatusConflict, status)

	status, _ = c.do(http.MethodDelete, "/sessions/"+id+"/", nil)
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = c.do(http.MethodGet, "/sessions/"+id+"/", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

type rejectingProvider struct{}

func (rejectingProvider) Submit(context.Context, payapp.Request) (payapp.ProviderResponse, error) {
	return payapp.ProviderResponse{StatusCode: http.StatusUnprocessableEntity, Reason: "invalid security_code"}, nil
}

func (rejectingProvider) Status(context.Context, string) (string, error) { return "", nil }

func TestHandler_DeclineIsFieldError(t *testing.T) {
	c := newTestServer(t, rejectingProvider{})
	id := startSession(c)
	base := "/sessions/" + id

	c.do(http.MethodPut, base+"/customer", map[string]any{
		"name": "Maria Souza", "email": "maria@example.com.br", "phoneNumber": "11987654321", "taxId": "52998224725",
	})
	c.do(http.MethodPut, base+"/address", map[string]any{
		"postalCode": "01310930", "street": "Avenida Paulista", "number": "1578", "district": "Bela Vista", "city": "São Paulo", "stateCode": "SP",
	})
	c.do(http.MethodPut, base+"/freight", map[string]any{"optionId": "std"})
	status, _ := c.do(http.MethodPost, base+"/shipping/confirm", nil)
	require.Equal(t, http.StatusOK, status)

	status, body := c.do(http.MethodPost, base+"/payments", map[string]any{
		"method": "card",
		"card":   map[string]any{"number": "4111111111111111", "holderName": "Maria Souza", "holderTaxId": "52998224725", "expMonth": "12", "expYear": "2031", "cvv": "999"},
	})
	require.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Contains(t, body["fields"], "cvv")

	_, body = c.do(http.MethodGet, base+"/", nil)
	assert.Equal(t, "payment", body["step"])
}
