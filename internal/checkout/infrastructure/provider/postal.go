package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/sync/singleflight"

	"github.com/dmehra2102/storefront-checkout/internal/checkout/domain"
	"github.com/dmehra2102/storefront-checkout/pkg/httpclient"
)

// PostalClient resolves postal codes to street addresses. Concurrent lookups of
// one code share a single request.
type PostalClient struct {
	log  *slog.Logger
	http *httpclient.Client
	sf   singleflight.Group
}

func NewPostalClient(log *slog.Logger, hc *httpclient.Client) *PostalClient {
	return &PostalClient{log: log, http: hc}
}

type postalResponse struct {
	PostalCode string `json:"postalCode"`
	Street     string `json:"street"`
	District   string `json:"district"`
	City       string `json:"city"`
	State      string `json:"state"`
}

func (c *PostalClient) Lookup(ctx context.Context, postalCode string) (domain.Address, error) {
	cep := domain.NormalizePostalCode(postalCode)
	v, err, _ := c.sf.Do(cep, func() (any, error) {
		return c.lookup(ctx, cep)
	})
	if err != nil {
		return domain.Address{}, err
	}
	return v.(domain.Address), nil
}

func (c *PostalClient) lookup(ctx context.Context, cep string) (domain.Address, error) {
	resp, err := c.http.Get(ctx, "/postal-codes/"+cep, nil)
	if err != nil {
		return domain.Address{}, err
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.Address{}, domain.ErrPostalCodeNotFound
	case resp.StatusCode != http.StatusOK:
		return domain.Address{}, fmt.Errorf("postal code %s: unexpected status %d", cep, resp.StatusCode)
	}

	var out postalResponse
	if err := resp.Decode(&out); err != nil {
		return domain.Address{}, fmt.Errorf("postal code %s: decode: %w", cep, err)
	}
	if out.City == "" && out.Street == "" {
		return domain.Address{}, domain.ErrPostalCodeNotFound
	}
	return domain.Address{
		PostalCode: cep,
		Street:     out.Street,
		District:   out.District,
		City:       out.City,
		StateCode:  out.State,
	}.Normalize(), nil
}
