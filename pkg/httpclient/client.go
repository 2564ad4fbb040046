package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var ErrCircuitOpen = errors.New("collaborator circuit open")

// StatusError is a 5xx answer. It counts as a breaker failure.
type StatusError struct {
	Code int
	Body []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

type Response struct {
	StatusCode int
	Body       []byte
}

func (r Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return io.EOF
	}
	return json.Unmarshal(r.Body, v)
}

type Options struct {
	Timeout time.Duration
	// FailureThreshold consecutive failures open the breaker.
	FailureThreshold uint32
	OpenFor          time.Duration
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.FailureThreshold == 0 {
		o.FailureThreshold = 5
	}
	if o.OpenFor <= 0 {
		o.OpenFor = 30 * time.Second
	}
	return o
}

// Client is a JSON client for one collaborator base URL.
type Client struct {
	log     *slog.Logger
	name    string
	baseURL string
	hc      *http.Client
	cb      *gobreaker.CircuitBreaker[Response]
}

func New(log *slog.Logger, name, baseURL string, opts Options) *Client {
	opts = opts.withDefaults()
	cb := gobreaker.NewCircuitBreaker[Response](gobreaker.Settings{
		Name:    name,
		Timeout: opts.OpenFor,
		// A caller giving up is not a collaborator failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= opts.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change", "collaborator", name, "from", from.String(), "to", to.String())
		},
	})
	return &Client{
		log:     log,
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		hc: &http.Client{
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		cb: cb,
	}
}

func (c *Client) Get(ctx context.Context, path string, headers map[string]string) (Response, error) {
	return c.Do(ctx, http.MethodGet, path, nil, headers)
}

func (c *Client) Post(ctx context.Context, path string, body any, headers map[string]string) (Response, error) {
	return c.Do(ctx, http.MethodPost, path, body, headers)
}

// Do sends one request. 4xx responses are returned with a nil error; transport
// failures, 5xx answers and an open breaker are errors.
func (c *Client) Do(ctx context.Context, method, path string, body any, headers map[string]string) (Response, error) {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return Response{}, fmt.Errorf("%s: encode request: %w", c.name, err)
		}
		payload = b
	}

	resp, err := c.cb.Execute(func() (Response, error) {
		return c.send(ctx, method, path, payload, headers)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return Response{}, fmt.Errorf("%s: %w", c.name, ErrCircuitOpen)
	}
	return resp, err
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, headers map[string]string) (Response, error) {
	var rdr io.Reader
	if payload != nil {
		rdr = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	res, err := c.hc.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer res.Body.Close()

	b, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return Response{}, err
	}
	out := Response{StatusCode: res.StatusCode, Body: b}
	if res.StatusCode >= http.StatusInternalServerError {
		c.log.Warn("collaborator error", "collaborator", c.name, "method", method, "path", path, "status", res.StatusCode)
		return out, &StatusError{Code: res.StatusCode, Body: b}
	}
	return out, nil
}
