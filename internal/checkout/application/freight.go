package application

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dmehra2102/storefront-checkout/internal/checkout/domain"
)

type QuoteStatus string

const (
	QuoteNotCalculated QuoteStatus = "not_calculated"
	QuoteLoading       QuoteStatus = "loading"
	QuoteReady         QuoteStatus = "ready"
	QuoteEmpty         QuoteStatus = "empty"
	QuoteError         QuoteStatus = "error"
)

type FreightState struct {
	Status   QuoteStatus            `json:"status"`
	Key      domain.QuoteKey        `json:"-"`
	Options  []domain.FreightOption `json:"options"`
	Selected *domain.FreightOption  `json:"selected,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

// FreightQuoter keeps the quote for the latest (postal code, cart) key. A new key
// cancels the in-flight quote, and results are applied only if their key is
// still current when they arrive.
type FreightQuoter struct {
	log   *slog.Logger
	rater FreightRater

	mu       sync.Mutex
	key      domain.QuoteKey
	seq      uint64
	status   QuoteStatus
	options  []domain.FreightOption
	selected string
	err      error
	cancel   context.CancelFunc
}

func NewFreightQuoter(log *slog.Logger, rater FreightRater) *FreightQuoter {
	return &FreightQuoter{log: log, rater: rater, status: QuoteNotCalculated}
}

// Input feeds the current postal code and cart. A quote is requested only when
// the postal code is complete and the key changed. It reports whether a quote was
// requested.
func (q *FreightQuoter) Input(ctx context.Context, postalCode string, lines []domain.CartLine) (bool, error) {
	key := quoteKey(postalCode, lines)
	if key == (domain.QuoteKey{}) {
		return false, nil
	}
	cep := key.PostalCode

	q.mu.Lock()
	if key == q.key {
		q.mu.Unlock()
		return false, nil
	}
	if q.cancel != nil {
		q.cancel()
	}
	qctx, cancel := context.WithCancel(ctx)
	q.seq++
	seq := q.seq
	q.key, q.cancel = key, cancel
	q.status, q.options, q.selected, q.err = QuoteLoading, nil, "", nil
	q.mu.Unlock()

	opts, err := q.rater.Rate(qctx, cep, domain.CloneLines(lines))
	cancel()

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.seq != seq {
		q.log.Debug("stale freight quote discarded", "postal_code", cep)
		return true, nil
	}
	q.cancel = nil
	if err != nil {
		q.status = QuoteError
		q.err = &domain.QuoteError{Op: "freight quote", Err: err}
		return true, q.err
	}
	if len(opts) == 0 {
		q.status = QuoteEmpty
		return true, nil
	}
	q.status, q.options = QuoteReady, opts
	return true, nil
}

// Retry requests the current key again after a failed quote.
func (q *FreightQuoter) Retry(ctx context.Context, lines []domain.CartLine) (bool, error) {
	q.mu.Lock()
	if q.status != QuoteError {
		q.mu.Unlock()
		return false, nil
	}
	cep := q.key.PostalCode
	q.key = domain.QuoteKey{}
	q.mu.Unlock()
	return q.Input(ctx, cep, lines)
}

func (q *FreightQuoter) Select(id string) (domain.FreightOption, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, o := range q.options {
		if o.ID == id {
			q.selected = id
			return o, nil
		}
	}
	return domain.FreightOption{}, domain.ErrUnknownFreightOption
}

func (q *FreightQuoter) Selected() *domain.FreightOption {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.selectedLocked()
}

func (q *FreightQuoter) selectedLocked() *domain.FreightOption {
	for _, o := range q.options {
		if o.ID == q.selected {
			opt := o
			return &opt
		}
	}
	return nil
}

func (q *FreightQuoter) State() FreightState {
	q.mu.Lock()
	defer q.mu.Unlock()
	st := FreightState{
		Status:   q.status,
		Key:      q.key,
		Options:  append([]domain.FreightOption(nil), q.options...),
		Selected: q.selectedLocked(),
	}
	if q.err != nil {
		st.Error = q.err.Error()
	}
	return st
}

// Stop cancels an in-flight quote.
func (q *FreightQuoter) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cancel != nil {
		q.cancel()
		q.cancel = nil
	}
}
