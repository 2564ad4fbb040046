package application

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"sync"

	"github.com/dmehra2102/storefront-checkout/internal/checkout/domain"
	orderdomain "github.com/dmehra2102/storefront-checkout/internal/order/domain"
	payapp "github.com/dmehra2102/storefront-checkout/internal/payment/application"
	paydomain "github.com/dmehra2102/storefront-checkout/internal/payment/domain"
	"github.com/dmehra2102/storefront-checkout/pkg/idempotency"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeValidator struct {
	mu      sync.Mutex
	coupons map[string]domain.AppliedCoupon
	calls   int
}

func (f *fakeValidator) Validate(_ context.Context, code string, _ domain.CouponCart) (domain.AppliedCoupon, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	c, ok := f.coupons[code]
	if !ok {
		return domain.AppliedCoupon{}, &domain.CouponRejectedError{Code: code, Reason: "coupon not found"}
	}
	return c, nil
}

type fakeRedeemed struct {
	mu        sync.Mutex
	codes     map[string][]string
	forgotten []string
}

func (f *fakeRedeemed) Load(_ context.Context, owner string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.codes[owner]...), nil
}

func (f *fakeRedeemed) Remember(_ context.Context, owner, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes[owner] = append(f.codes[owner], code)
	return nil
}

func (f *fakeRedeemed) Forget(_ context.Context, _ string, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forgotten = append(f.forgotten, code)
	return nil
}

// fakeRater answers immediately unless a gate is registered for the postal code.
type fakeRater struct {
	mu      sync.Mutex
	options map[string][]domain.FreightOption
	gates   map[string]chan struct{}
	started chan string
	calls   []string
}

func newFakeRater() *fakeRater {
	return &fakeRater{
		options: map[string][]domain.FreightOption{},
		gates:   map[string]chan struct{}{},
		started: make(chan string, 16),
	}
}

func (f *fakeRater) Rate(_ context.Context, cep string, _ []domain.CartLine) ([]domain.FreightOption, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cep)
	gate := f.gates[cep]
	opts := f.options[cep]
	f.mu.Unlock()

	f.started <- cep
	if gate != nil {
		<-gate
	}
	return opts, nil
}

func (f *fakeRater) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakePostal struct {
	addr domain.Address
	err  error
}

func (f *fakePostal) Lookup(context.Context, string) (domain.Address, error) {
	return f.addr, f.err
}

type fakeGateway struct {
	mu       sync.Mutex
	res      paydomain.Result
	err      error
	gate     chan struct{}
	entered  chan struct{}
	requests []payapp.Request
}

func (f *fakeGateway) Submit(_ context.Context, req payapp.Request) (paydomain.Result, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	gate, entered := f.gate, f.entered
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.res, f.err
}

func (f *fakeGateway) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakeOrders struct {
	mu       sync.Mutex
	drafts   []orderdomain.Draft
	statuses map[string]string
	pending  bool
}

func (f *fakeOrders) Place(_ context.Context, d orderdomain.Draft) (orderdomain.Placement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drafts = append(f.drafts, d)
	return orderdomain.Placement{OrderID: "order-" + d.Payment.ProviderTxID, RegistrationPending: f.pending}, nil
}

func (f *fakeOrders) UpdatePaymentStatus(_ context.Context, txID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statuses == nil {
		f.statuses = map[string]string{}
	}
	f.statuses[txID] = status
	return nil
}

// fakeWatcher records the callbacks so tests can drive them.
type fakeWatcher struct {
	mu      sync.Mutex
	txID    string
	cb      payapp.WatchCallbacks
	stopped bool
}

func (f *fakeWatcher) Watch(_ context.Context, txID string, cb payapp.WatchCallbacks) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txID, f.cb = txID, cb
	return true
}

func (f *fakeWatcher) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeWatcher) callbacks() (string, payapp.WatchCallbacks) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.txID, f.cb
}

type fakeGuard struct {
	mu      sync.Mutex
	claimed map[string]string
}

func (f *fakeGuard) PaymentKey(sessionID string, attempt int) string {
	return sessionID + ":" + strconv.Itoa(attempt)
}

func (f *fakeGuard) Claim(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimed == nil {
		f.claimed = map[string]string{}
	}
	if _, ok := f.claimed[key]; ok {
		return idempotency.ErrAlreadyClaimed
	}
	f.claimed[key] = value
	return nil
}

type recorder struct {
	mu            sync.Mutex
	snapshots     []RecoverySnapshot
	notifications []Notification
	cleared       []string
}

func (r *recorder) Snapshot(_ context.Context, s RecoverySnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, s)
	return nil
}

func (r *recorder) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, n)
	return nil
}

func (r *recorder) Clear(_ context.Context, owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleared = append(r.cleared, owner)
	return nil
}

func (r *recorder) checkpoints() []Checkpoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Checkpoint, 0, len(r.notifications))
	for _, n := range r.notifications {
		out = append(out, n.Checkpoint)
	}
	return out
}

func (r *recorder) steps() []domain.Step {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Step, 0, len(r.snapshots))
	for _, s := range r.snapshots {
		out = append(out, s.Step)
	}
	return out
}
