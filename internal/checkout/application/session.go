package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmehra2102/storefront-checkout/internal/checkout/domain"
	orderdomain "github.com/dmehra2102/storefront-checkout/internal/order/domain"
	payapp "github.com/dmehra2102/storefront-checkout/internal/payment/application"
	paydomain "github.com/dmehra2102/storefront-checkout/internal/payment/domain"
	"github.com/dmehra2102/storefront-checkout/pkg/idempotency"
)

const (
	NoticeRegistrationPending = "payment received, your order registration is pending and will be completed shortly"
	NoticeStillPending        = "still waiting for the payment confirmation"
	NoticePaymentFailed       = "we could not complete the payment, please try again"
)

const recoveryTimeout = 5 * time.Second

// Tenant is the checkout configuration of one store.
type Tenant struct {
	ID              string
	Currency        string
	PaymentMethods  []paydomain.Method
	MaxInstallments int
	RequireAccount  bool
}

func (t Tenant) Accepts(m paydomain.Method) bool {
	for _, pm := range t.PaymentMethods {
		if pm == m {
			return true
		}
	}
	return false
}

// Identity is the verified customer handed over by the sign-in collaborator.
type Identity struct {
	CustomerID string
	Verified   bool
	Customer   domain.Customer
	Address    *domain.Address
}

type StartInput struct {
	Tenant   Tenant
	Owner    string
	Identity *Identity
	Lines    []domain.CartLine
}

type PayInput struct {
	Method       paydomain.Method
	Installments int
	Card         *paydomain.CardDetails
}

type PayOutcome struct {
	Result    paydomain.Result
	Placement *orderdomain.Placement
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Gateway    PaymentGateway
	Orders     OrderPlacer
	Postal     PostalLookup
	Freight    FreightRater
	Coupons    CouponValidator
	Redeemed   RedeemedCouponStore
	Recovery   RecoverySink
	Notify     NotificationSink
	Cart       CartClearer
	Guard      SubmissionGuard
	NewWatcher func() PaymentWatcher
	Now        func() time.Time
}

// Session is one customer's pass through the checkout steps. Network calls are
// made without holding mu.
type Session struct {
	id     string
	log    *slog.Logger
	deps   Deps
	tenant Tenant
	owner  string

	ledger      *CouponLedger
	quoter      *FreightQuoter
	checkpoints *Checkpoints
	watcher     PaymentWatcher
	bg          sync.WaitGroup

	mu         sync.Mutex
	step       domain.Step
	firstStep  domain.Step
	failedFrom domain.Step
	lines      []domain.CartLine
	customer   domain.Customer
	address    domain.Address
	submitting bool
	attempt    int
	result     *paydomain.Result
	placement  *orderdomain.Placement
	rejection  *paydomain.GatewayRejection
	notice     string
	settled    bool
	settledAt  time.Time
	startedAt  time.Time
	closed     bool
}

func newSession(id string, log *slog.Logger, deps Deps, in StartInput) *Session {
	s := &Session{
		id:     id,
		log:    log.With("session_id", id, "tenant", in.Tenant.ID),
		deps:   deps,
		tenant: in.Tenant,
		owner:  in.Owner,
		lines:  domain.CloneLines(in.Lines),
		step:   domain.StepCustomerInfo,
	}
	s.startedAt = s.now()
	s.checkpoints = NewCheckpoints(s.log, deps.Notify)
	s.ledger = NewCouponLedger(s.log, deps.Coupons, deps.Redeemed, in.Owner)
	s.quoter = NewFreightQuoter(s.log, deps.Freight)
	if deps.NewWatcher != nil {
		s.watcher = deps.NewWatcher()
	}

	verified := in.Identity != nil && in.Identity.Verified
	if in.Tenant.RequireAccount && !verified {
		s.step = domain.StepIdentification
	}
	if verified {
		s.applyIdentity(*in.Identity)
	}
	s.firstStep = s.step
	return s
}

func (s *Session) start(ctx context.Context) {
	s.mu.Lock()
	cart := domain.NewCouponCart(s.lines)
	s.mu.Unlock()

	if n := s.ledger.ImportRedeemed(ctx, cart); n > 0 {
		s.log.Info("redeemed coupons imported", "count", n)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints.Fire(ctx, s.notification(CheckpointViewCheckoutStart))
	s.snapshot(ctx)
}

func (s *Session) ID() string { return s.id }

func (s *Session) Identify(ctx context.Context, id Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireStep(domain.StepIdentification); err != nil {
		return err
	}
	if !id.Verified {
		return domain.NewValidationError("identity", "sign in to continue")
	}
	s.applyIdentity(id)
	return s.advance(ctx, domain.StepCustomerInfo)
}

func (s *Session) SubmitCustomer(ctx context.Context, c domain.Customer) error {
	s.mu.Lock()
	if err := s.requireStep(domain.StepCustomerInfo); err != nil {
		s.mu.Unlock()
		return err
	}
	if err := c.Validate(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.customer = c.Normalize()
	if err := s.advance(ctx, domain.StepShipping); err != nil {
		s.mu.Unlock()
		return err
	}
	cep, lines := s.address.PostalCode, domain.CloneLines(s.lines)
	s.mu.Unlock()

	s.quote(ctx, cep, lines)
	return nil
}

// LookupPostalCode fills the address from the postal code service and quotes
// freight for it.
func (s *Session) LookupPostalCode(ctx context.Context, postalCode string) (domain.Address, error) {
	cep := domain.NormalizePostalCode(postalCode)
	if !domain.IsCompletePostalCode(cep) {
		return domain.Address{}, domain.NewValidationError("postalCode", "enter the 8 digit postal code")
	}

	s.mu.Lock()
	err := s.requireStep(domain.StepShipping)
	s.mu.Unlock()
	if err != nil {
		return domain.Address{}, err
	}

	found, err := s.deps.Postal.Lookup(ctx, cep)
	switch {
	case errors.Is(err, domain.ErrPostalCodeNotFound):
		return domain.Address{}, domain.NewValidationError("postalCode", "postal code not found")
	case err != nil:
		return domain.Address{}, &domain.QuoteError{Op: "postal code lookup", Err: err}
	}
	found.PostalCode = cep

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.Address{}, domain.ErrCheckoutClosed
	}
	s.address = s.address.MergeLookup(found)
	addr, lines := s.address, domain.CloneLines(s.lines)
	s.mu.Unlock()

	s.quote(ctx, addr.PostalCode, lines)
	return addr, nil
}

func (s *Session) UpdateAddress(ctx context.Context, a domain.Address) error {
	s.mu.Lock()
	if err := s.requireStep(domain.StepShipping); err != nil {
		s.mu.Unlock()
		return err
	}
	s.address = a.Normalize()
	cep, lines := s.address.PostalCode, domain.CloneLines(s.lines)
	s.mu.Unlock()

	s.quote(ctx, cep, lines)
	return nil
}

func (s *Session) SelectFreight(id string) (domain.FreightOption, error) {
	s.mu.Lock()
	err := s.requireStep(domain.StepShipping)
	s.mu.Unlock()
	if err != nil {
		return domain.FreightOption{}, err
	}
	return s.quoter.Select(id)
}

func (s *Session) RetryFreight(ctx context.Context) error {
	s.mu.Lock()
	if err := s.requireStep(domain.StepShipping); err != nil {
		s.mu.Unlock()
		return err
	}
	lines := domain.CloneLines(s.lines)
	s.mu.Unlock()

	_, err := s.quoter.Retry(ctx, lines)
	return err
}

// SetQuantity changes one line. Zero removes it, but the last line cannot be removed.
func (s *Session) SetQuantity(ctx context.Context, productID, variant string, qty int) error {
	s.mu.Lock()
	if err := s.requireEditable(); err != nil {
		s.mu.Unlock()
		return err
	}
	if qty < 0 {
		s.mu.Unlock()
		return domain.NewValidationError("quantity", "quantity cannot be negative")
	}
	i := s.lineIndex(productID, variant)
	if i < 0 {
		s.mu.Unlock()
		return domain.NewValidationError("productId", "product is not in the cart")
	}
	if qty == 0 {
		if len(s.lines) == 1 {
			s.mu.Unlock()
			return domain.ErrEmptyCart
		}
		s.lines = append(s.lines[:i:i], s.lines[i+1:]...)
	} else {
		s.lines[i].Quantity = qty
	}
	cep, lines := s.address.PostalCode, domain.CloneLines(s.lines)
	// A new cart invalidates the chosen freight, so payment waits for a new selection.
	if s.step == domain.StepPayment && s.quoter.State().Key != quoteKey(cep, lines) {
		s.step = domain.StepShipping
		s.snapshot(ctx)
	}
	s.mu.Unlock()

	s.quote(ctx, cep, lines)
	return nil
}

func (s *Session) ApplyCoupon(ctx context.Context, code string) (domain.AppliedCoupon, error) {
	s.mu.Lock()
	if err := s.requireEditable(); err != nil {
		s.mu.Unlock()
		return domain.AppliedCoupon{}, err
	}
	cart := domain.NewCouponCart(s.lines)
	s.mu.Unlock()

	return s.ledger.Apply(ctx, code, cart)
}

func (s *Session) RemoveCoupon(ctx context.Context, code string) error {
	s.mu.Lock()
	err := s.requireEditable()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.ledger.Remove(ctx, code)
}

// ConfirmShipping moves to payment once the address is complete and, when freight
// options were returned, one of them is selected.
func (s *Session) ConfirmShipping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireStep(domain.StepShipping); err != nil {
		return err
	}
	if err := s.shippingReady(); err != nil {
		return err
	}
	return s.advance(ctx, domain.StepPayment)
}

// shippingReady checks the address and freight selection. Called with mu held.
func (s *Session) shippingReady() error {
	if err := s.address.Validate(); err != nil {
		return err
	}
	st := s.quoter.State()
	if st.Status == QuoteLoading {
		return domain.ErrQuoteInProgress
	}
	if len(st.Options) > 0 && st.Selected == nil {
		return domain.NewValidationError("freight", "choose a shipping option")
	}
	return nil
}

func quoteKey(postalCode string, lines []domain.CartLine) domain.QuoteKey {
	cep := domain.NormalizePostalCode(postalCode)
	if len(cep) != domain.PostalCodeLength {
		return domain.QuoteKey{}
	}
	return domain.QuoteKey{PostalCode: cep, Fingerprint: domain.Fingerprint(lines)}
}

func (s *Session) Back() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrCheckoutClosed
	}
	if s.submitting {
		return paydomain.ErrPaymentInFlight
	}
	if s.result != nil {
		return paydomain.ErrAlreadyPaid
	}
	if s.step == domain.StepFailed {
		s.step, s.notice = s.failedFrom, ""
		return nil
	}
	prev, ok := s.step.Previous(s.firstStep)
	if !ok {
		return fmt.Errorf("%w: cannot go back from %s", domain.ErrIllegalTransition, s.step)
	}
	s.step = prev
	return nil
}

// Retry returns a failed session to the step that failed.
func (s *Session) Retry() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrCheckoutClosed
	}
	if s.step != domain.StepFailed {
		return fmt.Errorf("%w: nothing to retry from %s", domain.ErrIllegalTransition, s.step)
	}
	s.step, s.notice = s.failedFrom, ""
	return nil
}

// Pay submits one payment attempt. Only one attempt is in flight per session, and
// a session that already has a payment result refuses another.
func (s *Session) Pay(ctx context.Context, in PayInput) (PayOutcome, error) {
	s.mu.Lock()
	if err := s.requireStep(domain.StepPayment); err != nil {
		s.mu.Unlock()
		return PayOutcome{}, err
	}
	switch {
	case s.submitting:
		s.mu.Unlock()
		return PayOutcome{}, paydomain.ErrPaymentInFlight
	case s.result != nil:
		s.mu.Unlock()
		return PayOutcome{}, paydomain.ErrAlreadyPaid
	case !s.tenant.Accepts(in.Method):
		s.mu.Unlock()
		return PayOutcome{}, paydomain.ErrMethodUnavailable
	}
	if err := s.shippingReady(); err != nil {
		s.mu.Unlock()
		return PayOutcome{}, err
	}
	intent, err := s.intent(in)
	if err != nil {
		s.mu.Unlock()
		return PayOutcome{}, err
	}

	s.submitting = true
	s.attempt++
	attempt := s.attempt
	s.rejection, s.notice = nil, ""

	coupons := s.ledger.Applied()
	freight := s.quoter.Selected()
	total := domain.Price(s.lines, coupons, freight).Total
	req := payapp.Request{
		SessionID:      s.id,
		IdempotencyKey: uuid.NewString(),
		Intent:         intent,
		AmountMinor:    total,
		Currency:       s.tenant.Currency,
		Customer:       s.customer,
		Address:        s.address,
		Lines:          domain.CloneLines(s.lines),
	}
	draft := orderdomain.Draft{
		SessionID: s.id,
		Lines:     domain.CloneLines(s.lines),
		Customer:  s.customer,
		Address:   s.address,
		Coupons:   coupons,
		Freight:   freight,
		Currency:  s.tenant.Currency,
	}
	s.checkpoints.Fire(ctx, s.notification(CheckpointPaymentInfoAdded))
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.submitting = false
		s.mu.Unlock()
	}()

	if s.deps.Guard != nil {
		key := s.deps.Guard.PaymentKey(s.id, attempt)
		if err := s.deps.Guard.Claim(ctx, key, req.IdempotencyKey); err != nil {
			if errors.Is(err, idempotency.ErrAlreadyClaimed) {
				return PayOutcome{}, paydomain.ErrDuplicateSubmission
			}
			s.log.Warn("payment claim unavailable, continuing", "attempt", attempt, "err", err)
		}
	}

	// The provider call is not cancelled with the caller: an abandoned request
	// must not leave the outcome unknown.
	res, err := s.deps.Gateway.Submit(context.WithoutCancel(ctx), req)
	if err != nil {
		return PayOutcome{}, s.submitFailed(err)
	}

	draft.Payment = res
	placement, perr := s.deps.Orders.Place(ctx, draft)

	s.mu.Lock()
	s.result = &res
	if perr != nil {
		s.log.Error("order placement rejected", "tx_id", res.ProviderTxID, "err", perr)
		s.notice = NoticeRegistrationPending
	} else {
		s.placement = &placement
		if placement.RegistrationPending {
			s.notice = NoticeRegistrationPending
		}
	}
	out := PayOutcome{Result: res, Placement: s.placement}

	watch := res.AwaitingConfirmation()
	if !watch && !s.closed {
		if err := s.advance(ctx, domain.StepConfirmed); err != nil {
			s.log.Error("confirm step", "err", err)
		}
		// An issued bank slip is not a paid purchase yet.
		if res.Method != paydomain.MethodBankSlip {
			s.checkpoints.Fire(ctx, s.notification(CheckpointPurchaseConfirmed))
		}
		s.settled, s.settledAt = true, s.now()
	}
	s.mu.Unlock()

	switch {
	case watch && s.watcher != nil:
		s.watcher.Watch(ctx, res.ProviderTxID, s.watchCallbacks())
	case !watch:
		s.clearCart(ctx)
	}
	return out, nil
}

func (s *Session) submitFailed(err error) error {
	var (
		rej  *paydomain.GatewayRejection
		verr *domain.ValidationError
	)
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case errors.As(err, &rej):
		s.rejection = rej
	case errors.As(err, &verr):
	default:
		s.log.Warn("payment attempt failed", "err", err)
		if s.step != domain.StepFailed {
			s.failedFrom = s.step
			s.step = domain.StepFailed
		}
		s.notice = NoticePaymentFailed
	}
	return err
}

func (s *Session) intent(in PayInput) (paydomain.Intent, error) {
	switch in.Method {
	case paydomain.MethodInstantTransfer:
		return paydomain.InstantTransferIntent{}, nil
	case paydomain.MethodBankSlip:
		return paydomain.BankSlipIntent{}, nil
	case paydomain.MethodCard:
		n := in.Installments
		if n == 0 {
			n = 1
		}
		limit := s.tenant.MaxInstallments
		if limit < 1 {
			limit = 1
		}
		if n < 1 || n > limit {
			return nil, domain.NewValidationError(string(paydomain.FieldInstallments),
				fmt.Sprintf("choose between 1 and %d installments", limit))
		}
		return paydomain.CardIntent{Installments: n, Card: in.Card}, nil
	}
	return nil, paydomain.ErrUnsupportedIntent
}

func (s *Session) watchCallbacks() payapp.WatchCallbacks {
	return payapp.WatchCallbacks{
		OnConfirmed:    s.onConfirmed,
		OnSettled:      s.onSettled,
		OnStillPending: s.onStillPending,
	}
}

func (s *Session) onConfirmed(ctx context.Context, txID, status string) {
	if err := s.deps.Orders.UpdatePaymentStatus(ctx, txID, status); err != nil {
		s.log.Warn("order payment status update failed", "tx_id", txID, "err", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil || s.result.ProviderTxID != txID {
		return
	}
	s.result.Status = status
	if s.closed || s.step != domain.StepPayment {
		return
	}
	if s.notice == NoticeStillPending {
		s.notice = ""
	}
	if err := s.advance(ctx, domain.StepConfirmed); err != nil {
		s.log.Error("confirm step", "err", err)
		return
	}
	s.checkpoints.Fire(ctx, s.notification(CheckpointPurchaseConfirmed))
}

func (s *Session) onSettled(ctx context.Context, txID string) {
	s.mu.Lock()
	if s.closed || s.result == nil || s.result.ProviderTxID != txID {
		s.mu.Unlock()
		return
	}
	s.settled, s.settledAt = true, s.now()
	s.mu.Unlock()

	s.clearCart(ctx)
}

func (s *Session) onStillPending(_ context.Context, txID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result != nil && s.result.ProviderTxID == txID && s.step == domain.StepPayment {
		s.notice = NoticeStillPending
	}
}

func (s *Session) quote(ctx context.Context, postalCode string, lines []domain.CartLine) {
	if _, err := s.quoter.Input(ctx, postalCode, lines); err != nil {
		s.log.Warn("freight quote failed", "postal_code", postalCode, "err", err)
	}
}

func (s *Session) clearCart(ctx context.Context) {
	if s.deps.Cart == nil || s.owner == "" {
		return
	}
	if err := s.deps.Cart.Clear(context.WithoutCancel(ctx), s.owner); err != nil {
		s.log.Warn("cart clear failed", "owner", s.owner, "err", err)
	}
}

// Close stops the payment watcher and any freight quote. It is safe to call twice.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	// Watcher callbacks take mu, so Stop must run unlocked.
	if s.watcher != nil {
		s.watcher.Stop()
	}
	s.quoter.Stop()
	s.checkpoints.Wait()
	s.bg.Wait()
}

// expired reports whether the session was settled more than keep ago or opened
// more than maxAge ago. A submission in flight never expires.
func (s *Session) expired(now time.Time, keep, maxAge time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.submitting:
		return false
	case s.settled && now.Sub(s.settledAt) >= keep:
		return true
	}
	return maxAge > 0 && now.Sub(s.startedAt) >= maxAge
}

func (s *Session) applyIdentity(id Identity) {
	s.customer = id.Customer.Normalize()
	if id.Address != nil {
		s.address = id.Address.Normalize()
	}
}

func (s *Session) requireStep(step domain.Step) error {
	if s.closed {
		return domain.ErrCheckoutClosed
	}
	if s.step != step {
		return fmt.Errorf("%w: session is at %s, not %s", domain.ErrIllegalTransition, s.step, step)
	}
	return nil
}

// requireEditable allows cart and coupon edits until a payment result exists.
func (s *Session) requireEditable() error {
	switch {
	case s.closed:
		return domain.ErrCheckoutClosed
	case s.submitting:
		return paydomain.ErrPaymentInFlight
	case s.result != nil:
		return paydomain.ErrAlreadyPaid
	case s.step.IsTerminal():
		return domain.ErrIllegalTransition
	}
	return nil
}

func (s *Session) advance(ctx context.Context, to domain.Step) error {
	if !domain.CanTransitionTo(s.step, to) {
		return fmt.Errorf("%w: %s to %s", domain.ErrIllegalTransition, s.step, to)
	}
	s.step = to
	s.snapshot(ctx)
	return nil
}

// snapshot sends the recovery snapshot for the current step. Called with mu held.
func (s *Session) snapshot(ctx context.Context) {
	if s.deps.Recovery == nil {
		return
	}
	snap := RecoverySnapshot{
		SessionID: s.id,
		Owner:     s.owner,
		Step:      s.step,
		Lines:     domain.CloneLines(s.lines),
		At:        s.now(),
	}
	if s.customer != (domain.Customer{}) {
		c := s.customer
		snap.Customer = &c
	}
	if s.address != (domain.Address{}) {
		a := s.address
		snap.Address = &a
	}

	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recoveryTimeout)
		defer cancel()
		if err := s.deps.Recovery.Snapshot(rctx, snap); err != nil {
			s.log.Debug("recovery snapshot failed", "step", snap.Step, "err", err)
		}
	}()
}

func (s *Session) notification(cp Checkpoint) Notification {
	b := domain.Price(s.lines, s.ledger.Applied(), s.quoter.Selected())
	items := make([]NotificationItem, 0, len(s.lines))
	for _, l := range s.lines {
		items = append(items, NotificationItem{ProductID: l.ProductID, Quantity: l.Quantity, PriceMinor: l.UnitPriceMinor})
	}
	return Notification{
		Checkpoint: cp,
		SessionID:  s.id,
		ValueMinor: b.Total,
		Currency:   s.tenant.Currency,
		ItemCount:  domain.ItemCount(s.lines),
		Contents:   items,
	}
}

func (s *Session) lineIndex(productID, variant string) int {
	for i, l := range s.lines {
		if l.ProductID == productID && l.Variant == variant {
			return i
		}
	}
	return -1
}

func (s *Session) now() time.Time {
	if s.deps.Now != nil {
		return s.deps.Now()
	}
	return time.Now().UTC()
}
