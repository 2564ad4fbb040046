package application

import (
	"github.com/dmehra2102/storefront-checkout/internal/checkout/domain"
	paydomain "github.com/dmehra2102/storefront-checkout/internal/payment/domain"
)

type RejectionView struct {
	Field   paydomain.Field `json:"field,omitempty"`
	Message string          `json:"message"`
}

// View is a read-only copy of a session for presentation.
type View struct {
	ID             string                 `json:"id"`
	Tenant         string                 `json:"tenant"`
	Step           domain.Step            `json:"step"`
	FirstStep      domain.Step            `json:"firstStep"`
	Lines          []domain.CartLine      `json:"cartLines"`
	Customer       domain.Customer        `json:"customer"`
	Address        domain.Address         `json:"address"`
	Coupons        []domain.AppliedCoupon `json:"coupons"`
	Freight        FreightState           `json:"freight"`
	Breakdown      domain.Breakdown       `json:"breakdown"`
	Currency       string                 `json:"currency"`
	PaymentMethods []paydomain.Method     `json:"paymentMethods"`
	Submitting     bool                   `json:"submitting"`
	Payment        *paydomain.Result      `json:"payment,omitempty"`
	OrderID        string                 `json:"orderId,omitempty"`
	Rejection      *RejectionView         `json:"rejection,omitempty"`
	Notice         string                 `json:"notice,omitempty"`
	Settled        bool                   `json:"settled"`
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	coupons := s.ledger.Applied()
	freight := s.quoter.State()
	v := View{
		ID:             s.id,
		Tenant:         s.tenant.ID,
		Step:           s.step,
		FirstStep:      s.firstStep,
		Lines:          domain.CloneLines(s.lines),
		Customer:       s.customer,
		Address:        s.address,
		Coupons:        coupons,
		Freight:        freight,
		Breakdown:      domain.Price(s.lines, coupons, freight.Selected),
		Currency:       s.tenant.Currency,
		PaymentMethods: append([]paydomain.Method(nil), s.tenant.PaymentMethods...),
		Submitting:     s.submitting,
		Notice:         s.notice,
		Settled:        s.settled,
	}
	if v.Coupons == nil {
		v.Coupons = []domain.AppliedCoupon{}
	}
	if s.result != nil {
		r := *s.result
		v.Payment = &r
	}
	if s.placement != nil {
		v.OrderID = s.placement.OrderID
	}
	if s.rejection != nil {
		v.Rejection = &RejectionView{Field: s.rejection.Field, Message: s.rejection.Message}
	}
	return v
}
