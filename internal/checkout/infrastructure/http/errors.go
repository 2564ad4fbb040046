package http

import (
	"errors"
	"net/http"

	"github.com/dmehra2102/storefront-checkout/internal/checkout/application"
	"github.com/dmehra2102/storefront-checkout/internal/checkout/domain"
	paydomain "github.com/dmehra2102/storefront-checkout/internal/payment/domain"
)

// errorBody carries either field errors, shown next to inputs, or a banner.
type errorBody struct {
	Fields    map[string]string `json:"fields,omitempty"`
	Banner    string            `json:"banner,omitempty"`
	Retryable bool              `json:"retryable,omitempty"`
}

var conflicts = []error{
	domain.ErrIllegalTransition,
	domain.ErrCheckoutClosed,
	domain.ErrQuoteInProgress,
	domain.ErrCouponAlreadyApplied,
	paydomain.ErrPaymentInFlight,
	paydomain.ErrAlreadyPaid,
	paydomain.ErrDuplicateSubmission,
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var (
		verr     *domain.ValidationError
		rej      *paydomain.GatewayRejection
		rejected *domain.CouponRejectedError
		qerr     *domain.QuoteError
		terr     *paydomain.TransientNetworkError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Fields: verr.Fields})
	case errors.As(err, &rej):
		body := errorBody{Banner: rej.Message}
		if rej.Field != paydomain.FieldNone {
			body = errorBody{Fields: map[string]string{string(rej.Field): rej.Message}}
		}
		writeJSON(w, http.StatusUnprocessableEntity, body)
	case errors.As(err, &rejected):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Fields: map[string]string{"coupon": rejected.Reason}})
	case errors.As(err, &qerr):
		writeJSON(w, http.StatusBadGateway, errorBody{Banner: qerr.Op + " is unavailable, try again", Retryable: true})
	case errors.As(err, &terr):
		writeJSON(w, http.StatusBadGateway, errorBody{Banner: application.NoticePaymentFailed, Retryable: true})
	case errors.Is(err, application.ErrSessionNotFound), errors.Is(err, domain.ErrCouponNotApplied):
		writeJSON(w, http.StatusNotFound, errorBody{Banner: err.Error()})
	case errors.Is(err, domain.ErrUnknownFreightOption):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Fields: map[string]string{"freight": err.Error()}})
	case errors.Is(err, paydomain.ErrMethodUnavailable), errors.Is(err, paydomain.ErrUnsupportedIntent):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Fields: map[string]string{string(paydomain.FieldMethod): err.Error()}})
	case errors.Is(err, domain.ErrEmptyCart):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Banner: err.Error()})
	case errors.Is(err, domain.ErrCheckoutUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Banner: err.Error()})
	case isConflict(err):
		writeJSON(w, http.StatusConflict, errorBody{Banner: err.Error()})
	default:
		h.log.Error("checkout request failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Banner: "something went wrong"})
	}
}

func isConflict(err error) bool {
	for _, target := range conflicts {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
