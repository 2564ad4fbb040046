package domain

type Step string

const (
	StepIdentification Step = "identification"
	StepCustomerInfo   Step = "customer_info"
	StepShipping       Step = "shipping"
	StepPayment        Step = "payment"
	StepConfirmed      Step = "confirmed"
	// StepFailed is not terminal: Retry returns to the step that failed.
	StepFailed Step = "failed"
)

var forward = map[Step]Step{
	StepIdentification: StepCustomerInfo,
	StepCustomerInfo:   StepShipping,
	StepShipping:       StepPayment,
	StepPayment:        StepConfirmed,
}

func (s Step) IsTerminal() bool {
	return s == StepConfirmed
}

func (s Step) Next() (Step, bool) {
	n, ok := forward[s]
	return n, ok
}

// Previous returns the step before s. firstStep is where this session's flow began.
func (s Step) Previous(firstStep Step) (Step, bool) {
	if s == firstStep || s.IsTerminal() || s == StepFailed {
		return s, false
	}
	for from, to := range forward {
		if to == s {
			return from, true
		}
	}
	return s, false
}

func CanTransitionTo(from, to Step) bool {
	if from.IsTerminal() {
		return false
	}
	if n, ok := from.Next(); ok && n == to {
		return true
	}
	return to == StepFailed && from != StepFailed
}

func (s Step) String() string {
	return string(s)
}
