package orders

import "fmt"

// Valid reports whether s is a known order status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// Terminal reports whether no transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusRefunded
}

// Effect is the inventory side effect of a transition.
type Effect int

const (
	EffectNone Effect = iota
	// EffectDeduct takes the order lines out of stock.
	EffectDeduct
	// EffectRestore returns stock and voids receipts.
	EffectRestore
)

func (e Effect) String() string {
	switch e {
	case EffectDeduct:
		return "deduct"
	case EffectRestore:
		return "restore"
	}
	return "none"
}

// Plan validates from → to and returns the side effect it carries.
func Plan(from, to Status) (Effect, error) {
	if !to.Valid() {
		return EffectNone, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	if from == to {
		return EffectNone, fmt.Errorf("%w: %s", ErrAlreadyInState, to)
	}
	if from.Terminal() {
		return EffectNone, fmt.Errorf("%w: %s is final", ErrInvalidTransition, from)
	}
	switch {
	case to == StatusCompleted:
		return EffectDeduct, nil
	case from == StatusCompleted:
		return EffectRestore, nil
	}
	return EffectNone, nil
}

// settlePayment returns the payment status after moving to target. Completion
// marks a pending payment as paid.
func settlePayment(target Status, current PaymentStatus) PaymentStatus {
	if target == StatusCompleted && current == PaymentPending {
		return PaymentPaid
	}
	return current
}
