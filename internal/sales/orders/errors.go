package orders

import "errors"

var (
	// ErrNotFound indicates the order does not exist for the tenant.
	ErrNotFound = errors.New("order not found")
	// ErrInvalidTransition means the target status is unreachable from the current one.
	ErrInvalidTransition = errors.New("invalid order status transition")
	// ErrAlreadyInState means the order already has the target status.
	ErrAlreadyInState = errors.New("order already in target status")
	// ErrInvalidOrder wraps validation failures on order creation.
	ErrInvalidOrder = errors.New("invalid order")
	// ErrOrderBusy means another instance is transitioning the same order.
	ErrOrderBusy = errors.New("order is being updated elsewhere")
	// ErrDuplicateNumber is returned by stores when the order number is taken.
	ErrDuplicateNumber = errors.New("order number already exists")
)
