package status

import "errors"

// Error kinds surfaced by the queue engine. Validation and not-found
// errors are returned before any write happens; everything after the
// primary mutation is best-effort and only logged.
var (
	ErrShopNotFound            = errors.New("queue: shop not found")
	ErrEntryNotFound           = errors.New("queue: entry not found")
	ErrBarberNotFound          = errors.New("queue: barber not found")
	ErrShopClosed              = errors.New("queue: shop is closed")
	ErrInvalidService          = errors.New("queue: unknown or empty service selection")
	ErrMissingCustomerIdentity = errors.New("queue: customer name is required for guest entries")
	ErrAlreadyTerminal         = errors.New("queue: entry is already completed or cancelled")
	ErrInvalidTransition       = errors.New("queue: invalid status transition")
	ErrMissingBarber           = errors.New("queue: barber id is required when completing service")
	ErrCannotModify            = errors.New("queue: only pending entries can be modified")
	ErrNoNextEntry             = errors.New("queue: already last in queue")
	ErrCodeGenerationFailed    = errors.New("queue: exhausted unique code generation retries")
)

// Kind maps an engine error to its machine-readable kind string.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrShopNotFound):
		return "shop_not_found"
	case errors.Is(err, ErrEntryNotFound):
		return "entry_not_found"
	case errors.Is(err, ErrBarberNotFound):
		return "barber_not_found"
	case errors.Is(err, ErrShopClosed):
		return "shop_closed"
	case errors.Is(err, ErrInvalidService):
		return "invalid_service"
	case errors.Is(err, ErrMissingCustomerIdentity):
		return "missing_customer_identity"
	case errors.Is(err, ErrAlreadyTerminal):
		return "already_terminal"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrMissingBarber):
		return "missing_barber"
	case errors.Is(err, ErrCannotModify):
		return "cannot_modify"
	case errors.Is(err, ErrNoNextEntry):
		return "no_next_entry"
	case errors.Is(err, ErrCodeGenerationFailed):
		return "code_generation_failed"
	default:
		return "internal"
	}
}

// NotFound reports whether err is one of the lookup failures.
func NotFound(err error) bool {
	return errors.Is(err, ErrShopNotFound) ||
		errors.Is(err, ErrEntryNotFound) ||
		errors.Is(err, ErrBarberNotFound)
}
