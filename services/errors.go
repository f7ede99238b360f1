package services

import (
	"errors"
	"fmt"
)

// Sentinel errors for the booking/escrow/payout core. Routes map these onto
// HTTP statuses; services never touch the transport layer.
var (
	ErrValidation            = errors.New("validation error")
	ErrSlotNoLongerAvailable = errors.New("slot no longer available")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrGatewayTimeout        = errors.New("payment gateway timeout")
	ErrGatewayError          = errors.New("payment gateway error")
	ErrSignatureVerification = errors.New("webhook signature verification failed")
	ErrNotFound              = errors.New("not found")
	ErrForbidden             = errors.New("forbidden")
)

// InvalidTransitionError names the current and attempted booking status, so
// a rejected transition is debuggable from the error message alone.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid booking transition from %q to %q", e.From, e.To)
}

// InvalidEscrowStateError names the current and requested escrow status.
type InvalidEscrowStateError struct {
	Current   string
	Requested string
}

func (e *InvalidEscrowStateError) Error() string {
	return fmt.Sprintf("invalid escrow state: %q cannot move to %q", e.Current, e.Requested)
}

func validationErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
