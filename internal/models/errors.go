package models

import "errors"

// Inventory and catalog
var (
	ErrInvalidQuantity        = errors.New("quantity must be at least 1")
	ErrEventNotFound          = errors.New("event not found")
	ErrTicketTypeNotFound     = errors.New("ticket type not found")
	ErrInsufficientInventory  = errors.New("not enough tickets left")
	ErrReleaseExceedsCapacity = errors.New("release would exceed ticket class capacity")
)

// Booking records
var (
	ErrDuplicateBooking  = errors.New("user already has an active booking for this event")
	ErrBookingNotFound   = errors.New("booking not found")
	ErrInvalidTransition = errors.New("invalid booking status transition")
	ErrNotBookingOwner   = errors.New("booking belongs to another user")
	ErrNotEventOrganizer = errors.New("event belongs to another organizer")
	ErrBookingClosed     = errors.New("booking is closed")
)

// Payment provider. ErrGatewayAuth and ErrGatewayRejected are never retried;
// ErrGatewayUnavailable and ErrGatewayTimeout are transient.
var (
	ErrGatewayUnavailable = errors.New("payment provider unavailable")
	ErrGatewayTimeout     = errors.New("payment provider timed out")
	ErrGatewayAuth        = errors.New("payment provider rejected credentials")
	ErrGatewayRejected    = errors.New("payment provider rejected the request")
	ErrPaymentNotFound    = errors.New("payment not found at provider")
)

// Reconciliation input is untrusted and fails closed.
var (
	ErrMalformedCallback  = errors.New("callback carries neither payment id nor order id")
	ErrBadSignature       = errors.New("callback signature verification failed")
	ErrUnknownOrder       = errors.New("no booking for provider order")
	ErrPaymentNotCaptured = errors.New("payment was not captured")
	ErrPaymentMismatch    = errors.New("provider payment does not match booking")
)

// IsGatewayError reports whether err belongs to the payment provider error class.
func IsGatewayError(err error) bool {
	return errors.Is(err, ErrGatewayUnavailable) ||
		errors.Is(err, ErrGatewayTimeout) ||
		errors.Is(err, ErrGatewayAuth) ||
		errors.Is(err, ErrGatewayRejected)
}

// IsRetryableGatewayError reports whether the provider may succeed if asked again.
func IsRetryableGatewayError(err error) bool {
	return errors.Is(err, ErrGatewayUnavailable) || errors.Is(err, ErrGatewayTimeout)
}
