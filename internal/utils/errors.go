package utils

import (
	"errors"
	"net/http"

	"ms-booking/internal/models"
)

var statusTable = []struct {
	err     error
	status  int
	message string
}{
	{models.ErrInvalidQuantity, http.StatusBadRequest, "Invalid quantity"},
	{models.ErrMalformedCallback, http.StatusBadRequest, "Malformed callback"},
	{models.ErrBadSignature, http.StatusUnauthorized, "Signature verification failed"},
	{models.ErrNotBookingOwner, http.StatusForbidden, "Forbidden"},
	{models.ErrNotEventOrganizer, http.StatusForbidden, "Forbidden"},
	{models.ErrEventNotFound, http.StatusNotFound, "Event not found"},
	{models.ErrTicketTypeNotFound, http.StatusNotFound, "Ticket type not found"},
	{models.ErrBookingNotFound, http.StatusNotFound, "Booking not found"},
	{models.ErrUnknownOrder, http.StatusNotFound, "Unknown order"},
	{models.ErrPaymentNotCaptured, http.StatusPaymentRequired, "Payment not captured"},
	{models.ErrInsufficientInventory, http.StatusConflict, "Sold out"},
	{models.ErrDuplicateBooking, http.StatusConflict, "Already booked"},
	{models.ErrPaymentMismatch, http.StatusConflict, "Payment does not match booking"},
	{models.ErrInvalidTransition, http.StatusConflict, "Booking cannot change state"},
	{models.ErrBookingClosed, http.StatusConflict, "Booking is closed"},
	{models.ErrGatewayAuth, http.StatusBadGateway, "Payment provider error"},
	{models.ErrGatewayRejected, http.StatusBadGateway, "Payment provider rejected the request"},
	{models.ErrGatewayUnavailable, http.StatusServiceUnavailable, "Payment provider unavailable"},
	{models.ErrGatewayTimeout, http.StatusServiceUnavailable, "Payment provider unavailable"},
}

// HTTPStatus maps a domain error to a status code and a public message. Unknown errors
// are 500 and must not leak their text.
func HTTPStatus(err error) (int, string) {
	for _, e := range statusTable {
		if errors.Is(err, e.err) {
			return e.status, e.message
		}
	}
	return http.StatusInternalServerError, "Internal server error"
}

// WriteDomainError writes err using HTTPStatus.
func WriteDomainError(w http.ResponseWriter, err error) int {
	status, message := HTTPStatus(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		detail = ""
	}
	WriteError(w, status, message, detail)
	return status
}
