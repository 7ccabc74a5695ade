// Package inventory is the ticket count ledger. Every mutation is one atomic conditional
// statement against the backing store, so concurrent reservations can never oversell and
// no application lock is involved.
package inventory

import (
	"context"

	"ms-booking/internal/models"
)

// Ledger reserves and releases tickets of one class of one event.
//
// Reserve fails with models.ErrInsufficientInventory when fewer than qty remain; it never
// reserves a partial quantity. Release fails with models.ErrReleaseExceedsCapacity when
// the count would rise above the class capacity. Both fail with models.ErrInvalidQuantity
// for qty < 1 and with models.ErrEventNotFound or models.ErrTicketTypeNotFound.
type Ledger interface {
	Reserve(ctx context.Context, eventID, ticketType string, qty int) error
	Release(ctx context.Context, eventID, ticketType string, qty int) error
	Available(ctx context.Context, eventID, ticketType string) (int, error)
}

// ValidateQuantity rejects quantities below one.
func ValidateQuantity(qty int) error {
	if qty < 1 {
		return models.ErrInvalidQuantity
	}
	return nil
}
