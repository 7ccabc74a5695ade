package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Event is owned by the organizer side of the marketplace; this service only reads it.
type Event struct {
	bun.BaseModel `bun:"table:events,alias:e"`

	ID          string    `bun:"id,pk" json:"id"`
	Name        string    `bun:"name,notnull" json:"name"`
	OrganizerID string    `bun:"organizer_id" json:"organizer_id"`
	StartsAt    time.Time `bun:"starts_at,notnull" json:"starts_at"`
	Venue       string    `bun:"venue" json:"venue"`
	City        string    `bun:"city" json:"city"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`

	TicketClasses []*TicketClass `bun:"rel:has-many,join:id=event_id" json:"ticket_classes,omitempty"`
}

// TicketClass is a priced category of tickets with a finite count. UnitPrice is in minor
// currency units. AvailableCount stays within [0, Capacity] and only the inventory ledger
// changes it.
type TicketClass struct {
	bun.BaseModel `bun:"table:ticket_classes,alias:tc"`

	EventID        string `bun:"event_id,pk" json:"event_id"`
	Type           string `bun:"ticket_type,pk" json:"type"`
	UnitPrice      int64  `bun:"unit_price,notnull" json:"unit_price"`
	Capacity       int    `bun:"capacity,notnull" json:"capacity"`
	AvailableCount int    `bun:"available_count,notnull" json:"available_count"`
}

// TicketClass returns the class with the given type, or nil.
func (e *Event) TicketClass(ticketType string) *TicketClass {
	for _, tc := range e.TicketClasses {
		if tc.Type == ticketType {
			return tc
		}
	}
	return nil
}
