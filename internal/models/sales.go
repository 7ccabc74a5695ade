package models

import (
	"time"

	"github.com/uptrace/bun"
)

// DailySales counts confirmed tickets and revenue per event, ticket type and UTC day.
type DailySales struct {
	bun.BaseModel `bun:"table:daily_sales,alias:ds"`

	EventID    string `bun:"event_id,pk" json:"event_id"`
	TicketType string `bun:"ticket_type,pk" json:"ticket_type"`
	Day        string `bun:"day,pk" json:"day"`
	Tickets    int    `bun:"tickets,notnull" json:"tickets"`
	Revenue    int64  `bun:"revenue,notnull" json:"revenue"`
}

// SalesLedgerEntry marks a booking as already counted so redelivered events are ignored.
type SalesLedgerEntry struct {
	bun.BaseModel `bun:"table:sales_ledger,alias:sl"`

	BookingID  string    `bun:"booking_id,pk"`
	RecordedAt time.Time `bun:"recorded_at,notnull"`
}
