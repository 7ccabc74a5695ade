package models

import "time"

type BookingEventType string

const (
	BookingEventCreated   BookingEventType = "booking.created"
	BookingEventConfirmed BookingEventType = "booking.confirmed"
	BookingEventFailed    BookingEventType = "booking.failed"
	BookingEventCancelled BookingEventType = "booking.cancelled"
)

// BookingEvent is published on every lifecycle milestone. It goes to Kafka and to the
// organizer live feed.
type BookingEvent struct {
	Type       BookingEventType `json:"type"`
	BookingID  string           `json:"booking_id"`
	UserID     string           `json:"user_id"`
	EventID    string           `json:"event_id"`
	TicketType string           `json:"ticket_type"`
	Quantity   int              `json:"quantity"`
	Amount     int64            `json:"amount"`
	Currency   string           `json:"currency"`
	Status     BookingStatus    `json:"status"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// NewBookingEvent snapshots b for publication.
func NewBookingEvent(t BookingEventType, b *Booking) BookingEvent {
	return BookingEvent{
		Type:       t,
		BookingID:  b.ID,
		UserID:     b.UserID,
		EventID:    b.EventID,
		TicketType: b.TicketType,
		Quantity:   b.Quantity,
		Amount:     b.Amount,
		Currency:   b.Currency,
		Status:     b.Status,
		OccurredAt: time.Now().UTC(),
	}
}
