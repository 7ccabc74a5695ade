package models

import (
	"time"

	"github.com/uptrace/bun"
)

type BookingStatus string

const (
	BookingPending         BookingStatus = "pending"
	BookingAwaitingPayment BookingStatus = "awaiting_payment"
	BookingPaid            BookingStatus = "paid"
	BookingConfirmed       BookingStatus = "confirmed"
	BookingFailed          BookingStatus = "failed"
	BookingCancelled       BookingStatus = "cancelled"
)

// ActiveStatuses are the statuses covered by the one-booking-per-user-per-event rule.
var ActiveStatuses = []BookingStatus{
	BookingPending,
	BookingAwaitingPayment,
	BookingPaid,
	BookingConfirmed,
}

var lifecycle = map[BookingStatus][]BookingStatus{
	BookingPending:         {BookingAwaitingPayment, BookingFailed, BookingCancelled},
	BookingAwaitingPayment: {BookingPaid, BookingFailed, BookingCancelled},
	BookingPaid:            {BookingConfirmed},
}

// CanTransition reports whether from -> to is an edge of the booking lifecycle.
func CanTransition(from, to BookingStatus) bool {
	for _, next := range lifecycle[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PaymentDetails mirrors what the provider reported when the booking was reconciled.
type PaymentDetails struct {
	ProviderOrderID   string `bun:"provider_order_id,nullzero" json:"provider_order_id,omitempty"`
	ProviderPaymentID string `bun:"provider_payment_id,nullzero" json:"provider_payment_id,omitempty"`
	Status            string `bun:"status,nullzero" json:"status,omitempty"`
}

type Booking struct {
	bun.BaseModel `bun:"table:bookings,alias:b"`

	ID            string        `bun:"id,pk" json:"id"`
	UserID        string        `bun:"user_id,notnull" json:"user_id"`
	AttendeeName  string        `bun:"attendee_name" json:"attendee_name"`
	AttendeeEmail string        `bun:"attendee_email" json:"attendee_email"`
	EventID       string        `bun:"event_id,notnull" json:"event_id"`
	TicketType    string        `bun:"ticket_type,notnull" json:"ticket_type"`
	Quantity      int           `bun:"quantity,notnull" json:"quantity"`
	Amount        int64         `bun:"amount,notnull" json:"amount"`
	Currency      string        `bun:"currency,notnull" json:"currency"`
	Status        BookingStatus `bun:"status,notnull" json:"status"`

	Payment PaymentDetails `bun:"embed:payment_" json:"payment"`
	Ticket  TicketArtifact `bun:"embed:ticket_" json:"ticket"`

	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

// HasTicket reports whether an artifact has been issued for the booking.
func (b *Booking) HasTicket() bool {
	return b.Ticket.VerificationID != ""
}

// NewBooking is the input of the booking record store's Create.
type NewBooking struct {
	UserID        string
	AttendeeName  string
	AttendeeEmail string
	EventID       string
	TicketType    string
	Quantity      int
}

// BookingPatch carries the fields a transition may set alongside the status.
type BookingPatch struct {
	ProviderOrderID string
	Payment         *PaymentDetails
	Ticket          *TicketArtifact
}

// Identity is the authenticated caller, as produced by the auth capability check.
type Identity struct {
	UserID string   `json:"user_id"`
	Name   string   `json:"name,omitempty"`
	Email  string   `json:"email,omitempty"`
	Roles  []string `json:"roles,omitempty"`
}

// HasRole reports whether the identity carries role.
func (i Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// BookingResult is returned to the client after a successful checkout start.
type BookingResult struct {
	Booking     *Booking `json:"booking"`
	RedirectURL string   `json:"redirect_url"`
}
