package models

import "time"

// TicketPayload is the structured content embedded in the ticket QR code.
type TicketPayload struct {
	BookingID     string    `json:"booking_id"`
	EventID       string    `json:"event_id"`
	EventName     string    `json:"event_name"`
	AttendeeName  string    `json:"attendee_name"`
	AttendeeEmail string    `json:"attendee_email"`
	TicketType    string    `json:"ticket_type"`
	Quantity      int       `json:"quantity"`
	EventDate     time.Time `json:"event_date"`
	Venue         string    `json:"venue"`
	City          string    `json:"city"`
	VerifyURL     string    `json:"verify_url"`
}

// TicketArtifact is the proof of purchase issued once a booking is confirmed.
// VerificationID is a signed token; QRCode is a PNG image.
type TicketArtifact struct {
	VerificationID string         `bun:"verification_id,nullzero" json:"verification_id,omitempty"`
	Payload        *TicketPayload `bun:"payload,type:jsonb,nullzero" json:"payload,omitempty"`
	QRCode         []byte         `bun:"qr_code,nullzero" json:"qr_code,omitempty"`
	IssuedAt       time.Time      `bun:"issued_at,nullzero" json:"issued_at,omitempty"`
}
