// Package qr issues ticket artifacts: a signed verification token plus a QR image of the
// ticket payload.
package qr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"ms-booking/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/skip2/go-qrcode"
)

const (
	tokenIssuer = "ms-booking"
	qrSize      = 256
)

var ErrInvalidToken = errors.New("invalid ticket token")

type Issuer struct {
	secret  []byte
	ttl     time.Duration
	baseURL string
	now     func() time.Time
}

func NewIssuer(secret string, ttl time.Duration, baseURL string) *Issuer {
	return &Issuer{
		secret:  []byte(secret),
		ttl:     ttl,
		baseURL: baseURL,
		now:     time.Now,
	}
}

// Issue builds the artifact for a booking. Issuing twice yields two different tokens, so
// callers persist the first artifact and reuse it.
func (i *Issuer) Issue(b *models.Booking, event *models.Event) (models.TicketArtifact, error) {
	if len(i.secret) == 0 {
		return models.TicketArtifact{}, errors.New("ticket signing secret is not configured")
	}
	issued := i.now().UTC().Truncate(time.Second)

	token, err := i.sign(b.ID, issued)
	if err != nil {
		return models.TicketArtifact{}, err
	}

	payload := &models.TicketPayload{
		BookingID:     b.ID,
		EventID:       b.EventID,
		EventName:     event.Name,
		AttendeeName:  b.AttendeeName,
		AttendeeEmail: b.AttendeeEmail,
		TicketType:    b.TicketType,
		Quantity:      b.Quantity,
		EventDate:     event.StartsAt.UTC(),
		Venue:         event.Venue,
		City:          event.City,
		VerifyURL:     i.VerifyURL(b.ID, token),
	}

	content, err := json.Marshal(payload)
	if err != nil {
		return models.TicketArtifact{}, fmt.Errorf("encode ticket payload: %w", err)
	}
	png, err := qrcode.Encode(string(content), qrcode.Medium, qrSize)
	if err != nil {
		return models.TicketArtifact{}, fmt.Errorf("render ticket qr: %w", err)
	}

	return models.TicketArtifact{
		VerificationID: token,
		Payload:        payload,
		QRCode:         png,
		IssuedAt:       issued,
	}, nil
}

func (i *Issuer) VerifyURL(bookingID, token string) string {
	return fmt.Sprintf("%s/tickets/verify/%s?token=%s", i.baseURL, url.PathEscape(bookingID), url.QueryEscape(token))
}

func (i *Issuer) sign(bookingID string, issued time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   bookingID,
		IssuedAt:  jwt.NewNumericDate(issued),
		ExpiresAt: jwt.NewNumericDate(issued.Add(i.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign ticket token: %w", err)
	}
	return signed, nil
}

// Verify checks a token's signature and expiry and returns the booking it was issued for.
func (i *Issuer) Verify(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || claims.Subject == "" {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims.Subject, nil
}
