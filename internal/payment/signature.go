package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Signer authenticates the booking id carried on the browser return URL. Stripe does not
// sign redirects, so the service signs its own.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

func (s *Signer) Sign(bookingID string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(bookingID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify compares in constant time. An empty secret verifies nothing.
func (s *Signer) Verify(bookingID, signature string) bool {
	if len(s.secret) == 0 || bookingID == "" || signature == "" {
		return false
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	want, _ := hex.DecodeString(s.Sign(bookingID))
	return hmac.Equal(got, want)
}
