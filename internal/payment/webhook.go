package payment

import (
	"encoding/json"
	"fmt"
	"net/http"

	"ms-booking/internal/models"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// Checkout Session events that can change a booking's payment outcome.
var sessionEvents = map[stripe.EventType]bool{
	"checkout.session.completed":               true,
	"checkout.session.async_payment_succeeded": true,
	"checkout.session.async_payment_failed":    true,
	"checkout.session.expired":                 true,
}

// ParseWebhook authenticates a Stripe webhook delivery and turns it into a callback.
// Events that cannot affect a booking yield ErrWebhookIgnored.
func (g *Gateway) ParseWebhook(payload []byte, sigHeader string) (models.Callback, error) {
	if g.webhookSecret == "" {
		return models.Callback{}, &WebhookError{
			StatusCode:  http.StatusInternalServerError,
			PublicError: "Webhook processing error",
			OriginalErr: fmt.Errorf("stripe webhook secret is not configured"),
		}
	}

	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		g.log.LogSecurity("WEBHOOK_SIGNATURE", err.Error())
		return models.Callback{}, &WebhookError{
			StatusCode:  http.StatusBadRequest,
			PublicError: "Webhook signature verification failed",
			OriginalErr: fmt.Errorf("%w: %v", models.ErrBadSignature, err),
		}
	}

	if !sessionEvents[event.Type] {
		g.log.Debug("WEBHOOK", fmt.Sprintf("Ignoring event %s (%s)", event.ID, event.Type))
		return models.Callback{}, ErrWebhookIgnored
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return models.Callback{}, &WebhookError{
			StatusCode:  http.StatusBadRequest,
			PublicError: "Invalid event data",
			OriginalErr: fmt.Errorf("%w: %v", models.ErrMalformedCallback, err),
		}
	}

	cb := models.Callback{
		Source:          models.CallbackWebhook,
		ProviderOrderID: session.ID,
		BookingID:       session.Metadata[metadataBookingID],
	}
	if session.PaymentIntent != nil {
		cb.ProviderPaymentID = session.PaymentIntent.ID
	}
	g.log.Info("WEBHOOK", fmt.Sprintf("Event %s (%s) for session %s", event.ID, event.Type, session.ID))
	return cb, nil
}
