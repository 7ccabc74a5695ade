// Package payment adapts Stripe Checkout to the booking flow. It holds no state: every
// call is a round trip to Stripe bounded by the configured timeout.
package payment

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"ms-booking/internal/config"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"

	"github.com/stripe/stripe-go/v82"
)

const metadataBookingID = "booking_id"

type Gateway struct {
	api           stripeAPI
	signer        *Signer
	webhookSecret string
	baseURL       string
	timeout       time.Duration
	log           *logger.Logger
}

func NewGateway(cfg config.PaymentConfig, log *logger.Logger) *Gateway {
	httpClient := &http.Client{Timeout: cfg.Timeout}
	return newGateway(newSDKClient(cfg.StripeSecretKey, httpClient), cfg, log)
}

func newGateway(api stripeAPI, cfg config.PaymentConfig, log *logger.Logger) *Gateway {
	return &Gateway{
		api:           api,
		signer:        NewSigner(cfg.CallbackSigningSecret),
		webhookSecret: cfg.StripeWebhookSecret,
		baseURL:       cfg.PublicBaseURL,
		timeout:       cfg.Timeout,
		log:           log,
	}
}

// ReturnURL is where Stripe sends the browser after checkout. The booking id is signed so
// the reconciliation endpoint can tell a genuine return from a forged one.
func (g *Gateway) ReturnURL(bookingID string) string {
	q := url.Values{}
	q.Set("booking_id", bookingID)
	q.Set("signature", g.signer.Sign(bookingID))
	// The placeholder must stay unescaped for Stripe to substitute it.
	return g.baseURL + "/payments/update?order_id={CHECKOUT_SESSION_ID}&" + q.Encode()
}

// CreatePayable opens a Checkout Session for the booking's stored amount.
func (g *Gateway) CreatePayable(ctx context.Context, b *models.Booking) (models.Payable, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	returnURL := g.ReturnURL(b.ID)
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(b.ID),
		SuccessURL:        stripe.String(returnURL),
		CancelURL:         stripe.String(returnURL),
		CustomerEmail:     optional(b.AttendeeEmail),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(b.Currency),
				UnitAmount: stripe.Int64(b.Amount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(fmt.Sprintf("%d x %s ticket", b.Quantity, b.TicketType)),
				},
			},
		}},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{metadataBookingID: b.ID},
		},
	}
	params.Context = ctx
	params.AddMetadata(metadataBookingID, b.ID)
	params.SetIdempotencyKey("checkout-" + b.ID)

	s, err := g.api.NewSession(params)
	if err != nil {
		g.log.Error("PAYMENT", fmt.Sprintf("Checkout session for booking %s failed: %v", b.ID, err))
		return models.Payable{}, classify("create checkout session", err)
	}

	g.log.LogPayment("CREATE", b.ID, fmt.Sprintf("session %s for %d %s", s.ID, b.Amount, b.Currency))
	return models.Payable{ProviderOrderID: s.ID, RedirectURL: s.URL}, nil
}

// FetchOrder reads a Checkout Session and its payment. The session decides the outcome:
// a complete session reports its payment intent, an expired one has failed, and an open
// one is created whatever its last attempt did.
func (g *Gateway) FetchOrder(ctx context.Context, providerOrderID string) (models.PaymentOrder, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")

	s, err := g.api.GetSession(providerOrderID, params)
	if err != nil {
		return models.PaymentOrder{}, classify("get checkout session", err)
	}

	order := models.PaymentOrder{
		ProviderOrderID: s.ID,
		Amount:          s.AmountTotal,
		Currency:        string(s.Currency),
		BookingID:       s.Metadata[metadataBookingID],
		Status:          models.PaymentCreated,
	}
	if s.PaymentIntent != nil {
		order.ProviderPaymentID = s.PaymentIntent.ID
	}

	switch s.Status {
	case stripe.CheckoutSessionStatusExpired:
		order.Status = models.PaymentFailed
	case stripe.CheckoutSessionStatusComplete:
		order.Status = models.PaymentProcessing
		if s.PaymentIntent != nil && s.PaymentIntent.Status != "" {
			if st := intentStatus(s.PaymentIntent); st != models.PaymentCreated {
				order.Status = st
			}
		} else if s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
			order.Status = models.PaymentCaptured
		}
	}
	return order, nil
}

// FetchStatus reads a payment intent directly.
func (g *Gateway) FetchStatus(ctx context.Context, providerPaymentID string) (models.PaymentOrder, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := g.api.GetPaymentIntent(providerPaymentID, params)
	if err != nil {
		return models.PaymentOrder{}, classify("get payment intent", err)
	}
	return models.PaymentOrder{
		ProviderPaymentID: pi.ID,
		Amount:            pi.Amount,
		Currency:          string(pi.Currency),
		BookingID:         pi.Metadata[metadataBookingID],
		Status:            intentStatus(pi),
	}, nil
}

func intentStatus(pi *stripe.PaymentIntent) models.PaymentStatus {
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return models.PaymentCaptured
	case stripe.PaymentIntentStatusCanceled:
		return models.PaymentFailed
	case stripe.PaymentIntentStatusProcessing, stripe.PaymentIntentStatusRequiresCapture:
		return models.PaymentProcessing
	default:
		return models.PaymentCreated
	}
}

// CancelPayable expires an open Checkout Session so it can no longer be paid.
func (g *Gateway) CancelPayable(ctx context.Context, providerOrderID string) error {
	if providerOrderID == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx
	if _, err := g.api.ExpireSession(providerOrderID, params); err != nil {
		return classify("expire checkout session", err)
	}
	g.log.LogPayment("EXPIRE", providerOrderID, "checkout session expired")
	return nil
}

// VerifySignature checks the signature a redirect callback carries. Webhook callbacks are
// authenticated when parsed and have no per-callback signature.
func (g *Gateway) VerifySignature(cb models.Callback) bool {
	if cb.Source == models.CallbackWebhook {
		return true
	}
	return g.signer.Verify(cb.BookingID, cb.Signature)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return stripe.String(s)
}
