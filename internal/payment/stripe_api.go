package payment

import (
	"net/http"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// stripeAPI is the slice of the Stripe SDK the gateway calls. Tests replace it.
type stripeAPI interface {
	NewSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	GetSession(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	ExpireSession(id string, params *stripe.CheckoutSessionExpireParams) (*stripe.CheckoutSession, error)
	GetPaymentIntent(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type sdkClient struct {
	api *client.API
}

func newSDKClient(secretKey string, httpClient *http.Client) *sdkClient {
	return &sdkClient{api: client.New(secretKey, stripe.NewBackends(httpClient))}
}

func (c *sdkClient) NewSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return c.api.CheckoutSessions.New(params)
}

func (c *sdkClient) GetSession(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return c.api.CheckoutSessions.Get(id, params)
}

func (c *sdkClient) ExpireSession(id string, params *stripe.CheckoutSessionExpireParams) (*stripe.CheckoutSession, error) {
	return c.api.CheckoutSessions.Expire(id, params)
}

func (c *sdkClient) GetPaymentIntent(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return c.api.PaymentIntents.Get(id, params)
}
