package models

type PaymentStatus string

// PaymentCreated means the checkout is still open and nothing has been paid.
// PaymentProcessing means the buyer finished checkout and the money is on its way.
const (
	PaymentCreated    PaymentStatus = "created"
	PaymentProcessing PaymentStatus = "processing"
	PaymentCaptured   PaymentStatus = "captured"
	PaymentFailed     PaymentStatus = "failed"
)

// PaymentOrder is the provider's view of a payment, limited to what reconciliation needs.
type PaymentOrder struct {
	ProviderOrderID   string        `json:"provider_order_id,omitempty"`
	ProviderPaymentID string        `json:"provider_payment_id"`
	Amount            int64         `json:"amount"`
	Currency          string        `json:"currency"`
	Status            PaymentStatus `json:"status"`
	BookingID         string        `json:"booking_id,omitempty"`
}

// Payable is what the provider hands back when a checkout is opened.
type Payable struct {
	ProviderOrderID string `json:"provider_order_id"`
	RedirectURL     string `json:"redirect_url"`
}

type CallbackSource string

const (
	CallbackRedirect CallbackSource = "redirect"
	CallbackWebhook  CallbackSource = "webhook"
)

// Callback is an inbound reconciliation signal, normalized from redirect query parameters
// or a provider webhook. Nothing in it is trusted until re-fetched from the provider.
type Callback struct {
	Source            CallbackSource
	ProviderPaymentID string
	ProviderOrderID   string
	BookingID         string
	Signature         string
}
