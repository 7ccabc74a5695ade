package payment

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"ms-booking/internal/models"

	"github.com/stripe/stripe-go/v82"
)

// ErrWebhookIgnored is returned for well-formed webhook events that carry nothing to reconcile.
var ErrWebhookIgnored = errors.New("webhook event ignored")

// classify maps an SDK error onto the gateway error classes. The original error stays in
// the message for the logs.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %s: %v", models.ErrGatewayTimeout, op, err)
	}

	var se *stripe.Error
	if errors.As(err, &se) {
		switch {
		case se.HTTPStatusCode == http.StatusUnauthorized || se.HTTPStatusCode == http.StatusForbidden:
			return fmt.Errorf("%w: %s: %s", models.ErrGatewayAuth, op, se.Msg)
		case se.HTTPStatusCode == http.StatusNotFound || se.Code == stripe.ErrorCodeResourceMissing:
			return fmt.Errorf("%w: %s: %s", models.ErrPaymentNotFound, op, se.Msg)
		case se.HTTPStatusCode == http.StatusTooManyRequests || se.HTTPStatusCode >= http.StatusInternalServerError:
			return fmt.Errorf("%w: %s: %s", models.ErrGatewayUnavailable, op, se.Msg)
		case se.HTTPStatusCode >= http.StatusBadRequest:
			return fmt.Errorf("%w: %s: %s (%s)", models.ErrGatewayRejected, op, se.Msg, se.Type)
		}
	}
	return fmt.Errorf("%w: %s: %v", models.ErrGatewayUnavailable, op, err)
}

// WebhookError carries the HTTP outcome of a rejected webhook delivery.
type WebhookError struct {
	StatusCode  int
	PublicError string
	OriginalErr error
}

func (e *WebhookError) Error() string {
	return fmt.Sprintf("%s: %v", e.PublicError, e.OriginalErr)
}

func (e *WebhookError) Unwrap() error {
	return e.OriginalErr
}
