// Package payment wraps the external card-payment processor behind a small
// interface so handlers and the fulfillment coordinator never talk to the
// Stripe SDK directly.
package payment

import (
	"context"
	"errors"
)

var (
	// ErrNotConfigured means no processor credentials were supplied. The
	// service keeps running; only payment routes degrade.
	ErrNotConfigured = errors.New("payment gateway is not configured")

	// ErrInvalidSignature means a webhook payload failed signature
	// verification and must not be trusted.
	ErrInvalidSignature = errors.New("webhook signature verification failed")
)

// EventPaymentSucceeded is the only webhook event type fulfillment reacts to.
const EventPaymentSucceeded = "payment_intent.succeeded"

// Intent is a freshly created payment intent.
type Intent struct {
	ID           string
	ClientSecret string
}

// Event is a verified webhook event. Payment fields are populated only for
// payment-intent events.
type Event struct {
	Type            string
	PaymentIntentID string
	ReceiptEmail    string
	AmountCents     int64
	Metadata        map[string]string
}

// Gateway is the storefront's view of the payment processor.
type Gateway interface {
	// CreateIntent creates a payment intent for the given amount in
	// currency minor units. The amount is always derived server-side from
	// the catalog, never from client input.
	CreateIntent(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (Intent, error)

	// ParseWebhook verifies the signature on a raw webhook payload and
	// returns the decoded event, or ErrInvalidSignature.
	ParseWebhook(payload []byte, sigHeader string) (Event, error)
}
