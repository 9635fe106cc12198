package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

const createIntentTimeout = 10 * time.Second

// StripeGateway implements Gateway on the official Stripe SDK.
type StripeGateway struct {
	api           *client.API
	webhookSecret string
	logger        *zap.Logger
}

// NewStripeGateway returns ErrNotConfigured when no secret key is set so the
// caller can degrade payment routes instead of crashing at startup.
func NewStripeGateway(secretKey, webhookSecret string, logger *zap.Logger) (*StripeGateway, error) {
	if secretKey == "" {
		return nil, ErrNotConfigured
	}

	api := &client.API{}
	api.Init(secretKey, nil)

	return &StripeGateway{
		api:           api,
		webhookSecret: webhookSecret,
		logger:        logger,
	}, nil
}

func (g *StripeGateway) CreateIntent(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, createIntentTimeout)
	defer cancel()

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountCents),
		Currency: stripe.String(currency),
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return Intent{}, fmt.Errorf("failed to create payment intent: %w", err)
	}

	return Intent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func (g *StripeGateway) ParseWebhook(payload []byte, sigHeader string) (Event, error) {
	stripeEvent, err := webhook.ConstructEvent(payload, sigHeader, g.webhookSecret)
	if err != nil {
		g.logger.Warn("Webhook signature verification failed", zap.Error(err))
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	event := Event{Type: string(stripeEvent.Type)}

	if event.Type == EventPaymentSucceeded {
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(stripeEvent.Data.Raw, &pi); err != nil {
			return Event{}, fmt.Errorf("failed to decode payment intent payload: %w", err)
		}
		event.PaymentIntentID = pi.ID
		event.ReceiptEmail = pi.ReceiptEmail
		event.AmountCents = pi.Amount
		event.Metadata = pi.Metadata
	}

	return event, nil
}
