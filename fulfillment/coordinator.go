// Package fulfillment turns a confirmed payment into exactly one order with
// a usable download credential. The unique constraint on
// orders.stripe_payment_id makes fulfillment idempotent: no matter how many
// times or in what order the succeeded-payment signal arrives, at most one
// order exists per payment and the template sales counter moves once.
package fulfillment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/Meltveit/ExcelTemplateMarket/download"
	"github.com/Meltveit/ExcelTemplateMarket/models"
)

var (
	// ErrTemplateNotFound means the paid-for template does not exist.
	// Nothing is persisted; the event can be retried once the catalog is
	// fixed.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrOrderNotFound is returned by Lookup when no order exists for the
	// payment reference.
	ErrOrderNotFound = errors.New("order not found")

	// ErrFulfillmentInFlight means a concurrent fulfillment for the same
	// payment won the insert but has not committed yet. Retryable.
	ErrFulfillmentInFlight = errors.New("payment is being fulfilled concurrently")
)

const fallbackEmail = "unknown@example.com"

// PaymentInfo is the trusted subset of a verified payment-succeeded event.
// The charged amount is deliberately absent: it is read from the catalog at
// fulfillment time, never from the event payload.
type PaymentInfo struct {
	IntentID     string
	TemplateID   int
	Email        string
	CustomerName string
}

type Coordinator struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewCoordinator(db *sql.DB, logger *zap.Logger) *Coordinator {
	return &Coordinator{db: db, logger: logger}
}

// Fulfill creates the order for a succeeded payment. It returns the order
// and whether this call created it; created=false means a duplicate delivery
// and the previously issued order is returned unchanged.
func (c *Coordinator) Fulfill(ctx context.Context, info PaymentInfo) (models.Order, bool, error) {
	ctx, span := otel.Tracer("template-store").Start(ctx, "Fulfill")
	defer span.End()

	span.SetAttributes(
		attribute.String("payment.intent_id", info.IntentID),
		attribute.Int("template.id", info.TemplateID),
	)

	email := info.Email
	if email == "" {
		email = fallbackEmail
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Order{}, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Capture the current catalog price as the charged amount. Later price
	// edits never touch existing orders.
	var price float64
	err = tx.QueryRowContext(ctx,
		"SELECT price FROM templates WHERE id = $1", info.TemplateID,
	).Scan(&price)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Order{}, false, ErrTemplateNotFound
		}
		span.RecordError(err)
		return models.Order{}, false, fmt.Errorf("failed to read template: %w", err)
	}

	order := models.Order{
		TemplateID:      info.TemplateID,
		CustomerEmail:   email,
		CustomerName:    info.CustomerName,
		Amount:          price,
		StripePaymentID: info.IntentID,
	}

	// Insert-if-absent keyed by the external payment reference. The link
	// starts empty and is minted below once the order id is known.
	err = tx.QueryRowContext(ctx,
		`INSERT INTO orders (template_id, customer_email, customer_name, amount, stripe_payment_id, download_link)
		 VALUES ($1, $2, $3, $4, $5, '')
		 ON CONFLICT (stripe_payment_id) DO NOTHING
		 RETURNING id, created_at`,
		order.TemplateID, order.CustomerEmail, order.CustomerName, order.Amount, order.StripePaymentID,
	).Scan(&order.ID, &order.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		// Duplicate delivery: another fulfillment already owns this
		// payment. Return its order untouched.
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			c.logger.Warn("Rollback after duplicate fulfillment failed", zap.Error(rbErr))
		}
		existing, lookupErr := c.Lookup(ctx, info.IntentID)
		if lookupErr != nil {
			if errors.Is(lookupErr, ErrOrderNotFound) {
				return models.Order{}, false, ErrFulfillmentInFlight
			}
			return models.Order{}, false, lookupErr
		}
		span.SetAttributes(attribute.Bool("fulfillment.duplicate", true))
		c.logger.Info("Duplicate payment event ignored",
			zap.String("stripe_payment_id", info.IntentID),
			zap.Int("order_id", existing.ID),
		)
		return existing, false, nil
	}
	if err != nil {
		span.RecordError(err)
		return models.Order{}, false, fmt.Errorf("failed to create order: %w", err)
	}

	order.DownloadLink = download.Link(order.ID, order.TemplateID)
	if _, err := tx.ExecContext(ctx,
		"UPDATE orders SET download_link = $1 WHERE id = $2",
		order.DownloadLink, order.ID,
	); err != nil {
		span.RecordError(err)
		return models.Order{}, false, fmt.Errorf("failed to store download link: %w", err)
	}

	// One unit sold. Separate from the per-order download counter.
	if _, err := tx.ExecContext(ctx,
		"UPDATE templates SET download_count = download_count + 1 WHERE id = $1",
		order.TemplateID,
	); err != nil {
		span.RecordError(err)
		return models.Order{}, false, fmt.Errorf("failed to increment sales counter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		return models.Order{}, false, fmt.Errorf("failed to commit fulfillment: %w", err)
	}

	span.SetAttributes(attribute.Int("order.id", order.ID))
	c.logger.Info("Order fulfilled",
		zap.Int("order_id", order.ID),
		zap.Int("template_id", order.TemplateID),
		zap.String("stripe_payment_id", order.StripePaymentID),
		zap.Float64("amount", order.Amount),
	)
	return order, true, nil
}

// Lookup returns the order for an external payment reference. It only reads;
// the webhook path is the sole order-creation path.
func (c *Coordinator) Lookup(ctx context.Context, intentID string) (models.Order, error) {
	var o models.Order
	err := c.db.QueryRowContext(ctx,
		`SELECT id, template_id, customer_email, customer_name, amount, stripe_payment_id, download_link, download_count, created_at
		 FROM orders WHERE stripe_payment_id = $1`,
		intentID,
	).Scan(&o.ID, &o.TemplateID, &o.CustomerEmail, &o.CustomerName, &o.Amount,
		&o.StripePaymentID, &o.DownloadLink, &o.DownloadCount, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Order{}, ErrOrderNotFound
		}
		return models.Order{}, fmt.Errorf("failed to look up order: %w", err)
	}
	return o, nil
}
