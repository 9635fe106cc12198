package handlers

import (
	"database/sql"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/Meltveit/ExcelTemplateMarket/circuitbreaker"
	"github.com/Meltveit/ExcelTemplateMarket/events"
	"github.com/Meltveit/ExcelTemplateMarket/fulfillment"
	"github.com/Meltveit/ExcelTemplateMarket/middleware"
	"github.com/Meltveit/ExcelTemplateMarket/models"
	"github.com/Meltveit/ExcelTemplateMarket/payment"
)

type CheckoutHandler struct {
	db          *sql.DB
	gateway     payment.Gateway
	coordinator *fulfillment.Coordinator
	publisher   *events.Publisher
	breaker     *circuitbreaker.CircuitBreaker
	logger      *zap.Logger
}

// NewCheckoutHandler wires the payment flow. A nil gateway leaves the
// payment routes in a degraded "not configured" mode.
func NewCheckoutHandler(
	db *sql.DB,
	gateway payment.Gateway,
	coordinator *fulfillment.Coordinator,
	publisher *events.Publisher,
	logger *zap.Logger,
) *CheckoutHandler {
	return &CheckoutHandler{
		db:          db,
		gateway:     gateway,
		coordinator: coordinator,
		publisher:   publisher,
		breaker:     circuitbreaker.NewCircuitBreaker(5, 30*time.Second),
		logger:      logger,
	}
}

func (h *CheckoutHandler) CreatePaymentIntent(c *gin.Context) {
	ctx, span := otel.Tracer("template-store").Start(c.Request.Context(), "CreatePaymentIntent")
	defer span.End()

	if h.gateway == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "Payment processing is not configured"})
		return
	}

	var req models.CreatePaymentIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Template ID is required"})
		return
	}
	span.SetAttributes(attribute.Int("template.id", req.TemplateID))

	template, err := scanTemplate(h.db.QueryRowContext(ctx,
		"SELECT "+templateColumns+" FROM templates WHERE id = $1", req.TemplateID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"message": "Template not found"})
			return
		}
		span.RecordError(err)
		h.logger.Error("Failed to fetch template for checkout", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to fetch template"})
		return
	}

	// The charge amount comes from the catalog, never from the client.
	amountCents := int64(math.Round(template.Price * 100))

	var intent payment.Intent
	err = h.breaker.Execute(ctx, func() error {
		var createErr error
		intent, createErr = h.gateway.CreateIntent(ctx, amountCents, "usd", map[string]string{
			"template_id":   strconv.Itoa(template.ID),
			"template_name": template.Name,
		})
		return createErr
	})
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
			span.SetAttributes(attribute.String("circuit.state", "open"))
			c.JSON(http.StatusServiceUnavailable, gin.H{"message": "Payment processor temporarily unavailable"})
			return
		}
		span.RecordError(err)
		h.logger.Error("Failed to create payment intent",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.Int("template_id", template.ID),
			zap.Error(err),
		)
		c.JSON(http.StatusBadGateway, gin.H{"message": "Error creating payment intent"})
		return
	}

	span.SetAttributes(attribute.String("payment.intent_id", intent.ID))
	c.JSON(http.StatusOK, gin.H{
		"clientSecret": intent.ClientSecret,
		"template":     template,
	})
}

// Webhook handles processor-signed events. The signature is verified before
// any trust is extended to the payload; a forged event must never mint an
// order or a download credential.
func (h *CheckoutHandler) Webhook(c *gin.Context) {
	ctx, span := otel.Tracer("template-store").Start(c.Request.Context(), "Webhook")
	defer span.End()

	if h.gateway == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "Payment processing is not configured"})
		return
	}

	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Failed to read request body"})
		return
	}

	event, err := h.gateway.ParseWebhook(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		span.RecordError(err)
		h.logger.Warn("Webhook rejected",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.String("ip", c.ClientIP()),
			zap.Error(err),
		)
		c.JSON(http.StatusBadRequest, gin.H{"message": "Webhook signature verification failed"})
		return
	}

	span.SetAttributes(attribute.String("event.type", event.Type))

	if event.Type != payment.EventPaymentSucceeded {
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	templateID, err := strconv.Atoi(event.Metadata["template_id"])
	if err != nil {
		h.logger.Error("Payment event missing template_id metadata",
			zap.String("payment_intent_id", event.PaymentIntentID))
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid template metadata"})
		return
	}

	order, created, err := h.coordinator.Fulfill(ctx, fulfillment.PaymentInfo{
		IntentID:   event.PaymentIntentID,
		TemplateID: templateID,
		Email:      event.ReceiptEmail,
	})
	if err != nil {
		middleware.RecordOrderFulfilled("failed")
		switch {
		case errors.Is(err, fulfillment.ErrTemplateNotFound):
			c.JSON(http.StatusNotFound, gin.H{"message": "Template not found"})
		case errors.Is(err, fulfillment.ErrFulfillmentInFlight):
			// The processor retries on non-2xx; by then the winner
			// will have committed.
			c.JSON(http.StatusServiceUnavailable, gin.H{"message": "Fulfillment in progress, retry"})
		default:
			span.RecordError(err)
			h.logger.Error("Fulfillment failed",
				zap.String("payment_intent_id", event.PaymentIntentID),
				zap.Error(err),
			)
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to process payment event"})
		}
		return
	}

	if created {
		middleware.RecordOrderFulfilled("created")
		if err := h.publisher.PublishOrderFulfilled(ctx, order); err != nil {
			h.logger.Error("Failed to publish order event",
				zap.Int("order_id", order.ID), zap.Error(err))
		}
	} else {
		middleware.RecordOrderFulfilled("duplicate")
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

// VerifyPayment is the client-initiated pull side of fulfillment. It only
// reads: if the webhook has not created the order yet, the client is told to
// retry; this endpoint never creates orders.
func (h *CheckoutHandler) VerifyPayment(c *gin.Context) {
	ctx, span := otel.Tracer("template-store").Start(c.Request.Context(), "VerifyPayment")
	defer span.End()

	var req models.VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Payment Intent ID is required"})
		return
	}
	span.SetAttributes(attribute.String("payment.intent_id", req.PaymentIntentID))

	order, err := h.coordinator.Lookup(ctx, req.PaymentIntentID)
	if err != nil {
		if errors.Is(err, fulfillment.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Order not found"})
			return
		}
		span.RecordError(err)
		h.logger.Error("Failed to verify payment", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Error verifying payment"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"downloadLink": order.DownloadLink,
	})
}
