package models

import "time"

// Order records one completed purchase of one template. Orders are created
// exclusively by the fulfillment coordinator and never deleted; the only
// mutation after creation is the download counter.
type Order struct {
	ID              int       `json:"id"`
	TemplateID      int       `json:"templateId"`
	CustomerEmail   string    `json:"customerEmail"`
	CustomerName    string    `json:"customerName,omitempty"`
	Amount          float64   `json:"amount"`
	StripePaymentID string    `json:"stripePaymentId"`
	DownloadLink    string    `json:"downloadLink"`
	DownloadCount   int       `json:"downloadCount"`
	CreatedAt       time.Time `json:"createdAt"`
}

// OrderSummary is an order joined with its template name for the admin sales
// report. TemplateName falls back to "Unknown Template" when the template has
// been deleted since the sale.
type OrderSummary struct {
	Order
	TemplateName string `json:"templateName"`
}

type CreatePaymentIntentRequest struct {
	TemplateID int `json:"templateId" binding:"required"`
}

type VerifyPaymentRequest struct {
	PaymentIntentID string `json:"paymentIntentId" binding:"required"`
}

// OrderEvent is published to Kafka when a payment is fulfilled.
type OrderEvent struct {
	OrderID         int     `json:"order_id"`
	TemplateID      int     `json:"template_id"`
	CustomerEmail   string  `json:"customer_email"`
	Amount          float64 `json:"amount"`
	StripePaymentID string  `json:"stripe_payment_id"`
	EventType       string  `json:"event_type"`
}
