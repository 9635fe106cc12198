package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/Meltveit/ExcelTemplateMarket/fulfillment"
	"github.com/Meltveit/ExcelTemplateMarket/models"
	"github.com/Meltveit/ExcelTemplateMarket/payment"
)

// fakeGateway implements payment.Gateway without talking to Stripe.
type fakeGateway struct {
	createFunc func(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (payment.Intent, error)
	parseFunc  func(payload []byte, sigHeader string) (payment.Event, error)
}

func (f *fakeGateway) CreateIntent(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (payment.Intent, error) {
	if f.createFunc != nil {
		return f.createFunc(ctx, amountCents, currency, metadata)
	}
	return payment.Intent{ID: "pi_test", ClientSecret: "secret_test"}, nil
}

func (f *fakeGateway) ParseWebhook(payload []byte, sigHeader string) (payment.Event, error) {
	if f.parseFunc != nil {
		return f.parseFunc(payload, sigHeader)
	}
	return payment.Event{}, payment.ErrInvalidSignature
}

func setupCheckoutTest(t *testing.T, gateway payment.Gateway) (*CheckoutHandler, sqlmock.Sqlmock, *gin.Engine) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}

	logger := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
	coordinator := fulfillment.NewCoordinator(db, logger)
	handler := NewCheckoutHandler(db, gateway, coordinator, nil, logger)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/api/create-payment-intent", handler.CreatePaymentIntent)
	router.POST("/api/webhook", handler.Webhook)
	router.POST("/api/verify-payment", handler.VerifyPayment)

	return handler, mock, router
}

func postJSON(router *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest("POST", path, bytes.NewBuffer(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreatePaymentIntent_NotConfigured(t *testing.T) {
	handler, mock, router := setupCheckoutTest(t, nil)
	defer handler.db.Close()

	w := postJSON(router, "/api/create-payment-intent", models.CreatePaymentIntentRequest{TemplateID: 1})

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unexpected database calls were made: %v", err)
	}
}

func TestCreatePaymentIntent_Success(t *testing.T) {
	var gotAmount int64
	var gotMeta map[string]string
	gateway := &fakeGateway{
		createFunc: func(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (payment.Intent, error) {
			gotAmount = amountCents
			gotMeta = metadata
			return payment.Intent{ID: "pi_1", ClientSecret: "cs_1"}, nil
		},
	}
	handler, mock, router := setupCheckoutTest(t, gateway)
	defer handler.db.Close()

	rows := sqlmock.NewRows(templateColumnNames).
		AddRow(templateRow(7, "Financial Dashboard", 29.99, "financial")...)
	mock.ExpectQuery("SELECT (.+) FROM templates WHERE id = \\$1").
		WithArgs(7).
		WillReturnRows(rows)

	w := postJSON(router, "/api/create-payment-intent", models.CreatePaymentIntentRequest{TemplateID: 7})

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	// Amount is derived from the catalog price, in minor units.
	if gotAmount != 2999 {
		t.Errorf("Expected amount 2999 cents, got %d", gotAmount)
	}
	if gotMeta["template_id"] != "7" {
		t.Errorf("Expected template_id metadata %q, got %q", "7", gotMeta["template_id"])
	}

	var resp struct {
		ClientSecret string          `json:"clientSecret"`
		Template     models.Template `json:"template"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.ClientSecret != "cs_1" {
		t.Errorf("Expected clientSecret %q, got %q", "cs_1", resp.ClientSecret)
	}
	if resp.Template.ID != 7 {
		t.Errorf("Expected template id 7, got %d", resp.Template.ID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestCreatePaymentIntent_TemplateNotFound(t *testing.T) {
	handler, mock, router := setupCheckoutTest(t, &fakeGateway{})
	defer handler.db.Close()

	mock.ExpectQuery("SELECT (.+) FROM templates WHERE id = \\$1").
		WithArgs(99).
		WillReturnError(sql.ErrNoRows)

	w := postJSON(router, "/api/create-payment-intent", models.CreatePaymentIntentRequest{TemplateID: 99})

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func succeededEvent() payment.Event {
	return payment.Event{
		Type:            payment.EventPaymentSucceeded,
		PaymentIntentID: "pi_12345",
		ReceiptEmail:    "a@b.com",
		AmountCents:     2999,
		Metadata:        map[string]string{"template_id": "7"},
	}
}

func TestWebhook_InvalidSignature_NoSideEffects(t *testing.T) {
	gateway := &fakeGateway{
		parseFunc: func(payload []byte, sigHeader string) (payment.Event, error) {
			return payment.Event{}, payment.ErrInvalidSignature
		},
	}
	handler, mock, router := setupCheckoutTest(t, gateway)
	defer handler.db.Close()

	req := httptest.NewRequest("POST", "/api/webhook", strings.NewReader(`{}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=bogus")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	// No orders created, no counters touched.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unexpected database calls were made: %v", err)
	}
}

func TestWebhook_PaymentSucceeded_CreatesOrder(t *testing.T) {
	gateway := &fakeGateway{
		parseFunc: func(payload []byte, sigHeader string) (payment.Event, error) {
			return succeededEvent(), nil
		},
	}
	handler, mock, router := setupCheckoutTest(t, gateway)
	defer handler.db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT price FROM templates WHERE id = \\$1").
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"price"}).AddRow(29.99))
	mock.ExpectQuery("INSERT INTO orders").
		WithArgs(7, "a@b.com", "", 29.99, "pi_12345").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(12, time.Now()))
	mock.ExpectExec("UPDATE orders SET download_link").
		WithArgs(sqlmock.AnyArg(), 12).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE templates SET download_count").
		WithArgs(7).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	req := httptest.NewRequest("POST", "/api/webhook", strings.NewReader(`{}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=valid")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"received":true`) {
		t.Errorf("Expected received acknowledgement, got %s", w.Body.String())
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestWebhook_DuplicateDelivery_NoSecondOrder(t *testing.T) {
	gateway := &fakeGateway{
		parseFunc: func(payload []byte, sigHeader string) (payment.Event, error) {
			return succeededEvent(), nil
		},
	}
	handler, mock, router := setupCheckoutTest(t, gateway)
	defer handler.db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT price FROM templates WHERE id = \\$1").
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"price"}).AddRow(29.99))
	mock.ExpectQuery("INSERT INTO orders").
		WithArgs(7, "a@b.com", "", 29.99, "pi_12345").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()
	mock.ExpectQuery("SELECT id, template_id, customer_email").
		WithArgs("pi_12345").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "template_id", "customer_email", "customer_name", "amount",
			"stripe_payment_id", "download_link", "download_count", "created_at",
		}).AddRow(12, 7, "a@b.com", "", 29.99, "pi_12345", "/api/download/12/7/abcd", 0, time.Now()))

	req := httptest.NewRequest("POST", "/api/webhook", strings.NewReader(`{}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=valid")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	// No link rewrite and no second sales-counter increment.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestWebhook_IgnoresOtherEvents(t *testing.T) {
	gateway := &fakeGateway{
		parseFunc: func(payload []byte, sigHeader string) (payment.Event, error) {
			return payment.Event{Type: "payment_intent.created"}, nil
		},
	}
	handler, mock, router := setupCheckoutTest(t, gateway)
	defer handler.db.Close()

	req := httptest.NewRequest("POST", "/api/webhook", strings.NewReader(`{}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=valid")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unexpected database calls were made: %v", err)
	}
}

func TestVerifyPayment_ReturnsStoredLink(t *testing.T) {
	handler, mock, router := setupCheckoutTest(t, &fakeGateway{})
	defer handler.db.Close()

	orderRows := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{
			"id", "template_id", "customer_email", "customer_name", "amount",
			"stripe_payment_id", "download_link", "download_count", "created_at",
		}).AddRow(12, 7, "a@b.com", "", 29.99, "pi_12345", "/api/download/12/7/abcd", 0, time.Now())
	}

	// Two consecutive verify calls return the identical link.
	mock.ExpectQuery("SELECT id, template_id, customer_email").
		WithArgs("pi_12345").
		WillReturnRows(orderRows())
	mock.ExpectQuery("SELECT id, template_id, customer_email").
		WithArgs("pi_12345").
		WillReturnRows(orderRows())

	for i := 0; i < 2; i++ {
		w := postJSON(router, "/api/verify-payment", models.VerifyPaymentRequest{PaymentIntentID: "pi_12345"})
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status %d on call %d, got %d", http.StatusOK, i, w.Code)
		}
		var resp struct {
			Success      bool   `json:"success"`
			DownloadLink string `json:"downloadLink"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if !resp.Success {
			t.Errorf("Expected success=true on call %d", i)
		}
		if resp.DownloadLink != "/api/download/12/7/abcd" {
			t.Errorf("Expected stored link on call %d, got %q", i, resp.DownloadLink)
		}
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestVerifyPayment_OrderNotFound(t *testing.T) {
	handler, mock, router := setupCheckoutTest(t, &fakeGateway{})
	defer handler.db.Close()

	mock.ExpectQuery("SELECT id, template_id, customer_email").
		WithArgs("pi_missing").
		WillReturnError(sql.ErrNoRows)

	w := postJSON(router, "/api/verify-payment", models.VerifyPaymentRequest{PaymentIntentID: "pi_missing"})

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}
	if !strings.Contains(w.Body.String(), `"success":false`) {
		t.Errorf("Expected failure shape, got %s", w.Body.String())
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}
