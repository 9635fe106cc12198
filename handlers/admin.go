package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Meltveit/ExcelTemplateMarket/middleware"
	"github.com/Meltveit/ExcelTemplateMarket/models"
)

const orderSummaryColumns = `o.id, o.template_id, o.customer_email, o.customer_name, o.amount,
	o.stripe_payment_id, o.download_link, o.download_count, o.created_at,
	COALESCE(t.name, 'Unknown Template') AS template_name`

type AdminHandler struct {
	db        *sql.DB
	jwtSecret []byte
	logger    *zap.Logger
}

func NewAdminHandler(db *sql.DB, jwtSecret []byte, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		db:        db,
		jwtSecret: jwtSecret,
		logger:    logger,
	}
}

// Login exchanges admin credentials for a bearer token, as an alternative to
// sending Basic credentials on every request.
func (h *AdminHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	var user models.User
	err := h.db.QueryRowContext(c.Request.Context(),
		"SELECT id, username, password_hash, is_admin FROM users WHERE username = $1",
		req.Username,
	).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.IsAdmin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid credentials"})
			return
		}
		h.logger.Error("Failed to look up admin user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil || !user.IsAdmin {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid credentials"})
		return
	}

	token, err := middleware.GenerateAdminToken(h.jwtSecret, user)
	if err != nil {
		h.logger.Error("Failed to generate admin token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}

	h.logger.Info("Admin logged in", zap.String("username", user.Username))
	c.JSON(http.StatusOK, models.LoginResponse{Token: token, User: user})
}

// CheckAuth is a probe for the admin UI; reaching it means the auth
// middleware accepted the credentials.
func (h *AdminHandler) CheckAuth(c *gin.Context) {
	user, _ := c.Get(middleware.UserKey)
	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"user":          user,
	})
}

func scanOrderSummary(row interface{ Scan(...interface{}) error }) (models.OrderSummary, error) {
	var o models.OrderSummary
	err := row.Scan(
		&o.ID, &o.TemplateID, &o.CustomerEmail, &o.CustomerName, &o.Amount,
		&o.StripePaymentID, &o.DownloadLink, &o.DownloadCount, &o.CreatedAt,
		&o.TemplateName,
	)
	return o, err
}

// GetOrders lists sales joined with template names. Templates deleted since
// the sale show up as "Unknown Template" instead of breaking the report.
func (h *AdminHandler) GetOrders(c *gin.Context) {
	ctx, span := otel.Tracer("template-store").Start(c.Request.Context(), "GetOrders")
	defer span.End()

	rows, err := h.db.QueryContext(ctx,
		"SELECT "+orderSummaryColumns+" FROM orders o LEFT JOIN templates t ON t.id = o.template_id ORDER BY o.created_at DESC")
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to fetch orders", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to fetch orders"})
		return
	}
	defer rows.Close()

	orders := []models.OrderSummary{}
	for rows.Next() {
		o, err := scanOrderSummary(rows)
		if err != nil {
			span.RecordError(err)
			h.logger.Error("Failed to scan order", zap.Error(err))
			continue
		}
		orders = append(orders, o)
	}

	span.SetAttributes(attribute.Int("orders.count", len(orders)))
	c.JSON(http.StatusOK, orders)
}

func (h *AdminHandler) GetOrder(c *gin.Context) {
	ctx, span := otel.Tracer("template-store").Start(c.Request.Context(), "GetOrder")
	defer span.End()

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid order ID"})
		return
	}
	span.SetAttributes(attribute.Int("order.id", id))

	order, err := scanOrderSummary(h.db.QueryRowContext(ctx,
		"SELECT "+orderSummaryColumns+" FROM orders o LEFT JOIN templates t ON t.id = o.template_id WHERE o.id = $1", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"message": "Order not found"})
			return
		}
		span.RecordError(err)
		h.logger.Error("Failed to fetch order", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to fetch order"})
		return
	}

	c.JSON(http.StatusOK, order)
}
