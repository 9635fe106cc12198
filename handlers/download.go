package handlers

import (
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/Meltveit/ExcelTemplateMarket/middleware"
)

type DownloadHandler struct {
	db        *sql.DB
	publicDir string
	logger    *zap.Logger
}

func NewDownloadHandler(db *sql.DB, publicDir string, logger *zap.Logger) *DownloadHandler {
	return &DownloadHandler{
		db:        db,
		publicDir: publicDir,
		logger:    logger,
	}
}

// Download validates a presented credential against the order's stored link
// and streams the template file. The token comparison is the security-
// critical step: ids alone never grant access.
func (h *DownloadHandler) Download(c *gin.Context) {
	ctx, span := otel.Tracer("template-store").Start(c.Request.Context(), "Download")
	defer span.End()

	orderID, err := strconv.Atoi(c.Param("orderId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid order ID"})
		return
	}
	templateID, err := strconv.Atoi(c.Param("templateId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid template ID"})
		return
	}
	token := c.Param("token")

	span.SetAttributes(
		attribute.Int("order.id", orderID),
		attribute.Int("template.id", templateID),
	)

	var storedLink string
	err = h.db.QueryRowContext(ctx,
		"SELECT download_link FROM orders WHERE id = $1", orderID,
	).Scan(&storedLink)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"message": "Order not found"})
			return
		}
		span.RecordError(err)
		h.logger.Error("Failed to fetch order for download", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Error downloading file"})
		return
	}

	// The presented credential must match the stored one exactly. A
	// mismatch gets the same response as a missing order.
	presented := fmt.Sprintf("/api/download/%d/%d/%s", orderID, templateID, token)
	if subtle.ConstantTimeCompare([]byte(storedLink), []byte(presented)) != 1 {
		h.logger.Warn("Download token mismatch",
			zap.Int("order_id", orderID),
			zap.String("ip", c.ClientIP()),
		)
		c.JSON(http.StatusNotFound, gin.H{"message": "Order not found"})
		return
	}

	var name, filePath string
	err = h.db.QueryRowContext(ctx,
		"SELECT name, file_path FROM templates WHERE id = $1", templateID,
	).Scan(&name, &filePath)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"message": "Template not found"})
			return
		}
		span.RecordError(err)
		h.logger.Error("Failed to fetch template for download", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Error downloading file"})
		return
	}

	// Per-download usage counter on the order; distinct from the
	// template's sales counter.
	if _, err := h.db.ExecContext(ctx,
		"UPDATE orders SET download_count = download_count + 1 WHERE id = $1", orderID,
	); err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to increment download count", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Error downloading file"})
		return
	}

	fullPath := filepath.Join(h.publicDir, filepath.FromSlash(strings.TrimPrefix(filePath, "/")))
	if !strings.HasPrefix(filepath.Clean(fullPath), filepath.Clean(h.publicDir)) {
		h.logger.Error("Template file path escapes public directory", zap.String("file_path", filePath))
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "Template file unavailable"})
		return
	}

	if _, err := os.Stat(fullPath); err != nil {
		h.logger.Error("Template file missing from storage",
			zap.String("file_path", fullPath),
			zap.Int("template_id", templateID),
		)
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "Template file unavailable"})
		return
	}

	middleware.RecordTemplateDownload()
	h.logger.Info("Serving template download",
		zap.Int("order_id", orderID),
		zap.Int("template_id", templateID),
	)
	c.FileAttachment(fullPath, name+".xlsx")
}
