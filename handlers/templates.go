package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/Meltveit/ExcelTemplateMarket/cache"
	"github.com/Meltveit/ExcelTemplateMarket/models"
)

const templateColumns = `id, name, description, detailed_description, features, price, category,
	main_image, thumbnails, compatibility, stripe_product_id, stripe_price_id,
	file_path, download_count, created_at, updated_at`

const templateCacheTTL = 5 * time.Minute

type TemplateHandler struct {
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger
}

func NewTemplateHandler(db *sql.DB, redisClient *redis.Client, logger *zap.Logger) *TemplateHandler {
	return &TemplateHandler{
		db:          db,
		redisClient: redisClient,
		logger:      logger,
	}
}

func scanTemplate(row interface{ Scan(...interface{}) error }) (models.Template, error) {
	var t models.Template
	err := row.Scan(
		&t.ID, &t.Name, &t.Description, &t.DetailedDescription,
		pq.Array(&t.Features), &t.Price, &t.Category, &t.MainImage,
		pq.Array(&t.Thumbnails), pq.Array(&t.Compatibility),
		&t.StripeProductID, &t.StripePriceID, &t.FilePath,
		&t.DownloadCount, &t.CreatedAt, &t.UpdatedAt,
	)
	return t, err
}

func (h *TemplateHandler) GetTemplates(c *gin.Context) {
	ctx, span := otel.Tracer("template-store").Start(c.Request.Context(), "GetTemplates")
	defer span.End()

	rows, err := h.db.QueryContext(ctx, "SELECT "+templateColumns+" FROM templates ORDER BY id")
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to fetch templates", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to fetch templates"})
		return
	}
	defer rows.Close()

	templates := []models.Template{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			span.RecordError(err)
			h.logger.Error("Failed to scan template", zap.Error(err))
			continue
		}
		templates = append(templates, t)
	}

	span.SetAttributes(attribute.Int("templates.count", len(templates)))
	c.JSON(http.StatusOK, templates)
}

func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	ctx, span := otel.Tracer("template-store").Start(c.Request.Context(), "GetTemplate")
	defer span.End()

	id := c.Param("id")
	if _, err := strconv.Atoi(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid template ID"})
		return
	}
	span.SetAttributes(attribute.String("template.id", id))

	// Try the cache first; any cache failure falls through to the database.
	if h.redisClient != nil {
		if cachedData, err := cache.GetTemplate(ctx, h.redisClient, id); err == nil {
			var template models.Template
			if err := json.Unmarshal(cachedData, &template); err == nil {
				span.SetAttributes(attribute.Bool("cache.hit", true))
				c.JSON(http.StatusOK, template)
				return
			}
		}
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	template, err := scanTemplate(h.db.QueryRowContext(ctx,
		"SELECT "+templateColumns+" FROM templates WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"message": "Template not found"})
			return
		}
		span.RecordError(err)
		h.logger.Error("Failed to fetch template", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to fetch template"})
		return
	}

	if h.redisClient != nil {
		if err := cache.SetTemplate(ctx, h.redisClient, id, template, templateCacheTTL); err != nil {
			h.logger.Warn("Failed to cache template", zap.String("template_id", id), zap.Error(err))
		}
	}

	c.JSON(http.StatusOK, template)
}

func (h *TemplateHandler) GetTemplatesByCategory(c *gin.Context) {
	ctx, span := otel.Tracer("template-store").Start(c.Request.Context(), "GetTemplatesByCategory")
	defer span.End()

	category := c.Param("category")
	if !models.ValidCategory(category) {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Unknown category"})
		return
	}
	span.SetAttributes(attribute.String("template.category", category))

	rows, err := h.db.QueryContext(ctx,
		"SELECT "+templateColumns+" FROM templates WHERE category = $1 ORDER BY id", category)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to fetch templates by category", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to fetch templates by category"})
		return
	}
	defer rows.Close()

	templates := []models.Template{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			span.RecordError(err)
			h.logger.Error("Failed to scan template", zap.Error(err))
			continue
		}
		templates = append(templates, t)
	}

	c.JSON(http.StatusOK, templates)
}

func (h *TemplateHandler) CreateTemplate(c *gin.Context) {
	ctx, span := otel.Tracer("template-store").Start(c.Request.Context(), "CreateTemplate")
	defer span.End()

	var req models.CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	if !models.ValidCategory(req.Category) {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Unknown category"})
		return
	}

	template, err := scanTemplate(h.db.QueryRowContext(ctx,
		`INSERT INTO templates
			(name, description, detailed_description, features, price, category,
			 main_image, thumbnails, compatibility, stripe_product_id, stripe_price_id, file_path)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING `+templateColumns,
		req.Name, req.Description, req.DetailedDescription, pq.Array(req.Features),
		req.Price, req.Category, req.MainImage, pq.Array(req.Thumbnails),
		pq.Array(req.Compatibility), req.StripeProductID, req.StripePriceID, req.FilePath,
	))
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to create template", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to create template"})
		return
	}

	span.SetAttributes(attribute.Int("template.id", template.ID))
	h.logger.Info("Template created", zap.Int("template_id", template.ID))
	c.JSON(http.StatusCreated, template)
}

func (h *TemplateHandler) UpdateTemplate(c *gin.Context) {
	ctx, span := otel.Tracer("template-store").Start(c.Request.Context(), "UpdateTemplate")
	defer span.End()

	id := c.Param("id")
	if _, err := strconv.Atoi(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid template ID"})
		return
	}
	span.SetAttributes(attribute.String("template.id", id))

	var req models.UpdateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	if req.Category != "" && !models.ValidCategory(req.Category) {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Unknown category"})
		return
	}

	// Build update query dynamically; only provided fields are merged. The
	// id, download counter and creation timestamp are never updatable.
	query := "UPDATE templates SET updated_at = CURRENT_TIMESTAMP"
	args := []interface{}{}
	argPos := 1

	addArg := func(column string, value interface{}) {
		query += ", " + column + " = $" + strconv.Itoa(argPos)
		args = append(args, value)
		argPos++
	}

	if req.Name != "" {
		addArg("name", req.Name)
	}
	if req.Description != "" {
		addArg("description", req.Description)
	}
	if req.DetailedDescription != "" {
		addArg("detailed_description", req.DetailedDescription)
	}
	if req.Features != nil {
		addArg("features", pq.Array(req.Features))
	}
	if req.Price > 0 {
		addArg("price", req.Price)
	}
	if req.Category != "" {
		addArg("category", req.Category)
	}
	if req.MainImage != "" {
		addArg("main_image", req.MainImage)
	}
	if req.Thumbnails != nil {
		addArg("thumbnails", pq.Array(req.Thumbnails))
	}
	if req.Compatibility != nil {
		addArg("compatibility", pq.Array(req.Compatibility))
	}
	if req.StripeProductID != "" {
		addArg("stripe_product_id", req.StripeProductID)
	}
	if req.StripePriceID != "" {
		addArg("stripe_price_id", req.StripePriceID)
	}
	if req.FilePath != "" {
		addArg("file_path", req.FilePath)
	}

	query += " WHERE id = $" + strconv.Itoa(argPos) + " RETURNING " + templateColumns
	args = append(args, id)

	template, err := scanTemplate(h.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"message": "Template not found"})
			return
		}
		span.RecordError(err)
		h.logger.Error("Failed to update template", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to update template"})
		return
	}

	if h.redisClient != nil {
		if err := cache.DeleteTemplate(ctx, h.redisClient, id); err != nil {
			h.logger.Warn("Failed to invalidate template cache", zap.String("template_id", id), zap.Error(err))
		}
	}

	h.logger.Info("Template updated", zap.String("template_id", id))
	c.JSON(http.StatusOK, template)
}

func (h *TemplateHandler) DeleteTemplate(c *gin.Context) {
	ctx, span := otel.Tracer("template-store").Start(c.Request.Context(), "DeleteTemplate")
	defer span.End()

	id := c.Param("id")
	if _, err := strconv.Atoi(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid template ID"})
		return
	}
	span.SetAttributes(attribute.String("template.id", id))

	// Orders referencing this template are kept; the sales report joins
	// them as "Unknown Template" once it is gone.
	result, err := h.db.ExecContext(ctx, "DELETE FROM templates WHERE id = $1", id)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to delete template", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to delete template"})
		return
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"message": "Template not found"})
		return
	}

	if h.redisClient != nil {
		if err := cache.DeleteTemplate(ctx, h.redisClient, id); err != nil {
			h.logger.Warn("Failed to invalidate template cache", zap.String("template_id", id), zap.Error(err))
		}
	}

	h.logger.Info("Template deleted", zap.String("template_id", id))
	c.JSON(http.StatusOK, gin.H{"success": true})
}
