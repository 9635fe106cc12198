package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/Meltveit/ExcelTemplateMarket/cache"
	"github.com/Meltveit/ExcelTemplateMarket/config"
	"github.com/Meltveit/ExcelTemplateMarket/database"
	"github.com/Meltveit/ExcelTemplateMarket/events"
	"github.com/Meltveit/ExcelTemplateMarket/fulfillment"
	"github.com/Meltveit/ExcelTemplateMarket/handlers"
	"github.com/Meltveit/ExcelTemplateMarket/middleware"
	"github.com/Meltveit/ExcelTemplateMarket/payment"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Initialize database
	db, err := database.InitDB(cfg.DSN(), logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	if err := database.EnsureAdmin(db, cfg.AdminUsername, cfg.AdminPassword, logger); err != nil {
		logger.Fatal("Failed to seed admin user", zap.Error(err))
	}
	if cfg.SeedDemoData {
		if err := database.SeedDemoTemplates(db, logger); err != nil {
			logger.Fatal("Failed to seed demo templates", zap.Error(err))
		}
	}

	// Initialize Redis cache. The catalog works without it, just slower.
	redisClient, err := cache.InitRedis(cfg.RedisAddr(), cfg.RedisPassword, logger)
	if err != nil {
		logger.Warn("Redis unavailable, catalog cache disabled", zap.Error(err))
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	// Initialize OpenTelemetry
	shutdownTracing, err := middleware.InitTracing("template-store", cfg.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	// Initialize the payment gateway. A missing key degrades payment
	// routes instead of failing startup.
	var gateway payment.Gateway
	stripeGateway, err := payment.NewStripeGateway(cfg.StripeSecretKey, cfg.StripeWebhookSecret, logger)
	switch {
	case err == nil:
		gateway = stripeGateway
		logger.Info("Stripe gateway initialized")
	case errors.Is(err, payment.ErrNotConfigured):
		logger.Warn("STRIPE_SECRET_KEY not set, payment routes disabled")
	default:
		logger.Fatal("Failed to initialize Stripe gateway", zap.Error(err))
	}

	// Initialize Kafka publisher (optional)
	publisher, err := events.NewPublisher(cfg.KafkaBroker, cfg.KafkaTopic, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Kafka producer", zap.Error(err))
	}
	defer publisher.Close()

	coordinator := fulfillment.NewCoordinator(db, logger)

	// Setup Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	// OpenTelemetry middleware must be first to extract trace context
	router.Use(otelgin.Middleware("template-store"))
	router.Use(middleware.LoggerMiddleware(logger))
	router.Use(middleware.MetricsMiddleware())
	router.MaxMultipartMemory = 10 << 20

	// Health check endpoint
	router.GET("/health", handlers.HealthCheck)

	// Metrics endpoint
	router.GET("/metrics", middleware.PrometheusHandler())

	// Uploaded artifacts and catalog images
	router.Static("/uploads", cfg.UploadDir)

	registerRoutes(router, db, redisClient, gateway, coordinator, publisher, cfg, logger)

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Template store started", zap.String("port", cfg.Port))

	gracefulShutdown(srv, db, redisClient, publisher, shutdownTracing, logger)
}

func registerRoutes(
	router *gin.Engine,
	db *sql.DB,
	redisClient *redis.Client,
	gateway payment.Gateway,
	coordinator *fulfillment.Coordinator,
	publisher *events.Publisher,
	cfg config.Config,
	logger *zap.Logger,
) {
	templateHandler := handlers.NewTemplateHandler(db, redisClient, logger)
	checkoutHandler := handlers.NewCheckoutHandler(db, gateway, coordinator, publisher, logger)
	downloadHandler := handlers.NewDownloadHandler(db, cfg.PublicDir, logger)
	adminHandler := handlers.NewAdminHandler(db, []byte(cfg.JWTSecret), logger)
	uploadHandler := handlers.NewUploadHandler(cfg.UploadDir, logger)

	// Public catalog
	router.GET("/api/templates", templateHandler.GetTemplates)
	router.GET("/api/templates/:id", templateHandler.GetTemplate)
	router.GET("/api/templates/category/:category", templateHandler.GetTemplatesByCategory)

	// Checkout and fulfillment
	router.POST("/api/create-payment-intent", checkoutHandler.CreatePaymentIntent)
	router.POST("/api/webhook", checkoutHandler.Webhook)
	router.POST("/api/verify-payment", checkoutHandler.VerifyPayment)
	router.GET("/api/download/:orderId/:templateId/:token", downloadHandler.Download)

	// Admin surface
	router.POST("/api/admin/login", adminHandler.Login)

	admin := router.Group("/api/admin")
	admin.Use(middleware.AdminAuth(db, []byte(cfg.JWTSecret), logger))
	{
		admin.GET("/check-auth", adminHandler.CheckAuth)
		admin.GET("/templates", templateHandler.GetTemplates)
		admin.POST("/templates", templateHandler.CreateTemplate)
		admin.PUT("/templates/:id", templateHandler.UpdateTemplate)
		admin.DELETE("/templates/:id", templateHandler.DeleteTemplate)
		admin.GET("/orders", adminHandler.GetOrders)
		admin.GET("/orders/:id", adminHandler.GetOrder)
		admin.POST("/upload/template", uploadHandler.UploadTemplate)
		admin.POST("/upload/image", uploadHandler.UploadImage)
	}
}

// gracefulShutdown handles SIGINT/SIGTERM and shuts down all services gracefully
func gracefulShutdown(
	srv *http.Server,
	db *sql.DB,
	redisClient *redis.Client,
	publisher *events.Publisher,
	shutdownTracing func(),
	logger *zap.Logger,
) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown signal received. Exiting...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("HTTP server forced to shutdown", zap.Error(err))
	} else {
		logger.Info("HTTP server stopped gracefully")
	}

	if err := db.Close(); err != nil {
		logger.Error("Failed to close database", zap.Error(err))
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("Failed to close Redis cache", zap.Error(err))
		}
	}

	if err := publisher.Close(); err != nil {
		logger.Error("Failed to close Kafka producer", zap.Error(err))
	}

	shutdownTracing()
	logger.Info("Template store exited gracefully")
}
