package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"payment-orchestrator/internal/clients"
	"payment-orchestrator/internal/config"
	"payment-orchestrator/internal/events"
	"payment-orchestrator/internal/gateway"
	"payment-orchestrator/internal/handlers"
	"payment-orchestrator/internal/middleware"
	"payment-orchestrator/internal/models"
	"payment-orchestrator/internal/repository"
	"payment-orchestrator/internal/services"
)

func main() {
	cfg := config.Load()

	appLogger := logrus.New()
	appLogger.SetFormatter(&logrus.JSONFormatter{})
	appLogger.SetLevel(logrus.InfoLevel)

	db, err := connectDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.Payment{},
		&models.AuditLogEntry{},
		&models.Voucher{},
		&models.VoucherUsage{},
		&models.FraudAlert{},
		&models.PaymentConfig{},
		&models.PaymentSettings{},
		&models.User{},
		&models.LinkedBankAccount{},
		&models.VendorWallet{},
		&models.VendorItem{},
		&models.WebhookRetryTask{},
	); err != nil {
		log.Printf("Warning: Auto-migration failed: %v", err)
	}

	if err := repository.SeedDefaults(db); err != nil {
		log.Printf("Warning: Failed to seed defaults: %v", err)
	}

	paymentRepo := repository.NewPaymentRepository(db)

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Invalid REDIS_URL: %v", err)
	}
	redisClient := redis.NewClient(redisOpts)

	var publisher *events.Publisher
	publisher, err = events.NewPublisher(cfg.NATSURL, appLogger)
	if err != nil {
		log.Printf("Warning: Failed to initialize events publisher: %v (events won't be published)", err)
		publisher = nil
	}

	notificationClient := clients.NewNotificationClient(cfg.NotificationServiceURL)

	monnifyGateway, err := gateway.NewMonnifyGateway(gateway.MonnifyConfig{
		BaseURL:      cfg.MonnifyBaseURL,
		APIKey:       cfg.MonnifyAPIKey,
		SecretKey:    cfg.MonnifySecretKey,
		ContractCode: cfg.MonnifyContractCode,
	}, appLogger)
	if err != nil {
		log.Fatalf("Failed to initialize primary gateway: %v", err)
	}
	podGateway := gateway.NewPayOnDeliveryGateway(appLogger)

	registry := gateway.NewRegistry()
	ctx := context.Background()
	configs, err := paymentRepo.ListPaymentConfigs(ctx)
	if err != nil {
		log.Fatalf("Failed to load payment configs: %v", err)
	}
	for _, mc := range configs {
		switch mc.Provider {
		case models.ProviderMonnify:
			registry.Register(mc.Method, monnifyGateway, mc.IsEnabled)
		case models.ProviderInternal:
			registry.Register(mc.Method, podGateway, mc.IsEnabled)
		case models.ProviderStripe:
			stripeGateway, stripeErr := gateway.NewStripeGateway(cfg.StripeSecretKey, appLogger)
			if stripeErr != nil {
				log.Printf("Warning: Stripe adapter unavailable for %s: %v", mc.Method, stripeErr)
				continue
			}
			registry.Register(mc.Method, stripeGateway, mc.IsEnabled)
		default:
			log.Printf("Warning: unknown provider %s for method %s", mc.Provider, mc.Method)
		}
	}

	feeService := services.NewFeeService(paymentRepo)
	recipientService := services.NewRecipientService(paymentRepo, monnifyGateway, appLogger)
	paymentService := services.NewPaymentService(paymentRepo, registry, feeService, recipientService, notificationClient, appLogger)
	verificationService := services.NewVerificationService(paymentRepo, registry, redisClient, publisher, notificationClient, cfg.MonnifyWebhookSecret, appLogger)
	managementService := services.NewManagementService(paymentRepo, registry, publisher, appLogger)

	retryWorker := services.NewRetryWorker(paymentRepo, verificationService, appLogger)
	go retryWorker.Run(ctx)

	paymentHandler := handlers.NewPaymentHandler(paymentService, verificationService, managementService)
	webhookHandler := handlers.NewWebhookHandler(verificationService, appLogger)

	router := setupRouter(paymentHandler, webhookHandler)

	log.Printf("Payment orchestrator starting on port %s (env: %s)", cfg.Port, cfg.Environment)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// connectDatabase establishes a connection to the database
func connectDatabase(databaseURL string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// setupRouter configures the HTTP router
func setupRouter(paymentHandler *handlers.PaymentHandler, webhookHandler *handlers.WebhookHandler) *gin.Engine {
	router := gin.Default()

	rateLimits := middleware.NewPaymentRateLimits()

	router.Use(middleware.SecurityHeaders())

	corsConfig := middleware.DefaultCORSConfig()
	if allowedOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); allowedOrigins != "" {
		corsConfig.AllowedOrigins = strings.Split(allowedOrigins, ",")
	} else {
		corsConfig.AllowedOrigins = []string{"http://localhost:3000"}
	}
	router.Use(middleware.CORS(corsConfig))
	router.Use(middleware.ValidateRequest())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "payment-orchestrator",
		})
	})

	v1 := router.Group("/api/v1")
	v1.Use(middleware.RateLimitMiddleware(rateLimits.General))
	{
		payments := v1.Group("/payments")
		{
			payments.POST("",
				middleware.RateLimitMiddleware(rateLimits.InitiatePayment),
				paymentHandler.InitiatePayment)
			payments.POST("/bill",
				middleware.RateLimitMiddleware(rateLimits.InitiatePayment),
				paymentHandler.InitiateBillPayment)
			payments.POST("/authorize", paymentHandler.AuthorizePayment)
			payments.POST("/verify-bvn", paymentHandler.VerifyBVN)
			payments.GET("/verify/:transactionRef", paymentHandler.VerifyPayment)
			payments.GET("/history/:userId", paymentHandler.TransactionHistory)
			payments.GET("/methods/:method/status", paymentHandler.MethodStatus)
			payments.POST("/:transactionRef/refund",
				middleware.RateLimitMiddleware(rateLimits.Refund),
				paymentHandler.RefundPayment)
			payments.POST("/:transactionRef/cancel", paymentHandler.CancelPayment)
		}

		webhooks := v1.Group("/webhooks")
		webhooks.Use(middleware.RateLimitMiddleware(rateLimits.Webhook))
		{
			webhooks.POST("/monnify", webhookHandler.HandleMonnifyWebhook)
		}
	}

	return router
}
