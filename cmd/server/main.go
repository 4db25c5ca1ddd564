package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	inventoryadapters "commerce-payments/internal/inventory/adapters"
	inventoryapp "commerce-payments/internal/inventory/application"
	"commerce-payments/internal/orders/adapters"
	"commerce-payments/internal/orders/application"
	"commerce-payments/internal/orders/infrastructure"
	"commerce-payments/internal/orders/ports"
	"commerce-payments/pkg/config"
	"commerce-payments/pkg/db"
	"commerce-payments/pkg/events"
	"commerce-payments/pkg/logger"
	"commerce-payments/pkg/middleware"
	"commerce-payments/pkg/mongodb"
	"commerce-payments/pkg/rabbitmq"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log := logger.New("commerce-payments", cfg.LogLevel)
	defer log.Sync()

	log.Info("starting commerce-payments service")

	// Connect to MongoDB (orders)
	orderDB, err := mongodb.NewDatabase(mongodb.Config{
		URI:     cfg.MongoURI,
		DBName:  cfg.MongoDBName,
		Timeout: cfg.DBTimeout,
	})
	if err != nil {
		log.Fatal("failed to connect to MongoDB: " + err.Error())
	}
	defer mongodb.Disconnect(orderDB, cfg.DBTimeout)
	log.Info("connected to MongoDB")

	orderRepo := adapters.NewMongoOrderRepository(orderDB)
	if err := orderRepo.EnsureIndexes(context.Background()); err != nil {
		log.Fatal("failed to create order indexes: " + err.Error())
	}

	// Connect to PostgreSQL (inventory and carts)
	dbConn, err := db.NewConnection(db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		DBName:   cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
		Timeout:  cfg.DBTimeout,
	})
	if err != nil {
		log.Fatal("failed to connect to database: " + err.Error())
	}
	log.Info("connected to database")

	inventoryRepo := inventoryadapters.NewPostgresInventoryRepository(dbConn)
	if err := inventoryRepo.Migrate(); err != nil {
		log.Fatal("failed to migrate database: " + err.Error())
	}
	cartRepo := inventoryadapters.NewPostgresCartRepository(dbConn)

	// Connect to RabbitMQ. A nil publisher disables events without blocking
	// payments.
	var publisher ports.EventPublisher
	rabbitConn, err := rabbitmq.NewConnection(cfg.RabbitMQURL, log)
	if err != nil {
		log.Warn("failed to connect to RabbitMQ, events will be disabled: " + err.Error())
	} else {
		defer rabbitConn.Close()

		pub, err := rabbitmq.NewPublisher(rabbitConn, events.ExchangePayments, log)
		if err != nil {
			log.Warn("failed to create publisher: " + err.Error())
		} else {
			publisher = adapters.NewRabbitMQPublisher(pub, log)
		}
	}

	// Outbound adapters
	gateway := adapters.NewRazorpayGateway(cfg.RazorpayKeyID, cfg.RazorpayKeySecret, cfg.RazorpayWebhookSecret, cfg.GatewayTimeout)
	invoices := adapters.NewInvoiceService()
	notifier := adapters.NewAutomationNotifier(cfg.AutomationWebhookURL, cfg.GatewayTimeout)

	// Initialize use cases
	stockUseCase := inventoryapp.NewStockUseCase(inventoryRepo, log)
	orderUseCase := application.NewOrderUseCase(orderRepo, stockUseCase, publisher, log, cfg.OrderTTL)
	paymentUseCase := application.NewPaymentUseCase(orderRepo, gateway, stockUseCase, cartRepo, invoices, notifier, publisher, log)
	webhookUseCase := application.NewWebhookUseCase(orderRepo, gateway, stockUseCase, publisher, log)

	// Start HTTP server
	httpHandler := infrastructure.NewHTTPHandler(orderUseCase, paymentUseCase, webhookUseCase)
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(middleware.TraceID())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.ErrorHandler(log))
	router.Use(middleware.CORS())

	api := router.Group("/api/v1")
	api.Use(middleware.Auth(cfg.JWTSecret))
	httpHandler.RegisterRoutes(api)

	// The gateway signs webhook calls itself, so they stay outside the auth group
	httpHandler.RegisterWebhookRoutes(router)

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	httpServer := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.HTTPTimeout,
		WriteTimeout: cfg.HTTPTimeout,
	}

	go func() {
		log.Info("HTTP server listening on :" + cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server error: " + err.Error())
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown error: " + err.Error())
	}

	log.Info("server stopped")
}
