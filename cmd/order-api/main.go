package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	catalogMongo "github.com/commerce-platform/fulfillment/internal/catalog/infrastructure/mongodb"
	"github.com/commerce-platform/fulfillment/internal/order/api/handlers"
	"github.com/commerce-platform/fulfillment/internal/order/application"
	orderMongo "github.com/commerce-platform/fulfillment/internal/order/infrastructure/mongodb"
	"github.com/commerce-platform/fulfillment/internal/payment"
	"github.com/commerce-platform/fulfillment/pkg/kafka"
	"github.com/commerce-platform/fulfillment/pkg/logging"
	"github.com/commerce-platform/fulfillment/pkg/metrics"
	"github.com/commerce-platform/fulfillment/pkg/middleware"
	"github.com/commerce-platform/fulfillment/pkg/mongodb"
	"github.com/commerce-platform/fulfillment/pkg/outbox"
	outboxMongo "github.com/commerce-platform/fulfillment/pkg/outbox/mongodb"
	"github.com/commerce-platform/fulfillment/pkg/tracing"
)

const serviceName = "order-api"

func main() {
	logConfig := logging.DefaultConfig(serviceName)
	logConfig.Level = logging.LogLevel(getEnv("LOG_LEVEL", "info"))
	logger := logging.New(logConfig)
	logger.SetDefault()

	logger.Info("Starting order-api")

	config := loadConfig()
	ctx := context.Background()

	tracingConfig := tracing.DefaultConfig(serviceName)
	tracingConfig.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	tracingConfig.Environment = getEnv("ENVIRONMENT", "development")
	tracingConfig.Enabled = getEnv("TRACING_ENABLED", "true") == "true"

	tracerProvider, err := tracing.Initialize(ctx, tracingConfig)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
	} else if tracerProvider != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Error("Failed to shutdown tracer")
			}
		}()
		logger.Info("Tracing initialized", "endpoint", tracingConfig.OTLPEndpoint)
	}

	m := metrics.New(metrics.DefaultConfig(serviceName))

	config.MongoDB.Metrics = m
	mongoClient, err := mongodb.NewClient(ctx, config.MongoDB)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to MongoDB")
		os.Exit(1)
	}
	defer mongoClient.Close(ctx)
	logger.Info("Connected to MongoDB", "database", config.MongoDB.Database)

	kafkaProducer := kafka.NewProducer(config.Kafka, m)
	defer kafkaProducer.Close()
	logger.Info("Kafka producer initialized", "brokers", config.Kafka.Brokers)

	outboxRepo := outboxMongo.NewRepository(mongoClient.Database())
	if err := outboxRepo.EnsureIndexes(ctx); err != nil {
		logger.WithError(err).Error("Failed to create outbox indexes")
		os.Exit(1)
	}

	orderRepo := orderMongo.NewOrderRepository(mongoClient, outboxRepo)
	if err := orderRepo.EnsureIndexes(ctx); err != nil {
		logger.WithError(err).Error("Failed to create order indexes")
		os.Exit(1)
	}
	productRepo := catalogMongo.NewProductRepository(mongoClient.Database())

	outboxPublisher := outbox.NewPublisher(outboxRepo, kafkaProducer, outbox.DefaultPublisherConfig(), m, logger.WithComponent("outbox").Logger)
	outboxPublisher.Start(ctx)
	defer outboxPublisher.Stop()
	logger.Info("Outbox publisher started")

	gateway := payment.NewHTTPGateway(payment.HTTPGatewayConfig{
		BaseURL: getEnv("PAYMENT_GATEWAY_URL", "http://localhost:9000"),
		APIKey:  getEnv("PAYMENT_GATEWAY_API_KEY", ""),
	}, m, logger.WithComponent("payment-gateway").Logger)
	verifier := payment.NewHMACVerifier(getEnv("PAYMENT_WEBHOOK_SECRET", "dev-secret"))

	orderService := application.NewOrderService(orderRepo, productRepo, gateway, verifier, m, logger.Logger)
	orderHandler := handlers.NewOrderHandler(orderService, logger.Logger)
	webhookHandler := handlers.NewPaymentWebhookHandler(orderService, logger.Logger)

	router := gin.New()
	middleware.Setup(router, middleware.DefaultConfig(serviceName, logger.Logger))
	router.Use(middleware.Metrics(m))
	router.Use(middleware.Tracing(serviceName))
	router.NoRoute(middleware.NoRoute())
	router.NoMethod(middleware.NoMethod())

	router.GET("/health", middleware.HealthCheck(serviceName))
	router.GET("/ready", middleware.ReadinessCheck(serviceName, func() error {
		return mongoClient.HealthCheck(ctx)
	}))
	router.GET("/metrics", middleware.MetricsEndpoint(m))

	v1 := router.Group("/api/v1")
	orderHandler.RegisterRoutes(v1)
	webhookHandler.RegisterRoutes(v1)

	srv := &http.Server{
		Addr:         config.ServerAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Server error")
		}
	}()
	logger.Info("Server started", "addr", config.ServerAddr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server stopped")
}

// Config holds application configuration
type Config struct {
	ServerAddr string
	MongoDB    *mongodb.Config
	Kafka      *kafka.Config
}

func loadConfig() *Config {
	kafkaConfig := kafka.DefaultConfig()
	kafkaConfig.Brokers = []string{getEnv("KAFKA_BROKERS", "localhost:9092")}
	kafkaConfig.ConsumerGroup = serviceName
	kafkaConfig.ClientID = serviceName

	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8002"),
		MongoDB: &mongodb.Config{
			URI:            getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database:       getEnv("MONGODB_DATABASE", "fulfillment"),
			ConnectTimeout: 10 * time.Second,
			MaxPoolSize:    100,
			MinPoolSize:    10,
			ReplicaSet:     getEnv("MONGODB_REPLICA_SET", ""),
		},
		Kafka: kafkaConfig,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
