package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	deliveryHandlers "github.com/commerce-platform/fulfillment/internal/delivery/api/handlers"
	deliveryApp "github.com/commerce-platform/fulfillment/internal/delivery/application"
	deliveryMongo "github.com/commerce-platform/fulfillment/internal/delivery/infrastructure/mongodb"
	"github.com/commerce-platform/fulfillment/internal/notification"
	orderMongo "github.com/commerce-platform/fulfillment/internal/order/infrastructure/mongodb"
	reconHandlers "github.com/commerce-platform/fulfillment/internal/reconciliation/api/handlers"
	reconApp "github.com/commerce-platform/fulfillment/internal/reconciliation/application"
	reconMongo "github.com/commerce-platform/fulfillment/internal/reconciliation/infrastructure/mongodb"
	"github.com/commerce-platform/fulfillment/pkg/kafka"
	"github.com/commerce-platform/fulfillment/pkg/logging"
	"github.com/commerce-platform/fulfillment/pkg/metrics"
	"github.com/commerce-platform/fulfillment/pkg/middleware"
	"github.com/commerce-platform/fulfillment/pkg/mongodb"
	"github.com/commerce-platform/fulfillment/pkg/outbox"
	outboxMongo "github.com/commerce-platform/fulfillment/pkg/outbox/mongodb"
	"github.com/commerce-platform/fulfillment/pkg/tracing"
)

const serviceName = "delivery-api"

func main() {
	logConfig := logging.DefaultConfig(serviceName)
	logConfig.Level = logging.LogLevel(getEnv("LOG_LEVEL", "info"))
	logger := logging.New(logConfig)
	logger.SetDefault()

	logger.Info("Starting delivery-api")

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

	deliveryRepo := deliveryMongo.NewDeliveryRepository(mongoClient, outboxRepo)
	if err := deliveryRepo.EnsureIndexes(ctx); err != nil {
		logger.WithError(err).Error("Failed to create delivery indexes")
		os.Exit(1)
	}
	orderRepo := orderMongo.NewOrderRepository(mongoClient, outboxRepo)
	recordRepo := reconMongo.NewPaymentRecordRepository(mongoClient)
	if err := recordRepo.EnsureIndexes(ctx); err != nil {
		logger.WithError(err).Error("Failed to create payment record indexes")
		os.Exit(1)
	}
	summaryReader := reconMongo.NewSummaryReader(mongoClient)

	outboxPublisher := outbox.NewPublisher(outboxRepo, kafkaProducer, outbox.DefaultPublisherConfig(), m, logger.WithComponent("outbox").Logger)
	outboxPublisher.Start(ctx)
	defer outboxPublisher.Stop()
	logger.Info("Outbox publisher started")

	var notifier notification.Notifier = notification.NoopNotifier{}
	if smsURL := getEnv("SMS_PROVIDER_URL", ""); smsURL != "" {
		notifier = notification.NewHTTPNotifier(notification.HTTPNotifierConfig{
			BaseURL: smsURL,
			APIKey:  getEnv("SMS_PROVIDER_API_KEY", ""),
			Sender:  getEnv("SMS_SENDER", "fulfillment"),
		}, m, logger.WithComponent("sms-notifier").Logger)
	}

	deliveryService := deliveryApp.NewDeliveryService(deliveryRepo, orderRepo, notifier, m, logger.Logger)
	reconService := reconApp.NewReconciliationService(
		mongoClient, recordRepo, deliveryRepo, summaryReader, outboxRepo, m, logger.Logger)

	deliveryHandler := deliveryHandlers.NewDeliveryHandler(deliveryService, logger.Logger)
	reconHandler := reconHandlers.NewReconciliationHandler(reconService, logger.Logger)

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
	deliveryHandler.RegisterRoutes(v1)
	reconHandler.RegisterRoutes(v1)

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
		ServerAddr: getEnv("SERVER_ADDR", ":8003"),
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
