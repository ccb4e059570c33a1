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
	"github.com/commerce-platform/fulfillment/internal/inventory/application"
	inventoryMongo "github.com/commerce-platform/fulfillment/internal/inventory/infrastructure/mongodb"
	"github.com/commerce-platform/fulfillment/pkg/kafka"
	"github.com/commerce-platform/fulfillment/pkg/logging"
	"github.com/commerce-platform/fulfillment/pkg/metrics"
	"github.com/commerce-platform/fulfillment/pkg/middleware"
	"github.com/commerce-platform/fulfillment/pkg/mongodb"
	"github.com/commerce-platform/fulfillment/pkg/outbox"
	outboxMongo "github.com/commerce-platform/fulfillment/pkg/outbox/mongodb"
	"github.com/commerce-platform/fulfillment/pkg/tracing"
)

const serviceName = "inventory-worker"

func main() {
	logConfig := logging.DefaultConfig(serviceName)
	logConfig.Level = logging.LogLevel(getEnv("LOG_LEVEL", "info"))
	logger := logging.New(logConfig)
	logger.SetDefault()

	logger.Info("Starting inventory-worker")

	config := loadConfig()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracingConfig := tracing.DefaultConfig(serviceName)
	tracingConfig.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	tracingConfig.Environment = getEnv("ENVIRONMENT", "development")
	tracingConfig.Enabled = getEnv("TRACING_ENABLED", "true") == "true"

	tracerProvider, err := tracing.Initialize(ctx, tracingConfig)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
	} else if tracerProvider != nil {
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
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

	outboxRepo := outboxMongo.NewRepository(mongoClient.Database())
	if err := outboxRepo.EnsureIndexes(ctx); err != nil {
		logger.WithError(err).Error("Failed to create outbox indexes")
		os.Exit(1)
	}

	debitRepo := inventoryMongo.NewStockDebitRepository(mongoClient.Database())
	if err := debitRepo.EnsureIndexes(ctx); err != nil {
		logger.WithError(err).Error("Failed to create stock debit indexes")
		os.Exit(1)
	}
	productRepo := catalogMongo.NewProductRepository(mongoClient.Database())

	outboxPublisher := outbox.NewPublisher(outboxRepo, kafkaProducer, outbox.DefaultPublisherConfig(), m, logger.WithComponent("outbox").Logger)
	outboxPublisher.Start(ctx)
	defer outboxPublisher.Stop()
	logger.Info("Outbox publisher started")

	inventoryService := application.NewInventoryService(
		mongoClient, debitRepo, productRepo, outboxRepo, m, logger.Logger)
	eventHandlers := application.NewEventHandlers(inventoryService, logger.Logger)

	consumer := kafka.NewConsumer(config.Kafka, logger.WithComponent("consumer").Logger, m)
	defer consumer.Close()
	consumer.SubscribeAll(kafka.Topics.OrderEvents, eventHandlers.HandleOrderEvent)

	// Health and metrics endpoints only; the worker has no API surface.
	router := gin.New()
	router.Use(middleware.Recovery(logger.Logger))
	router.GET("/health", middleware.HealthCheck(serviceName))
	router.GET("/ready", middleware.ReadinessCheck(serviceName, func() error {
		return mongoClient.HealthCheck(ctx)
	}))
	router.GET("/metrics", middleware.MetricsEndpoint(m))

	srv := &http.Server{
		Addr:    config.ServerAddr,
		Handler: router,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Health server error")
		}
	}()

	go func() {
		logger.Info("Consumer starting", "topic", kafka.Topics.OrderEvents, "group", config.Kafka.ConsumerGroup)
		if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
			logger.WithError(err).Error("Consumer stopped unexpectedly")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down worker...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Health server forced to shutdown")
	}

	logger.Info("Worker stopped")
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
	kafkaConfig.ConsumerGroup = getEnv("KAFKA_CONSUMER_GROUP", serviceName)
	kafkaConfig.ClientID = serviceName

	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8004"),
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
