package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ledgerline/recon-worker/pkg"
	"github.com/ledgerline/recon-worker/pkg/cache"
	"github.com/ledgerline/recon-worker/pkg/database"
	kafkautils "github.com/ledgerline/recon-worker/pkg/kafka"
	middleware "github.com/ledgerline/recon-worker/pkg/middlewares"
	"github.com/ledgerline/recon-worker/pkg/repositories"
	"github.com/ledgerline/recon-worker/pkg/utils"
	"github.com/ledgerline/recon-worker/services/recon-worker/configs"
	"github.com/ledgerline/recon-worker/services/recon-worker/internal/reconcile"
	"github.com/ledgerline/recon-worker/services/recon-worker/internal/services"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// main initializes and runs the reconciliation worker service.
func main() {
	// Initialize global logger with default configuration
	pkg.InitLogger()
	logger := pkg.Logger
	defer logger.Sync() // Ensure all buffered logs are flushed on exit

	// Load configuration from environment and optional config file
	cfg, err := configs.Load(logger)
	if err != nil {
		logger.Fatal("failed_to_load_config", zap.Error(err))
	}

	// Initialize PostgreSQL database connection
	dbConfig := database.Config{
		PrimaryDSN:  cfg.PrimaryDbAddr,
		ReplicaDSNs: []string{cfg.ReadDbAddr},
		MaxConns:    cfg.MaxDbCons,
		MinConns:    cfg.MinDbCons,
	}
	db, disconnect, err := database.New(context.Background(), logger, dbConfig)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer disconnect() // Ensure database connections are closed on shutdown

	// Apply schema migrations against the primary before consuming anything
	if err = database.RunMigrations(logger, cfg.PrimaryDbAddr); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Create a context that can be canceled for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Redis client for the processed-batch redelivery guard
	redisClient, redisCloser, err := cache.New(ctx, cache.Config{
		Addr: cfg.RedisAddr,
	})
	if err != nil {
		logger.Fatal("Failed to initialize Redis client", zap.Error(err))
	}
	logger.Info("Redis client initialized successfully")

	// Decode encryption key to byte array
	aesKey, err := utils.DecodeString(cfg.AesKey)
	if err != nil {
		logger.Fatal("Failed to decode encryption key", zap.Error(err))
	}

	// Ensure batch and DLQ topics exist before subscribing
	err = kafkautils.InitKafkaTopics(logger, ctx, kafkautils.KafkaConfig{
		BootstrapServers: cfg.KafkaBrokers,
		Topics: []kafkautils.TopicConfig{
			{Topic: cfg.KafkaBatchTopic, NumPartitions: int(cfg.KafkaPartition), ReplicationFactor: 1},
			{Topic: cfg.KafkaDLQTopic, NumPartitions: 1, ReplicationFactor: 1},
		},
	})
	if err != nil {
		logger.Fatal("Failed to initialize Kafka topics", zap.Error(err))
	}

	// Wire the reconcile engine on top of the repositories
	engine := reconcile.NewEngine(logger,
		repositories.NewCustomerRepository(logger, db),
		repositories.NewAccountRepository(logger, db),
		cfg.BatchPolicy)

	batchProcessor := services.NewBatchProcessor(services.BatchProcessorConfig{
		Logger:        logger,
		Config:        cfg,
		Normalizer:    services.NewNormalizer(),
		Engine:        engine,
		RedisClient:   redisClient,
		EncryptionKey: aesKey,
	})

	// Set up Kafka batch consumer
	batchHandler := services.NewKafkaBatchConsumer(services.KafkaBatchConfig{
		Context:   ctx,
		Logger:    logger,
		Config:    cfg,
		Processor: batchProcessor,
	})
	closeBatchConsumer := batchHandler.Start()

	// Ops server: liveness and Prometheus metrics
	router := gin.New()
	router.Use(gin.Recovery(), middleware.Metrics())
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	go func() {
		if err := router.Run(cfg.MetricsAddr); err != nil {
			logger.Error("Ops server stopped", zap.Error(err))
		}
	}()
	logger.Info("Ops server listening", zap.String("addr", cfg.MetricsAddr))

	// Handle graceful shutdown on SIGINT or SIGTERM
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	osSignal := <-sigChan
	logger.Info("Received shutdown signal", zap.String("signal", osSignal.String()))
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	cancel() // Trigger context cancellation
	closeBatchConsumer()
	redisCloser()
	<-shutdownCtx.Done()
	logger.Info("Service shutdown completed successfully")
}
