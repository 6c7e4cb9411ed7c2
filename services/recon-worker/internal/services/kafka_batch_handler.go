package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/go-playground/validator/v10"
	"github.com/ledgerline/recon-worker/pkg"
	kafkautils "github.com/ledgerline/recon-worker/pkg/kafka"
	"github.com/ledgerline/recon-worker/pkg/utils"
	"github.com/ledgerline/recon-worker/pkg/views"
	"github.com/ledgerline/recon-worker/services/recon-worker/configs"
	"github.com/ledgerline/recon-worker/services/recon-worker/internal/observability"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// KafkaBatchHandler defines the interface for consuming batch messages from Kafka.
type KafkaBatchHandler interface {
	Start() func()
}

// KafkaBatchConfig holds configuration and dependencies for the batch consumer.
type KafkaBatchConfig struct {
	Context   context.Context
	Logger    *zap.Logger
	Config    *configs.Config
	Processor BatchProcessor

	// internal initialization
	consumer    *kafka.Consumer
	dlqProducer *kafka.Producer
	validate    *validator.Validate
	batchSem    chan struct{} // Semaphore to limit concurrent batch processing
	limiter     *rate.Limiter // Admission limiter to protect the store under bursts
	commits     *kafkautils.CommitManager
}

// NewKafkaBatchConsumer initializes a KafkaBatchHandler with the provided configuration.
// It sets up the Kafka consumer, DLQ producer, semaphore, and rate limiter.
func NewKafkaBatchConsumer(cfg KafkaBatchConfig) KafkaBatchHandler {
	kafkaConfig := &kafka.ConfigMap{
		"bootstrap.servers":  cfg.Config.KafkaBrokers,       // List of Kafka broker addresses
		"group.id":           cfg.Config.KafkaConsumerGroup, // Consumer group ID for load balancing
		"auto.offset.reset":  "earliest",                    // Start reading from the earliest offset if no prior offset
		"enable.auto.commit": false,                         // Disable auto-commit for manual offset management
	}
	kafkaConsumer, err := kafka.NewConsumer(kafkaConfig)
	if err != nil {
		cfg.Logger.Fatal("Failed to create Kafka batch consumer", zap.Error(err))
	}

	// Initialize DLQ producer for failed batches
	dlqProducer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  cfg.Config.KafkaBrokers,
		"acks":               "all",
		"enable.idempotence": true, // Ensure messages are not duplicated
	})
	if err != nil {
		cfg.Logger.Fatal("Failed to create DLQ producer", zap.Error(err))
	}

	cfg.batchSem = make(chan struct{}, cfg.Config.MaxConcurrentBatches)
	cfg.limiter = rate.NewLimiter(rate.Limit(cfg.Config.MaxBatchesPerSecond), cfg.Config.MaxBatchesPerSecond)
	cfg.consumer = kafkaConsumer
	cfg.dlqProducer = dlqProducer
	cfg.validate = validator.New()
	cfg.commits = kafkautils.NewCommitManager(kafkaConsumer, cfg.Logger)
	return &cfg
}

// Start initiates the Kafka consumption loop and returns a cleanup function.
// Batches process concurrently up to the semaphore limit; offsets commit in
// partition order through the commit manager.
func (k *KafkaBatchConfig) Start() func() {
	err := k.consumer.SubscribeTopics([]string{k.Config.KafkaBatchTopic}, nil)
	if err != nil {
		k.Logger.Fatal("Failed to subscribe to Kafka topic", zap.Error(err))
	}

	k.Logger.Info("Listening to Kafka topic",
		zap.String("topic", k.Config.KafkaBatchTopic),
		zap.String("group", k.Config.KafkaConsumerGroup))

	go func() {
		readFailures := 0
		for {
			select {
			case <-k.Context.Done():
				return
			default:
			}

			msg, err := k.consumer.ReadMessage(-1)
			if err != nil {
				readFailures++
				delay := utils.CalculateExponentialBackoffWithJitter(readFailures,
					k.Config.ReadBaseBackoff, k.Config.MaxReadBackoff)
				k.Logger.Error("Failed to read Kafka message",
					zap.Int("consecutive_failures", readFailures),
					zap.Duration("backoff", delay),
					zap.Error(err))
				time.Sleep(delay)
				continue
			}
			readFailures = 0
			observability.BatchesReceived.WithLabelValues(k.Config.KafkaBatchTopic).Inc()
			k.commits.Track(msg)

			// Acquire semaphore slot, blocking if limit is reached
			k.batchSem <- struct{}{}
			observability.InflightBatches.Inc()
			go func(m *kafka.Message) {
				defer func() {
					<-k.batchSem
					observability.InflightBatches.Dec()
				}()
				k.processMessage(m)
			}(msg)
		}
	}()

	// Return cleanup function to gracefully shut down resources
	return func() {
		if k.dlqProducer != nil {
			k.dlqProducer.Flush(5000)
			k.dlqProducer.Close()
		}
		if err := k.consumer.Close(); err != nil {
			k.Logger.Error("Failed to close Kafka consumer", zap.Error(err))
		}
		k.Logger.Info("Kafka consumer closed successfully")
	}
}

// processMessage handles one batch envelope. Undecryptable, unparseable, or
// failed batches go to the DLQ; the offset is acknowledged either way so one
// poison batch cannot wedge the partition.
func (k *KafkaBatchConfig) processMessage(msg *kafka.Message) {
	select {
	case <-k.Context.Done():
		return // Exit if context is canceled
	default:
	}

	if err := k.limiter.Wait(k.Context); err != nil {
		return // Context canceled while throttled
	}

	start := time.Now()
	topic := k.Config.KafkaBatchTopic

	var envelope views.BatchMessage
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		k.Logger.Error("Failed to decode Kafka message", zap.Error(err))
		observability.BatchesFailed.WithLabelValues(topic, "decode").Inc()
		k.sendToDLQ(envelope, "json unmarshal error", err.Error())
		k.commits.Ack(envelope.BatchID, msg) // Acknowledge to skip invalid message
		return
	}

	if err := k.validate.Struct(&envelope); err != nil {
		k.Logger.Error("Failed to validate batch envelope", zap.Error(err))
		observability.BatchesFailed.WithLabelValues(topic, "validation").Inc()
		k.sendToDLQ(envelope, "validation error", err.Error())
		k.commits.Ack(envelope.BatchID, msg)
		return
	}

	procErr := k.Processor.ProcessBatch(k.Context, envelope)
	if procErr != nil {
		pkg.LogAppError(k.Logger, envelope.BatchID.String(), procErr)
		observability.BatchesFailed.WithLabelValues(topic, failureReason(procErr)).Inc()
		k.sendToDLQ(envelope, failureReason(procErr), procErr.Error())
		k.commits.Ack(envelope.BatchID, msg)
		return
	}

	k.commits.Ack(envelope.BatchID, msg)
	observability.BatchesProcessed.WithLabelValues(topic).Inc()
	observability.ProcessLatency.WithLabelValues(topic).Observe(time.Since(start).Seconds())
	k.Logger.Info("Batch processed successfully",
		zap.Any(pkg.BatchId, envelope.BatchID))
}

// sendToDLQ publishes a failed batch envelope to the Dead Letter Queue with context.
func (k *KafkaBatchConfig) sendToDLQ(envelope views.BatchMessage, reason, errMsg string) {
	payload := map[string]any{
		"batch":         envelope,
		"failureReason": reason,
		"error":         errMsg,
		"failedAt":      time.Now().UTC().Format(time.RFC3339Nano),
	}

	b, err := json.Marshal(payload)
	if err != nil {
		k.Logger.Error("Failed to marshal DLQ payload",
			zap.Any(pkg.BatchId, envelope.BatchID),
			zap.Error(err))
		return
	}

	err = k.dlqProducer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &k.Config.KafkaDLQTopic,
			Partition: kafka.PartitionAny,
		},
		Key:   envelope.BatchID[:],
		Value: b,
	}, nil)
	if err != nil {
		k.Logger.Error("Failed to publish DLQ payload",
			zap.Any(pkg.BatchId, envelope.BatchID),
			zap.Error(err))
		return
	}
	observability.DLQPublished.WithLabelValues(k.Config.KafkaDLQTopic, reason).Inc()
	k.Logger.Info("Sent to batch DLQ",
		zap.Any(pkg.BatchId, envelope.BatchID),
		zap.String("reason", reason))
}

// failureReason maps an error to a low-cardinality metric label.
func failureReason(err error) string {
	var appErr pkg.AppError
	if errors.As(err, &appErr) {
		return appErr.Code.Code
	}
	return pkg.ErrServerCode.Code
}
