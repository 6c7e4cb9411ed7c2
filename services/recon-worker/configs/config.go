package configs

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/ledgerline/recon-worker/pkg"
	"github.com/ledgerline/recon-worker/pkg/utils"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config holds application configuration for recon-worker.
type Config struct {
	MetricsAddr          string          `mapstructure:"METRICS_ADDR" validate:"required"`
	KafkaBrokers         string          `mapstructure:"KAFKA_BROKERS" validate:"required"`
	KafkaBatchTopic      string          `mapstructure:"KAFKA_BATCH_TOPIC" validate:"required"`
	KafkaDLQTopic        string          `mapstructure:"KAFKA_DLQ_TOPIC" validate:"required"`
	KafkaConsumerGroup   string          `mapstructure:"KAFKA_CONSUMER_GROUP" validate:"required"`
	KafkaPartition       uint32          `mapstructure:"KAFKA_PARTITION" validate:"min=1"`
	PrimaryDbAddr        string          `mapstructure:"PRIMARY_DB_ADDR" validate:"required"`
	ReadDbAddr           string          `mapstructure:"READ_DB_ADDR"`
	MaxDbCons            int32           `mapstructure:"MAX_DB_CONNECTIONS" validate:"min=1"`
	MinDbCons            int32           `mapstructure:"MIN_DB_CONNECTIONS" validate:"min=1"`
	AesKey               string          `mapstructure:"AES_KEY" validate:"required"`
	RedisAddr            string          `mapstructure:"REDIS_ADDR" validate:"required"`
	BatchPolicy          pkg.BatchPolicy `mapstructure:"BATCH_POLICY" validate:"oneof=abort-all skip-and-report"`
	MaxConcurrentBatches int             `mapstructure:"MAX_CONCURRENT_BATCHES" validate:"min=1"`
	MaxBatchesPerSecond  int             `mapstructure:"MAX_BATCHES_PER_SECOND" validate:"min=1"`
	ProcessedRetention   time.Duration   `mapstructure:"PROCESSED_RETENTION" validate:"required"`
	ReadBaseBackoff      time.Duration   `mapstructure:"READ_BASE_BACKOFF" validate:"required"`
	MaxReadBackoff       time.Duration   `mapstructure:"MAX_READ_BACKOFF" validate:"required"`
}

func Load(logger *zap.Logger) (*Config, error) {
	viper.SetEnvPrefix("app") // Prefix for env vars
	viper.AutomaticEnv()

	// Default values
	viper.SetDefault("KAFKA_PARTITION", "4")
	viper.SetDefault("BATCH_POLICY", string(pkg.PolicyAbortAll))
	viper.SetDefault("MAX_CONCURRENT_BATCHES", "4")
	viper.SetDefault("MAX_BATCHES_PER_SECOND", "10")
	viper.SetDefault("PROCESSED_RETENTION", "168h")
	viper.SetDefault("READ_BASE_BACKOFF", "500ms")
	viper.SetDefault("MAX_READ_BACKOFF", "30s")

	// Optional: Read from config.yaml if exists
	if gin.ReleaseMode == gin.Mode() {
		viper.SetConfigName("config.prod")
	} else if gin.TestMode == gin.Mode() {
		logger.Warn("running_in_test_mode")
		viper.SetConfigName("config.test")
	} else {
		logger.Warn("running_in_development_mode")
		viper.SetConfigName("config.dev")
	}
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./services/recon-worker/configs")
	_ = viper.ReadInConfig() // Ignore if no file

	var cfg Config
	if err := utils.ParseStructEnv(&cfg); err != nil {
		return nil, err
	}

	// Validate after unmarshal
	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, utils.FormatConfigErrors(logger, err, cfg)
	}
	return &cfg, nil
}
