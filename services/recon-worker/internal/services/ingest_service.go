package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ledgerline/recon-worker/pkg"
	"github.com/ledgerline/recon-worker/pkg/models"
	"github.com/ledgerline/recon-worker/pkg/utils"
	"github.com/ledgerline/recon-worker/pkg/views"
	"github.com/ledgerline/recon-worker/services/recon-worker/configs"
	"github.com/ledgerline/recon-worker/services/recon-worker/internal/observability"
	"github.com/ledgerline/recon-worker/services/recon-worker/internal/reconcile"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const processedKeyPrefix = "recon:processed:"

// BatchProcessor turns one decrypted queue envelope into store writes.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, msg views.BatchMessage) error
}

// RedeliveryGuard is the slice of *redis.Client the processor needs to
// recognize and mark processed batches.
type RedeliveryGuard interface {
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// BatchProcessorConfig holds dependencies for the batch processor.
type BatchProcessorConfig struct {
	Logger        *zap.Logger
	Config        *configs.Config
	Normalizer    *Normalizer
	Engine        *reconcile.Engine
	RedisClient   RedeliveryGuard
	EncryptionKey []byte
}

func NewBatchProcessor(cfg BatchProcessorConfig) BatchProcessor {
	return &cfg
}

// ProcessBatch decrypts and parses the payload, normalizes every record under
// the configured policy, and hands the batch to the reconcile engine. A batch
// id seen before is acknowledged without reprocessing.
func (b *BatchProcessorConfig) ProcessBatch(ctx context.Context, msg views.BatchMessage) error {
	batchID := msg.BatchID.String()
	processedKey := processedKeyPrefix + batchID

	// Redelivery guard. A cache outage must not stall ingestion, so a failed
	// lookup only logs; reconciliation itself tolerates a replay.
	seen, err := b.RedisClient.Exists(ctx, processedKey).Result()
	if err != nil {
		b.Logger.Warn("processed-batch lookup failed, continuing",
			zap.String(pkg.BatchId, batchID), zap.Error(err))
	} else if seen > 0 {
		b.Logger.Info("batch already processed, skipping",
			zap.String(pkg.BatchId, batchID))
		return nil
	}

	plaintext, err := utils.DecryptAES(msg.Payload, b.EncryptionKey)
	if err != nil {
		return pkg.NewAppError(pkg.ErrTransportUndecryptableCode, "failed to decrypt batch payload", err)
	}

	var raw []views.RawRecord
	if err = json.Unmarshal(plaintext, &raw); err != nil {
		return pkg.NewAppError(pkg.ErrTransportUnparseableCode, "failed to parse batch payload", err)
	}

	customers := make([]models.CustomerAttrs, 0, len(raw))
	accounts := make([]views.AccountRecord, 0, len(raw))
	skipped := 0
	for i, rec := range raw {
		cust, acct, normErr := b.Normalizer.Normalize(rec)
		if normErr != nil {
			if b.Config.BatchPolicy == pkg.PolicySkipAndReport {
				b.Logger.Warn("skipping invalid record",
					zap.String(pkg.BatchId, batchID),
					zap.Int(pkg.RecordIndex, i),
					zap.Error(normErr))
				skipped++
				continue
			}
			return pkg.NewAppError(pkg.ErrValidationCode,
				fmt.Sprintf("record %d failed validation", i), normErr)
		}
		customers = append(customers, cust)
		accounts = append(accounts, acct)
	}

	summary, err := b.Engine.ReconcileBatch(ctx, customers, accounts)
	if err != nil {
		return err
	}
	summary.RecordsSkipped += skipped

	observability.CustomersUpdated.Add(float64(summary.CustomersUpdated))
	observability.CustomersInserted.Add(float64(summary.CustomersInserted))
	observability.AccountsUpdated.Add(float64(summary.AccountsUpdated))
	observability.AccountsInserted.Add(float64(summary.AccountsInserted))
	observability.RecordsSkipped.Add(float64(summary.RecordsSkipped))

	b.Logger.Info("batch reconciled",
		zap.String(pkg.BatchId, batchID),
		zap.Int("records", len(raw)),
		zap.Any("summary", summary))

	if err = b.RedisClient.Set(ctx, processedKey, time.Now().UTC().Format(time.RFC3339),
		b.Config.ProcessedRetention).Err(); err != nil {
		b.Logger.Warn("failed to mark batch as processed",
			zap.String(pkg.BatchId, batchID), zap.Error(err))
	}
	return nil
}
