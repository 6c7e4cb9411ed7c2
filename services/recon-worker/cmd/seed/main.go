package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/google/uuid"
	"github.com/ledgerline/recon-worker/pkg"
	"github.com/ledgerline/recon-worker/pkg/utils"
	"github.com/ledgerline/recon-worker/pkg/views"
	"github.com/ledgerline/recon-worker/services/recon-worker/configs"
	"go.uber.org/zap"
)

// main publishes synthetic encrypted batches to the batch topic, for local
// runs and load tests against a full stack.
func main() {
	noOfBatches := flag.Int("noOfBatches", 10, "Number of batches to publish")
	recordsPerBatch := flag.Int("recordsPerBatch", 500, "Records per batch")
	dupRate := flag.Float64("dupRate", 0.05, "Rate of duplicate customer ids within a batch")

	flag.Parse()

	pkg.InitLogger()
	logger := pkg.Logger
	defer logger.Sync()

	cfg, err := configs.Load(logger)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	key, err := utils.DecodeString(cfg.AesKey)
	if err != nil {
		logger.Fatal("failed to decode AES key", zap.Error(err))
	}

	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  cfg.KafkaBrokers,
		"acks":               "all",
		"enable.idempotence": true,
	})
	if err != nil {
		logger.Fatal("failed to create producer", zap.Error(err))
	}
	defer producer.Close()

	for i := 0; i < *noOfBatches; i++ {
		records := make([]views.RawRecord, 0, *recordsPerBatch)
		for j := 0; j < *recordsPerBatch; j++ {
			custSeq := i**recordsPerBatch + j
			if rand.Float64() < *dupRate && j > 0 {
				custSeq-- // Reuse the previous customer id to exercise dedup
			}
			records = append(records, sampleRecord(custSeq, i**recordsPerBatch+j))
		}

		plaintext, err := json.Marshal(records)
		if err != nil {
			logger.Fatal("failed to marshal records", zap.Error(err))
		}
		payload, err := utils.EncryptAES(plaintext, key)
		if err != nil {
			logger.Fatal("failed to encrypt payload", zap.Error(err))
		}

		batchID := uuid.New()
		envelope := views.BatchMessage{
			BatchID:    batchID,
			ProducedAt: time.Now().UTC(),
			Payload:    payload,
		}
		b, err := json.Marshal(envelope)
		if err != nil {
			logger.Fatal("failed to marshal envelope", zap.Error(err))
		}

		err = producer.Produce(&kafka.Message{
			TopicPartition: kafka.TopicPartition{
				Topic:     &cfg.KafkaBatchTopic,
				Partition: kafka.PartitionAny,
			},
			Key:   batchID[:],
			Value: b,
		}, nil)
		if err != nil {
			logger.Fatal("failed to produce batch", zap.Error(err))
		}
		logger.Info("Published batch",
			zap.String(pkg.BatchId, batchID.String()),
			zap.Int("records", len(records)))
	}

	producer.Flush(15000)
	logger.Info("Seed batches published successfully")
}

func sampleRecord(custSeq, acctSeq int) views.RawRecord {
	return views.RawRecord{
		CustomerID:        fmt.Sprintf("CUST%08d", custSeq),
		AccountNumber:     json.Number(fmt.Sprintf("%d", 1000000000+acctSeq)),
		DateOpened:        time.Now().AddDate(-rand.Intn(10), 0, 0).Format("2006-01-02"),
		AccountHolderName: fmt.Sprintf("Holder %d", custSeq),
		EntityName:        "Ledgerline Trust",
		OfficeName:        fmt.Sprintf("Office %d", custSeq%7),
		Title3:            "Account Holder",
		MajorAccountType:  "DDA",
		MinorAccountType:  "CHK",
		AccountStatus:     "OPEN",
		AvailableBalance:  fmt.Sprintf("%.2f", rand.Float64()*10000),
		CurrentBalance:    fmt.Sprintf("%.2f", rand.Float64()*10000),
		AddressLine1:      fmt.Sprintf("%d Main St", custSeq%999+1),
		City:              "Toronto",
		State:             "ON",
		Zip:               "M5V 2T6",
		Country:           "CA",
	}
}
