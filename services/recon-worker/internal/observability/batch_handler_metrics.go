package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BatchesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recon_batch_handler",
			Name:      "batches_received_total",
			Help:      "Kafka batch messages pulled by the worker",
		},
		[]string{"topic"},
	)

	BatchesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recon_batch_handler",
			Name:      "processed_total",
			Help:      "Successfully reconciled batches",
		},
		[]string{"topic"},
	)

	BatchesFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recon_batch_handler",
			Name:      "failed_total",
			Help:      "Failed batches by reason",
		},
		[]string{"topic", "reason"},
	)

	DLQPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recon_batch_handler",
			Name:      "dlq_total",
			Help:      "Batches sent to DLQ by reason",
		},
		[]string{"topic", "reason"},
	)

	ProcessLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "recon_batch_handler",
			Name:      "process_duration_seconds",
			Help:      "End-to-end reconciliation latency per batch",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"topic"},
	)

	InflightBatches = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "recon_batch_handler",
			Name:      "inflight_batches",
			Help:      "Number of batches currently being processed (semaphore depth)",
		},
	)

	CustomersUpdated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "recon_batch_handler",
			Name:      "customers_updated_total",
			Help:      "Customer rows updated across all batches",
		},
	)

	CustomersInserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "recon_batch_handler",
			Name:      "customers_inserted_total",
			Help:      "Customer rows inserted across all batches",
		},
	)

	AccountsUpdated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "recon_batch_handler",
			Name:      "accounts_updated_total",
			Help:      "Account rows updated across all batches",
		},
	)

	AccountsInserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "recon_batch_handler",
			Name:      "accounts_inserted_total",
			Help:      "Account rows inserted across all batches",
		},
	)

	RecordsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "recon_batch_handler",
			Name:      "records_skipped_total",
			Help:      "Records dropped under the skip-and-report policy",
		},
	)
)
