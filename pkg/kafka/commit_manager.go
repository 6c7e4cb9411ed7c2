package kafkautils

import (
	"sync"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/google/uuid"
	"github.com/ledgerline/recon-worker/pkg"
	"go.uber.org/zap"
)

type tp struct {
	topic     string
	partition int32
}

// OffsetCommitter is the slice of *kafka.Consumer the manager needs.
type OffsetCommitter interface {
	CommitOffsets(offsets []kafka.TopicPartition) ([]kafka.TopicPartition, error)
}

// CommitManager commits offsets in partition order even when batches finish
// out of order: an offset is committed only once every lower offset on the
// same partition has been acknowledged.
type CommitManager struct {
	mu       sync.Mutex
	high     map[tp]int64              // last committed offset per partition
	done     map[tp]map[int64]struct{} // processed offsets not yet committed
	consumer OffsetCommitter
	log      *zap.Logger
}

func NewCommitManager(c OffsetCommitter, l *zap.Logger) *CommitManager {
	return &CommitManager{
		high:     make(map[tp]int64),
		done:     make(map[tp]map[int64]struct{}),
		consumer: c,
		log:      l,
	}
}

// Track registers a message as it is read, before processing is dispatched.
// The consumer delivers messages in offset order per partition, so the first
// tracked offset is the resume point the commit prefix anchors to.
func (m *CommitManager) Track(msg *kafka.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := tp{topic: *msg.TopicPartition.Topic, partition: msg.TopicPartition.Partition}
	m.anchor(key, int64(msg.TopicPartition.Offset))
}

// anchor prepares a partition the first time it is seen. Offsets below the
// anchor were committed by a previous session and are never revisited.
func (m *CommitManager) anchor(key tp, off int64) {
	if m.done[key] == nil {
		m.done[key] = map[int64]struct{}{}
		m.high[key] = off - 1
	}
}

func (m *CommitManager) Ack(batchID uuid.UUID, msg *kafka.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.log.Debug("offsetting_message",
		zap.Any(pkg.BatchId, batchID),
		zap.String("topic", *msg.TopicPartition.Topic),
		zap.Int32("partition", msg.TopicPartition.Partition),
		zap.Int64("offset", int64(msg.TopicPartition.Offset)))

	key := tp{topic: *msg.TopicPartition.Topic, partition: msg.TopicPartition.Partition}
	off := int64(msg.TopicPartition.Offset)

	m.anchor(key, off)
	m.done[key][off] = struct{}{}

	next := m.high[key]
	for {
		if _, ok := m.done[key][next+1]; ok {
			next++
			delete(m.done[key], next)
		} else {
			break
		}
	}

	if next > m.high[key] {
		tpToCommit := kafka.TopicPartition{Topic: &key.topic, Partition: key.partition, Offset: kafka.Offset(next + 1)}
		if _, err := m.consumer.CommitOffsets([]kafka.TopicPartition{tpToCommit}); err != nil {
			m.log.Error("offset_commit_failed",
				zap.Any(pkg.BatchId, batchID),
				zap.String("topic", key.topic),
				zap.Int32("partition", key.partition),
				zap.Int64("attempted_offset", next), zap.Error(err))
			return
		}
		m.high[key] = next
		m.log.Info("offset_committed",
			zap.Any(pkg.BatchId, batchID),
			zap.String("topic", key.topic),
			zap.Int32("partition", key.partition),
			zap.Int64("offset", next))
	}
}
