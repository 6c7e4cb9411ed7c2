package services

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerline/recon-worker/pkg"
	"github.com/ledgerline/recon-worker/pkg/models"
	"github.com/ledgerline/recon-worker/pkg/utils"
	"github.com/ledgerline/recon-worker/pkg/views"
	"github.com/ledgerline/recon-worker/services/recon-worker/configs"
	"github.com/ledgerline/recon-worker/services/recon-worker/internal/reconcile"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubCustomerStore records inserts and resolves their keys, enough for the
// engine to run a batch end to end.
type stubCustomerStore struct {
	keys     map[string]uuid.UUID
	inserted [][]models.Customer
}

func newStubCustomerStore() *stubCustomerStore {
	return &stubCustomerStore{keys: map[string]uuid.UUID{}}
}

func (s *stubCustomerStore) FetchByExternalIDs(_ context.Context, _ []string) (map[string]models.Customer, error) {
	return map[string]models.Customer{}, nil
}

func (s *stubCustomerStore) UpdateMany(_ context.Context, _ map[uuid.UUID]models.CustomerAttrs) error {
	return nil
}

func (s *stubCustomerStore) InsertMany(_ context.Context, customers []models.Customer) error {
	s.inserted = append(s.inserted, customers)
	for _, c := range customers {
		s.keys[c.ExternalID] = c.ID
	}
	return nil
}

func (s *stubCustomerStore) KeyMap(_ context.Context, ids []string) (map[string]uuid.UUID, error) {
	out := map[string]uuid.UUID{}
	for _, id := range ids {
		if k, ok := s.keys[id]; ok {
			out[id] = k
		}
	}
	return out, nil
}

type stubAccountStore struct {
	inserted [][]models.Account
}

func (s *stubAccountStore) FetchByNumbers(_ context.Context, _ []string) (map[string]models.Account, error) {
	return map[string]models.Account{}, nil
}

func (s *stubAccountStore) UpdateMany(_ context.Context, _ map[uuid.UUID]models.AccountAttrs) error {
	return nil
}

func (s *stubAccountStore) InsertMany(_ context.Context, accounts []models.Account) error {
	s.inserted = append(s.inserted, accounts)
	return nil
}

// fakeGuard is an in-memory RedeliveryGuard.
type fakeGuard struct {
	existing map[string]struct{}
	setKeys  []string
	failWith error
}

func (g *fakeGuard) Exists(_ context.Context, keys ...string) *redis.IntCmd {
	if g.failWith != nil {
		return redis.NewIntResult(0, g.failWith)
	}
	var n int64
	for _, k := range keys {
		if _, ok := g.existing[k]; ok {
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (g *fakeGuard) Set(_ context.Context, key string, _ interface{}, _ time.Duration) *redis.StatusCmd {
	g.setKeys = append(g.setKeys, key)
	return redis.NewStatusResult("OK", nil)
}

type processorFixture struct {
	processor BatchProcessor
	customers *stubCustomerStore
	accounts  *stubAccountStore
	guard     *fakeGuard
	key       []byte
}

func newProcessorFixture(t *testing.T, policy pkg.BatchPolicy, guard *fakeGuard) processorFixture {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	customers := newStubCustomerStore()
	accounts := &stubAccountStore{}
	processor := NewBatchProcessor(BatchProcessorConfig{
		Logger:        zap.NewNop(),
		Config:        &configs.Config{BatchPolicy: policy, ProcessedRetention: time.Minute},
		Normalizer:    NewNormalizer(),
		Engine:        reconcile.NewEngine(zap.NewNop(), customers, accounts, policy),
		RedisClient:   guard,
		EncryptionKey: key,
	})
	return processorFixture{
		processor: processor,
		customers: customers,
		accounts:  accounts,
		guard:     guard,
		key:       key,
	}
}

func encryptedEnvelope(t *testing.T, key []byte, records []views.RawRecord) views.BatchMessage {
	t.Helper()
	plaintext, err := json.Marshal(records)
	require.NoError(t, err)
	payload, err := utils.EncryptAES(plaintext, key)
	require.NoError(t, err)
	return views.BatchMessage{
		BatchID:    uuid.New(),
		ProducedAt: time.Now().UTC(),
		Payload:    payload,
	}
}

func TestProcessBatch_MalformedRecordHonorsPolicy(t *testing.T) {
	malformed := validRawRecord()
	malformed.DateOpened = "not-a-date"
	records := []views.RawRecord{validRawRecord(), malformed}

	t.Run("abort-all fails the whole batch", func(t *testing.T) {
		fix := newProcessorFixture(t, pkg.PolicyAbortAll, &fakeGuard{})
		msg := encryptedEnvelope(t, fix.key, records)

		err := fix.processor.ProcessBatch(context.Background(), msg)
		require.Error(t, err)
		var appErr pkg.AppError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, pkg.ErrValidationCode.Code, appErr.Code.Code)

		// Nothing reached the store and the batch is not marked processed.
		assert.Empty(t, fix.customers.inserted)
		assert.Empty(t, fix.accounts.inserted)
		assert.Empty(t, fix.guard.setKeys)
	})

	t.Run("skip-and-report drops the record and continues", func(t *testing.T) {
		fix := newProcessorFixture(t, pkg.PolicySkipAndReport, &fakeGuard{})
		msg := encryptedEnvelope(t, fix.key, records)

		err := fix.processor.ProcessBatch(context.Background(), msg)
		require.NoError(t, err)

		// The valid record lands; the malformed one is dropped.
		require.Len(t, fix.customers.inserted, 1)
		assert.Len(t, fix.customers.inserted[0], 1)
		require.Len(t, fix.accounts.inserted, 1)
		assert.Len(t, fix.accounts.inserted[0], 1)
		assert.Len(t, fix.guard.setKeys, 1)
	})
}

func TestProcessBatch_UndecryptablePayload(t *testing.T) {
	fix := newProcessorFixture(t, pkg.PolicyAbortAll, &fakeGuard{})
	otherKey := make([]byte, 32)
	_, err := rand.Read(otherKey)
	require.NoError(t, err)
	msg := encryptedEnvelope(t, otherKey, []views.RawRecord{validRawRecord()})

	err = fix.processor.ProcessBatch(context.Background(), msg)
	require.Error(t, err)
	var appErr pkg.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, pkg.ErrTransportUndecryptableCode.Code, appErr.Code.Code)
}

func TestProcessBatch_UnparseablePayload(t *testing.T) {
	fix := newProcessorFixture(t, pkg.PolicyAbortAll, &fakeGuard{})
	payload, err := utils.EncryptAES([]byte("not json"), fix.key)
	require.NoError(t, err)
	msg := views.BatchMessage{BatchID: uuid.New(), Payload: payload}

	err = fix.processor.ProcessBatch(context.Background(), msg)
	require.Error(t, err)
	var appErr pkg.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, pkg.ErrTransportUnparseableCode.Code, appErr.Code.Code)
}

func TestProcessBatch_RedeliveryIsNoOp(t *testing.T) {
	guard := &fakeGuard{existing: map[string]struct{}{}}
	fix := newProcessorFixture(t, pkg.PolicyAbortAll, guard)
	msg := encryptedEnvelope(t, fix.key, []views.RawRecord{validRawRecord()})
	guard.existing[processedKeyPrefix+msg.BatchID.String()] = struct{}{}

	err := fix.processor.ProcessBatch(context.Background(), msg)
	require.NoError(t, err)
	assert.Empty(t, fix.customers.inserted)
	assert.Empty(t, fix.accounts.inserted)
	assert.Empty(t, guard.setKeys)
}

func TestProcessBatch_GuardOutageDoesNotBlock(t *testing.T) {
	guard := &fakeGuard{failWith: errors.New("connection refused")}
	fix := newProcessorFixture(t, pkg.PolicyAbortAll, guard)
	msg := encryptedEnvelope(t, fix.key, []views.RawRecord{validRawRecord()})

	err := fix.processor.ProcessBatch(context.Background(), msg)
	require.NoError(t, err)
	require.Len(t, fix.customers.inserted, 1)
}
