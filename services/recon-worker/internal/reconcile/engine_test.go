package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/ledgerline/recon-worker/pkg"
	"github.com/ledgerline/recon-worker/pkg/models"
	"github.com/ledgerline/recon-worker/pkg/views"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeCustomerStore is an in-memory CustomerStore that records write calls.
type fakeCustomerStore struct {
	byExternalID map[string]models.Customer

	updateCalls []map[uuid.UUID]models.CustomerAttrs
	insertCalls [][]models.Customer
	keyMapCalls int
	failFetch   error
}

func newFakeCustomerStore(existing ...models.Customer) *fakeCustomerStore {
	s := &fakeCustomerStore{byExternalID: map[string]models.Customer{}}
	for _, c := range existing {
		s.byExternalID[c.ExternalID] = c
	}
	return s
}

func (s *fakeCustomerStore) FetchByExternalIDs(_ context.Context, ids []string) (map[string]models.Customer, error) {
	if s.failFetch != nil {
		return nil, s.failFetch
	}
	out := map[string]models.Customer{}
	for _, id := range ids {
		if c, ok := s.byExternalID[id]; ok {
			out[id] = c
		}
	}
	return out, nil
}

func (s *fakeCustomerStore) UpdateMany(_ context.Context, updates map[uuid.UUID]models.CustomerAttrs) error {
	s.updateCalls = append(s.updateCalls, updates)
	for _, c := range s.byExternalID {
		if attrs, ok := updates[c.ID]; ok {
			c.CustomerAttrs = attrs
			s.byExternalID[attrs.ExternalID] = c
		}
	}
	return nil
}

func (s *fakeCustomerStore) InsertMany(_ context.Context, customers []models.Customer) error {
	s.insertCalls = append(s.insertCalls, customers)
	for _, c := range customers {
		s.byExternalID[c.ExternalID] = c
	}
	return nil
}

func (s *fakeCustomerStore) KeyMap(_ context.Context, ids []string) (map[string]uuid.UUID, error) {
	s.keyMapCalls++
	out := map[string]uuid.UUID{}
	for _, id := range ids {
		if c, ok := s.byExternalID[id]; ok {
			out[id] = c.ID
		}
	}
	return out, nil
}

// fakeAccountStore mirrors fakeCustomerStore for accounts.
type fakeAccountStore struct {
	byNumber map[string]models.Account

	updateCalls []map[uuid.UUID]models.AccountAttrs
	insertCalls [][]models.Account
}

func newFakeAccountStore(existing ...models.Account) *fakeAccountStore {
	s := &fakeAccountStore{byNumber: map[string]models.Account{}}
	for _, a := range existing {
		s.byNumber[a.AccountNumber] = a
	}
	return s
}

func (s *fakeAccountStore) FetchByNumbers(_ context.Context, numbers []string) (map[string]models.Account, error) {
	out := map[string]models.Account{}
	for _, n := range numbers {
		if a, ok := s.byNumber[n]; ok {
			out[n] = a
		}
	}
	return out, nil
}

func (s *fakeAccountStore) UpdateMany(_ context.Context, updates map[uuid.UUID]models.AccountAttrs) error {
	s.updateCalls = append(s.updateCalls, updates)
	for _, a := range s.byNumber {
		if attrs, ok := updates[a.ID]; ok {
			a.AccountAttrs = attrs
			s.byNumber[attrs.AccountNumber] = a
		}
	}
	return nil
}

func (s *fakeAccountStore) InsertMany(_ context.Context, accounts []models.Account) error {
	s.insertCalls = append(s.insertCalls, accounts)
	for _, a := range accounts {
		s.byNumber[a.AccountNumber] = a
	}
	return nil
}

func customerAttrs(externalID, holder string) models.CustomerAttrs {
	return models.CustomerAttrs{
		ExternalID:   externalID,
		HolderName:   holder,
		EntityName:   "Ledgerline Trust",
		OfficeName:   "Office 1",
		AddressLine1: "1 Main St",
		City:         "Toronto",
		State:        "ON",
		Zip:          "M5V 2T6",
		Country:      "CA",
	}
}

func accountRecord(owner, number string) views.AccountRecord {
	return views.AccountRecord{
		OwnerExternalID:  owner,
		AccountNumber:    number,
		MajorType:        "DDA",
		MinorType:        "CHK",
		Status:           "OPEN",
		AvailableBalance: decimal.NewFromInt(100),
		CurrentBalance:   decimal.NewFromInt(120),
	}
}

func TestReconcileBatch_InsertsNewCustomerAndAccount(t *testing.T) {
	custStore := newFakeCustomerStore()
	acctStore := newFakeAccountStore()
	engine := NewEngine(zap.NewNop(), custStore, acctStore, pkg.PolicyAbortAll)

	sum, err := engine.ReconcileBatch(context.Background(),
		[]models.CustomerAttrs{customerAttrs("C1", "Ada")},
		[]views.AccountRecord{accountRecord("C1", "1000000001")})
	require.NoError(t, err)

	assert.Equal(t, 1, sum.CustomersInserted)
	assert.Equal(t, 1, sum.AccountsInserted)
	assert.Zero(t, sum.CustomersUpdated)
	assert.Zero(t, sum.AccountsUpdated)
	assert.Zero(t, sum.RecordsSkipped)

	// Account owner must resolve to the surrogate key the customer phase minted.
	require.Len(t, acctStore.insertCalls, 1)
	inserted := acctStore.insertCalls[0][0]
	assert.Equal(t, custStore.byExternalID["C1"].ID, inserted.CustomerID)
	assert.NotEqual(t, uuid.Nil, inserted.ID)
	assert.Equal(t, 1, custStore.keyMapCalls)
}

func TestReconcileBatch_IdenticalResubmitWritesNoCustomers(t *testing.T) {
	attrs := customerAttrs("C1", "Ada")
	existing := models.Customer{ID: uuid.New(), CustomerAttrs: attrs}
	existingAcct := models.Account{
		ID: uuid.New(),
		AccountAttrs: models.AccountAttrs{
			AccountNumber:    "1000000001",
			CustomerID:       existing.ID,
			Status:           "OPEN",
			AvailableBalance: decimal.NewFromInt(100),
			CurrentBalance:   decimal.NewFromInt(120),
		},
	}
	custStore := newFakeCustomerStore(existing)
	acctStore := newFakeAccountStore(existingAcct)
	engine := NewEngine(zap.NewNop(), custStore, acctStore, pkg.PolicyAbortAll)

	sum, err := engine.ReconcileBatch(context.Background(),
		[]models.CustomerAttrs{attrs},
		[]views.AccountRecord{accountRecord("C1", "1000000001")})
	require.NoError(t, err)

	// Customer side is a no-op, but accounts are always overwritten.
	assert.Zero(t, sum.CustomersUpdated)
	assert.Zero(t, sum.CustomersInserted)
	assert.Equal(t, 1, sum.AccountsUpdated)
	assert.Empty(t, custStore.updateCalls)
	assert.Empty(t, custStore.insertCalls)
	require.Len(t, acctStore.updateCalls, 1)
	assert.Contains(t, acctStore.updateCalls[0], existingAcct.ID)
}

func TestReconcileBatch_ChangedCustomerIsUpdated(t *testing.T) {
	existing := models.Customer{ID: uuid.New(), CustomerAttrs: customerAttrs("C1", "Ada")}
	custStore := newFakeCustomerStore(existing)
	acctStore := newFakeAccountStore()
	engine := NewEngine(zap.NewNop(), custStore, acctStore, pkg.PolicyAbortAll)

	changed := customerAttrs("C1", "Ada B.")
	sum, err := engine.ReconcileBatch(context.Background(),
		[]models.CustomerAttrs{changed}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, sum.CustomersUpdated)
	require.Len(t, custStore.updateCalls, 1)
	assert.Equal(t, changed, custStore.updateCalls[0][existing.ID])
}

func TestReconcileBatch_DuplicateKeysResolveLastWriteWins(t *testing.T) {
	existing := models.Customer{ID: uuid.New(), CustomerAttrs: customerAttrs("C1", "Ada")}
	custStore := newFakeCustomerStore(existing)
	acctStore := newFakeAccountStore()
	engine := NewEngine(zap.NewNop(), custStore, acctStore, pkg.PolicyAbortAll)

	// First duplicate differs, second is identical to the stored row. The
	// later record wins, so no customer write happens at all.
	sum, err := engine.ReconcileBatch(context.Background(),
		[]models.CustomerAttrs{customerAttrs("C1", "Changed"), customerAttrs("C1", "Ada")}, nil)
	require.NoError(t, err)
	assert.Zero(t, sum.CustomersUpdated)
	assert.Empty(t, custStore.updateCalls)

	// New customer duplicated within the batch collapses to one insert
	// carrying the last record's attributes.
	custStore = newFakeCustomerStore()
	engine = NewEngine(zap.NewNop(), custStore, acctStore, pkg.PolicyAbortAll)
	sum, err = engine.ReconcileBatch(context.Background(),
		[]models.CustomerAttrs{customerAttrs("C2", "First"), customerAttrs("C2", "Second")}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.CustomersInserted)
	require.Len(t, custStore.insertCalls, 1)
	require.Len(t, custStore.insertCalls[0], 1)
	assert.Equal(t, "Second", custStore.insertCalls[0][0].HolderName)
}

func TestReconcileBatch_UnresolvableOwnerAbortsBatch(t *testing.T) {
	custStore := newFakeCustomerStore()
	acctStore := newFakeAccountStore()
	engine := NewEngine(zap.NewNop(), custStore, acctStore, pkg.PolicyAbortAll)

	_, err := engine.ReconcileBatch(context.Background(), nil,
		[]views.AccountRecord{accountRecord("GHOST", "1000000001")})
	require.Error(t, err)

	var appErr pkg.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, pkg.ErrReferentialIntegrityCode.Code, appErr.Code.Code)
	assert.Empty(t, acctStore.insertCalls)
	assert.Empty(t, acctStore.updateCalls)
}

func TestReconcileBatch_UnresolvableOwnerSkippedUnderPolicy(t *testing.T) {
	existing := models.Customer{ID: uuid.New(), CustomerAttrs: customerAttrs("C1", "Ada")}
	custStore := newFakeCustomerStore(existing)
	acctStore := newFakeAccountStore()
	engine := NewEngine(zap.NewNop(), custStore, acctStore, pkg.PolicySkipAndReport)

	sum, err := engine.ReconcileBatch(context.Background(), nil,
		[]views.AccountRecord{
			accountRecord("GHOST", "1000000001"),
			accountRecord("C1", "1000000002"),
		})
	require.NoError(t, err)

	assert.Equal(t, 1, sum.RecordsSkipped)
	assert.Equal(t, 1, sum.AccountsInserted)
	require.Len(t, acctStore.insertCalls, 1)
	assert.Equal(t, "1000000002", acctStore.insertCalls[0][0].AccountNumber)
}

func TestReconcileBatch_OwnerOutsideBatchStillResolves(t *testing.T) {
	existing := models.Customer{ID: uuid.New(), CustomerAttrs: customerAttrs("C9", "Grace")}
	custStore := newFakeCustomerStore(existing)
	acctStore := newFakeAccountStore()
	engine := NewEngine(zap.NewNop(), custStore, acctStore, pkg.PolicyAbortAll)

	// The batch carries no customer record for C9, but the store knows it.
	sum, err := engine.ReconcileBatch(context.Background(), nil,
		[]views.AccountRecord{accountRecord("C9", "1000000003")})
	require.NoError(t, err)

	assert.Equal(t, 1, sum.AccountsInserted)
	assert.Equal(t, existing.ID, acctStore.insertCalls[0][0].CustomerID)
}

func TestReconcileBatch_EmptyBatchTouchesNothing(t *testing.T) {
	custStore := newFakeCustomerStore()
	acctStore := newFakeAccountStore()
	engine := NewEngine(zap.NewNop(), custStore, acctStore, pkg.PolicyAbortAll)

	sum, err := engine.ReconcileBatch(context.Background(), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, Summary{}, sum)
	assert.Empty(t, custStore.updateCalls)
	assert.Empty(t, custStore.insertCalls)
	assert.Zero(t, custStore.keyMapCalls)
	assert.Empty(t, acctStore.updateCalls)
	assert.Empty(t, acctStore.insertCalls)
}

func TestReconcileBatch_StoreErrorAbortsBeforeAccounts(t *testing.T) {
	custStore := newFakeCustomerStore()
	custStore.failFetch = errors.New("connection refused")
	acctStore := newFakeAccountStore()
	engine := NewEngine(zap.NewNop(), custStore, acctStore, pkg.PolicyAbortAll)

	_, err := engine.ReconcileBatch(context.Background(),
		[]models.CustomerAttrs{customerAttrs("C1", "Ada")},
		[]views.AccountRecord{accountRecord("C1", "1000000001")})
	require.Error(t, err)
	assert.Empty(t, acctStore.insertCalls)
	assert.Empty(t, acctStore.updateCalls)
}
