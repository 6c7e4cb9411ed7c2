package reconcile

import (
	"context"

	"github.com/google/uuid"
	"github.com/ledgerline/recon-worker/pkg/models"
)

// CustomerStore is the engine's contract with the customer side of the entity
// store. Every call is a single batched round trip and, for writes, a single
// atomic unit of work. Satisfied by repositories.CustomerRepository.
type CustomerStore interface {
	FetchByExternalIDs(ctx context.Context, externalIDs []string) (map[string]models.Customer, error)
	UpdateMany(ctx context.Context, updates map[uuid.UUID]models.CustomerAttrs) error
	InsertMany(ctx context.Context, customers []models.Customer) error
	// KeyMap must read the committed state: it is the only way freshly
	// inserted customers acquire surrogate keys for account resolution.
	KeyMap(ctx context.Context, externalIDs []string) (map[string]uuid.UUID, error)
}

// AccountStore is the account side of the entity store.
// Satisfied by repositories.AccountRepository.
type AccountStore interface {
	FetchByNumbers(ctx context.Context, accountNumbers []string) (map[string]models.Account, error)
	UpdateMany(ctx context.Context, updates map[uuid.UUID]models.AccountAttrs) error
	InsertMany(ctx context.Context, accounts []models.Account) error
}
