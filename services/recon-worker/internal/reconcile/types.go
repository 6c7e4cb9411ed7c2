package reconcile

import (
	"github.com/google/uuid"
	"github.com/ledgerline/recon-worker/pkg/models"
)

// CustomerPlan is the outcome of the customer diff phase: attribute sets to
// write keyed by surrogate key, and brand-new customers to create. Records
// identical to their stored row appear in neither.
type CustomerPlan struct {
	Updates map[uuid.UUID]models.CustomerAttrs
	Inserts []models.Customer
}

// AccountPlan mirrors CustomerPlan for accounts. Existing accounts are always
// queued for update, there is no unchanged bucket.
type AccountPlan struct {
	Updates map[uuid.UUID]models.AccountAttrs
	Inserts []models.Account
}

// Summary reports what a batch actually did, for logging and metrics.
type Summary struct {
	CustomersUpdated  int `json:"customers_updated"`
	CustomersInserted int `json:"customers_inserted"`
	AccountsUpdated   int `json:"accounts_updated"`
	AccountsInserted  int `json:"accounts_inserted"`
	RecordsSkipped    int `json:"records_skipped"`
}
