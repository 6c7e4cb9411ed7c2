package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerline/recon-worker/pkg"
	"github.com/ledgerline/recon-worker/pkg/models"
	"github.com/ledgerline/recon-worker/pkg/views"
	"go.uber.org/zap"
)

// Engine reconciles one batch of normalized records against the entity store.
// Customers commit first; the account phase starts only after the customer
// writes are durable and the external-id -> surrogate-key mapping has been
// re-read, so accounts never carry a dangling or placeholder owner reference.
type Engine struct {
	logger    *zap.Logger
	customers CustomerStore
	accounts  AccountStore
	policy    pkg.BatchPolicy
}

func NewEngine(logger *zap.Logger, customers CustomerStore, accounts AccountStore, policy pkg.BatchPolicy) *Engine {
	return &Engine{
		logger:    logger,
		customers: customers,
		accounts:  accounts,
		policy:    policy,
	}
}

// ReconcileBatch runs both phases for one batch and returns a write summary.
// Any store or resolution failure aborts the remaining stages of the batch.
func (e *Engine) ReconcileBatch(ctx context.Context, customers []models.CustomerAttrs, accounts []views.AccountRecord) (Summary, error) {
	var sum Summary

	// Customer phase: one batched lookup, ordered diff, two batched writes.
	externalIDs := customerExternalIDs(customers)
	existing, err := e.customers.FetchByExternalIDs(ctx, externalIDs)
	if err != nil {
		return sum, err
	}
	custPlan := e.planCustomers(existing, customers)

	if len(custPlan.Updates) > 0 {
		if err = e.customers.UpdateMany(ctx, custPlan.Updates); err != nil {
			return sum, err
		}
	}
	if len(custPlan.Inserts) > 0 {
		if err = e.customers.InsertMany(ctx, custPlan.Inserts); err != nil {
			return sum, err
		}
	}
	sum.CustomersUpdated = len(custPlan.Updates)
	sum.CustomersInserted = len(custPlan.Inserts)

	// Key resolution: a fresh read, never reused from the diff lookup, since
	// customers inserted above had no surrogate keys before this point.
	keys := map[string]uuid.UUID{}
	ownerIDs := ownerExternalIDs(externalIDs, accounts)
	if len(ownerIDs) > 0 {
		keys, err = e.customers.KeyMap(ctx, ownerIDs)
		if err != nil {
			return sum, err
		}
	}

	// Account phase.
	numbers := accountNumbers(accounts)
	existingAccounts, err := e.accounts.FetchByNumbers(ctx, numbers)
	if err != nil {
		return sum, err
	}
	acctPlan, skipped, err := e.planAccounts(existingAccounts, accounts, keys)
	if err != nil {
		return sum, err
	}
	sum.RecordsSkipped = skipped

	if len(acctPlan.Updates) > 0 {
		if err = e.accounts.UpdateMany(ctx, acctPlan.Updates); err != nil {
			return sum, err
		}
	}
	if len(acctPlan.Inserts) > 0 {
		if err = e.accounts.InsertMany(ctx, acctPlan.Inserts); err != nil {
			return sum, err
		}
	}
	sum.AccountsUpdated = len(acctPlan.Updates)
	sum.AccountsInserted = len(acctPlan.Inserts)

	return sum, nil
}

// planCustomers folds the batch in order, keyed by external id, so duplicate
// identifiers resolve last-write-wins. A record identical to its stored row
// produces no write; it also cancels any update an earlier duplicate queued.
func (e *Engine) planCustomers(existing map[string]models.Customer, records []models.CustomerAttrs) CustomerPlan {
	plan := CustomerPlan{Updates: make(map[uuid.UUID]models.CustomerAttrs)}
	pendingNew := make(map[string]int) // external id -> index into plan.Inserts

	for _, rec := range records {
		if cur, ok := existing[rec.ExternalID]; ok {
			if cur.CustomerAttrs == rec {
				delete(plan.Updates, cur.ID)
				continue
			}
			plan.Updates[cur.ID] = rec
			continue
		}
		if i, ok := pendingNew[rec.ExternalID]; ok {
			plan.Inserts[i].CustomerAttrs = rec
			continue
		}
		now := time.Now().UTC()
		plan.Inserts = append(plan.Inserts, models.Customer{
			ID:            uuid.New(),
			CustomerAttrs: rec,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
		pendingNew[rec.ExternalID] = len(plan.Inserts) - 1
	}
	return plan
}

// planAccounts resolves each record's owner through the committed key map and
// builds the write plan. Existing accounts are overwritten unconditionally.
// An unresolvable owner is fatal for the batch under abort-all, or dropped
// and counted under skip-and-report.
func (e *Engine) planAccounts(existing map[string]models.Account, records []views.AccountRecord, keys map[string]uuid.UUID) (AccountPlan, int, error) {
	plan := AccountPlan{Updates: make(map[uuid.UUID]models.AccountAttrs)}
	pendingNew := make(map[string]int)
	skipped := 0

	for _, rec := range records {
		ownerID, ok := keys[rec.OwnerExternalID]
		if !ok {
			if e.policy == pkg.PolicySkipAndReport {
				e.logger.Warn("skipping account with unresolvable owner",
					zap.String(pkg.AccountNumber, rec.AccountNumber),
					zap.String(pkg.ExternalId, rec.OwnerExternalID))
				skipped++
				continue
			}
			return plan, skipped, pkg.NewAppError(pkg.ErrReferentialIntegrityCode,
				fmt.Sprintf("account %s references unknown customer %s", rec.AccountNumber, rec.OwnerExternalID), nil)
		}

		attrs := models.AccountAttrs{
			AccountNumber:    rec.AccountNumber,
			CustomerID:       ownerID,
			DateOpened:       rec.DateOpened,
			MajorType:        rec.MajorType,
			MinorType:        rec.MinorType,
			Status:           rec.Status,
			AvailableBalance: rec.AvailableBalance,
			CurrentBalance:   rec.CurrentBalance,
		}

		if cur, ok := existing[rec.AccountNumber]; ok {
			plan.Updates[cur.ID] = attrs
			continue
		}
		if i, ok := pendingNew[rec.AccountNumber]; ok {
			plan.Inserts[i].AccountAttrs = attrs
			continue
		}
		now := time.Now().UTC()
		plan.Inserts = append(plan.Inserts, models.Account{
			ID:           uuid.New(),
			AccountAttrs: attrs,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
		pendingNew[rec.AccountNumber] = len(plan.Inserts) - 1
	}
	return plan, skipped, nil
}

func customerExternalIDs(records []models.CustomerAttrs) []string {
	seen := make(map[string]struct{}, len(records))
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		if _, ok := seen[rec.ExternalID]; ok {
			continue
		}
		seen[rec.ExternalID] = struct{}{}
		ids = append(ids, rec.ExternalID)
	}
	return ids
}

// ownerExternalIDs is the union of the batch's customer ids and the owners its
// accounts reference. An owner outside the batch may still resolve if the
// customer already exists in the store.
func ownerExternalIDs(customerIDs []string, accounts []views.AccountRecord) []string {
	seen := make(map[string]struct{}, len(customerIDs))
	ids := make([]string, 0, len(customerIDs))
	for _, id := range customerIDs {
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for _, rec := range accounts {
		if _, ok := seen[rec.OwnerExternalID]; ok {
			continue
		}
		seen[rec.OwnerExternalID] = struct{}{}
		ids = append(ids, rec.OwnerExternalID)
	}
	return ids
}

func accountNumbers(records []views.AccountRecord) []string {
	seen := make(map[string]struct{}, len(records))
	numbers := make([]string, 0, len(records))
	for _, rec := range records {
		if _, ok := seen[rec.AccountNumber]; ok {
			continue
		}
		seen[rec.AccountNumber] = struct{}{}
		numbers = append(numbers, rec.AccountNumber)
	}
	return numbers
}
