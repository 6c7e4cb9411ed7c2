package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/ledgerline/recon-worker/pkg"
	"github.com/ledgerline/recon-worker/pkg/database"
	"github.com/ledgerline/recon-worker/pkg/models"
	"go.uber.org/zap"
)

// AccountRepository is the store gateway for accounts. No KeyMap here: nothing
// downstream depends on account surrogate keys.
type AccountRepository interface {
	// FetchByNumbers returns stored accounts keyed by account number.
	FetchByNumbers(ctx context.Context, accountNumbers []string) (map[string]models.Account, error)
	// UpdateMany applies one batched update keyed by surrogate key.
	UpdateMany(ctx context.Context, updates map[uuid.UUID]models.AccountAttrs) error
	// InsertMany bulk-inserts new accounts.
	InsertMany(ctx context.Context, accounts []models.Account) error
}

type AccountRepositoryImpl struct {
	logger *zap.Logger
	db     *database.DB
}

func NewAccountRepository(logger *zap.Logger, db *database.DB) AccountRepository {
	return &AccountRepositoryImpl{logger: logger, db: db}
}

func (r *AccountRepositoryImpl) FetchByNumbers(ctx context.Context, accountNumbers []string) (map[string]models.Account, error) {
	out := make(map[string]models.Account, len(accountNumbers))
	if len(accountNumbers) == 0 {
		return out, nil
	}
	rows, err := r.db.Query(ctx, `SELECT id, account_number, customer_id, date_opened, major_type, minor_type,
			status, available_balance, current_balance, created_at, updated_at
		FROM accounts WHERE account_number = ANY($1)`, accountNumbers)
	if err != nil {
		return nil, pkg.HandleSQLError(r.logger, err)
	}
	defer rows.Close()
	for rows.Next() {
		var a models.Account
		if err = rows.Scan(
			&a.ID,
			&a.AccountNumber,
			&a.CustomerID,
			&a.DateOpened,
			&a.MajorType,
			&a.MinorType,
			&a.Status,
			&a.AvailableBalance,
			&a.CurrentBalance,
			&a.CreatedAt,
			&a.UpdatedAt,
		); err != nil {
			return nil, pkg.HandleSQLError(r.logger, err)
		}
		out[a.AccountNumber] = a
	}
	if err = rows.Err(); err != nil {
		return nil, pkg.HandleSQLError(r.logger, err)
	}
	return out, nil
}

func (r *AccountRepositoryImpl) UpdateMany(ctx context.Context, updates map[uuid.UUID]models.AccountAttrs) error {
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		b := &pgx.Batch{}
		for id, attrs := range updates {
			b.Queue(`UPDATE accounts SET account_number = $2, customer_id = $3, date_opened = $4,
					major_type = $5, minor_type = $6, status = $7,
					available_balance = $8, current_balance = $9, updated_at = now()
				WHERE id = $1`,
				id,
				attrs.AccountNumber,
				attrs.CustomerID,
				attrs.DateOpened,
				attrs.MajorType,
				attrs.MinorType,
				attrs.Status,
				attrs.AvailableBalance,
				attrs.CurrentBalance,
			)
		}
		br := tx.SendBatch(ctx, b)
		for range updates {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return pkg.HandleSQLError(r.logger, err)
			}
		}
		return br.Close()
	})
}

func (r *AccountRepositoryImpl) InsertMany(ctx context.Context, accounts []models.Account) error {
	if len(accounts) == 0 {
		return nil
	}
	return r.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		rows := make([][]any, 0, len(accounts))
		for _, a := range accounts {
			rows = append(rows, []any{
				a.ID, a.AccountNumber, a.CustomerID, a.DateOpened, a.MajorType, a.MinorType,
				a.Status, a.AvailableBalance, a.CurrentBalance, a.CreatedAt, a.UpdatedAt,
			})
		}
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"accounts"},
			[]string{"id", "account_number", "customer_id", "date_opened", "major_type", "minor_type",
				"status", "available_balance", "current_balance", "created_at", "updated_at"},
			pgx.CopyFromRows(rows))
		if err != nil {
			return pkg.HandleSQLError(r.logger, err)
		}
		return nil
	})
}
