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

// CustomerRepository is the store gateway for customers. Each write method is
// one atomic unit of work; each fetch is one batched round trip.
type CustomerRepository interface {
	// FetchByExternalIDs returns stored customers keyed by external id.
	FetchByExternalIDs(ctx context.Context, externalIDs []string) (map[string]models.Customer, error)
	// UpdateMany applies one batched update keyed by surrogate key.
	UpdateMany(ctx context.Context, updates map[uuid.UUID]models.CustomerAttrs) error
	// InsertMany bulk-inserts new customers.
	InsertMany(ctx context.Context, customers []models.Customer) error
	// KeyMap resolves external id -> surrogate key against the primary, so it
	// observes writes committed in this session.
	KeyMap(ctx context.Context, externalIDs []string) (map[string]uuid.UUID, error)
}

type CustomerRepositoryImpl struct {
	logger *zap.Logger
	db     *database.DB
}

func NewCustomerRepository(logger *zap.Logger, db *database.DB) CustomerRepository {
	return &CustomerRepositoryImpl{logger: logger, db: db}
}

const customerColumns = `id, external_id, holder_name, entity_name, office_name, title,
		address_line1, address_line2, address_line3, city, state, zip, country, created_at, updated_at`

func (r *CustomerRepositoryImpl) FetchByExternalIDs(ctx context.Context, externalIDs []string) (map[string]models.Customer, error) {
	out := make(map[string]models.Customer, len(externalIDs))
	if len(externalIDs) == 0 {
		return out, nil
	}
	rows, err := r.db.Query(ctx, `SELECT `+customerColumns+` FROM customers WHERE external_id = ANY($1)`, externalIDs)
	if err != nil {
		return nil, pkg.HandleSQLError(r.logger, err)
	}
	defer rows.Close()
	for rows.Next() {
		var c models.Customer
		if err = rows.Scan(
			&c.ID,
			&c.ExternalID,
			&c.HolderName,
			&c.EntityName,
			&c.OfficeName,
			&c.Title,
			&c.AddressLine1,
			&c.AddressLine2,
			&c.AddressLine3,
			&c.City,
			&c.State,
			&c.Zip,
			&c.Country,
			&c.CreatedAt,
			&c.UpdatedAt,
		); err != nil {
			return nil, pkg.HandleSQLError(r.logger, err)
		}
		out[c.ExternalID] = c
	}
	if err = rows.Err(); err != nil {
		return nil, pkg.HandleSQLError(r.logger, err)
	}
	return out, nil
}

func (r *CustomerRepositoryImpl) UpdateMany(ctx context.Context, updates map[uuid.UUID]models.CustomerAttrs) error {
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		b := &pgx.Batch{}
		for id, attrs := range updates {
			b.Queue(`UPDATE customers SET external_id = $2, holder_name = $3, entity_name = $4, office_name = $5,
					title = $6, address_line1 = $7, address_line2 = $8, address_line3 = $9,
					city = $10, state = $11, zip = $12, country = $13, updated_at = now()
				WHERE id = $1`,
				id,
				attrs.ExternalID,
				attrs.HolderName,
				attrs.EntityName,
				attrs.OfficeName,
				attrs.Title,
				attrs.AddressLine1,
				attrs.AddressLine2,
				attrs.AddressLine3,
				attrs.City,
				attrs.State,
				attrs.Zip,
				attrs.Country,
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

func (r *CustomerRepositoryImpl) InsertMany(ctx context.Context, customers []models.Customer) error {
	if len(customers) == 0 {
		return nil
	}
	return r.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		rows := make([][]any, 0, len(customers))
		for _, c := range customers {
			rows = append(rows, []any{
				c.ID, c.ExternalID, c.HolderName, c.EntityName, c.OfficeName, c.Title,
				c.AddressLine1, c.AddressLine2, c.AddressLine3, c.City, c.State, c.Zip, c.Country,
				c.CreatedAt, c.UpdatedAt,
			})
		}
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"customers"},
			[]string{"id", "external_id", "holder_name", "entity_name", "office_name", "title",
				"address_line1", "address_line2", "address_line3", "city", "state", "zip", "country",
				"created_at", "updated_at"},
			pgx.CopyFromRows(rows))
		if err != nil {
			return pkg.HandleSQLError(r.logger, err)
		}
		return nil
	})
}

func (r *CustomerRepositoryImpl) KeyMap(ctx context.Context, externalIDs []string) (map[string]uuid.UUID, error) {
	out := make(map[string]uuid.UUID, len(externalIDs))
	if len(externalIDs) == 0 {
		return out, nil
	}
	rows, err := r.db.QueryPrimary(ctx, `SELECT external_id, id FROM customers WHERE external_id = ANY($1)`, externalIDs)
	if err != nil {
		return nil, pkg.HandleSQLError(r.logger, err)
	}
	defer rows.Close()
	for rows.Next() {
		var externalID string
		var id uuid.UUID
		if err = rows.Scan(&externalID, &id); err != nil {
			return nil, pkg.HandleSQLError(r.logger, err)
		}
		out[externalID] = id
	}
	if err = rows.Err(); err != nil {
		return nil, pkg.HandleSQLError(r.logger, err)
	}
	return out, nil
}
