// internal/catalog/postgres_repository.go
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	apperrors "lender-match-workers/internal/common/errors"
	"lender-match-workers/internal/models"
)

const createProductsTable = `
CREATE TABLE IF NOT EXISTS lender_products (
	id                 TEXT PRIMARY KEY,
	product_name       TEXT NOT NULL,
	lender_name        TEXT NOT NULL DEFAULT '',
	category           TEXT NOT NULL,
	country            TEXT NOT NULL DEFAULT '',
	geography          TEXT[] NOT NULL DEFAULT '{}',
	min_amount         NUMERIC NOT NULL DEFAULT 0,
	max_amount         NUMERIC,
	min_revenue        NUMERIC NOT NULL DEFAULT 0,
	industries         TEXT[] NOT NULL DEFAULT '{}',
	interest_rate      TEXT,
	description        TEXT,
	required_documents TEXT[] NOT NULL DEFAULT '{}',
	active             BOOLEAN NOT NULL DEFAULT TRUE,
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const selectActiveProducts = `
SELECT id, product_name, lender_name, category, country, geography,
       min_amount, max_amount, min_revenue, industries, interest_rate,
       description, required_documents, updated_at
FROM lender_products
WHERE active = TRUE
ORDER BY lender_name, product_name`

const upsertProduct = `
INSERT INTO lender_products (
	id, product_name, lender_name, category, country, geography,
	min_amount, max_amount, min_revenue, industries, interest_rate,
	description, required_documents, active, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
ON CONFLICT (id) DO UPDATE SET
	product_name = EXCLUDED.product_name,
	lender_name = EXCLUDED.lender_name,
	category = EXCLUDED.category,
	country = EXCLUDED.country,
	geography = EXCLUDED.geography,
	min_amount = EXCLUDED.min_amount,
	max_amount = EXCLUDED.max_amount,
	min_revenue = EXCLUDED.min_revenue,
	industries = EXCLUDED.industries,
	interest_rate = EXCLUDED.interest_rate,
	description = EXCLUDED.description,
	required_documents = EXCLUDED.required_documents,
	active = EXCLUDED.active,
	updated_at = EXCLUDED.updated_at`

const deactivateMissing = `
UPDATE lender_products
SET active = FALSE, updated_at = NOW()
WHERE active = TRUE AND NOT (id = ANY($1))`

// ErrEmptyKeepList stops DeactivateMissing from switching off the whole table.
var ErrEmptyKeepList = errors.New("refusing to deactivate every product")

// PostgresRepository is the durable copy of the catalog. It doubles as a
// Source when the staff API is not the primary.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Name() string { return SourcePostgres }

func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createProductsTable); err != nil {
		return queryError("create_table", err)
	}
	return nil
}

func (r *PostgresRepository) Fetch(ctx context.Context) ([]models.LenderProduct, error) {
	rows, err := r.db.QueryContext(ctx, selectActiveProducts)
	if err != nil {
		return nil, queryError("fetch_products", err)
	}
	defer rows.Close()

	var products []models.LenderProduct
	for rows.Next() {
		var (
			p            models.LenderProduct
			maxAmount    sql.NullFloat64
			interestRate sql.NullString
			description  sql.NullString
		)
		if err := rows.Scan(
			&p.ID, &p.Name, &p.LenderName, &p.Category, &p.Country,
			pq.Array(&p.Geography),
			&p.MinAmount, &maxAmount, &p.MinRevenue,
			pq.Array(&p.Industries),
			&interestRate, &description,
			pq.Array(&p.RequiredDocuments),
			&p.UpdatedAt,
		); err != nil {
			return nil, queryError("fetch_products", fmt.Errorf("scan: %w", err))
		}
		if maxAmount.Valid {
			p.MaxAmount = models.Float64(maxAmount.Float64)
		}
		p.InterestRate = interestRate.String
		p.Description = description.String
		p.Active = true
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, queryError("fetch_products", err)
	}
	return products, nil
}

// Upsert writes products in one transaction and returns how many were written.
func (r *PostgresRepository) Upsert(ctx context.Context, products []models.LenderProduct) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, queryError("upsert_products", fmt.Errorf("begin: %w", err))
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, upsertProduct)
	if err != nil {
		return 0, queryError("upsert_products", fmt.Errorf("prepare: %w", err))
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, p := range products {
		var maxAmount sql.NullFloat64
		if p.MaxAmount != nil {
			maxAmount = sql.NullFloat64{Float64: *p.MaxAmount, Valid: true}
		}
		updatedAt := p.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = now
		}
		if _, err := stmt.ExecContext(ctx,
			p.ID, p.Name, p.LenderName, p.Category, p.Country,
			pq.Array(nonNil(p.Geography)),
			p.MinAmount, maxAmount, p.MinRevenue,
			pq.Array(nonNil(p.Industries)),
			nullString(p.InterestRate), nullString(p.Description),
			pq.Array(nonNil(p.RequiredDocuments)),
			p.Active, updatedAt,
		); err != nil {
			return 0, queryError("upsert_products", fmt.Errorf("upsert %s: %w", p.ID, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, queryError("upsert_products", fmt.Errorf("commit: %w", err))
	}
	return len(products), nil
}

// DeactivateMissing marks every active product whose ID is not in keep as
// inactive. An empty keep list is ErrEmptyKeepList.
func (r *PostgresRepository) DeactivateMissing(ctx context.Context, keep []string) (int64, error) {
	if len(keep) == 0 {
		return 0, ErrEmptyKeepList
	}
	res, err := r.db.ExecContext(ctx, deactivateMissing, pq.Array(keep))
	if err != nil {
		return 0, queryError("deactivate_products", err)
	}
	return res.RowsAffected()
}

func queryError(queryType string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewQueryTimeoutError(queryType).WithMetadata("cause", err.Error())
	}
	return apperrors.NewQueryExecutionFailedError(queryType, err)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
