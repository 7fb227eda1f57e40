package sites

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sudandp/paradigm-ifs-sub000/internal/shared"
)

// Repository reads the site directory.
type Repository interface {
	ListOrganizations(ctx context.Context) ([]Organization, error)
	InvoiceDefaults(ctx context.Context, siteID string) (InvoiceDefaults, error)
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// ListOrganizations returns every active site ordered by name.
func (r *PGRepository) ListOrganizations(ctx context.Context) ([]Organization, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, short_name, full_name, company_name, is_active
FROM organizations WHERE is_active ORDER BY short_name`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Organization, error) {
		var org Organization
		err := row.Scan(&org.ID, &org.ShortName, &org.FullName, &org.CompanyName, &org.Active)
		return org, err
	})
}

// InvoiceDefaults returns the default contract terms for a site.
func (r *PGRepository) InvoiceDefaults(ctx context.Context, siteID string) (InvoiceDefaults, error) {
	var d InvoiceDefaults
	err := r.pool.QueryRow(ctx, `SELECT site_id, contract_amount, contract_management_fee
FROM site_invoice_defaults WHERE site_id = $1`, siteID).Scan(&d.SiteID, &d.ContractAmount, &d.ContractManagementFee)
	if errors.Is(err, pgx.ErrNoRows) {
		return InvoiceDefaults{}, shared.ErrNotFound
	}
	return d, err
}

var _ Repository = (*PGRepository)(nil)
