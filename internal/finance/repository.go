package finance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sudandp/paradigm-ifs-sub000/internal/platform/db"
)

// Repository persists finance records partitioned by lifecycle state.
type Repository interface {
	ListActive(ctx context.Context, month time.Time, scope Scope) ([]Record, error)
	ListDeleted(ctx context.Context, scope Scope) ([]Record, error)
	ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]Record, error)
	Get(ctx context.Context, id string) (Record, error)
	Upsert(ctx context.Context, rec Record, scope Scope) (Record, bool, error)
	UpsertMany(ctx context.Context, recs []Record, scope Scope) ([]Record, error)
	SoftDelete(ctx context.Context, id string, del Deletion, scope Scope) (Record, error)
	Restore(ctx context.Context, id string, scope Scope) (Record, error)
	Purge(ctx context.Context, id string) error
	PurgeExpired(ctx context.Context, id string, cutoff time.Time) error
}

// BatchError identifies the row of a batch that rolled the batch back.
type BatchError struct {
	Index int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("finance: batch row %d: %v", e.Index+1, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const recordColumns = `id, site_id, site_name, company_name, billing_month,
contract_amount, contract_management_fee, billed_amount, billed_management_fee, total_billed_amount,
status, created_by, created_by_name, created_by_role, created_at, updated_at,
deleted_at, deleted_by, deleted_by_name, deleted_reason`

// ListActive returns active records for the billing month.
func (r *PGRepository) ListActive(ctx context.Context, month time.Time, scope Scope) ([]Record, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+recordColumns+`
FROM finance_records
WHERE deleted_at IS NULL AND billing_month = $1 AND ($2 = '' OR created_by = $2)
ORDER BY site_name, id`, pgtype.Date{Time: MonthStart(month), Valid: true}, scope.OwnerID)
	if err != nil {
		return nil, mapStoreError("list active", "", "", err)
	}
	recs, err := collectRecords(rows)
	return recs, mapStoreError("list active", "", "", err)
}

// ListDeleted returns soft-deleted records regardless of billing month.
func (r *PGRepository) ListDeleted(ctx context.Context, scope Scope) ([]Record, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+recordColumns+`
FROM finance_records
WHERE deleted_at IS NOT NULL AND ($1 = '' OR created_by = $1)
ORDER BY deleted_at DESC, id`, scope.OwnerID)
	if err != nil {
		return nil, mapStoreError("list deleted", "", "", err)
	}
	recs, err := collectRecords(rows)
	return recs, mapStoreError("list deleted", "", "", err)
}

// ListExpired returns up to limit deleted records stamped at or before cutoff.
func (r *PGRepository) ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.pool.Query(ctx, `SELECT `+recordColumns+`
FROM finance_records
WHERE deleted_at IS NOT NULL AND deleted_at <= $1
ORDER BY deleted_at ASC
LIMIT $2`, cutoff.UTC(), limit)
	if err != nil {
		return nil, mapStoreError("list expired", "", "", err)
	}
	recs, err := collectRecords(rows)
	return recs, mapStoreError("list expired", "", "", err)
}

// Get returns the record in any state.
func (r *PGRepository) Get(ctx context.Context, id string) (Record, error) {
	rec, err := scanRecord(r.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM finance_records WHERE id = $1`, id))
	return rec, mapStoreError("get", id, "", err)
}

// Upsert inserts rec or updates the active record with the same id. Provenance
// columns are only written on insert. The boolean reports whether a row was
// created.
func (r *PGRepository) Upsert(ctx context.Context, rec Record, scope Scope) (Record, bool, error) {
	saved, created, err := upsert(ctx, r.pool, rec, scope)
	return saved, created, mapStoreError("save", rec.ID, StateActive, err)
}

// UpsertMany writes every record in one transaction. Any failure rolls back
// the whole batch and is reported as a *BatchError.
func (r *PGRepository) UpsertMany(ctx context.Context, recs []Record, scope Scope) ([]Record, error) {
	saved := make([]Record, 0, len(recs))
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for i, rec := range recs {
			out, _, err := upsert(ctx, tx, rec, scope)
			if err != nil {
				return &BatchError{Index: i, Err: mapStoreError("bulk save", rec.ID, StateActive, err)}
			}
			saved = append(saved, out)
		}
		return nil
	})
	if err != nil {
		var batchErr *BatchError
		if errors.As(err, &batchErr) {
			return nil, batchErr
		}
		return nil, mapStoreError("bulk save", "", "", err)
	}
	return saved, nil
}

func upsert(ctx context.Context, q querier, rec Record, scope Scope) (Record, bool, error) {
	rec.Recompute()
	row := q.QueryRow(ctx, `INSERT INTO finance_records (
    id, site_id, site_name, company_name, billing_month,
    contract_amount, contract_management_fee, billed_amount, billed_management_fee, total_billed_amount,
    status, created_by, created_by_name, created_by_role, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)
ON CONFLICT (id) DO UPDATE SET
    site_id = EXCLUDED.site_id,
    site_name = EXCLUDED.site_name,
    company_name = EXCLUDED.company_name,
    billing_month = EXCLUDED.billing_month,
    contract_amount = EXCLUDED.contract_amount,
    contract_management_fee = EXCLUDED.contract_management_fee,
    billed_amount = EXCLUDED.billed_amount,
    billed_management_fee = EXCLUDED.billed_management_fee,
    total_billed_amount = EXCLUDED.total_billed_amount,
    status = EXCLUDED.status,
    updated_at = EXCLUDED.updated_at
WHERE finance_records.deleted_at IS NULL AND ($16 = '' OR finance_records.created_by = $16)
RETURNING `+recordColumns+`, (xmax = 0) AS inserted`,
		rec.ID, rec.SiteID, rec.SiteName, rec.CompanyName, pgtype.Date{Time: MonthStart(rec.BillingMonth), Valid: true},
		rec.ContractAmount, rec.ContractManagementFee, rec.BilledAmount, rec.BilledManagementFee, rec.TotalBilledAmount,
		rec.Status, rec.CreatedBy, rec.CreatedByName, rec.CreatedByRole, rec.UpdatedAt.UTC(),
		scope.OwnerID,
	)
	var inserted bool
	saved, err := scanRecord(row, &inserted)
	return saved, inserted, err
}

// SoftDelete stamps the deletion group on an active record.
func (r *PGRepository) SoftDelete(ctx context.Context, id string, del Deletion, scope Scope) (Record, error) {
	rec, err := scanRecord(r.pool.QueryRow(ctx, `UPDATE finance_records
SET deleted_at = $2, deleted_by = $3, deleted_by_name = $4, deleted_reason = $5
WHERE id = $1 AND deleted_at IS NULL AND ($6 = '' OR created_by = $6)
RETURNING `+recordColumns, id, del.At.UTC(), del.By, del.ByName, del.Reason, scope.OwnerID))
	return rec, mapStoreError("soft delete", id, StateActive, err)
}

// Restore clears the deletion group of a deleted record.
func (r *PGRepository) Restore(ctx context.Context, id string, scope Scope) (Record, error) {
	rec, err := scanRecord(r.pool.QueryRow(ctx, `UPDATE finance_records
SET deleted_at = NULL, deleted_by = NULL, deleted_by_name = NULL, deleted_reason = NULL
WHERE id = $1 AND deleted_at IS NOT NULL AND ($2 = '' OR created_by = $2)
RETURNING `+recordColumns, id, scope.OwnerID))
	return rec, mapStoreError("restore", id, StateDeleted, err)
}

// Purge removes the record in any state.
func (r *PGRepository) Purge(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM finance_records WHERE id = $1`, id)
	if err != nil {
		return mapStoreError("purge", id, "", err)
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{RecordID: id}
	}
	return nil
}

// PurgeExpired removes a record only while it is still deleted at or before
// cutoff, so a concurrent restore wins over the sweep.
func (r *PGRepository) PurgeExpired(ctx context.Context, id string, cutoff time.Time) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM finance_records
WHERE id = $1 AND deleted_at IS NOT NULL AND deleted_at <= $2`, id, cutoff.UTC())
	if err != nil {
		return mapStoreError("purge expired", id, "", err)
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{RecordID: id, State: StateDeleted}
	}
	return nil
}

func collectRecords(rows pgx.Rows) ([]Record, error) {
	defer rows.Close()
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanRecord(row pgx.Row, extra ...any) (Record, error) {
	var (
		rec          Record
		billingMonth pgtype.Date
		deletedAt    pgtype.Timestamptz
		deletedBy    pgtype.Text
		deletedName  pgtype.Text
		reason       pgtype.Text
	)
	dest := []any{
		&rec.ID, &rec.SiteID, &rec.SiteName, &rec.CompanyName, &billingMonth,
		&rec.ContractAmount, &rec.ContractManagementFee, &rec.BilledAmount, &rec.BilledManagementFee, &rec.TotalBilledAmount,
		&rec.Status, &rec.CreatedBy, &rec.CreatedByName, &rec.CreatedByRole, &rec.CreatedAt, &rec.UpdatedAt,
		&deletedAt, &deletedBy, &deletedName, &reason,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return Record{}, err
	}
	rec.BillingMonth = billingMonth.Time
	if deletedAt.Valid {
		rec.Deletion = &Deletion{
			At:     deletedAt.Time,
			By:     deletedBy.String,
			ByName: deletedName.String,
			Reason: reason.String,
		}
	}
	return rec, nil
}

var _ Repository = (*PGRepository)(nil)
