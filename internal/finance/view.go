package finance

import (
	"time"

	"github.com/shopspring/decimal"
)

// RecordView is a record annotated with derived lifecycle state for one caller.
type RecordView struct {
	ID                    string          `json:"id"`
	SiteID                string          `json:"site_id"`
	SiteName              string          `json:"site_name"`
	CompanyName           string          `json:"company_name"`
	BillingMonth          string          `json:"billing_month"`
	ContractAmount        decimal.Decimal `json:"contract_amount"`
	ContractManagementFee decimal.Decimal `json:"contract_management_fee"`
	BilledAmount          decimal.Decimal `json:"billed_amount"`
	BilledManagementFee   decimal.Decimal `json:"billed_management_fee"`
	TotalBilledAmount     decimal.Decimal `json:"total_billed_amount"`
	NetVariation          decimal.Decimal `json:"net_variation"`
	VariationLabel        string          `json:"variation_label"`
	NetVariationDisplay   string          `json:"net_variation_display"`
	Status                string          `json:"status"`
	State                 State           `json:"state"`
	CreatedBy             string          `json:"created_by"`
	CreatedByName         string          `json:"created_by_name"`
	CreatedByRole         string          `json:"created_by_role"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
	DeletedAt             *time.Time      `json:"deleted_at,omitempty"`
	DeletedBy             string          `json:"deleted_by,omitempty"`
	DeletedByName         string          `json:"deleted_by_name,omitempty"`
	DeletedReason         string          `json:"deleted_reason,omitempty"`
	ExpiresAt             *time.Time      `json:"expires_at,omitempty"`
	DaysRemaining         int             `json:"days_remaining"`
	CanRestore            bool            `json:"can_restore"`
	CanPurge              bool            `json:"can_purge"`
}

// View derives the display state of rec for a caller with callerRole.
func (s *Service) View(rec Record, callerRole string, now time.Time) RecordView {
	net := NetVariation(rec)
	v := RecordView{
		ID:                    rec.ID,
		SiteID:                rec.SiteID,
		SiteName:              rec.SiteName,
		CompanyName:           rec.CompanyName,
		BillingMonth:          rec.BillingMonth.Format("2006-01"),
		ContractAmount:        rec.ContractAmount,
		ContractManagementFee: rec.ContractManagementFee,
		BilledAmount:          rec.BilledAmount,
		BilledManagementFee:   rec.BilledManagementFee,
		TotalBilledAmount:     rec.TotalBilledAmount,
		NetVariation:          net,
		VariationLabel:        VariationLabel(net),
		NetVariationDisplay:   FormatINR(net),
		Status:                rec.Status,
		State:                 rec.State(),
		CreatedBy:             rec.CreatedBy,
		CreatedByName:         rec.CreatedByName,
		CreatedByRole:         rec.CreatedByRole,
		CreatedAt:             rec.CreatedAt,
		UpdatedAt:             rec.UpdatedAt,
	}
	if rec.Deletion != nil {
		at := rec.Deletion.At
		v.DeletedAt = &at
		v.DeletedBy = rec.Deletion.By
		v.DeletedByName = rec.Deletion.ByName
		v.DeletedReason = rec.Deletion.Reason
		if expires, ok := s.lifecycle.ExpiresAt(rec); ok {
			v.ExpiresAt = &expires
		}
		v.DaysRemaining = s.lifecycle.DaysRemaining(rec, now)
		v.CanRestore = s.CanRestore(callerRole)
	}
	v.CanPurge = s.CanPurge(callerRole)
	return v
}

// Views derives display state for a list.
func (s *Service) Views(recs []Record, callerRole string, now time.Time) []RecordView {
	out := make([]RecordView, 0, len(recs))
	for _, rec := range recs {
		out = append(out, s.View(rec, callerRole, now))
	}
	return out
}
