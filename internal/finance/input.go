package finance

import (
	"context"
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sudandp/paradigm-ifs-sub000/internal/shared"
)

// RecordInput is an unvalidated record as submitted by a form, a JSON client
// or a spreadsheet row.
type RecordInput struct {
	ID                    string    `json:"id,omitempty" validate:"max=64"`
	SiteID                string    `json:"site_id" validate:"required,max=64"`
	SiteName              string    `json:"site_name" validate:"required,max=200"`
	CompanyName           string    `json:"company_name" validate:"max=200"`
	BillingMonth          string    `json:"billing_month" validate:"required"`
	ContractAmount        RawAmount `json:"contract_amount"`
	ContractManagementFee RawAmount `json:"contract_management_fee"`
	BilledAmount          RawAmount `json:"billed_amount"`
	BilledManagementFee   RawAmount `json:"billed_management_fee"`
	Status                string    `json:"status" validate:"max=32"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (in RecordInput) trimmed() RecordInput {
	in.ID = strings.TrimSpace(in.ID)
	in.SiteID = strings.TrimSpace(in.SiteID)
	in.SiteName = strings.TrimSpace(in.SiteName)
	in.CompanyName = strings.TrimSpace(in.CompanyName)
	in.BillingMonth = strings.TrimSpace(in.BillingMonth)
	in.Status = strings.TrimSpace(in.Status)
	return in
}

// normalize validates in and converts it into a Record without provenance.
func (s *Service) normalize(ctx context.Context, in RecordInput) (Record, error) {
	in = in.trimmed()

	if in.SiteID == "" && in.SiteName != "" && s.sites != nil {
		org, err := s.sites.FindByName(ctx, in.SiteName)
		switch {
		case errors.Is(err, shared.ErrNotFound):
			return Record{}, &ValidationError{RecordID: in.ID, Field: "site_name", Reason: "unknown site"}
		case err != nil:
			return Record{}, &StoreUnavailableError{Op: "resolve site", Err: err}
		}
		in.SiteID = org.ID
	}

	if err := s.validate.Struct(in); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return Record{}, &ValidationError{RecordID: in.ID, Field: fe.Field(), Reason: describeTag(fe)}
		}
		return Record{}, &ValidationError{RecordID: in.ID, Reason: err.Error()}
	}

	month, err := ParseMonth(in.BillingMonth)
	if err != nil {
		return Record{}, withRecordID(err, in.ID)
	}

	rec := Record{
		ID:           in.ID,
		SiteID:       in.SiteID,
		SiteName:     in.SiteName,
		CompanyName:  in.CompanyName,
		BillingMonth: month,
		Status:       in.Status,
	}
	if rec.ContractAmount, err = ParseAmount("contract_amount", in.ContractAmount); err != nil {
		return Record{}, withRecordID(err, in.ID)
	}
	if rec.ContractManagementFee, err = ParseAmount("contract_management_fee", in.ContractManagementFee); err != nil {
		return Record{}, withRecordID(err, in.ID)
	}
	if rec.BilledAmount, err = ParseAmount("billed_amount", in.BilledAmount); err != nil {
		return Record{}, withRecordID(err, in.ID)
	}
	if rec.BilledManagementFee, err = ParseAmount("billed_management_fee", in.BilledManagementFee); err != nil {
		return Record{}, withRecordID(err, in.ID)
	}
	rec.Recompute()

	if s.sites != nil {
		org, err := s.sites.Lookup(ctx, rec.SiteID)
		switch {
		case errors.Is(err, shared.ErrNotFound):
			return Record{}, &ValidationError{RecordID: in.ID, Field: "site_id", Reason: "unknown site"}
		case err != nil:
			return Record{}, &StoreUnavailableError{Op: "lookup site", Err: err}
		}
		if !org.Matches(rec.SiteName) {
			return Record{}, &ValidationError{RecordID: in.ID, Field: "site_name", Reason: "does not match site " + rec.SiteID}
		}
		if rec.CompanyName == "" {
			rec.CompanyName = org.CompanyName
		}
	}
	return rec, nil
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "failed " + fe.Tag()
	}
}

func withRecordID(err error, id string) error {
	var v *ValidationError
	if errors.As(err, &v) {
		out := *v
		out.RecordID = id
		return &out
	}
	return err
}

func withRow(err error, row int) error {
	var v *ValidationError
	if errors.As(err, &v) {
		out := *v
		out.Row = row
		return &out
	}
	return err
}
