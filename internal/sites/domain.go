package sites

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Organization is a billable site in the directory.
type Organization struct {
	ID          string `json:"id"`
	ShortName   string `json:"short_name"`
	FullName    string `json:"full_name"`
	CompanyName string `json:"company_name"`
	Active      bool   `json:"active"`
}

// Matches reports whether name refers to this site.
func (o Organization) Matches(name string) bool {
	name = strings.TrimSpace(name)
	return strings.EqualFold(name, strings.TrimSpace(o.ShortName)) ||
		(o.FullName != "" && strings.EqualFold(name, strings.TrimSpace(o.FullName)))
}

// InvoiceDefaults are the per-site contract terms used to pre-fill records.
type InvoiceDefaults struct {
	SiteID                string          `json:"site_id"`
	ContractAmount        decimal.Decimal `json:"contract_amount"`
	ContractManagementFee decimal.Decimal `json:"contract_management_fee"`
}
