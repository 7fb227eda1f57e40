package finance

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultRetention is how long a soft-deleted record stays restorable.
const DefaultRetention = 7 * 24 * time.Hour

// State is the lifecycle position of a record.
type State string

const (
	// StateActive records are visible in the primary list and may be edited.
	StateActive State = "active"
	// StateDeleted records only appear in the deletion log.
	StateDeleted State = "deleted"
	// StatePurged is terminal; nothing remains in the store.
	StatePurged State = "purged"
)

// Record is a monthly billing record for one site.
type Record struct {
	ID                    string
	SiteID                string
	SiteName              string
	CompanyName           string
	BillingMonth          time.Time
	ContractAmount        decimal.Decimal
	ContractManagementFee decimal.Decimal
	BilledAmount          decimal.Decimal
	BilledManagementFee   decimal.Decimal
	TotalBilledAmount     decimal.Decimal
	Status                string
	CreatedBy             string
	CreatedByName         string
	CreatedByRole         string
	CreatedAt             time.Time
	UpdatedAt             time.Time
	// Deletion is nil while the record is active. The group is always set or
	// cleared as a whole.
	Deletion *Deletion
}

// Deletion is the soft-delete marker of a record.
type Deletion struct {
	At     time.Time
	By     string
	ByName string
	Reason string
}

// State reports whether the record is active or soft-deleted.
func (r Record) State() State {
	if r.Deletion != nil {
		return StateDeleted
	}
	return StateActive
}

// Recompute refreshes derived amounts.
func (r *Record) Recompute() {
	r.TotalBilledAmount = r.BilledAmount.Add(r.BilledManagementFee)
}

// Scope narrows store reads and writes to records created by OwnerID. The
// zero Scope is unrestricted.
type Scope struct {
	OwnerID string
}

// Unrestricted reports whether the scope covers every record.
func (s Scope) Unrestricted() bool {
	return strings.TrimSpace(s.OwnerID) == ""
}

// MonthStart truncates t to the first day of its month in UTC.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// ParseMonth accepts YYYY-MM or a full YYYY-MM-DD date and returns the first
// of that month.
func ParseMonth(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range []string{"2006-01", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return MonthStart(t), nil
		}
	}
	return time.Time{}, &ValidationError{Field: "billing_month", Reason: "must be YYYY-MM"}
}
