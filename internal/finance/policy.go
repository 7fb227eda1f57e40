package finance

import (
	"time"

	"github.com/shopspring/decimal"
)

const day = 24 * time.Hour

// Lifecycle evaluates time-based rules against a fixed retention window.
type Lifecycle struct {
	Retention time.Duration
}

// NewLifecycle returns a Lifecycle, falling back to DefaultRetention.
func NewLifecycle(retention time.Duration) Lifecycle {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return Lifecycle{Retention: retention}
}

// ExpiresAt returns when a deleted record becomes eligible for purge.
func (l Lifecycle) ExpiresAt(r Record) (time.Time, bool) {
	if r.Deletion == nil {
		return time.Time{}, false
	}
	return r.Deletion.At.Add(l.retention()), true
}

// IsExpired reports now - deletedAt >= retention. Active records never expire.
func (l Lifecycle) IsExpired(r Record, now time.Time) bool {
	if r.Deletion == nil {
		return false
	}
	return now.Sub(r.Deletion.At) >= l.retention()
}

// DaysRemaining is ceil((deletedAt + retention - now) / 1 day), floored at 0.
// Active records report 0.
func (l Lifecycle) DaysRemaining(r Record, now time.Time) int {
	expires, ok := l.ExpiresAt(r)
	if !ok {
		return 0
	}
	left := expires.Sub(now)
	if left <= 0 {
		return 0
	}
	days := left / day
	if left%day != 0 {
		days++
	}
	return int(days)
}

func (l Lifecycle) retention() time.Duration {
	if l.Retention <= 0 {
		return DefaultRetention
	}
	return l.Retention
}

// NetVariation is (billed + billed fee) - (contract + contract fee). It is
// derived from the inputs so it agrees for active and deleted records alike.
func NetVariation(r Record) decimal.Decimal {
	billed := r.BilledAmount.Add(r.BilledManagementFee)
	contract := r.ContractAmount.Add(r.ContractManagementFee)
	return billed.Sub(contract)
}
