package finance

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// RawAmount is a monetary value as submitted by a client: a JSON number, a
// numeric string, an empty string or null. It is coerced once on write by
// ParseAmount.
type RawAmount string

// UnmarshalJSON keeps the literal so malformed values surface as per-row
// validation errors instead of decode failures.
func (a *RawAmount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = RawAmount(s)
		return nil
	}
	*a = RawAmount(data)
	return nil
}

// Amount limits. Columns are NUMERIC(14,2).
const (
	maxAmountLen = 32
	minExponent  = -12
	maxExponent  = 12
)

// MaxAmount is the exclusive upper bound of a stored amount.
var MaxAmount = decimal.New(1, maxExponent)

// ParseAmount converts raw into a non-negative amount rounded to paise.
// Empty input is zero. Currency symbols and digit grouping commas are
// tolerated because spreadsheet exports carry them.
func ParseAmount(field string, raw RawAmount) (decimal.Decimal, error) {
	s := strings.TrimSpace(string(raw))
	s = strings.TrimPrefix(s, "₹")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	if len(s) > maxAmountLen {
		return decimal.Zero, &ValidationError{Field: field, Reason: "is too long"}
	}
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &ValidationError{Field: field, Reason: "must be a number"}
	}
	if amount.IsNegative() {
		return decimal.Zero, &ValidationError{Field: field, Reason: "must not be negative"}
	}
	// Rounding cost grows with the exponent.
	if exp := amount.Exponent(); exp < minExponent || exp > maxExponent {
		return decimal.Zero, &ValidationError{Field: field, Reason: "is out of range"}
	}
	amount = amount.Round(2)
	if amount.GreaterThanOrEqual(MaxAmount) {
		return decimal.Zero, &ValidationError{Field: field, Reason: "must be less than " + MaxAmount.String()}
	}
	return amount, nil
}

// Amount is a convenience for building RawAmount values from decimals.
func Amount(d decimal.Decimal) RawAmount {
	return RawAmount(d.StringFixed(2))
}
