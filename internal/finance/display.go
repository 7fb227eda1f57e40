package finance

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var inrPrinter = message.NewPrinter(language.MustParse("en-IN"))

// Variation labels.
const (
	LabelProfit    = "Profit"
	LabelLoss      = "Loss"
	LabelBreakEven = "Break-even"
)

// FormatINR renders an amount with the rupee sign and Indian digit grouping.
func FormatINR(amount decimal.Decimal) string {
	sign := ""
	if amount.IsNegative() {
		sign = "-"
		amount = amount.Abs()
	}
	f, _ := amount.Round(2).Float64()
	return sign + "₹" + inrPrinter.Sprint(number.Decimal(f, number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}

// VariationLabel names the sign of a net variation.
func VariationLabel(v decimal.Decimal) string {
	switch v.Sign() {
	case 1:
		return LabelProfit
	case -1:
		return LabelLoss
	default:
		return LabelBreakEven
	}
}
