package finance

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestIsExpiredBoundary(t *testing.T) {
	l := NewLifecycle(0)
	now := testNow

	cases := []struct {
		name string
		age  time.Duration
		want bool
	}{
		{name: "seven days and a second", age: 7*day + time.Second, want: true},
		{name: "exactly seven days", age: 7 * day, want: true},
		{name: "six days 23 hours", age: 6*day + 23*time.Hour, want: false},
		{name: "fresh", age: 0, want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := Record{Deletion: &Deletion{At: now.Add(-tc.age)}}
			assert.Equal(t, tc.want, l.IsExpired(rec, now))
		})
	}

	assert.False(t, l.IsExpired(Record{}, now), "active records never expire")
}

func TestDaysRemaining(t *testing.T) {
	l := NewLifecycle(DefaultRetention)
	now := testNow

	cases := []struct {
		age  time.Duration
		want int
	}{
		{age: 0, want: 7},
		{age: time.Minute, want: 7},
		{age: day, want: 6},
		{age: 6*day + 23*time.Hour, want: 1},
		{age: 7 * day, want: 0},
		{age: 10 * day, want: 0},
	}
	for _, tc := range cases {
		rec := Record{Deletion: &Deletion{At: now.Add(-tc.age)}}
		assert.Equal(t, tc.want, l.DaysRemaining(rec, now), "age %s", tc.age)
	}
	assert.Equal(t, 0, l.DaysRemaining(Record{}, now))
}

func TestCustomRetention(t *testing.T) {
	l := NewLifecycle(48 * time.Hour)
	rec := Record{Deletion: &Deletion{At: testNow.Add(-49 * time.Hour)}}
	assert.True(t, l.IsExpired(rec, testNow))
	expires, ok := l.ExpiresAt(rec)
	assert.True(t, ok)
	assert.Equal(t, testNow.Add(-time.Hour), expires)
}

func TestNetVariation(t *testing.T) {
	rec := Record{
		ContractAmount:        decimal.NewFromInt(40000),
		ContractManagementFee: decimal.NewFromInt(4000),
		BilledAmount:          decimal.NewFromInt(50000),
		BilledManagementFee:   decimal.NewFromInt(5000),
	}
	net := NetVariation(rec)
	assert.True(t, net.Equal(decimal.NewFromInt(11000)))
	assert.Equal(t, LabelProfit, VariationLabel(net))

	rec.Deletion = &Deletion{At: testNow, By: "u", ByName: "u", Reason: "r"}
	assert.True(t, NetVariation(rec).Equal(net), "deleted records compute the same variation")

	rec.BilledAmount = decimal.NewFromInt(30000)
	assert.Equal(t, LabelLoss, VariationLabel(NetVariation(rec)))
	assert.Equal(t, LabelBreakEven, VariationLabel(decimal.Zero))
}

func TestFormatINR(t *testing.T) {
	assert.Equal(t, "₹1,500.50", FormatINR(decimal.RequireFromString("1500.5")))
	assert.Equal(t, "-₹11,000.00", FormatINR(decimal.NewFromInt(-11000)))
}

func TestParseAmount(t *testing.T) {
	cases := []struct {
		raw     RawAmount
		want    string
		invalid bool
	}{
		{raw: "", want: "0"},
		{raw: "  ", want: "0"},
		{raw: "1200", want: "1200"},
		{raw: "₹1,20,000.456", want: "120000.46"},
		{raw: "0.5", want: "0.5"},
		{raw: "1e3", want: "1000"},
		{raw: "999999999999.99", want: "999999999999.99"},
		{raw: "-3", invalid: true},
		{raw: "abc", invalid: true},
		{raw: "1000000000000", invalid: true},
		{raw: "10000000000000", invalid: true},
		{raw: "999999999999.999", invalid: true},
		{raw: "1e13", invalid: true},
		{raw: "1e50000000", invalid: true},
		{raw: "1e-50000000", invalid: true},
		{raw: "123456789012345678901234567890123", invalid: true},
	}
	for _, tc := range cases {
		got, err := ParseAmount("contract_amount", tc.raw)
		if tc.invalid {
			assert.Error(t, err, "raw %q", tc.raw)
			continue
		}
		assert.NoError(t, err, "raw %q", tc.raw)
		assert.True(t, got.Equal(decimal.RequireFromString(tc.want)), "raw %q got %s", tc.raw, got)
	}
}

func TestParseAmountNamesField(t *testing.T) {
	_, err := ParseAmount("billed_amount", "1e50000000")
	var v *ValidationError
	assert.ErrorAs(t, err, &v)
	assert.Equal(t, "billed_amount", v.Field)
	assert.False(t, Retryable(err))
}

func TestRawAmountUnmarshal(t *testing.T) {
	var in struct {
		A RawAmount `json:"a"`
		B RawAmount `json:"b"`
		C RawAmount `json:"c"`
		D RawAmount `json:"d"`
	}
	err := json.Unmarshal([]byte(`{"a": 1500.25, "b": "2000", "c": null, "d": ""}`), &in)
	assert.NoError(t, err)
	assert.Equal(t, RawAmount("1500.25"), in.A)
	assert.Equal(t, RawAmount("2000"), in.B)
	assert.Equal(t, RawAmount(""), in.C)
	assert.Equal(t, RawAmount(""), in.D)
}
