package pricing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func window(pct string, from, to time.Duration, active bool) Discount {
	return Discount{
		Percentage: dec(pct),
		StartDate:  now.Add(from),
		EndDate:    now.Add(to),
		IsActive:   active,
	}
}

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "want %s, got %s", want, got.String())
}

func TestActiveAt(t *testing.T) {
	tests := []struct {
		name string
		d    Discount
		want bool
	}{
		{"inside window", window("10", -time.Hour, time.Hour, true), true},
		{"inactive flag", window("10", -time.Hour, time.Hour, false), false},
		{"not started", window("10", time.Hour, 2*time.Hour, true), false},
		{"expired", window("10", -2*time.Hour, -time.Hour, true), false},
		{"starts exactly now", window("10", 0, time.Hour, true), true},
		{"ends exactly now", window("10", -time.Hour, 0, true), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.d.ActiveAt(now))
		})
	}
}

func TestBestPercentage(t *testing.T) {
	ds := []Discount{
		window("10", -time.Hour, time.Hour, true),
		window("25", -time.Hour, time.Hour, true),
		window("40", -time.Hour, time.Hour, false),
		window("50", -3*time.Hour, -2*time.Hour, true),
	}
	assertDec(t, "25", BestPercentage(ds, now))
	assertDec(t, "0", BestPercentage(nil, now))
	assertDec(t, "100", BestPercentage([]Discount{window("150", -time.Hour, time.Hour, true)}, now))
}

func TestEffectivePrice(t *testing.T) {
	price := dec("19.99")

	assertDec(t, "19.99", EffectivePrice(price, nil, now))
	assertDec(t, "15.99", EffectivePrice(price, []Discount{window("20", -time.Hour, time.Hour, true)}, now))
	assertDec(t, "13.39", EffectivePrice(price, []Discount{
		window("20", -time.Hour, time.Hour, true),
		window("33", -time.Hour, time.Hour, true),
	}, now))
}

func TestQuote_VolumeOnly(t *testing.T) {
	q := DefaultRules().Quote([]Line{
		{BookID: "b1", Qty: 3, Price: dec("200")},
		{BookID: "b2", Qty: 2, Price: dec("200")},
	}, decimal.Zero, now)

	assert.Equal(t, 5, q.TotalQty)
	assertDec(t, "1000", q.TotalAmount)
	assertDec(t, "50", q.VolumeDiscount)
	assertDec(t, "0", q.MilestoneDiscount)
	assertDec(t, "50", q.DiscountAmount)
	assertDec(t, "950", q.FinalAmount)
}

func TestQuote_BelowVolumeThreshold(t *testing.T) {
	q := DefaultRules().Quote([]Line{{BookID: "b1", Qty: 4, Price: dec("10")}}, decimal.Zero, now)
	assertDec(t, "0", q.VolumeDiscount)
	assertDec(t, "40", q.FinalAmount)
}

func TestQuote_StackedDiscounts(t *testing.T) {
	q := DefaultRules().Quote([]Line{
		{BookID: "b1", Qty: 2, Price: dec("100"), Discounts: []Discount{window("20", -time.Hour, time.Hour, true)}},
		{BookID: "b2", Qty: 3, Price: dec("50")},
	}, dec("10"), now)

	require.Len(t, q.Lines, 2)
	assertDec(t, "80", q.Lines[0].UnitPrice)
	assertDec(t, "40", q.Lines[0].Discount)
	assertDec(t, "50", q.Lines[1].UnitPrice)
	assertDec(t, "0", q.Lines[1].Discount)

	// extras are computed on the original total, not the discounted one
	assertDec(t, "350", q.TotalAmount)
	assertDec(t, "40", q.ItemDiscount)
	assertDec(t, "17.5", q.VolumeDiscount)
	assertDec(t, "35", q.MilestoneDiscount)
	assertDec(t, "92.5", q.DiscountAmount)
	assertDec(t, "257.5", q.FinalAmount)
}

func TestQuote_FinalEqualsTotalMinusDiscount(t *testing.T) {
	lines := []Line{
		{BookID: "a", Qty: 1, Price: dec("12.99"), Discounts: []Discount{window("15", -time.Hour, time.Hour, true)}},
		{BookID: "b", Qty: 7, Price: dec("3.33"), Discounts: []Discount{window("7.5", -time.Hour, time.Hour, true)}},
		{BookID: "c", Qty: 2, Price: dec("45.10")},
	}
	for _, milestone := range []decimal.Decimal{decimal.Zero, dec("10")} {
		q := DefaultRules().Quote(lines, milestone, now)
		assert.True(t, q.FinalAmount.Equal(q.TotalAmount.Sub(q.DiscountAmount)))
		assert.False(t, q.FinalAmount.IsNegative())
	}
}

func TestQuote_DiscountNeverExceedsTotal(t *testing.T) {
	q := DefaultRules().Quote([]Line{
		{BookID: "free", Qty: 5, Price: dec("10"), Discounts: []Discount{window("100", -time.Hour, time.Hour, true)}},
	}, dec("10"), now)

	assertDec(t, "50", q.DiscountAmount)
	assertDec(t, "0", q.FinalAmount)
}
