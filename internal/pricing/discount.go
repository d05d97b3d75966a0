// Package pricing resolves per-book and order-level discounts.
//
// Everything here is pure: callers load the book price and its discounts,
// pricing decides what applies at a given instant.
package pricing

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Discount is a time-boxed percentage reduction on a single book.
type Discount struct {
	ID         string
	BookID     string
	Percentage decimal.Decimal
	StartDate  time.Time
	EndDate    time.Time
	IsActive   bool
}

// ActiveAt reports whether the discount applies at now. Both window bounds
// are inclusive.
func (d Discount) ActiveAt(now time.Time) bool {
	if !d.IsActive {
		return false
	}
	return !now.Before(d.StartDate) && !now.After(d.EndDate)
}

// BestPercentage returns the highest percentage among discounts active at
// now, clamped to [0, 100]. Zero when nothing applies.
func BestPercentage(discounts []Discount, now time.Time) decimal.Decimal {
	best := decimal.Zero
	for _, d := range discounts {
		if !d.ActiveAt(now) {
			continue
		}
		if d.Percentage.GreaterThan(best) {
			best = d.Percentage
		}
	}
	if best.GreaterThan(hundred) {
		return hundred
	}
	return best
}

// EffectivePrice is the unit price after the best active discount,
// rounded to currency precision.
func EffectivePrice(price decimal.Decimal, discounts []Discount, now time.Time) decimal.Decimal {
	pct := BestPercentage(discounts, now)
	if pct.IsZero() {
		return price
	}
	return price.Mul(hundred.Sub(pct)).Div(hundred).Round(2)
}

// PercentOf returns pct% of amount rounded to currency precision.
func PercentOf(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Div(hundred).Round(2)
}
