package pricing

import (
	"time"

	"github.com/shopspring/decimal"
)

// Rules holds the order-level discount knobs.
type Rules struct {
	VolumeMinQty  int
	VolumePercent decimal.Decimal
}

func DefaultRules() Rules {
	return Rules{
		VolumeMinQty:  5,
		VolumePercent: decimal.NewFromInt(5),
	}
}

// Line is one book of an order before pricing.
type Line struct {
	BookID    string
	Qty       int
	Price     decimal.Decimal // original list price
	Discounts []Discount
}

// PricedLine carries the frozen unit price of a line.
type PricedLine struct {
	BookID        string
	Qty           int
	OriginalPrice decimal.Decimal
	UnitPrice     decimal.Decimal
	Discount      decimal.Decimal // (original - unit) * qty
}

// Quote is the full price breakdown of an order.
//
// Volume and milestone discounts reduce FinalAmount only; they are not
// spread over the lines' unit prices.
type Quote struct {
	Lines             []PricedLine
	TotalQty          int
	TotalAmount       decimal.Decimal
	ItemDiscount      decimal.Decimal
	VolumeDiscount    decimal.Decimal
	MilestoneDiscount decimal.Decimal
	DiscountAmount    decimal.Decimal
	FinalAmount       decimal.Decimal
}

// Quote prices lines at now. milestonePct is the percentage of a banked
// member discount being redeemed, zero when there is none.
func (r Rules) Quote(lines []Line, milestonePct decimal.Decimal, now time.Time) Quote {
	q := Quote{
		Lines:             make([]PricedLine, 0, len(lines)),
		TotalAmount:       decimal.Zero,
		ItemDiscount:      decimal.Zero,
		VolumeDiscount:    decimal.Zero,
		MilestoneDiscount: decimal.Zero,
	}

	for _, l := range lines {
		qty := decimal.NewFromInt(int64(l.Qty))
		unit := EffectivePrice(l.Price, l.Discounts, now)
		pl := PricedLine{
			BookID:        l.BookID,
			Qty:           l.Qty,
			OriginalPrice: l.Price,
			UnitPrice:     unit,
			Discount:      l.Price.Sub(unit).Mul(qty),
		}
		q.Lines = append(q.Lines, pl)
		q.TotalQty += l.Qty
		q.TotalAmount = q.TotalAmount.Add(l.Price.Mul(qty))
		q.ItemDiscount = q.ItemDiscount.Add(pl.Discount)
	}

	if r.VolumeMinQty > 0 && q.TotalQty >= r.VolumeMinQty {
		q.VolumeDiscount = PercentOf(q.TotalAmount, r.VolumePercent)
	}
	if milestonePct.IsPositive() {
		q.MilestoneDiscount = PercentOf(q.TotalAmount, milestonePct)
	}

	q.DiscountAmount = q.ItemDiscount.Add(q.VolumeDiscount).Add(q.MilestoneDiscount)
	if q.DiscountAmount.GreaterThan(q.TotalAmount) {
		q.DiscountAmount = q.TotalAmount
	}
	q.FinalAmount = q.TotalAmount.Sub(q.DiscountAmount)
	return q
}
