package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-bookstore-orders/internal/pricing"
)

type Book struct {
	ID        string
	Title     string
	Price     decimal.Decimal // original list price
	Discounts []pricing.Discount
}

// MemberDiscount is a banked order-level percentage, redeemable once.
type MemberDiscount struct {
	ID         string
	UserID     string
	Percentage decimal.Decimal
	IsUsed     bool
	ExpiryDate time.Time
	CreatedAt  time.Time
}

func (m MemberDiscount) Usable(now time.Time) bool {
	return !m.IsUsed && now.Before(m.ExpiryDate)
}

type Order struct {
	ID             string
	UserID         string
	OrderDate      time.Time
	TotalAmount    decimal.Decimal // sum of original price * qty
	DiscountAmount decimal.Decimal
	FinalAmount    decimal.Decimal
	Status         Status
	ClaimCode      string
	IsClaimed      bool
	Items          []OrderItem
	History        []OrderHistory
}

type OrderItem struct {
	OrderID   string
	BookID    string
	BookTitle string
	Quantity  int
	UnitPrice decimal.Decimal // effective price, frozen at placement
}

func (i OrderItem) TotalPrice() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type OrderHistory struct {
	OrderID    string
	Status     Status
	StatusDate time.Time
	Notes      string
}

// LineRequest is one requested line of a new order.
type LineRequest struct {
	BookID   string `json:"book_id"`
	Quantity int    `json:"quantity"`
}
