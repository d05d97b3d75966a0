package orders

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Realtime event names.
const (
	EventNewOrder       = "new-order"
	EventCancelledOrder = "cancelled-order"
	EventCompletedOrder = "completed-order"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

// OrderPayload is the shape every lifecycle event carries.
type OrderPayload struct {
	OrderID        string             `json:"orderId"`
	ClaimCode      string             `json:"claimCode"`
	TotalAmount    decimal.Decimal    `json:"totalAmount"`
	FinalAmount    decimal.Decimal    `json:"finalAmount"`
	DiscountAmount decimal.Decimal    `json:"discountAmount"`
	OrderDate      time.Time          `json:"orderDate"`
	Status         Status             `json:"status"`
	OrderItems     []OrderItemPayload `json:"orderItems"`
}

type OrderItemPayload struct {
	BookID     string          `json:"bookId"`
	BookTitle  string          `json:"bookTitle"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unitPrice"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
}

func NewOrderPayload(o Order) OrderPayload {
	items := make([]OrderItemPayload, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItemPayload{
			BookID:     it.BookID,
			BookTitle:  it.BookTitle,
			Quantity:   it.Quantity,
			UnitPrice:  it.UnitPrice,
			TotalPrice: it.TotalPrice(),
		})
	}
	return OrderPayload{
		OrderID:        o.ID,
		ClaimCode:      o.ClaimCode,
		TotalAmount:    o.TotalAmount,
		FinalAmount:    o.FinalAmount,
		DiscountAmount: o.DiscountAmount,
		OrderDate:      o.OrderDate,
		Status:         o.Status,
		OrderItems:     items,
	}
}
