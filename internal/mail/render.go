package mail

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
)

// StaffRecipient addresses the store staff mailbox.
const StaffRecipient = "staff"

type Message struct {
	To      string
	Subject string
	Body    string
}

// Render builds the mail for kind from the frozen order fields only.
//
// Unit prices already carry per-book discounts. Volume and member
// discounts are order level and show up as their own line, so the item
// rows do not add up to the final amount on their own.
func Render(p Payload) (Message, error) {
	o := p.Order
	var m Message
	switch p.Kind {
	case KindOrderConfirmation:
		m.To = p.UserID
		m.Subject = fmt.Sprintf("Your order %s is reserved", o.OrderID)
	case KindStaffNewOrder:
		m.To = StaffRecipient
		m.Subject = fmt.Sprintf("New order %s", o.OrderID)
	case KindStaffCancellation:
		m.To = StaffRecipient
		m.Subject = fmt.Sprintf("Order %s cancelled", o.OrderID)
	case KindCancellationNotice:
		m.To = p.UserID
		m.Subject = fmt.Sprintf("Your order %s was cancelled", o.OrderID)
	default:
		return Message{}, fmt.Errorf("mail: unknown kind %q", p.Kind)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Order %s placed %s\n\n", o.OrderID, o.OrderDate.UTC().Format("2006-01-02 15:04 MST"))

	subtotal := decimal.Zero
	for _, it := range o.OrderItems {
		title := it.BookTitle
		if title == "" {
			title = it.BookID
		}
		fmt.Fprintf(&b, "  %s x%d @ %s = %s\n", title, it.Quantity, money(it.UnitPrice), money(it.TotalPrice))
		subtotal = subtotal.Add(it.TotalPrice)
	}

	itemSavings := o.TotalAmount.Sub(subtotal)
	orderSavings := o.DiscountAmount.Sub(itemSavings)

	fmt.Fprintf(&b, "\nList price total: %s\n", money(o.TotalAmount))
	if itemSavings.IsPositive() {
		fmt.Fprintf(&b, "Book discounts:   -%s\n", money(itemSavings))
	}
	fmt.Fprintf(&b, "Items subtotal:   %s\n", money(subtotal))
	if orderSavings.IsPositive() {
		fmt.Fprintf(&b, "Order discounts:  -%s\n", money(orderSavings))
	}
	fmt.Fprintf(&b, "Total:            %s\n", money(o.FinalAmount))

	switch p.Kind {
	case KindOrderConfirmation:
		fmt.Fprintf(&b, "\nShow claim code %s at the counter to pick up your books.\n", o.ClaimCode)
	case KindCancellationNotice, KindStaffCancellation:
		b.WriteString("\nThe reserved copies have been returned to stock.\n")
	}

	m.Body = b.String()
	return m, nil
}

func money(d decimal.Decimal) string { return d.StringFixed(2) }

// PayloadFor is the payload the outbox would queue for o.
func PayloadFor(kind Kind, o orders.Order) Payload {
	return Payload{Kind: kind, UserID: o.UserID, Order: orders.NewOrderPayload(o)}
}
