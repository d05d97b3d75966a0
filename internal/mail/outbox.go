package mail

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ariefcatur/go-bookstore-orders/internal/kafka"
	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
)

// Kind names one mail template.
type Kind string

const (
	KindOrderConfirmation  Kind = "order-confirmation"
	KindStaffNewOrder      Kind = "staff-new-order"
	KindStaffCancellation  Kind = "staff-cancellation"
	KindCancellationNotice Kind = "cancellation-notice"
)

const payloadVersion = 1

// Payload is the envelope body of a mail request.
type Payload struct {
	Kind   Kind                `json:"kind"`
	UserID string              `json:"userId"`
	Order  orders.OrderPayload `json:"order"`
}

type Publisher interface {
	Publish(ctx context.Context, key, value []byte, headers ...kafkago.Header) error
}

// Outbox hands mail requests to the mailer process through Kafka, keyed
// by order id so one order's mail stays in order.
type Outbox struct {
	pub     Publisher
	service string
	now     func() time.Time
}

var _ orders.Mailer = (*Outbox)(nil)

func NewOutbox(pub Publisher, service string) *Outbox {
	return &Outbox{pub: pub, service: service, now: time.Now}
}

func (o *Outbox) SendOrderConfirmation(ctx context.Context, ord orders.Order) error {
	return o.publish(ctx, KindOrderConfirmation, ord)
}

func (o *Outbox) SendStaffNewOrderAlert(ctx context.Context, ord orders.Order) error {
	return o.publish(ctx, KindStaffNewOrder, ord)
}

func (o *Outbox) SendStaffCancellationAlert(ctx context.Context, ord orders.Order) error {
	return o.publish(ctx, KindStaffCancellation, ord)
}

func (o *Outbox) SendCancellationNotice(ctx context.Context, ord orders.Order) error {
	return o.publish(ctx, KindCancellationNotice, ord)
}

func (o *Outbox) publish(ctx context.Context, kind Kind, ord orders.Order) error {
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     string(kind),
		EventVersion:  payloadVersion,
		OccurredAt:    o.now().UTC(),
		Producer:      o.service,
		CorrelationID: ord.ID,
		Payload:       kafkax.MustMarshal(PayloadFor(kind, ord)),
	}
	if err := o.pub.Publish(ctx, orders.PartitionKey(ord.ID), kafkax.MustMarshal(ev),
		kafkax.EventHeaders(string(kind), payloadVersion)...); err != nil {
		return fmt.Errorf("queue %s: %w", kind, err)
	}
	return nil
}
