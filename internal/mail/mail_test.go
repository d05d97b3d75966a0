package mail

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kafkax "github.com/ariefcatur/go-bookstore-orders/internal/kafka"
	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// stackedOrder: 2 x 100 at 20% off plus 3 x 50, volume 5% and member 10%.
func stackedOrder() orders.Order {
	return orders.Order{
		ID:             "o-42",
		UserID:         "u-7",
		OrderDate:      time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		TotalAmount:    dec("350"),
		DiscountAmount: dec("92.5"),
		FinalAmount:    dec("257.5"),
		Status:         orders.StatusPending,
		ClaimCode:      "AB12CD34",
		Items: []orders.OrderItem{
			{OrderID: "o-42", BookID: "b-1", BookTitle: "Dune", Quantity: 2, UnitPrice: dec("80")},
			{OrderID: "o-42", BookID: "b-2", BookTitle: "Emma", Quantity: 3, UnitPrice: dec("50")},
		},
	}
}

func TestRenderConfirmationBreakdown(t *testing.T) {
	m, err := Render(PayloadFor(KindOrderConfirmation, stackedOrder()))
	require.NoError(t, err)

	assert.Equal(t, "u-7", m.To)
	assert.Contains(t, m.Subject, "o-42")
	assert.Contains(t, m.Body, "Dune x2 @ 80.00 = 160.00")
	assert.Contains(t, m.Body, "Emma x3 @ 50.00 = 150.00")
	assert.Contains(t, m.Body, "List price total: 350.00")
	assert.Contains(t, m.Body, "Book discounts:   -40.00")
	assert.Contains(t, m.Body, "Items subtotal:   310.00")
	assert.Contains(t, m.Body, "Order discounts:  -52.50")
	assert.Contains(t, m.Body, "Total:            257.50")
	assert.Contains(t, m.Body, "AB12CD34")
}

func TestRenderWithoutDiscountsOmitsSavingLines(t *testing.T) {
	o := orders.Order{
		ID:             "o-1",
		UserID:         "u-1",
		TotalAmount:    dec("19.99"),
		DiscountAmount: decimal.Zero,
		FinalAmount:    dec("19.99"),
		Items:          []orders.OrderItem{{BookID: "b-9", Quantity: 1, UnitPrice: dec("19.99")}},
	}
	m, err := Render(PayloadFor(KindStaffNewOrder, o))
	require.NoError(t, err)

	assert.Equal(t, StaffRecipient, m.To)
	assert.Contains(t, m.Body, "b-9 x1 @ 19.99 = 19.99")
	assert.NotContains(t, m.Body, "Book discounts")
	assert.NotContains(t, m.Body, "Order discounts")
	assert.NotContains(t, m.Body, "claim code")
}

func TestRenderCancellationKinds(t *testing.T) {
	for kind, to := range map[Kind]string{
		KindCancellationNotice: "u-7",
		KindStaffCancellation:  StaffRecipient,
	} {
		m, err := Render(PayloadFor(kind, stackedOrder()))
		require.NoError(t, err)
		assert.Equal(t, to, m.To)
		assert.Contains(t, m.Subject, "cancelled")
		assert.Contains(t, m.Body, "returned to stock")
	}
}

func TestRenderUnknownKind(t *testing.T) {
	_, err := Render(Payload{Kind: "birthday"})
	require.Error(t, err)
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []kafkago.Message
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, key, value []byte, headers ...kafkago.Header) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, kafkago.Message{Key: key, Value: value, Headers: headers})
	return nil
}

func TestOutboxQueuesEnvelopePerMail(t *testing.T) {
	pub := &fakePublisher{}
	ob := NewOutbox(pub, "bookstore-orders")
	ctx := context.Background()
	o := stackedOrder()

	require.NoError(t, ob.SendOrderConfirmation(ctx, o))
	require.NoError(t, ob.SendStaffNewOrderAlert(ctx, o))
	require.NoError(t, ob.SendStaffCancellationAlert(ctx, o))
	require.NoError(t, ob.SendCancellationNotice(ctx, o))
	require.Len(t, pub.msgs, 4)

	wantKinds := []Kind{KindOrderConfirmation, KindStaffNewOrder, KindStaffCancellation, KindCancellationNotice}
	for i, m := range pub.msgs {
		assert.Equal(t, "o-42", string(m.Key))
		assert.Equal(t, string(wantKinds[i]), kafkax.Header(m, kafkax.HeaderEventType))

		var env orders.Envelope
		require.NoError(t, json.Unmarshal(m.Value, &env))
		assert.NotEmpty(t, env.EventID)
		assert.Equal(t, "o-42", env.CorrelationID)
		assert.Equal(t, "bookstore-orders", env.Producer)

		p, err := kafkax.UnwrapPayload[Payload](env.Payload)
		require.NoError(t, err)
		assert.Equal(t, wantKinds[i], p.Kind)
		assert.Equal(t, "u-7", p.UserID)
		assert.True(t, p.Order.FinalAmount.Equal(dec("257.5")))
	}
}

func TestOutboxWrapsPublishError(t *testing.T) {
	pub := &fakePublisher{err: kafkax.ErrProducerClosed}
	err := NewOutbox(pub, "svc").SendOrderConfirmation(context.Background(), stackedOrder())
	assert.ErrorIs(t, err, kafkax.ErrProducerClosed)
}

type memDedup struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (d *memDedup) SetNX(_ context.Context, key, _ string, _ time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.keys[key] {
		return false, nil
	}
	d.keys[key] = true
	return true, nil
}

func (d *memDedup) Del(_ context.Context, keys ...string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, k := range keys {
		delete(d.keys, k)
	}
	return nil
}

type recSender struct {
	sent []Message
	fail int
}

func (s *recSender) Send(_ context.Context, m Message) error {
	if s.fail > 0 {
		s.fail--
		return errors.New("smtp down")
	}
	s.sent = append(s.sent, m)
	return nil
}

func queued(t *testing.T, kind Kind) kafkago.Message {
	t.Helper()
	pub := &fakePublisher{}
	require.NoError(t, NewOutbox(pub, "svc").publish(context.Background(), kind, stackedOrder()))
	return pub.msgs[0]
}

func TestHandlerSendsOnceForRedeliveredEvent(t *testing.T) {
	snd := &recSender{}
	h := NewHandler(&memDedup{keys: map[string]bool{}}, snd, "mailer", nil)
	m := queued(t, KindOrderConfirmation)

	require.NoError(t, h.Handle(context.Background(), m))
	require.NoError(t, h.Handle(context.Background(), m))

	require.Len(t, snd.sent, 1)
	assert.Equal(t, "u-7", snd.sent[0].To)
}

func TestHandlerReleasesDedupOnSendFailure(t *testing.T) {
	snd := &recSender{fail: 1}
	h := NewHandler(&memDedup{keys: map[string]bool{}}, snd, "mailer", nil)
	m := queued(t, KindStaffNewOrder)

	require.Error(t, h.Handle(context.Background(), m))
	require.NoError(t, h.Handle(context.Background(), m))
	assert.Len(t, snd.sent, 1)
}

func TestHandlerDropsGarbage(t *testing.T) {
	snd := &recSender{}
	h := NewHandler(&memDedup{keys: map[string]bool{}}, snd, "mailer", nil)

	require.NoError(t, h.Handle(context.Background(), kafkago.Message{Value: []byte("not json")}))
	assert.Empty(t, snd.sent)
}
