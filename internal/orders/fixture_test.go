package orders_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
	"github.com/ariefcatur/go-bookstore-orders/internal/pricing"
	"github.com/ariefcatur/go-bookstore-orders/internal/sqlite"
)

var clock = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type recordedEvent struct {
	event   string
	orderID string
	status  orders.Status
}

type fakeNotifications struct {
	mu     sync.Mutex
	events []recordedEvent
	panics bool
}

func (f *fakeNotifications) add(event string, o orders.Order) {
	f.mu.Lock()
	f.events = append(f.events, recordedEvent{event, o.ID, o.Status})
	f.mu.Unlock()
	if f.panics {
		panic("hub exploded")
	}
}

func (f *fakeNotifications) NewOrder(_ context.Context, o orders.Order) {
	f.add(orders.EventNewOrder, o)
}

func (f *fakeNotifications) CancelledOrder(_ context.Context, o orders.Order) {
	f.add(orders.EventCancelledOrder, o)
}

func (f *fakeNotifications) CompletedOrder(_ context.Context, o orders.Order) {
	f.add(orders.EventCompletedOrder, o)
}

func (f *fakeNotifications) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.event)
	}
	return out
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (m *fakeMailer) rec(kind string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, kind)
	return m.err
}

func (m *fakeMailer) SendOrderConfirmation(context.Context, orders.Order) error {
	return m.rec("confirmation")
}

func (m *fakeMailer) SendStaffNewOrderAlert(context.Context, orders.Order) error {
	return m.rec("staff-new")
}

func (m *fakeMailer) SendStaffCancellationAlert(context.Context, orders.Order) error {
	return m.rec("staff-cancel")
}

func (m *fakeMailer) SendCancellationNotice(context.Context, orders.Order) error {
	return m.rec("cancel-notice")
}

func (m *fakeMailer) kinds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sent...)
}

type fixture struct {
	ctx    context.Context
	store  *sqlite.Store
	svc    *orders.Service
	notify *fakeNotifications
	mail   *fakeMailer
}

// newFixture seeds two users and a small catalog:
//
//	b-dune   20.00  stock 10  20% off (active)
//	b-emma   12.50  stock 3   no discounts
//	b-last   9.99   stock 1
//	b-big    200.00 stock 50
//	b-ghost  5.00   no inventory row
func newFixture(t *testing.T, opts ...orders.Option) *fixture {
	t.Helper()
	return newWrappedFixture(t, nil, opts...)
}

// newWrappedFixture is newFixture with every service transaction passed
// through wrap, so a test can intercept single Tx calls.
func newWrappedFixture(t *testing.T, wrap func(orders.Tx) orders.Tx, opts ...orders.Option) *fixture {
	t.Helper()
	ctx := context.Background()
	st, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.AddUser(ctx, "u-1", "ana@example.com"))
	require.NoError(t, st.AddUser(ctx, "u-2", "ben@example.com"))

	books := []struct {
		b     orders.Book
		stock int
	}{
		{orders.Book{ID: "b-dune", Title: "Dune", Price: dec("20.00"), Discounts: []pricing.Discount{
			{Percentage: dec("20"), StartDate: clock.AddDate(0, 0, -1), EndDate: clock.AddDate(0, 0, 1), IsActive: true},
			{Percentage: dec("50"), StartDate: clock.AddDate(0, 0, -10), EndDate: clock.AddDate(0, 0, -5), IsActive: true},
		}}, 10},
		{orders.Book{ID: "b-emma", Title: "Emma", Price: dec("12.50")}, 3},
		{orders.Book{ID: "b-last", Title: "The Last One", Price: dec("9.99")}, 1},
		{orders.Book{ID: "b-big", Title: "Encyclopedia", Price: dec("200.00")}, 50},
		{orders.Book{ID: "b-ghost", Title: "Ghost", Price: dec("5.00")}, -1},
	}
	for _, b := range books {
		require.NoError(t, st.AddBook(ctx, b.b, b.stock))
	}

	f := &fixture{ctx: ctx, store: st, notify: &fakeNotifications{}, mail: &fakeMailer{}}
	base := []orders.Option{
		orders.WithClock(func() time.Time { return clock }),
		orders.WithNotifications(f.notify),
		orders.WithMailer(f.mail),
	}
	var store orders.Store = st
	if wrap != nil {
		store = wrappedStore{Store: st, wrap: wrap}
	}
	f.svc = orders.NewService(store, append(base, opts...)...)
	t.Cleanup(f.svc.Wait)
	return f
}

func (f *fixture) stock(t *testing.T, bookID string) int {
	t.Helper()
	n, err := f.store.Stock(f.ctx, bookID)
	require.NoError(t, err)
	return n
}

func (f *fixture) place(t *testing.T, userID string, lines ...orders.LineRequest) orders.Order {
	t.Helper()
	o, err := f.svc.PlaceOrder(f.ctx, userID, lines)
	require.NoError(t, err)
	return o
}

func line(bookID string, qty int) orders.LineRequest {
	return orders.LineRequest{BookID: bookID, Quantity: qty}
}

// sequence hands out codes in order, repeating the last one.
func sequence(codes ...string) func() (string, error) {
	var mu sync.Mutex
	i := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		c := codes[i]
		if i < len(codes)-1 {
			i++
		}
		return c, nil
	}
}

type wrappedStore struct {
	*sqlite.Store
	wrap func(orders.Tx) orders.Tx
}

func (s wrappedStore) InTx(ctx context.Context, fn func(tx orders.Tx) error) error {
	return s.Store.InTx(ctx, func(tx orders.Tx) error { return fn(s.wrap(tx)) })
}
