package notify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
)

// GroupStaff receives every new and cancelled order.
const GroupStaff = "staff"

// UserGroup is the realtime group of one customer.
func UserGroup(userID string) string { return "user:" + userID }

// Notifier delivers realtime events to connected clients.
type Notifier interface {
	Publish(ctx context.Context, group, event string, payload any) error
	Broadcast(ctx context.Context, event string, payload any) error
}

type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy { return RetryPolicy{Attempts: 3, Delay: time.Second} }

// Fanout turns order lifecycle events into realtime deliveries. It
// implements orders.Notifications; delivery failures are logged only.
type Fanout struct {
	n     Notifier
	retry RetryPolicy
	sleep func(ctx context.Context, d time.Duration) error
	log   *zap.Logger
}

var _ orders.Notifications = (*Fanout)(nil)

type FanoutOption func(*Fanout)

// WithSleep replaces the wait between retries.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) FanoutOption {
	return func(f *Fanout) { f.sleep = fn }
}

func NewFanout(n Notifier, retry RetryPolicy, log *zap.Logger, opts ...FanoutOption) *Fanout {
	if retry.Attempts < 1 {
		retry.Attempts = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	f := &Fanout{n: n, retry: retry, sleep: sleepCtx, log: log}
	for _, o := range opts {
		o(f)
	}
	return f
}

func (f *Fanout) NewOrder(ctx context.Context, o orders.Order) {
	f.staff(ctx, orders.EventNewOrder, o)
}

func (f *Fanout) CancelledOrder(ctx context.Context, o orders.Order) {
	f.staff(ctx, orders.EventCancelledOrder, o)
}

// CompletedOrder goes to the owner only, with a single attempt.
func (f *Fanout) CompletedOrder(ctx context.Context, o orders.Order) {
	group := UserGroup(o.UserID)
	if err := f.n.Publish(ctx, group, orders.EventCompletedOrder, orders.NewOrderPayload(o)); err != nil {
		f.log.Warn("notification failed",
			zap.String("event", orders.EventCompletedOrder),
			zap.String("group", group),
			zap.String("order_id", o.ID),
			zap.Error(err))
	}
}

// staff sends event to the staff group and to every client, concurrently.
func (f *Fanout) staff(ctx context.Context, event string, o orders.Order) {
	payload := orders.NewOrderPayload(o)

	var g errgroup.Group
	g.Go(func() error {
		return f.deliver(ctx, event, GroupStaff, o.ID, func() error {
			return f.n.Publish(ctx, GroupStaff, event, payload)
		})
	})
	g.Go(func() error {
		return f.deliver(ctx, event, "*", o.ID, func() error {
			return f.n.Broadcast(ctx, event, payload)
		})
	})
	_ = g.Wait()
}

func (f *Fanout) deliver(ctx context.Context, event, target, orderID string, send func() error) error {
	var err error
	for attempt := 1; attempt <= f.retry.Attempts; attempt++ {
		if err = send(); err == nil {
			return nil
		}
		f.log.Debug("notification attempt failed",
			zap.String("event", event),
			zap.String("group", target),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if attempt == f.retry.Attempts {
			break
		}
		if serr := f.sleep(ctx, f.retry.Delay); serr != nil {
			err = fmt.Errorf("%w (retry aborted: %v)", err, serr)
			break
		}
	}
	f.log.Warn("notification failed",
		zap.String("event", event),
		zap.String("group", target),
		zap.String("order_id", orderID),
		zap.Int("attempts", f.retry.Attempts),
		zap.Error(err))
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
