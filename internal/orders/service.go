package orders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-bookstore-orders/internal/inventory"
	"github.com/ariefcatur/go-bookstore-orders/internal/pricing"
)

// Notifications receives lifecycle events once they are committed.
// Implementations must not return errors to the caller; they log instead.
type Notifications interface {
	NewOrder(ctx context.Context, o Order)
	CancelledOrder(ctx context.Context, o Order)
	CompletedOrder(ctx context.Context, o Order)
}

// Mailer renders and sends order mail outside the core.
type Mailer interface {
	SendOrderConfirmation(ctx context.Context, o Order) error
	SendStaffNewOrderAlert(ctx context.Context, o Order) error
	SendStaffCancellationAlert(ctx context.Context, o Order) error
	SendCancellationNotice(ctx context.Context, o Order) error
}

// MilestonePolicy decides when completed orders earn a member discount.
type MilestonePolicy struct {
	Every    int // every Nth completed order, 0 disables issuing
	Percent  decimal.Decimal
	Validity time.Duration
}

func DefaultMilestonePolicy() MilestonePolicy {
	return MilestonePolicy{
		Every:    10,
		Percent:  decimal.NewFromInt(10),
		Validity: 30 * 24 * time.Hour,
	}
}

type Service struct {
	store     Store
	ledger    *inventory.Ledger
	rules     pricing.Rules
	milestone MilestonePolicy
	notify    Notifications
	mail      Mailer
	codes     func() (string, error)
	now       func() time.Time
	log       *zap.Logger

	wg sync.WaitGroup
}

type Option func(*Service)

func WithRules(r pricing.Rules) Option { return func(s *Service) { s.rules = r } }
func WithMilestone(m MilestonePolicy) Option { return func(s *Service) { s.milestone = m } }
func WithNotifications(n Notifications) Option { return func(s *Service) { s.notify = n } }
func WithMailer(m Mailer) Option { return func(s *Service) { s.mail = m } }
func WithClaimCodes(fn func() (string, error)) Option { return func(s *Service) { s.codes = fn } }
func WithClock(fn func() time.Time) Option { return func(s *Service) { s.now = fn } }
func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.log = l } }

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:     store,
		rules:     pricing.DefaultRules(),
		milestone: DefaultMilestonePolicy(),
		codes:     NewClaimCode,
		now:       time.Now,
		log:       zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	s.ledger = inventory.NewLedger(s.log.Named("inventory"))
	return s
}

// Wait blocks until every background notification has finished.
func (s *Service) Wait() { s.wg.Wait() }

// PlaceOrder prices, reserves and persists a new order in one transaction.
// Notifications and mail go out afterwards and never affect the result.
func (s *Service) PlaceOrder(ctx context.Context, userID string, reqs []LineRequest) (Order, error) {
	lines, err := mergeLines(reqs)
	if err != nil {
		return Order{}, err
	}
	now := s.now().UTC()

	// A code can pass the in-tx check and still lose the insert to a
	// concurrent placement; the store reports that as ErrClaimCodeTaken and
	// the whole transaction is replayed with a fresh draw.
	var order Order
	for attempt := 1; ; attempt++ {
		order, err = s.placeTx(ctx, userID, lines, now)
		if !errors.Is(err, ErrClaimCodeTaken) {
			break
		}
		s.log.Warn("claim code collided on insert", zap.String("user_id", userID), zap.Int("attempt", attempt))
		if attempt == maxClaimCodeAttempts {
			err = ErrClaimCodeExhausted
			break
		}
	}
	if err != nil {
		return Order{}, err
	}

	s.log.Info("order placed",
		zap.String("order_id", order.ID),
		zap.String("user_id", userID),
		zap.String("final_amount", order.FinalAmount.StringFixed(2)))

	s.notifyAsync(ctx, order, func(ctx context.Context) { s.notify.NewOrder(ctx, order) })
	s.mailAsync(ctx, order, "order confirmation", Mailer.SendOrderConfirmation)
	s.mailAsync(ctx, order, "staff new order alert", Mailer.SendStaffNewOrderAlert)
	return order, nil
}

func (s *Service) placeTx(ctx context.Context, userID string, lines []LineRequest, now time.Time) (Order, error) {
	var order Order
	err := s.store.InTx(ctx, func(tx Tx) error {
		ok, err := tx.UserExists(ctx, userID)
		if err != nil {
			return fmt.Errorf("check user: %w", err)
		}
		if !ok {
			return ErrUserNotFound
		}

		priced := make([]pricing.Line, 0, len(lines))
		titles := make(map[string]string, len(lines))
		for _, ln := range lines {
			b, err := tx.GetBook(ctx, ln.BookID)
			if err != nil {
				return err
			}
			titles[b.ID] = b.Title
			priced = append(priced, pricing.Line{
				BookID:    b.ID,
				Qty:       ln.Quantity,
				Price:     b.Price,
				Discounts: b.Discounts,
			})
		}

		if err := s.ledger.Reserve(ctx, tx, requestLines(lines)); err != nil {
			return err
		}

		milestonePct, err := s.redeemMemberDiscount(ctx, tx, userID, now)
		if err != nil {
			return err
		}

		q := s.rules.Quote(priced, milestonePct, now)

		code, err := s.mintClaimCode(ctx, tx)
		if err != nil {
			return err
		}

		order = Order{
			ID:             uuid.NewString(),
			UserID:         userID,
			OrderDate:      now,
			TotalAmount:    q.TotalAmount,
			DiscountAmount: q.DiscountAmount,
			FinalAmount:    q.FinalAmount,
			Status:         StatusPending,
			ClaimCode:      code,
		}
		for _, pl := range q.Lines {
			order.Items = append(order.Items, OrderItem{
				OrderID:   order.ID,
				BookID:    pl.BookID,
				BookTitle: titles[pl.BookID],
				Quantity:  pl.Qty,
				UnitPrice: pl.UnitPrice,
			})
		}
		order.History = []OrderHistory{{
			OrderID:    order.ID,
			Status:     StatusPending,
			StatusDate: now,
			Notes:      "Order placed",
		}}
		return tx.InsertOrder(ctx, &order)
	})
	if err != nil {
		return Order{}, err
	}
	return order, nil
}

func (s *Service) redeemMemberDiscount(ctx context.Context, tx Tx, userID string, now time.Time) (decimal.Decimal, error) {
	md, err := tx.LockMemberDiscount(ctx, userID, now)
	if err != nil {
		return decimal.Zero, fmt.Errorf("lock member discount: %w", err)
	}
	if md == nil || !md.Usable(now) {
		return decimal.Zero, nil
	}
	used, err := tx.UseMemberDiscount(ctx, md.ID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("use member discount: %w", err)
	}
	if !used {
		return decimal.Zero, nil
	}
	return md.Percentage, nil
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (Order, error) {
	return s.store.GetOrder(ctx, orderID)
}

func (s *Service) ListOrdersByUser(ctx context.Context, userID string) ([]Order, error) {
	return s.store.ListOrdersByUser(ctx, userID)
}

// mergeLines validates the request and folds repeated books into one line,
// keeping first-seen order.
func mergeLines(reqs []LineRequest) ([]LineRequest, error) {
	if len(reqs) == 0 {
		return nil, ErrEmptyOrder
	}
	idx := make(map[string]int, len(reqs))
	out := make([]LineRequest, 0, len(reqs))
	for _, r := range reqs {
		if r.Quantity <= 0 {
			return nil, fmt.Errorf("%w: book %s", ErrInvalidQuantity, r.BookID)
		}
		if i, ok := idx[r.BookID]; ok {
			out[i].Quantity += r.Quantity
			continue
		}
		idx[r.BookID] = len(out)
		out = append(out, r)
	}
	return out, nil
}

func requestLines(reqs []LineRequest) []inventory.Line {
	out := make([]inventory.Line, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, inventory.Line{BookID: r.BookID, Qty: r.Quantity})
	}
	return out
}

func itemLines(items []OrderItem) []inventory.Line {
	out := make([]inventory.Line, 0, len(items))
	for _, it := range items {
		out = append(out, inventory.Line{BookID: it.BookID, Qty: it.Quantity})
	}
	return out
}

// notifyAsync runs fn detached from the request so the caller's response
// never waits on delivery.
func (s *Service) notifyAsync(ctx context.Context, o Order, fn func(context.Context)) {
	if s.notify == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.recoverBackground("notify", o.ID)
		fn(ctx)
	}()
}

func (s *Service) mailAsync(ctx context.Context, o Order, what string, send func(Mailer, context.Context, Order) error) {
	if s.mail == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.recoverBackground(what, o.ID)
		if err := send(s.mail, ctx, o); err != nil {
			s.log.Warn("mail failed",
				zap.String("mail", what),
				zap.String("order_id", o.ID),
				zap.Error(err))
		}
	}()
}

func (s *Service) recoverBackground(what, orderID string) {
	if r := recover(); r != nil {
		s.log.Error("background task panicked",
			zap.String("task", what),
			zap.String("order_id", orderID),
			zap.Any("panic", r))
	}
}
