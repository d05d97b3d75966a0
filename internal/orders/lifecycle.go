package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Cancel moves a pending order of userID to Cancelled and gives its stock
// back. Staff and the customer are told afterwards, best-effort.
func (s *Service) Cancel(ctx context.Context, orderID, userID string) (Order, error) {
	var order Order
	err := s.store.InTx(ctx, func(tx Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.UserID != userID {
			return ErrOwnershipMismatch
		}
		if !CanTransition(o.Status, StatusCancelled) {
			return fmt.Errorf("%w: order is %s", ErrNotPending, o.Status)
		}

		if err := s.ledger.Restore(ctx, tx, itemLines(o.Items)); err != nil {
			return err
		}
		if err := s.transition(ctx, tx, &o, StatusCancelled, "Cancelled by customer"); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.log.Info("order cancelled", zap.String("order_id", order.ID), zap.String("user_id", userID))

	s.notifyAsync(ctx, order, func(ctx context.Context) { s.notify.CancelledOrder(ctx, order) })
	s.mailAsync(ctx, order, "cancellation notice", Mailer.SendCancellationNotice)
	s.mailAsync(ctx, order, "staff cancellation alert", Mailer.SendStaffCancellationAlert)
	return order, nil
}

// Complete hands a pending order over to the customer presenting its claim
// code. A wrong code changes nothing.
func (s *Service) Complete(ctx context.Context, orderID, claimCode string) (Order, error) {
	var order Order
	err := s.store.InTx(ctx, func(tx Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if !CanTransition(o.Status, StatusCompleted) {
			return fmt.Errorf("%w: order is %s", ErrNotPending, o.Status)
		}
		if !ClaimCodesMatch(o.ClaimCode, claimCode) {
			return ErrInvalidClaimCode
		}

		o.IsClaimed = true
		if err := s.transition(ctx, tx, &o, StatusCompleted, "Picked up with claim code"); err != nil {
			return err
		}
		if err := s.creditMilestone(ctx, tx, o.UserID); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInvalidClaimCode) {
			s.log.Warn("claim code rejected", zap.String("order_id", orderID))
		}
		return Order{}, err
	}

	s.log.Info("order completed", zap.String("order_id", order.ID), zap.String("user_id", order.UserID))

	s.notifyAsync(ctx, order, func(ctx context.Context) { s.notify.CompletedOrder(ctx, order) })
	return order, nil
}

// transition applies a guarded status change and appends the audit row.
// Losing the guard means someone else moved the order first.
func (s *Service) transition(ctx context.Context, tx Tx, o *Order, to Status, notes string) error {
	ok, err := tx.TransitionOrder(ctx, o.ID, o.Status, to, o.IsClaimed)
	if err != nil {
		return fmt.Errorf("transition order: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: order changed concurrently", ErrNotPending)
	}
	h := OrderHistory{
		OrderID:    o.ID,
		Status:     to,
		StatusDate: s.now().UTC(),
		Notes:      notes,
	}
	if err := tx.AppendHistory(ctx, h); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	o.Status = to
	o.History = append(o.History, h)
	return nil
}

// creditMilestone banks a member discount every milestone.Every completed
// orders. It runs after the transition so the count includes this order.
// The user row is locked first: two completions for one user count one at a
// time, so a milestone is credited once.
func (s *Service) creditMilestone(ctx context.Context, tx Tx, userID string) error {
	if s.milestone.Every <= 0 {
		return nil
	}
	if err := tx.LockUser(ctx, userID); err != nil {
		return fmt.Errorf("lock user: %w", err)
	}
	n, err := tx.CountCompletedOrders(ctx, userID)
	if err != nil {
		return fmt.Errorf("count completed orders: %w", err)
	}
	if n == 0 || n%s.milestone.Every != 0 {
		return nil
	}
	now := s.now().UTC()
	md := MemberDiscount{
		ID:         uuid.NewString(),
		UserID:     userID,
		Percentage: s.milestone.Percent,
		ExpiryDate: now.Add(s.milestone.Validity),
		CreatedAt:  now,
	}
	if err := tx.IssueMemberDiscount(ctx, md); err != nil {
		return fmt.Errorf("issue member discount: %w", err)
	}
	s.log.Info("member discount issued",
		zap.String("user_id", userID),
		zap.Int("completed_orders", n),
		zap.String("percentage", md.Percentage.String()))
	return nil
}
