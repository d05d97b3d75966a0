package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
	"github.com/ariefcatur/go-bookstore-orders/internal/pricing"
)

// Store is the production orders.Store. Stock, member discounts and orders
// are locked with FOR UPDATE inside the caller's transaction, so concurrent
// placements on the same book queue up on the row instead of overselling.
type Store struct{ DB *pgxpool.Pool }

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (s *Store) InTx(ctx context.Context, fn func(tx orders.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&storeTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (orders.Order, error) {
	return loadOrder(ctx, s.DB, orderID, false)
}

func (s *Store) ListOrdersByUser(ctx context.Context, userID string) ([]orders.Order, error) {
	rows, err := s.DB.Query(ctx, `SELECT id FROM orders WHERE user_id=$1 ORDER BY order_date DESC, id`, userID)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}

	out := make([]orders.Order, 0, len(ids))
	for _, id := range ids {
		o, err := loadOrder(ctx, s.DB, id, false)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

type storeTx struct{ tx pgx.Tx }

func (t *storeTx) UserExists(ctx context.Context, userID string) (bool, error) {
	var ok bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id=$1)`, userID).Scan(&ok)
	return ok, err
}

func (t *storeTx) GetBook(ctx context.Context, bookID string) (orders.Book, error) {
	var (
		b     orders.Book
		price string
	)
	err := t.tx.QueryRow(ctx, `SELECT id, title, price::text FROM books WHERE id=$1`, bookID).
		Scan(&b.ID, &b.Title, &price)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Book{}, fmt.Errorf("%w: %s", orders.ErrBookNotFound, bookID)
	}
	if err != nil {
		return orders.Book{}, err
	}
	if b.Price, err = decimal.NewFromString(price); err != nil {
		return orders.Book{}, fmt.Errorf("book %s price: %w", bookID, err)
	}

	rows, err := t.tx.Query(ctx, `
		SELECT id, percentage::text, start_date, end_date, is_active
		FROM discounts WHERE book_id=$1 AND is_active`, bookID)
	if err != nil {
		return orders.Book{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			d   pricing.Discount
			pct string
		)
		if err := rows.Scan(&d.ID, &pct, &d.StartDate, &d.EndDate, &d.IsActive); err != nil {
			return orders.Book{}, err
		}
		d.BookID = bookID
		if d.Percentage, err = decimal.NewFromString(pct); err != nil {
			return orders.Book{}, fmt.Errorf("discount %s percentage: %w", d.ID, err)
		}
		b.Discounts = append(b.Discounts, d)
	}
	return b, rows.Err()
}

// LockStock locks the inventory rows in id order.
func (t *storeTx) LockStock(ctx context.Context, bookIDs []string) (map[string]int, error) {
	out := make(map[string]int, len(bookIDs))
	if len(bookIDs) == 0 {
		return out, nil
	}
	rows, err := t.tx.Query(ctx, `
		SELECT book_id, quantity FROM inventory
		WHERE book_id = ANY($1)
		ORDER BY book_id
		FOR UPDATE`, bookIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id  string
			qty int
		)
		if err := rows.Scan(&id, &qty); err != nil {
			return nil, err
		}
		out[id] = qty
	}
	return out, rows.Err()
}

func (t *storeTx) AdjustStock(ctx context.Context, bookID string, delta int) (bool, error) {
	ct, err := t.tx.Exec(ctx, `
		UPDATE inventory SET quantity = quantity + $2, updated_at = now()
		WHERE book_id=$1 AND quantity + $2 >= 0`, bookID, delta)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (t *storeTx) LockMemberDiscount(ctx context.Context, userID string, now time.Time) (*orders.MemberDiscount, error) {
	var (
		md  orders.MemberDiscount
		pct string
	)
	err := t.tx.QueryRow(ctx, `
		SELECT id, user_id, percentage::text, is_used, expiry_date, created_at
		FROM member_discounts
		WHERE user_id=$1 AND NOT is_used AND expiry_date > $2
		ORDER BY expiry_date, id
		LIMIT 1
		FOR UPDATE`, userID, now).
		Scan(&md.ID, &md.UserID, &pct, &md.IsUsed, &md.ExpiryDate, &md.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if md.Percentage, err = decimal.NewFromString(pct); err != nil {
		return nil, fmt.Errorf("member discount %s percentage: %w", md.ID, err)
	}
	return &md, nil
}

func (t *storeTx) UseMemberDiscount(ctx context.Context, id string) (bool, error) {
	ct, err := t.tx.Exec(ctx, `UPDATE member_discounts SET is_used = TRUE WHERE id=$1 AND NOT is_used`, id)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (t *storeTx) IssueMemberDiscount(ctx context.Context, md orders.MemberDiscount) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO member_discounts (id, user_id, percentage, is_used, expiry_date, created_at)
		VALUES ($1, $2, $3::numeric, $4, $5, $6)`,
		md.ID, md.UserID, md.Percentage.String(), md.IsUsed, md.ExpiryDate, md.CreatedAt)
	return err
}

func (t *storeTx) LockUser(ctx context.Context, userID string) error {
	var id string
	err := t.tx.QueryRow(ctx, `SELECT id FROM users WHERE id=$1 FOR UPDATE`, userID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", orders.ErrUserNotFound, userID)
	}
	return err
}

func (t *storeTx) CountCompletedOrders(ctx context.Context, userID string) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM orders WHERE user_id=$1 AND status=$2`, userID, string(orders.StatusCompleted)).Scan(&n)
	return n, err
}

func (t *storeTx) ClaimCodeInUse(ctx context.Context, code string) (bool, error) {
	var ok bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM orders WHERE claim_code=$1 AND status=$2)`, code, string(orders.StatusPending)).Scan(&ok)
	return ok, err
}

func (t *storeTx) InsertOrder(ctx context.Context, o *orders.Order) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders(id, user_id, order_date, total_amount, discount_amount, final_amount, status, claim_code, is_claimed)
		VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7, $8, $9)`,
		o.ID, o.UserID, o.OrderDate,
		o.TotalAmount.String(), o.DiscountAmount.String(), o.FinalAmount.String(),
		string(o.Status), o.ClaimCode, o.IsClaimed)
	if isUniqueViolation(err, "uq_orders_pending_claim") {
		return fmt.Errorf("%w: %s", orders.ErrClaimCodeTaken, o.ClaimCode)
	}
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	// insert items
	batch := &pgx.Batch{}
	for _, it := range o.Items {
		batch.Queue(`
			INSERT INTO order_items(order_id, book_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4::numeric)`,
			o.ID, it.BookID, it.Quantity, it.UnitPrice.String())
	}
	for _, h := range o.History {
		batch.Queue(`
			INSERT INTO order_history(order_id, status, status_date, notes)
			VALUES ($1, $2, $3, $4)`,
			h.OrderID, string(h.Status), h.StatusDate, h.Notes)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert order lines: %w", err)
	}
	return nil
}

func (t *storeTx) LockOrder(ctx context.Context, orderID string) (orders.Order, error) {
	return loadOrder(ctx, t.tx, orderID, true)
}

func (t *storeTx) TransitionOrder(ctx context.Context, orderID string, from, to orders.Status, claimed bool) (bool, error) {
	ct, err := t.tx.Exec(ctx,
		`UPDATE orders SET status=$3, is_claimed=$4 WHERE id=$1 AND status=$2`,
		orderID, string(from), string(to), claimed)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (t *storeTx) AppendHistory(ctx context.Context, h orders.OrderHistory) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO order_history(order_id, status, status_date, notes)
		VALUES ($1, $2, $3, $4)`, h.OrderID, string(h.Status), h.StatusDate, h.Notes)
	return err
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}

func loadOrder(ctx context.Context, q querier, orderID string, lock bool) (orders.Order, error) {
	query := `
		SELECT id, user_id, order_date, total_amount::text, discount_amount::text, final_amount::text,
		       status, claim_code, is_claimed
		FROM orders WHERE id=$1`
	if lock {
		query += ` FOR UPDATE`
	}

	var (
		o                      orders.Order
		total, discount, final string
		st                     string
	)
	err := q.QueryRow(ctx, query, orderID).
		Scan(&o.ID, &o.UserID, &o.OrderDate, &total, &discount, &final, &st, &o.ClaimCode, &o.IsClaimed)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Order{}, fmt.Errorf("%w: %s", orders.ErrOrderNotFound, orderID)
	}
	if err != nil {
		return orders.Order{}, err
	}
	o.Status = orders.Status(st)
	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{{&o.TotalAmount, total}, {&o.DiscountAmount, discount}, {&o.FinalAmount, final}} {
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			return orders.Order{}, fmt.Errorf("order %s amount: %w", orderID, err)
		}
	}

	rows, err := q.Query(ctx, `
		SELECT oi.book_id, COALESCE(b.title, ''), oi.quantity, oi.unit_price::text
		FROM order_items oi LEFT JOIN books b ON b.id = oi.book_id
		WHERE oi.order_id=$1 ORDER BY oi.id`, orderID)
	if err != nil {
		return orders.Order{}, err
	}
	for rows.Next() {
		var (
			it    orders.OrderItem
			price string
		)
		if err := rows.Scan(&it.BookID, &it.BookTitle, &it.Quantity, &price); err != nil {
			rows.Close()
			return orders.Order{}, err
		}
		it.OrderID = orderID
		if it.UnitPrice, err = decimal.NewFromString(price); err != nil {
			rows.Close()
			return orders.Order{}, err
		}
		o.Items = append(o.Items, it)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return orders.Order{}, err
	}

	rows, err = q.Query(ctx, `
		SELECT status, status_date, notes FROM order_history
		WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return orders.Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			h  orders.OrderHistory
			st string
		)
		if err := rows.Scan(&st, &h.StatusDate, &h.Notes); err != nil {
			return orders.Order{}, err
		}
		h.OrderID = orderID
		h.Status = orders.Status(st)
		o.History = append(o.History, h)
	}
	return o, rows.Err()
}
