// Package sqlite is a single-writer orders.Store on the pure-Go SQLite
// driver. It backs local runs and the service tests.
//
// The pool holds exactly one connection, so transactions are serialized and
// a reserve inside one tx can never interleave with another.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
	"github.com/ariefcatur/go-bookstore-orders/internal/pricing"

	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)", path)
	if path != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) InTx(ctx context.Context, fn func(tx orders.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&storeTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (orders.Order, error) {
	return loadOrder(ctx, s.db, orderID)
}

func (s *Store) ListOrdersByUser(ctx context.Context, userID string) ([]orders.Order, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM orders WHERE user_id = ? ORDER BY order_date DESC, id`, userID)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]orders.Order, 0, len(ids))
	for _, id := range ids {
		o, err := loadOrder(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type storeTx struct {
	tx *sql.Tx
}

func (t *storeTx) UserExists(ctx context.Context, userID string) (bool, error) {
	var n int
	err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE id = ?`, userID).Scan(&n)
	return n > 0, err
}

func (t *storeTx) GetBook(ctx context.Context, bookID string) (orders.Book, error) {
	var (
		b     orders.Book
		price string
	)
	err := t.tx.QueryRowContext(ctx, `SELECT id, title, price FROM books WHERE id = ?`, bookID).
		Scan(&b.ID, &b.Title, &price)
	if errors.Is(err, sql.ErrNoRows) {
		return orders.Book{}, fmt.Errorf("%w: %s", orders.ErrBookNotFound, bookID)
	}
	if err != nil {
		return orders.Book{}, err
	}
	if b.Price, err = decimal.NewFromString(price); err != nil {
		return orders.Book{}, fmt.Errorf("sqlite: book %s price: %w", bookID, err)
	}

	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, percentage, start_date, end_date, is_active
		FROM discounts WHERE book_id = ? AND is_active = 1`, bookID)
	if err != nil {
		return orders.Book{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			d             pricing.Discount
			pct, from, to string
		)
		if err := rows.Scan(&d.ID, &pct, &from, &to, &d.IsActive); err != nil {
			return orders.Book{}, err
		}
		d.BookID = bookID
		if d.Percentage, err = decimal.NewFromString(pct); err != nil {
			return orders.Book{}, fmt.Errorf("sqlite: discount %s percentage: %w", d.ID, err)
		}
		if d.StartDate, err = parseTime(from); err != nil {
			return orders.Book{}, err
		}
		if d.EndDate, err = parseTime(to); err != nil {
			return orders.Book{}, err
		}
		b.Discounts = append(b.Discounts, d)
	}
	return b, rows.Err()
}

func (t *storeTx) LockStock(ctx context.Context, bookIDs []string) (map[string]int, error) {
	out := make(map[string]int, len(bookIDs))
	if len(bookIDs) == 0 {
		return out, nil
	}
	args := make([]any, 0, len(bookIDs))
	for _, id := range bookIDs {
		args = append(args, id)
	}
	rows, err := t.tx.QueryContext(ctx,
		`SELECT book_id, quantity FROM inventory WHERE book_id IN (`+placeholders(len(bookIDs))+`)`, args...)
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
	res, err := t.tx.ExecContext(ctx, `
		UPDATE inventory SET quantity = quantity + ?
		WHERE book_id = ? AND quantity + ? >= 0`, delta, bookID, delta)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (t *storeTx) LockMemberDiscount(ctx context.Context, userID string, now time.Time) (*orders.MemberDiscount, error) {
	var (
		md                     orders.MemberDiscount
		pct, expiry, createdAt string
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, user_id, percentage, is_used, expiry_date, created_at
		FROM member_discounts
		WHERE user_id = ? AND is_used = 0 AND expiry_date > ?
		ORDER BY expiry_date, id
		LIMIT 1`, userID, formatTime(now)).
		Scan(&md.ID, &md.UserID, &pct, &md.IsUsed, &expiry, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if md.Percentage, err = decimal.NewFromString(pct); err != nil {
		return nil, fmt.Errorf("sqlite: member discount %s percentage: %w", md.ID, err)
	}
	if md.ExpiryDate, err = parseTime(expiry); err != nil {
		return nil, err
	}
	if md.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &md, nil
}

func (t *storeTx) UseMemberDiscount(ctx context.Context, id string) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `UPDATE member_discounts SET is_used = 1 WHERE id = ? AND is_used = 0`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (t *storeTx) IssueMemberDiscount(ctx context.Context, md orders.MemberDiscount) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO member_discounts (id, user_id, percentage, is_used, expiry_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		md.ID, md.UserID, md.Percentage.String(), md.IsUsed, formatTime(md.ExpiryDate), formatTime(md.CreatedAt))
	return err
}

// LockUser only checks the row; the single connection already serializes
// transactions.
func (t *storeTx) LockUser(ctx context.Context, userID string) error {
	ok, err := t.UserExists(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", orders.ErrUserNotFound, userID)
	}
	return nil
}

func (t *storeTx) CountCompletedOrders(ctx context.Context, userID string) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders WHERE user_id = ? AND status = ?`, userID, string(orders.StatusCompleted)).Scan(&n)
	return n, err
}

func (t *storeTx) ClaimCodeInUse(ctx context.Context, code string) (bool, error) {
	var n int
	err := t.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders WHERE claim_code = ? AND status = ?`, code, string(orders.StatusPending)).Scan(&n)
	return n > 0, err
}

func (t *storeTx) InsertOrder(ctx context.Context, o *orders.Order) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, order_date, total_amount, discount_amount, final_amount, status, claim_code, is_claimed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.UserID, formatTime(o.OrderDate),
		o.TotalAmount.String(), o.DiscountAmount.String(), o.FinalAmount.String(),
		string(o.Status), o.ClaimCode, o.IsClaimed)
	if isClaimCodeConflict(err) {
		return fmt.Errorf("%w: %s", orders.ErrClaimCodeTaken, o.ClaimCode)
	}
	if err != nil {
		return fmt.Errorf("sqlite: insert order: %w", err)
	}
	for _, it := range o.Items {
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, book_id, quantity, unit_price)
			VALUES (?, ?, ?, ?)`, o.ID, it.BookID, it.Quantity, it.UnitPrice.String()); err != nil {
			return fmt.Errorf("sqlite: insert order item: %w", err)
		}
	}
	for _, h := range o.History {
		if err := t.AppendHistory(ctx, h); err != nil {
			return err
		}
	}
	return nil
}

func (t *storeTx) LockOrder(ctx context.Context, orderID string) (orders.Order, error) {
	return loadOrder(ctx, t.tx, orderID)
}

func (t *storeTx) TransitionOrder(ctx context.Context, orderID string, from, to orders.Status, claimed bool) (bool, error) {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE orders SET status = ?, is_claimed = ? WHERE id = ? AND status = ?`,
		string(to), claimed, orderID, string(from))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (t *storeTx) AppendHistory(ctx context.Context, h orders.OrderHistory) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO order_history (order_id, status, status_date, notes)
		VALUES (?, ?, ?, ?)`, h.OrderID, string(h.Status), formatTime(h.StatusDate), h.Notes)
	if err != nil {
		return fmt.Errorf("sqlite: append history: %w", err)
	}
	return nil
}

func loadOrder(ctx context.Context, q querier, orderID string) (orders.Order, error) {
	var (
		o                                orders.Order
		date, total, discount, final, st string
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, user_id, order_date, total_amount, discount_amount, final_amount, status, claim_code, is_claimed
		FROM orders WHERE id = ?`, orderID).
		Scan(&o.ID, &o.UserID, &date, &total, &discount, &final, &st, &o.ClaimCode, &o.IsClaimed)
	if errors.Is(err, sql.ErrNoRows) {
		return orders.Order{}, fmt.Errorf("%w: %s", orders.ErrOrderNotFound, orderID)
	}
	if err != nil {
		return orders.Order{}, err
	}
	o.Status = orders.Status(st)
	if o.OrderDate, err = parseTime(date); err != nil {
		return orders.Order{}, err
	}
	if o.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return orders.Order{}, err
	}
	if o.DiscountAmount, err = decimal.NewFromString(discount); err != nil {
		return orders.Order{}, err
	}
	if o.FinalAmount, err = decimal.NewFromString(final); err != nil {
		return orders.Order{}, err
	}

	if o.Items, err = loadItems(ctx, q, orderID); err != nil {
		return orders.Order{}, err
	}
	if o.History, err = loadHistory(ctx, q, orderID); err != nil {
		return orders.Order{}, err
	}
	return o, nil
}

func loadItems(ctx context.Context, q querier, orderID string) ([]orders.OrderItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT oi.book_id, COALESCE(b.title, ''), oi.quantity, oi.unit_price
		FROM order_items oi LEFT JOIN books b ON b.id = oi.book_id
		WHERE oi.order_id = ? ORDER BY oi.id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []orders.OrderItem
	for rows.Next() {
		var (
			it    orders.OrderItem
			price string
		)
		if err := rows.Scan(&it.BookID, &it.BookTitle, &it.Quantity, &price); err != nil {
			return nil, err
		}
		it.OrderID = orderID
		if it.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func loadHistory(ctx context.Context, q querier, orderID string) ([]orders.OrderHistory, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT status, status_date, notes FROM order_history
		WHERE order_id = ? ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []orders.OrderHistory
	for rows.Next() {
		var (
			h        orders.OrderHistory
			st, date string
		)
		if err := rows.Scan(&st, &date, &h.Notes); err != nil {
			return nil, err
		}
		h.OrderID = orderID
		h.Status = orders.Status(st)
		if h.StatusDate, err = parseTime(date); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// isClaimCodeConflict matches a hit on uq_orders_pending_claim. SQLite names
// the column, not the index, in the message.
func isClaimCodeConflict(err error) bool {
	var se *sqlitedrv.Error
	if !errors.As(err, &se) || se.Code()&0xff != sqlite3.SQLITE_CONSTRAINT {
		return false
	}
	return strings.Contains(se.Error(), "orders.claim_code")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
