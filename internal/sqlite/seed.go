package sqlite

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
)

// Catalog and user data are owned by other subsystems and nothing in cmd/
// writes them. These helpers are test support: the service, store and HTTP
// tests seed and inspect a throwaway database through them.

func (s *Store) AddUser(ctx context.Context, id, email string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO users (id, email) VALUES (?, ?)`, id, email)
	return err
}

// AddBook inserts a book, its discounts and an inventory row holding stock.
// A negative stock skips the inventory row.
func (s *Store) AddBook(ctx context.Context, b orders.Book, stock int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT INTO books (id, title, price) VALUES (?, ?, ?)`,
		b.ID, b.Title, b.Price.String()); err != nil {
		return fmt.Errorf("sqlite: add book: %w", err)
	}
	for i, d := range b.Discounts {
		id := d.ID
		if id == "" {
			id = fmt.Sprintf("%s-d%d", b.ID, i)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO discounts (id, book_id, percentage, start_date, end_date, is_active)
			VALUES (?, ?, ?, ?, ?, ?)`,
			id, b.ID, d.Percentage.String(), formatTime(d.StartDate), formatTime(d.EndDate), d.IsActive); err != nil {
			return fmt.Errorf("sqlite: add discount: %w", err)
		}
	}
	if stock >= 0 {
		if _, err := tx.ExecContext(ctx, `INSERT INTO inventory (book_id, quantity) VALUES (?, ?)`, b.ID, stock); err != nil {
			return fmt.Errorf("sqlite: add inventory: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) AddMemberDiscount(ctx context.Context, md orders.MemberDiscount) error {
	return s.InTx(ctx, func(tx orders.Tx) error {
		return tx.IssueMemberDiscount(ctx, md)
	})
}

func (s *Store) Stock(ctx context.Context, bookID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT quantity FROM inventory WHERE book_id = ?`, bookID).Scan(&n)
	return n, err
}

// DeleteInventory drops a book's inventory row.
func (s *Store) DeleteInventory(ctx context.Context, bookID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM inventory WHERE book_id = ?`, bookID)
	return err
}

// MemberDiscounts lists every member discount of a user, used or not.
func (s *Store) MemberDiscounts(ctx context.Context, userID string) ([]orders.MemberDiscount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, percentage, is_used, expiry_date, created_at
		FROM member_discounts WHERE user_id = ? ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []orders.MemberDiscount
	for rows.Next() {
		var (
			md                     orders.MemberDiscount
			pct, expiry, createdAt string
		)
		if err := rows.Scan(&md.ID, &md.UserID, &pct, &md.IsUsed, &expiry, &createdAt); err != nil {
			return nil, err
		}
		if err := md.Percentage.Scan(pct); err != nil {
			return nil, err
		}
		if md.ExpiryDate, err = parseTime(expiry); err != nil {
			return nil, err
		}
		if md.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, md)
	}
	return out, rows.Err()
}
