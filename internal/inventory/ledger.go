// Package inventory owns stock-quantity mutations for books.
//
// The ledger never talks to a database directly. It runs inside a caller's
// transaction through StockTx so a reservation commits or rolls back together
// with the order that needs it.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

var (
	ErrInventoryMissing  = errors.New("inventory missing")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Line is a quantity of one book.
type Line struct {
	BookID string
	Qty    int
}

// Shortage describes one line that could not be covered.
type Shortage struct {
	BookID    string `json:"book_id"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// InsufficientStockError lists every short line of a rejected reservation.
type InsufficientStockError struct {
	Shortages []Shortage
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		parts = append(parts, fmt.Sprintf("book %s requested %d available %d", s.BookID, s.Requested, s.Available))
	}
	return "insufficient stock: " + strings.Join(parts, "; ")
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// StockTx is the slice of a storage transaction the ledger needs.
type StockTx interface {
	// LockStock locks the inventory rows of bookIDs, in the given order, and
	// returns their quantities. Books without a row are absent from the map.
	LockStock(ctx context.Context, bookIDs []string) (map[string]int, error)
	// AdjustStock adds delta to a book's quantity. It reports false when no
	// row was changed: the row is missing or the result would be negative.
	AdjustStock(ctx context.Context, bookID string, delta int) (bool, error)
}

type Ledger struct {
	log *zap.Logger
}

func NewLedger(log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{log: log}
}

// Reserve decrements stock for every line or for none of them. All lines are
// validated against locked rows before the first decrement.
func (l *Ledger) Reserve(ctx context.Context, tx StockTx, lines []Line) error {
	want := merge(lines)
	ids := sortedIDs(want)

	stock, err := tx.LockStock(ctx, ids)
	if err != nil {
		return fmt.Errorf("lock stock: %w", err)
	}

	var short []Shortage
	for _, id := range ids {
		have, ok := stock[id]
		if !ok {
			return fmt.Errorf("%w: book %s", ErrInventoryMissing, id)
		}
		if have < want[id] {
			short = append(short, Shortage{BookID: id, Requested: want[id], Available: have})
		}
	}
	if len(short) > 0 {
		return &InsufficientStockError{Shortages: short}
	}

	for _, id := range ids {
		ok, err := tx.AdjustStock(ctx, id, -want[id])
		if err != nil {
			return fmt.Errorf("decrement stock %s: %w", id, err)
		}
		if !ok {
			// row vanished or changed under the lock; the tx gets rolled back
			return &InsufficientStockError{Shortages: []Shortage{{BookID: id, Requested: want[id], Available: stock[id]}}}
		}
	}
	return nil
}

// Restore gives back the stock of a cancelled reservation. Missing rows are
// logged and skipped; only storage errors are returned.
func (l *Ledger) Restore(ctx context.Context, tx StockTx, lines []Line) error {
	give := merge(lines)
	for _, id := range sortedIDs(give) {
		ok, err := tx.AdjustStock(ctx, id, give[id])
		if err != nil {
			return fmt.Errorf("restore stock %s: %w", id, err)
		}
		if !ok {
			l.log.Warn("inventory row missing on restore, skipped",
				zap.String("book_id", id),
				zap.Int("qty", give[id]))
		}
	}
	return nil
}

func merge(lines []Line) map[string]int {
	out := make(map[string]int, len(lines))
	for _, ln := range lines {
		out[ln.BookID] += ln.Qty
	}
	return out
}

// sortedIDs gives a stable lock order so two orders touching the same books
// cannot deadlock each other.
func sortedIDs(m map[string]int) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
