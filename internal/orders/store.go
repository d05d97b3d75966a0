package orders

import (
	"context"
	"time"

	"github.com/ariefcatur/go-bookstore-orders/internal/inventory"
)

// Store is the persistence boundary of the order core. Implementations live
// in internal/postgres and internal/sqlite.
type Store interface {
	// InTx runs fn in one transaction; fn's error rolls everything back.
	InTx(ctx context.Context, fn func(tx Tx) error) error
	GetOrder(ctx context.Context, orderID string) (Order, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]Order, error)
}

// Tx is everything placement and lifecycle transitions do inside a
// transaction. Lock* methods hold their rows until the tx ends.
type Tx interface {
	inventory.StockTx

	UserExists(ctx context.Context, userID string) (bool, error)
	// GetBook loads a book with its active-flagged discounts. Missing books
	// return ErrBookNotFound.
	GetBook(ctx context.Context, bookID string) (Book, error)

	// LockMemberDiscount locks the user's oldest unused discount that has
	// not expired at now. nil when there is none.
	LockMemberDiscount(ctx context.Context, userID string, now time.Time) (*MemberDiscount, error)
	// UseMemberDiscount flips is_used, reporting false if it already was.
	UseMemberDiscount(ctx context.Context, id string) (bool, error)
	IssueMemberDiscount(ctx context.Context, md MemberDiscount) error
	// LockUser holds the user row until the transaction ends, or returns
	// ErrUserNotFound.
	LockUser(ctx context.Context, userID string) error
	CountCompletedOrders(ctx context.Context, userID string) (int, error)

	ClaimCodeInUse(ctx context.Context, code string) (bool, error)
	// InsertOrder writes the order, its items and its history rows. It
	// returns ErrClaimCodeTaken when another pending order already holds the
	// claim code; the transaction is then unusable and must be rolled back.
	InsertOrder(ctx context.Context, o *Order) error
	// LockOrder loads an order with items and history, or ErrOrderNotFound.
	LockOrder(ctx context.Context, orderID string) (Order, error)
	// TransitionOrder moves the order from -> to only if it is still in from.
	TransitionOrder(ctx context.Context, orderID string, from, to Status, claimed bool) (bool, error)
	AppendHistory(ctx context.Context, h OrderHistory) error
}
