package orders

import (
	"errors"

	"github.com/ariefcatur/go-bookstore-orders/internal/inventory"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrBookNotFound       = errors.New("book not found")
	ErrOrderNotFound      = errors.New("order not found")
	ErrNotPending         = errors.New("order is not pending")
	ErrOwnershipMismatch  = errors.New("order belongs to another user")
	ErrInvalidClaimCode   = errors.New("invalid claim code")
	ErrEmptyOrder         = errors.New("order must have at least one item")
	ErrInvalidQuantity    = errors.New("item quantity must be positive")
	ErrClaimCodeExhausted = errors.New("could not mint an unused claim code")
	ErrClaimCodeTaken     = errors.New("claim code already held by a pending order")

	ErrInventoryMissing  = inventory.ErrInventoryMissing
	ErrInsufficientStock = inventory.ErrInsufficientStock
)

// InsufficientStockError carries the short lines; errors.Is matches
// ErrInsufficientStock.
type InsufficientStockError = inventory.InsufficientStockError
