package httpx

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-bookstore-orders/internal/inventory"
	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
)

type errorBody struct {
	Error     string               `json:"error"`
	Message   string               `json:"message"`
	Shortages []inventory.Shortage `json:"shortages,omitempty"`
}

var errorCodes = []struct {
	err    error
	status int
	code   string
}{
	{orders.ErrEmptyOrder, http.StatusBadRequest, "empty_order"},
	{orders.ErrInvalidQuantity, http.StatusBadRequest, "invalid_quantity"},
	{orders.ErrUserNotFound, http.StatusNotFound, "user_not_found"},
	{orders.ErrBookNotFound, http.StatusNotFound, "book_not_found"},
	{orders.ErrOrderNotFound, http.StatusNotFound, "order_not_found"},
	{orders.ErrInventoryMissing, http.StatusConflict, "inventory_missing"},
	{orders.ErrInsufficientStock, http.StatusConflict, "insufficient_stock"},
	{orders.ErrNotPending, http.StatusConflict, "not_pending"},
	{orders.ErrOwnershipMismatch, http.StatusForbidden, "not_owner"},
	{orders.ErrInvalidClaimCode, http.StatusUnprocessableEntity, "invalid_claim_code"},
}

// writeError maps domain errors to 4xx; anything else is logged and
// reported as a 500 without detail.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	for _, e := range errorCodes {
		if !errors.Is(err, e.err) {
			continue
		}
		body := errorBody{Error: e.code, Message: err.Error()}
		var ise *orders.InsufficientStockError
		if errors.As(err, &ise) {
			body.Shortages = ise.Shortages
		}
		writeJSON(w, e.status, body)
		return
	}
	log.Error("request failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal", Message: "internal error"})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: msg})
}
