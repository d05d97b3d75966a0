package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
	"github.com/ariefcatur/go-bookstore-orders/internal/redisx"
)

// OrderService is the part of orders.Service the API drives.
type OrderService interface {
	PlaceOrder(ctx context.Context, userID string, reqs []orders.LineRequest) (orders.Order, error)
	GetOrder(ctx context.Context, orderID string) (orders.Order, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]orders.Order, error)
	Cancel(ctx context.Context, orderID, userID string) (orders.Order, error)
	Complete(ctx context.Context, orderID, claimCode string) (orders.Order, error)
}

// Cache backs idempotency keys and the order read cache.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
}

type OrdersHandler struct {
	Orders OrderService
	Cache  Cache // optional
	Log    *zap.Logger
}

const idemPending = "pending"

type CreateOrderReq struct {
	UserID string               `json:"user_id"`
	Items  []orders.LineRequest `json:"items"`
}

type CancelOrderReq struct {
	UserID string `json:"user_id"`
}

type CompleteOrderReq struct {
	ClaimCode string `json:"claim_code"`
}

type HistoryResp struct {
	Status     orders.Status `json:"status"`
	StatusDate time.Time     `json:"statusDate"`
	Notes      string        `json:"notes,omitempty"`
}

type OrderResp struct {
	orders.OrderPayload
	UserID     string        `json:"userId"`
	IsClaimed  bool          `json:"isClaimed"`
	History    []HistoryResp `json:"history"`
	Idempotent bool          `json:"idempotent,omitempty"`
}

func toOrderResp(o orders.Order) OrderResp {
	h := make([]HistoryResp, 0, len(o.History))
	for _, e := range o.History {
		h = append(h, HistoryResp{Status: e.Status, StatusDate: e.StatusDate, Notes: e.Notes})
	}
	return OrderResp{
		OrderPayload: orders.NewOrderPayload(o),
		UserID:       o.UserID,
		IsClaimed:    o.IsClaimed,
		History:      h,
	}
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		r.Post("/orders", h.createOrder)
		r.Get("/orders/{id}", h.getOrder)
		r.Post("/orders/{id}/cancel", h.cancelOrder)
		r.Post("/orders/{id}/complete", h.completeOrder)
		r.Get("/users/{userID}/orders", h.listUserOrders)
	})
}

func (h *OrdersHandler) log() *zap.Logger {
	if h.Log == nil {
		return zap.NewNop()
	}
	return h.Log
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	if req.UserID == "" {
		badRequest(w, "missing user_id")
		return
	}

	ctx := r.Context()
	idemKey := ""
	if k := strings.TrimSpace(r.Header.Get("Idempotency-Key")); k != "" && h.Cache != nil {
		idemKey = fmt.Sprintf(redisx.KeyIdemOrderCreate, req.UserID+":"+k)
		if done := h.replay(w, r, idemKey); done {
			return
		}
	}

	o, err := h.Orders.PlaceOrder(ctx, req.UserID, req.Items)
	if err != nil {
		if idemKey != "" {
			_ = h.Cache.Del(ctx, idemKey)
		}
		writeError(w, h.log(), err)
		return
	}
	if idemKey != "" {
		if err := h.Cache.Set(ctx, idemKey, o.ID, redisx.TTLIdempotency); err != nil {
			h.log().Warn("store idempotency key", zap.String("order_id", o.ID), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusCreated, toOrderResp(o))
}

// replay claims idemKey for this request. When an earlier request already
// owns it, the response is written here and replay returns true.
func (h *OrdersHandler) replay(w http.ResponseWriter, r *http.Request, idemKey string) bool {
	ctx := r.Context()
	fresh, err := h.Cache.SetNX(ctx, idemKey, idemPending, redisx.TTLIdempotency)
	if err != nil {
		// Redis is a shortcut only; place the order without it.
		h.log().Warn("idempotency check skipped", zap.Error(err))
		return false
	}
	if fresh {
		return false
	}

	orderID, ok, err := h.Cache.Get(ctx, idemKey)
	if err != nil || !ok || orderID == idemPending {
		writeJSON(w, http.StatusConflict, errorBody{Error: "in_progress", Message: "a request with this idempotency key is in progress"})
		return true
	}
	o, err := h.Orders.GetOrder(ctx, orderID)
	if err != nil {
		writeError(w, h.log(), err)
		return true
	}
	resp := toOrderResp(o)
	resp.Idempotent = true
	writeJSON(w, http.StatusOK, resp)
	return true
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx := r.Context()

	// 1) try cache
	key := fmt.Sprintf(redisx.KeyOrderCache, orderID)
	if h.Cache != nil {
		if s, ok, err := h.Cache.Get(ctx, key); err == nil && ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(s))
			return
		}
	}

	// 2) fallback to the store
	o, err := h.Orders.GetOrder(ctx, orderID)
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	b, err := json.Marshal(toOrderResp(o))
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	b = append(b, '\n')
	if h.Cache != nil {
		_ = h.Cache.Set(ctx, key, string(b), redisx.TTLOrderCache)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func (h *OrdersHandler) listUserOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.Orders.ListOrdersByUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	out := make([]OrderResp, 0, len(list))
	for _, o := range list {
		out = append(out, toOrderResp(o))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var req CancelOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		badRequest(w, "missing user_id")
		return
	}
	o, err := h.Orders.Cancel(r.Context(), chi.URLParam(r, "id"), req.UserID)
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	h.invalidate(r.Context(), o.ID)
	writeJSON(w, http.StatusOK, toOrderResp(o))
}

func (h *OrdersHandler) completeOrder(w http.ResponseWriter, r *http.Request) {
	var req CompleteOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.ClaimCode) == "" {
		badRequest(w, "missing claim_code")
		return
	}
	o, err := h.Orders.Complete(r.Context(), chi.URLParam(r, "id"), req.ClaimCode)
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	h.invalidate(r.Context(), o.ID)
	writeJSON(w, http.StatusOK, toOrderResp(o))
}

func (h *OrdersHandler) invalidate(ctx context.Context, orderID string) {
	if h.Cache == nil {
		return
	}
	if err := h.Cache.Del(ctx, fmt.Sprintf(redisx.KeyOrderCache, orderID)); err != nil {
		h.log().Warn("invalidate order cache", zap.String("order_id", orderID), zap.Error(err))
	}
}
