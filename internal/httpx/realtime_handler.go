package httpx

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-bookstore-orders/internal/redisx"
)

// Subscriber streams realtime messages of one group plus broadcasts.
type Subscriber interface {
	Subscribe(ctx context.Context, group string) (<-chan redisx.Message, error)
}

// RealtimeHandler serves realtime groups as server-sent events.
type RealtimeHandler struct {
	Hub       Subscriber
	KeepAlive time.Duration
	Log       *zap.Logger
}

func (h *RealtimeHandler) Register(r chi.Router) {
	r.Get("/realtime/{group}", h.stream)
}

func (h *RealtimeHandler) stream(w http.ResponseWriter, r *http.Request) {
	log := h.Log
	if log == nil {
		log = zap.NewNop()
	}
	group := chi.URLParam(r, "group")
	ctx := r.Context()

	msgs, err := h.Hub.Subscribe(ctx, group)
	if err != nil {
		log.Warn("realtime subscribe failed", zap.String("group", group), zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "unavailable", Message: "realtime unavailable"})
		return
	}

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_ = rc.Flush()

	keepAlive := h.KeepAlive
	if keepAlive <= 0 {
		keepAlive = 25 * time.Second
	}
	tick := time.NewTicker(keepAlive)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case m, ok := <-msgs:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", m.Event, m.Payload); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
