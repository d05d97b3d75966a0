package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/ariefcatur/go-bookstore-orders/internal/kafka"
	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
	"github.com/ariefcatur/go-bookstore-orders/internal/redisx"
)

// Deduper remembers handled event ids.
type Deduper interface {
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
}

// Handler consumes mail requests from the outbox topic.
type Handler struct {
	dedup  Deduper
	sender Sender
	name   string
	log    *zap.Logger
}

func NewHandler(dedup Deduper, sender Sender, name string, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{dedup: dedup, sender: sender, name: name, log: log}
}

// Handle renders and sends one request. Redelivered events are skipped; a
// failed send releases the dedup mark so the retry goes through.
func (h *Handler) Handle(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		h.log.Error("drop undecodable mail event", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	p, err := kafkax.UnwrapPayload[Payload](env.Payload)
	if err != nil {
		h.log.Error("drop mail event", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}
	msg, err := Render(p)
	if err != nil {
		h.log.Error("drop mail event", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}

	key := fmt.Sprintf(redisx.KeyDedup, h.name, env.EventID)
	fresh, err := h.dedup.SetNX(ctx, key, "1", redisx.TTLDedup)
	if err != nil {
		return fmt.Errorf("dedup %s: %w", env.EventID, err)
	}
	if !fresh {
		h.log.Debug("duplicate mail event", zap.String("event_id", env.EventID))
		return nil
	}

	if err := h.sender.Send(ctx, msg); err != nil {
		if derr := h.dedup.Del(ctx, key); derr != nil {
			h.log.Warn("release dedup key", zap.String("key", key), zap.Error(derr))
		}
		return fmt.Errorf("send %s for order %s: %w", p.Kind, env.CorrelationID, err)
	}
	h.log.Info("mail delivered",
		zap.String("kind", string(p.Kind)),
		zap.String("order_id", env.CorrelationID),
		zap.String("to", msg.To))
	return nil
}
