package redisx

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Message is what realtime subscribers receive.
type Message struct {
	Event   string          `json:"event"`
	Group   string          `json:"group,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// Hub publishes realtime events over Redis pub/sub so every API replica
// can push them to its own SSE clients.
type Hub struct {
	rdb *redis.Client
	log *zap.Logger
}

func NewHub(rdb *redis.Client, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{rdb: rdb, log: log}
}

func (h *Hub) Publish(ctx context.Context, group, event string, payload any) error {
	b, err := encodeMessage(group, event, payload)
	if err != nil {
		return err
	}
	return h.rdb.Publish(ctx, groupChannel(group), b).Err()
}

func (h *Hub) Broadcast(ctx context.Context, event string, payload any) error {
	b, err := encodeMessage("", event, payload)
	if err != nil {
		return err
	}
	return h.rdb.Publish(ctx, ChannelBroadcast, b).Err()
}

// Subscribe streams messages for group plus broadcasts until ctx is done.
// The returned channel is closed on exit.
func (h *Hub) Subscribe(ctx context.Context, group string) (<-chan Message, error) {
	ps := h.rdb.Subscribe(ctx, groupChannel(group), ChannelBroadcast)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", group, err)
	}

	out := make(chan Message, 16)
	go func() {
		defer close(out)
		defer ps.Close()
		in := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-in:
				if !ok {
					return
				}
				var msg Message
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					h.log.Warn("bad realtime message", zap.String("channel", m.Channel), zap.Error(err))
					continue
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func groupChannel(group string) string { return fmt.Sprintf(ChannelRealtime, group) }

func encodeMessage(group, event string, payload any) ([]byte, error) {
	p, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return json.Marshal(Message{Event: event, Group: group, Payload: p})
}
