package redisx

import "time"

const (
	// Idempotent order create: idem:order:create:{key} -> order_id
	KeyIdemOrderCreate = "idem:order:create:%s"

	// Order read cache: order:{order_id} -> order JSON
	KeyOrderCache = "order:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Realtime channels: realtime:group:{group}, realtime:broadcast for
	// everyone. No group name can produce the broadcast channel.
	ChannelRealtime  = "realtime:group:%s"
	ChannelBroadcast = "realtime:broadcast"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLOrderCache  = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
