package redisx

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeMessage(t *testing.T) {
	b, err := encodeMessage("staff", "new-order", map[string]string{"orderId": "o-1"})
	require.NoError(t, err)

	var m Message
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, "new-order", m.Event)
	assert.Equal(t, "staff", m.Group)
	assert.JSONEq(t, `{"orderId":"o-1"}`, string(m.Payload))
}

func TestEncodeMessageBroadcastOmitsGroup(t *testing.T) {
	b, err := encodeMessage("", "cancelled-order", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"cancelled-order","payload":null}`, string(b))
}

func TestEncodeMessageRejectsUnencodablePayload(t *testing.T) {
	_, err := encodeMessage("staff", "new-order", make(chan int))
	require.Error(t, err)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "realtime:group:user:u-1", groupChannel("user:u-1"))
	assert.Equal(t, "idem:order:create:abc", fmt.Sprintf(KeyIdemOrderCreate, "abc"))
	assert.Equal(t, "dedup:mailer:e-1", fmt.Sprintf(KeyDedup, "mailer", "e-1"))
}

func TestGroupChannelNeverHitsBroadcast(t *testing.T) {
	for _, g := range []string{"all", "broadcast", "", "*broadcast", "../broadcast", "staff"} {
		assert.NotEqual(t, ChannelBroadcast, groupChannel(g), g)
	}
	assert.NotEqual(t, groupChannel("all"), groupChannel("staff"))
}
