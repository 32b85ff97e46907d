package messaging

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBrokerFanOut(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, err := b.Subscribe(ctx, "push")
	require.NoError(t, err)
	second, err := b.Subscribe(ctx, "push")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "push", map[string]string{"title": "Reminder"}))

	for _, ch := range []<-chan []byte{first, second} {
		select {
		case msg := <-ch:
			var body map[string]string
			require.NoError(t, json.Unmarshal(msg, &body))
			assert.Equal(t, "Reminder", body["title"])
		case <-time.After(time.Second):
			t.Fatal("message not delivered")
		}
	}
}

func TestEncodePassesRawBytesThrough(t *testing.T) {
	raw := json.RawMessage(`{"a":1}`)
	out, err := Encode(raw)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(out))
}

func TestPublishAfterCloseFails(t *testing.T) {
	b := NewMemoryBroker()
	require.NoError(t, b.Close())
	assert.Error(t, b.Publish(context.Background(), "push", "x"))
}
