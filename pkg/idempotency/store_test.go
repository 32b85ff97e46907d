package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreMarkThenSeen(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Minute)

	seen, err := s.Seen(ctx, "paymongo:evt_1")
	require.NoError(t, err)
	assert.False(t, seen)

	// looking a key up does not reserve it
	seen, _ = s.Seen(ctx, "paymongo:evt_1")
	assert.False(t, seen)

	require.NoError(t, s.Mark(ctx, "paymongo:evt_1", time.Hour))
	seen, err = s.Seen(ctx, "paymongo:evt_1")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, _ = s.Seen(ctx, "paymongo:evt_2")
	assert.False(t, seen)
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Minute)

	require.NoError(t, s.Mark(ctx, "k", 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)

	seen, _ := s.Seen(ctx, "k")
	assert.False(t, seen)
}
