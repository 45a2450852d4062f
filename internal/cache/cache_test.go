package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	IDs   []string `json:"ids"`
	Score float64  `json:"score"`
}

func TestMemory_SetGetInvalidate(t *testing.T) {
	c := NewMemory[payload](nil)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "alice", payload{IDs: []string{"m1"}, Score: 0.9}, time.Minute))

	got, ok, err := c.Get(ctx, "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"m1"}, got.IDs)

	require.NoError(t, c.Invalidate(ctx, "alice"))
	_, ok, _ = c.Get(ctx, "alice")
	assert.False(t, ok)
}

func TestMemory_LazyExpiryAndSweep(t *testing.T) {
	c := NewMemory[payload](nil)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "alice", payload{Score: 1}, 30*time.Minute))
	require.NoError(t, c.Set(ctx, "bob", payload{Score: 1}, 2*time.Hour))

	now = now.Add(31 * time.Minute)

	_, ok, _ := c.Get(ctx, "alice")
	assert.False(t, ok, "expired entries are rejected on read")
	assert.Equal(t, 2, c.Len(), "lazy rejection does not delete")

	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 1, c.Len())

	_, ok, _ = c.Get(ctx, "bob")
	assert.True(t, ok)
}

func TestMemory_RunStopsOnCancel(t *testing.T) {
	c := NewMemory[payload](nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		c.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}

func TestMemory_NonPositiveTTLDeletes(t *testing.T) {
	c := NewMemory[payload](nil)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "alice", payload{}, time.Minute))
	require.NoError(t, c.Set(ctx, "alice", payload{}, 0))
	assert.Equal(t, 0, c.Len())
}

func newTestRedis(t *testing.T) (*Redis[payload], *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedis[payload](client, ""), mr
}

func TestRedis_SetGetWithTTL(t *testing.T) {
	c, mr := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "alice", payload{IDs: []string{"m1", "m2"}, Score: 0.5}, 30*time.Minute))
	assert.True(t, mr.Exists(DefaultPrefix+"alice"))
	assert.Equal(t, 30*time.Minute, mr.TTL(DefaultPrefix+"alice"))

	got, ok, err := c.Get(ctx, "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"m1", "m2"}, got.IDs)

	mr.FastForward(31 * time.Minute)
	_, ok, err = c.Get(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedis_Invalidate(t *testing.T) {
	c, mr := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "alice", payload{}, time.Minute))
	require.NoError(t, c.Invalidate(ctx, "alice"))
	assert.False(t, mr.Exists(DefaultPrefix+"alice"))
}

func TestRedis_CorruptEntryIsMiss(t *testing.T) {
	c, mr := newTestRedis(t)
	require.NoError(t, mr.Set(DefaultPrefix+"alice", "{not json"))

	_, ok, err := c.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists(DefaultPrefix+"alice"))
}
