package ratelimit

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreBurstAndRefill(t *testing.T) {
	now := time.Unix(1000, 0)
	s := NewMemoryStore()
	s.clock = func() time.Time { return now }
	p := Policy{RPM: 60, Burst: 2}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := s.Allow(ctx, "agent-1", p, 1)
		require.NoError(t, err)
		assert.True(t, ok, "request %d within burst", i)
	}
	ok, _ := s.Allow(ctx, "agent-1", p, 1)
	assert.False(t, ok)

	other, _ := s.Allow(ctx, "agent-2", p, 1)
	assert.True(t, other, "buckets are per key")

	now = now.Add(1100 * time.Millisecond)
	ok, _ = s.Allow(ctx, "agent-1", p, 1)
	assert.True(t, ok)
}

func TestMemoryStoreSweep(t *testing.T) {
	now := time.Unix(1000, 0)
	s := NewMemoryStore()
	s.clock = func() time.Time { return now }
	_, _ = s.Allow(context.Background(), "old", Policy{RPM: 60, Burst: 1}, 1)
	now = now.Add(5 * time.Minute)
	_, _ = s.Allow(context.Background(), "fresh", Policy{RPM: 60, Burst: 1}, 1)

	assert.Equal(t, 1, s.Sweep(3*time.Minute))
	assert.Len(t, s.visitors, 1)
}

func TestCheck(t *testing.T) {
	err := Check(context.Background(), nil, "a", Policy{})
	assert.Error(t, err)

	s := NewMemoryStore()
	p := Policy{RPM: 1, Burst: 1}
	require.NoError(t, Check(context.Background(), s, "a", p))
	err = Check(context.Background(), s, "a", p)
	var limited *ErrLimited
	require.True(t, errors.As(err, &limited))
	assert.Equal(t, "a", limited.Key)
}

// Requires a running Redis; skipped otherwise.
func TestRedisStore_Integration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	ctx := context.Background()
	rdb, err := DialRedis(ctx, addr)
	if err != nil {
		t.Skip("Skipping Redis integration test: redis not available")
	}
	defer rdb.Close()

	s := NewRedisStore(rdb, "path402:test:")
	key := "agent-" + time.Now().Format("150405.000000")
	p := Policy{RPM: 60, Burst: 1}

	ok, err := s.Allow(ctx, key, p, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Allow(ctx, key, p, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	time.Sleep(1100 * time.Millisecond)
	ok, err = s.Allow(ctx, key, p, 1)
	require.NoError(t, err)
	assert.True(t, ok)
}
