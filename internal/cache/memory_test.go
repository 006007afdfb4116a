package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreExpiry(t *testing.T) {
	now := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore().WithClock(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, s.Set(ctx, "forever", []byte("f"), 0))

	v, found, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v"), v)

	now = now.Add(time.Minute)
	_, found, _ = s.Get(ctx, "k")
	assert.False(t, found)

	_, found, _ = s.Get(ctx, "forever")
	assert.True(t, found)
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	buf := []byte("abc")
	_ = s.Set(ctx, "k", buf, 0)
	buf[0] = 'x'

	v, _, _ := s.Get(ctx, "k")
	assert.Equal(t, []byte("abc"), v)
	v[1] = 'y'

	again, _, _ := s.Get(ctx, "k")
	assert.Equal(t, []byte("abc"), again)
}

func TestMemoryStoreDeleteAndPurge(t *testing.T) {
	now := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore().WithClock(func() time.Time { return now })
	ctx := context.Background()

	_ = s.Set(ctx, "a", []byte("1"), time.Second)
	_ = s.Set(ctx, "b", []byte("2"), time.Hour)
	_ = s.Set(ctx, "c", []byte("3"), time.Hour)
	_ = s.Delete(ctx, "c")

	now = now.Add(time.Minute)
	assert.Equal(t, 1, s.Purge())

	_, found, _ := s.Get(ctx, "b")
	assert.True(t, found)
	_, found, _ = s.Get(ctx, "c")
	assert.False(t, found)
}

func TestRedisStoreReportsConnectionErrors(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	defer client.Close()
	s := NewRedisStore(client, "shopsync:")

	_, found, err := s.Get(context.Background(), "k")
	assert.Error(t, err)
	assert.False(t, found)
}
