package session

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestMemoryStore_Expiry(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "tok", payload{Name: "a", Count: 2}))

	var got payload
	require.NoError(t, store.Get(ctx, "tok", &got))
	assert.Equal(t, payload{Name: "a", Count: 2}, got)

	now = now.Add(2 * time.Minute)
	assert.ErrorIs(t, store.Get(ctx, "tok", &got), ErrUnknownSession)
}

func TestMemoryStore_Delete(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "tok", payload{Name: "a"}))
	require.NoError(t, store.Delete(ctx, "tok"))
	assert.ErrorIs(t, store.Get(ctx, "tok", &payload{}), ErrUnknownSession)
}

type fakeRedis struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.data[key] = string(value.([]byte))
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestRedisStore(t *testing.T) {
	client := newFakeRedis()
	store := NewRedisStore(client, time.Hour)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "tok", payload{Name: "b", Count: 7}))
	assert.Equal(t, time.Hour, client.ttls["bulkgen:session:tok"])

	var got payload
	require.NoError(t, store.Get(ctx, "tok", &got))
	assert.Equal(t, 7, got.Count)

	require.NoError(t, store.Delete(ctx, "tok"))
	assert.ErrorIs(t, store.Get(ctx, "tok", &got), ErrUnknownSession)
}
