package kvstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *RedisStore {
	t.Helper()
	store := NewRedisStore("localhost:6379", "", 0)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := store.client.Ping(ctx).Result(); err != nil {
		t.Skipf("redis not reachable: %v", err)
	}
	return store
}

func TestRedisStore_SetGetDelete(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	ctx := context.Background()
	key := "assistant-test:setgetdelete"

	require.NoError(t, store.Set(ctx, key, []byte("hello"), time.Minute))

	val, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), val)

	require.NoError(t, store.Delete(ctx, key))
	_, err = store.Get(ctx, key)
	assert.Error(t, err)
}

func TestRedisStore_ScanKeys(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "assistant-test:scan:a", []byte("1"), time.Minute))
	require.NoError(t, store.Set(ctx, "assistant-test:scan:b", []byte("2"), time.Minute))
	defer store.Delete(ctx, "assistant-test:scan:a")
	defer store.Delete(ctx, "assistant-test:scan:b")

	keys, err := store.ScanKeys(ctx, "assistant-test:scan:*")
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func TestRedisStore_TTL(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	ctx := context.Background()
	key := "assistant-test:ttl"

	require.NoError(t, store.Set(ctx, key, []byte("x"), time.Minute))
	defer store.Delete(ctx, key)

	ttl, err := store.TTL(ctx, key)
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
