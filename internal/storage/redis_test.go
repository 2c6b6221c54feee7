package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCache_SetGetDel(t *testing.T) {
	cache, _ := newTestRedis(t)
	ctx := testContext(t)

	require.NoError(t, cache.Set(ctx, "test:key", "value", 10*time.Second))

	got, err := cache.Get(ctx, "test:key")
	require.NoError(t, err)
	assert.Equal(t, "value", got)

	exists, err := cache.Exists(ctx, "test:key")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, cache.Del(ctx, "test:key"))

	exists, err = cache.Exists(ctx, "test:key")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRedisCache_PublishSubscribe(t *testing.T) {
	cache, _ := newTestRedis(t)
	ctx := testContext(t)

	sub := cache.Subscribe(ctx, "analytics.updated")
	defer func() { _ = sub.Close() }()

	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, cache.Publish(ctx, "analytics.updated", `{"userId":"u1"}`))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "analytics.updated", msg.Channel)
	assert.Equal(t, `{"userId":"u1"}`, msg.Payload)
}

func TestRedisCache_Ping(t *testing.T) {
	cache, mr := newTestRedis(t)
	ctx := testContext(t)

	require.NoError(t, cache.Ping(ctx))

	mr.Close()
	assert.Error(t, cache.Ping(ctx))
}
