package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trade-analytics/internal/models"
	"github.com/trade-analytics/internal/storage"
	"github.com/trade-analytics/internal/types"
)

func TestRedisNotifier_PublishesEvent(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := storage.NewRedisCacheFromClient(client)
	t.Cleanup(func() { _ = cache.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := cache.Subscribe(ctx, "analytics.test")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	overall := models.NewEmptySnapshot("user-1", types.ScopeOverall, testEpoch)
	overall.TotalTrades = 3
	overall.TotalPnL = dec("12.5")
	daily := models.NewEmptySnapshot("user-1", types.ScopeDaily, testEpoch)

	event := newAnalyticsUpdatedEvent("user-1", types.OutcomeReplaced, []*models.AnalyticsSnapshot{overall, daily}, testEpoch)
	notifier := NewRedisNotifier(cache, "analytics.test")
	require.NoError(t, notifier.NotifyAnalyticsUpdated(ctx, event))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var got AnalyticsUpdatedEvent
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, types.OutcomeReplaced, got.Outcome)
	assert.Equal(t, int64(3), got.TotalTrades)
	assert.Equal(t, "12.5", got.TotalPnL)
	assert.Equal(t, []types.MetricScope{types.ScopeOverall, types.ScopeDaily}, got.Scopes)
}

func TestNewRedisNotifier_DefaultChannel(t *testing.T) {
	n := NewRedisNotifier(nil, "")
	assert.Equal(t, DefaultNotifyChannel, n.channel)
}
