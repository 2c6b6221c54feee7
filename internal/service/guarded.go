package service

import (
	"context"

	"github.com/trade-analytics/internal/circuitbreaker"
	"github.com/trade-analytics/internal/models"
	"github.com/trade-analytics/internal/types"
)

// GuardedCache fails cache reads fast while Redis is unhealthy, so snapshot
// reads fall through to Postgres without waiting on timeouts. Writes and
// invalidations always reach the cache: skipping them could leave stale
// snapshots behind once Redis recovers.
type GuardedCache struct {
	cache   SnapshotCache
	breaker *circuitbreaker.CircuitBreaker
}

// NewGuardedCache wraps cache with breaker
func NewGuardedCache(cache SnapshotCache, breaker *circuitbreaker.CircuitBreaker) *GuardedCache {
	return &GuardedCache{cache: cache, breaker: breaker}
}

func (g *GuardedCache) GetSnapshot(ctx context.Context, userID string, scope types.MetricScope) (*models.AnalyticsSnapshot, bool, error) {
	var (
		snapshot *models.AnalyticsSnapshot
		found    bool
	)
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		snapshot, found, err = g.cache.GetSnapshot(ctx, userID, scope)
		return err
	})
	return snapshot, found, err
}

func (g *GuardedCache) SetSnapshots(ctx context.Context, snapshots []*models.AnalyticsSnapshot) error {
	return g.cache.SetSnapshots(ctx, snapshots)
}

func (g *GuardedCache) InvalidateUser(ctx context.Context, userID string) error {
	return g.cache.InvalidateUser(ctx, userID)
}

// GuardedNotifier drops notifications while the broker is unhealthy.
// Subscribers re-read snapshots on the next event, so a dropped one is only late.
type GuardedNotifier struct {
	notifier AnalyticsNotifier
	breaker  *circuitbreaker.CircuitBreaker
}

// NewGuardedNotifier wraps notifier with breaker
func NewGuardedNotifier(notifier AnalyticsNotifier, breaker *circuitbreaker.CircuitBreaker) *GuardedNotifier {
	return &GuardedNotifier{notifier: notifier, breaker: breaker}
}

func (g *GuardedNotifier) NotifyAnalyticsUpdated(ctx context.Context, event *AnalyticsUpdatedEvent) error {
	return g.breaker.Execute(ctx, func(ctx context.Context) error {
		return g.notifier.NotifyAnalyticsUpdated(ctx, event)
	})
}
