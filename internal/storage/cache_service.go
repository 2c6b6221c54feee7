package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trade-analytics/internal/models"
	"github.com/trade-analytics/internal/types"
)

// CacheService provides high-level caching operations for analytics snapshots
type CacheService struct {
	redis *RedisCache
	ttl   time.Duration
}

// NewCacheService creates a new cache service
func NewCacheService(redis *RedisCache, ttl time.Duration) *CacheService {
	return &CacheService{
		redis: redis,
		ttl:   ttl,
	}
}

// CacheKeyType represents different types of cache keys
type CacheKeyType string

const (
	// CacheKeyAnalytics is for per-scope analytics snapshots
	CacheKeyAnalytics CacheKeyType = "analytics"
)

// GenerateCacheKey generates a cache key for a given type and parameters.
// Params are used verbatim: user ids are case sensitive.
// Format: <type>:<param1>:<param2>:...
func (c *CacheService) GenerateCacheKey(keyType CacheKeyType, params ...string) string {
	parts := append([]string{string(keyType)}, params...)
	return strings.Join(parts, ":")
}

// GenerateSnapshotKey generates the cache key for one snapshot
// Format: analytics:<user>:<scope>
func (c *CacheService) GenerateSnapshotKey(userID string, scope types.MetricScope) string {
	return c.GenerateCacheKey(CacheKeyAnalytics, userID, string(scope))
}

// Set stores a value in cache with the configured TTL
func (c *CacheService) Set(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	return c.redis.Set(ctx, key, data, c.ttl)
}

// Get retrieves a value from cache and deserializes it.
// A miss returns false with a nil error.
func (c *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.redis.Get(ctx, key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get from cache: %w", err)
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached value: %w", err)
	}

	return true, nil
}

// Invalidate removes one or more keys from cache
func (c *CacheService) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.redis.Del(ctx, keys...)
}

// SetSnapshots caches every scope of a freshly written snapshot set
func (c *CacheService) SetSnapshots(ctx context.Context, snapshots []*models.AnalyticsSnapshot) error {
	for _, snapshot := range snapshots {
		key := c.GenerateSnapshotKey(snapshot.UserID, snapshot.Scope)
		if err := c.Set(ctx, key, snapshot); err != nil {
			return fmt.Errorf("failed to cache %s snapshot: %w", snapshot.Scope, err)
		}
	}
	return nil
}

// GetSnapshot reads one cached snapshot
func (c *CacheService) GetSnapshot(ctx context.Context, userID string, scope types.MetricScope) (*models.AnalyticsSnapshot, bool, error) {
	var snapshot models.AnalyticsSnapshot
	found, err := c.Get(ctx, c.GenerateSnapshotKey(userID, scope), &snapshot)
	if err != nil || !found {
		return nil, false, err
	}
	return &snapshot, true, nil
}

// InvalidateUser drops every cached snapshot for a user. Keys are named
// per scope so a user id is never interpreted as a match pattern.
func (c *CacheService) InvalidateUser(ctx context.Context, userID string) error {
	keys := make([]string, 0, len(types.AllScopes))
	for _, scope := range types.AllScopes {
		keys = append(keys, c.GenerateSnapshotKey(userID, scope))
	}
	return c.Invalidate(ctx, keys...)
}
