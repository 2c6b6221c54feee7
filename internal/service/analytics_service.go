package service

import (
	"context"
	"fmt"

	apperrors "github.com/trade-analytics/internal/errors"
	"github.com/trade-analytics/internal/logging"
	"github.com/trade-analytics/internal/models"
	"github.com/trade-analytics/internal/types"
)

// AnalyticsService serves stored snapshots, reading through the cache
type AnalyticsService struct {
	snapshots SnapshotRepository
	cache     SnapshotCache
	logger    *logging.Logger
}

// NewAnalyticsService creates a new analytics read service. cache may be nil.
func NewAnalyticsService(snapshots SnapshotRepository, cache SnapshotCache, logger *logging.Logger) *AnalyticsService {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &AnalyticsService{
		snapshots: snapshots,
		cache:     cache,
		logger:    logger.WithComponent("analytics_service"),
	}
}

// GetSnapshots returns every stored scope for the user
func (s *AnalyticsService) GetSnapshots(ctx context.Context, userID string) ([]*models.AnalyticsSnapshot, error) {
	if userID == "" {
		return nil, &types.ServiceError{Code: "INVALID_INPUT", Message: "userId is required"}
	}

	snapshots, err := s.snapshots.GetByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshots: %w", err)
	}
	return snapshots, nil
}

// GetSnapshot returns one scope, trying the cache first. A cache failure is
// logged and served from the table.
func (s *AnalyticsService) GetSnapshot(ctx context.Context, userID string, scope types.MetricScope) (*models.AnalyticsSnapshot, error) {
	if userID == "" {
		return nil, &types.ServiceError{Code: "INVALID_INPUT", Message: "userId is required"}
	}

	logger := s.logger.WithFields(map[string]interface{}{"user_id": userID, "scope": scope})

	if s.cache != nil {
		cached, found, err := s.cache.GetSnapshot(ctx, userID, scope)
		if err != nil {
			logger.WithError(err).Warn("snapshot cache read failed")
		} else if found {
			return cached, nil
		}
	}

	snapshot, err := s.snapshots.GetByUserAndScope(ctx, userID, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	if snapshot == nil {
		return nil, apperrors.NewNotFoundError("snapshot", string(scope))
	}

	if s.cache != nil {
		if err := s.cache.SetSnapshots(ctx, []*models.AnalyticsSnapshot{snapshot}); err != nil {
			logger.WithError(err).Debug("failed to populate snapshot cache")
		}
	}

	return snapshot, nil
}
