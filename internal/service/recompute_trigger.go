package service

import (
	"context"

	"github.com/trade-analytics/internal/logging"
)

// Recomputer rebuilds a user's analytics
type Recomputer interface {
	Recompute(ctx context.Context, userID string) (*RecomputeResult, error)
}

// RecomputeTrigger runs one recomputation after a batch or a trade mutation.
// Recomputation problems are logged and reported, never returned as errors,
// so they cannot fail the ingestion that triggered them.
type RecomputeTrigger struct {
	engine Recomputer
	logger *logging.Logger
}

// NewRecomputeTrigger creates a new recompute trigger
func NewRecomputeTrigger(engine Recomputer, logger *logging.Logger) *RecomputeTrigger {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &RecomputeTrigger{
		engine: engine,
		logger: logger.WithComponent("recompute_trigger"),
	}
}

// TriggerRecompute recomputes analytics for userID synchronously
func (t *RecomputeTrigger) TriggerRecompute(ctx context.Context, userID, reason string) *RecomputeResult {
	logger := t.logger.WithFields(map[string]interface{}{
		"user_id": userID,
		"reason":  reason,
	})

	result, err := t.engine.Recompute(ctx, userID)
	if err != nil {
		logger.WithError(err).Error("recompute rejected")
		return nil
	}

	if result.Err != nil {
		logger.WithError(result.Err).WithField("outcome", result.Outcome).Warn("recompute did not replace snapshots")
	} else {
		logger.WithField("outcome", result.Outcome).Debug("recompute finished")
	}

	return result
}
