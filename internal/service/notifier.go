package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/trade-analytics/internal/models"
	"github.com/trade-analytics/internal/types"
)

// DefaultNotifyChannel is the pub/sub channel analytics updates are published on
const DefaultNotifyChannel = "analytics.updated"

// Publisher sends a message on a pub/sub channel
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

// AnalyticsUpdatedEvent is the payload published after snapshots change
type AnalyticsUpdatedEvent struct {
	UserID      string                 `json:"userId"`
	Outcome     types.RecomputeOutcome `json:"outcome"`
	Scopes      []types.MetricScope    `json:"scopes"`
	TotalTrades int64                  `json:"totalTrades"`
	TotalPnL    string                 `json:"totalPnl"`
	PublishedAt time.Time              `json:"publishedAt"`
}

func newAnalyticsUpdatedEvent(userID string, outcome types.RecomputeOutcome, snapshots []*models.AnalyticsSnapshot, at time.Time) *AnalyticsUpdatedEvent {
	event := &AnalyticsUpdatedEvent{
		UserID:      userID,
		Outcome:     outcome,
		Scopes:      make([]types.MetricScope, 0, len(snapshots)),
		TotalPnL:    "0",
		PublishedAt: at.UTC(),
	}
	for _, snapshot := range snapshots {
		event.Scopes = append(event.Scopes, snapshot.Scope)
		if snapshot.Scope == types.ScopeOverall {
			event.TotalTrades = snapshot.TotalTrades
			event.TotalPnL = snapshot.TotalPnL.String()
		}
	}
	return event
}

// RedisNotifier publishes analytics updates as JSON on a Redis channel
type RedisNotifier struct {
	publisher Publisher
	channel   string
}

// NewRedisNotifier creates a notifier on the given channel
func NewRedisNotifier(publisher Publisher, channel string) *RedisNotifier {
	if channel == "" {
		channel = DefaultNotifyChannel
	}
	return &RedisNotifier{publisher: publisher, channel: channel}
}

// NotifyAnalyticsUpdated publishes the event
func (n *RedisNotifier) NotifyAnalyticsUpdated(ctx context.Context, event *AnalyticsUpdatedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal analytics event: %w", err)
	}
	if err := n.publisher.Publish(ctx, n.channel, payload); err != nil {
		return fmt.Errorf("failed to publish analytics event: %w", err)
	}
	return nil
}
