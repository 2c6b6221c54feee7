// Package types provides common type definitions for the trade analytics system.
package types

import (
	"errors"
	"strings"
)

// Direction represents the side of a round-trip trade
type Direction string

const (
	// DirectionLong represents a trade that profits when price rises
	DirectionLong Direction = "long"
	// DirectionShort represents a trade that profits when price falls
	DirectionShort Direction = "short"
)

// Valid reports whether d is a supported direction
func (d Direction) Valid() bool {
	return d == DirectionLong || d == DirectionShort
}

// ParseDirection maps a broker side/type hint onto a Direction.
// Returns false when the hint carries no direction information.
func ParseDirection(hint string) (Direction, bool) {
	switch strings.ToLower(strings.TrimSpace(hint)) {
	case "long", "buy", "b", "bot", "bought", "buy to open", "buytoopen":
		return DirectionLong, true
	case "short", "sell", "s", "sld", "sold", "sell short", "sellshort", "sell to open", "selltoopen":
		return DirectionShort, true
	default:
		return "", false
	}
}

// MetricScope represents the time granularity of an analytics snapshot
type MetricScope string

const (
	// ScopeOverall aggregates every trade without time bucketing
	ScopeOverall MetricScope = "overall"
	// ScopeDaily buckets P&L by UTC calendar day
	ScopeDaily MetricScope = "daily"
	// ScopeWeekly buckets P&L by ISO week
	ScopeWeekly MetricScope = "weekly"
	// ScopeMonthly buckets P&L by calendar month
	ScopeMonthly MetricScope = "monthly"
)

// AllScopes lists every scope a recomputation produces, in storage order
var AllScopes = []MetricScope{ScopeOverall, ScopeDaily, ScopeWeekly, ScopeMonthly}

// ParseMetricScope validates a scope string
func ParseMetricScope(s string) (MetricScope, bool) {
	scope := MetricScope(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllScopes {
		if scope == known {
			return scope, true
		}
	}
	return "", false
}

// ShortPnLConvention selects the P&L formula applied to short trades
type ShortPnLConvention string

const (
	// ShortEntryMinusExit computes short P&L as (entry - exit) * quantity
	ShortEntryMinusExit ShortPnLConvention = "entry_minus_exit"
	// ShortExitMinusEntry computes short P&L as (exit - entry) * quantity
	ShortExitMinusEntry ShortPnLConvention = "exit_minus_entry"
)

// RecomputeOutcome describes which branch of the safe-update policy ran
type RecomputeOutcome string

const (
	// OutcomeReplaced means the snapshots were rebuilt from the current trade set
	OutcomeReplaced RecomputeOutcome = "replaced"
	// OutcomePreserved means the prior snapshots were left untouched
	OutcomePreserved RecomputeOutcome = "preserved"
	// OutcomeInitialized means all-zero snapshots were created for a user with no history
	OutcomeInitialized RecomputeOutcome = "initialized"
)

// Broker tags for the export formats the default field map understands
const (
	BrokerGeneric   = "generic"
	BrokerTradovate = "tradovate"
	BrokerTopstepX  = "topstepx"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

// Sentinel errors returned by repositories and matched by services
var (
	// ErrAccountExists is returned when an account name is already taken for the user
	ErrAccountExists = errors.New("trading account already exists")
	// ErrDuplicateTrade is returned when a trade update collides with an existing trade's dedup key
	ErrDuplicateTrade = errors.New("trade already exists")
)
