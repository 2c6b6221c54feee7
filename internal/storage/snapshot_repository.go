package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/trade-analytics/internal/models"
	"github.com/trade-analytics/internal/types"
)

// SnapshotRepository handles analytics snapshot storage operations
type SnapshotRepository struct {
	db *PostgresDB
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(db *PostgresDB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

const snapshotColumns = `
	user_id, scope, total_trades, wins, losses, win_rate, average_pnl,
	largest_win, largest_loss, total_pnl, pnl_buckets, cumulative,
	cumulative_pnl, max_drawdown, last_updated`

func scanSnapshot(row pgx.Row) (*models.AnalyticsSnapshot, error) {
	var snapshot models.AnalyticsSnapshot
	var scope string
	var bucketsJSON, cumulativeJSON []byte

	err := row.Scan(
		&snapshot.UserID,
		&scope,
		&snapshot.TotalTrades,
		&snapshot.Wins,
		&snapshot.Losses,
		&snapshot.WinRate,
		&snapshot.AveragePnL,
		&snapshot.LargestWin,
		&snapshot.LargestLoss,
		&snapshot.TotalPnL,
		&bucketsJSON,
		&cumulativeJSON,
		&snapshot.CumulativePnL,
		&snapshot.MaxDrawdown,
		&snapshot.LastUpdated,
	)
	if err != nil {
		return nil, err
	}

	snapshot.Scope = types.MetricScope(scope)
	snapshot.LastUpdated = snapshot.LastUpdated.UTC()

	if err := json.Unmarshal(bucketsJSON, &snapshot.PnLBuckets); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pnl buckets: %w", err)
	}
	if err := json.Unmarshal(cumulativeJSON, &snapshot.Cumulative); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cumulative series: %w", err)
	}

	return &snapshot, nil
}

// GetByUser returns every stored scope for a user in scope order.
// An empty slice means the user has never been computed.
func (r *SnapshotRepository) GetByUser(ctx context.Context, userID string) ([]*models.AnalyticsSnapshot, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM analytics_snapshots
		WHERE user_id = $1
		ORDER BY array_position(ARRAY['overall', 'daily', 'weekly', 'monthly'], scope)
	`

	rows, err := r.db.Pool().Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := make([]*models.AnalyticsSnapshot, 0, len(types.AllScopes))
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		snapshots = append(snapshots, snapshot)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}

	return snapshots, nil
}

// GetByUserAndScope returns one snapshot, or nil, nil when absent
func (r *SnapshotRepository) GetByUserAndScope(ctx context.Context, userID string, scope types.MetricScope) (*models.AnalyticsSnapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM analytics_snapshots WHERE user_id = $1 AND scope = $2`

	snapshot, err := scanSnapshot(r.db.Pool().QueryRow(ctx, query, userID, string(scope)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return snapshot, nil
}

// ReplaceAll swaps the user's full snapshot set in one transaction, so
// readers never observe a mix of old and new scopes. Rows are upserted on
// (user_id, scope); concurrent replacers serialize on the row locks and the
// last commit wins. Scopes absent from the new set are removed.
func (r *SnapshotRepository) ReplaceAll(ctx context.Context, userID string, snapshots []*models.AnalyticsSnapshot) error {
	upsert := `
		INSERT INTO analytics_snapshots (` + snapshotColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (user_id, scope) DO UPDATE SET
			total_trades = EXCLUDED.total_trades,
			wins = EXCLUDED.wins,
			losses = EXCLUDED.losses,
			win_rate = EXCLUDED.win_rate,
			average_pnl = EXCLUDED.average_pnl,
			largest_win = EXCLUDED.largest_win,
			largest_loss = EXCLUDED.largest_loss,
			total_pnl = EXCLUDED.total_pnl,
			pnl_buckets = EXCLUDED.pnl_buckets,
			cumulative = EXCLUDED.cumulative,
			cumulative_pnl = EXCLUDED.cumulative_pnl,
			max_drawdown = EXCLUDED.max_drawdown,
			last_updated = EXCLUDED.last_updated
	`

	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		scopes := make([]string, 0, len(snapshots))
		for _, snapshot := range snapshots {
			scopes = append(scopes, string(snapshot.Scope))
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM analytics_snapshots WHERE user_id = $1 AND NOT (scope = ANY($2))`,
			userID, scopes,
		); err != nil {
			return fmt.Errorf("failed to clear stale snapshots: %w", err)
		}

		for _, snapshot := range snapshots {
			if snapshot.UserID != userID {
				return fmt.Errorf("snapshot for user %s in replace set of user %s", snapshot.UserID, userID)
			}

			bucketsJSON, err := json.Marshal(snapshot.PnLBuckets)
			if err != nil {
				return fmt.Errorf("failed to marshal pnl buckets: %w", err)
			}
			cumulativeJSON, err := json.Marshal(snapshot.Cumulative)
			if err != nil {
				return fmt.Errorf("failed to marshal cumulative series: %w", err)
			}

			_, err = tx.Exec(ctx, upsert,
				snapshot.UserID,
				string(snapshot.Scope),
				snapshot.TotalTrades,
				snapshot.Wins,
				snapshot.Losses,
				snapshot.WinRate,
				snapshot.AveragePnL,
				snapshot.LargestWin,
				snapshot.LargestLoss,
				snapshot.TotalPnL,
				bucketsJSON,
				cumulativeJSON,
				snapshot.CumulativePnL,
				snapshot.MaxDrawdown,
				snapshot.LastUpdated,
			)
			if err != nil {
				return fmt.Errorf("failed to upsert %s snapshot: %w", snapshot.Scope, err)
			}
		}

		return nil
	})
}
