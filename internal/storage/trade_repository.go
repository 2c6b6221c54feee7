package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/trade-analytics/internal/models"
	"github.com/trade-analytics/internal/types"
)

// TradeRepository handles trade persistence
type TradeRepository struct {
	db *PostgresDB
}

// NewTradeRepository creates a new trade repository
func NewTradeRepository(db *PostgresDB) *TradeRepository {
	return &TradeRepository{db: db}
}

const tradeColumns = `
	id, user_id, account_id, symbol, direction, quantity, entry_price, exit_price,
	fees, pnl, entry_time, exit_time, trade_date, buy_fill_id, sell_fill_id,
	fingerprint, broker, metadata, seq, created_at`

func scanTrade(row pgx.Row) (*models.Trade, error) {
	var trade models.Trade
	var direction string
	var metadataJSON []byte

	err := row.Scan(
		&trade.ID,
		&trade.UserID,
		&trade.AccountID,
		&trade.Symbol,
		&direction,
		&trade.Quantity,
		&trade.EntryPrice,
		&trade.ExitPrice,
		&trade.Fees,
		&trade.PnL,
		&trade.EntryTime,
		&trade.ExitTime,
		&trade.TradeDate,
		&trade.BuyFillID,
		&trade.SellFillID,
		&trade.Fingerprint,
		&trade.Broker,
		&metadataJSON,
		&trade.Seq,
		&trade.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	trade.Direction = types.Direction(direction)
	trade.TradeDate = trade.TradeDate.UTC()
	trade.CreatedAt = trade.CreatedAt.UTC()

	if len(metadataJSON) > 0 {
		var metadata models.TradeMetadata
		if err := json.Unmarshal(metadataJSON, &metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal trade metadata: %w", err)
		}
		trade.Metadata = &metadata
	}

	return &trade, nil
}

func marshalMetadata(metadata *models.TradeMetadata) ([]byte, error) {
	if metadata == nil {
		return nil, nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal trade metadata: %w", err)
	}
	return data, nil
}

// InsertIfAbsent persists a trade unless its dedup key already exists for the
// account. On a conflict it returns the existing trade's id with duplicate set.
func (r *TradeRepository) InsertIfAbsent(ctx context.Context, trade *models.Trade) (string, bool, error) {
	if trade.ID == "" {
		trade.ID = uuid.New().String()
	}

	metadataJSON, err := marshalMetadata(trade.Metadata)
	if err != nil {
		return "", false, err
	}

	query := `
		INSERT INTO trades (
			id, user_id, account_id, symbol, direction, quantity, entry_price, exit_price,
			fees, pnl, entry_time, exit_time, trade_date, buy_fill_id, sell_fill_id,
			fingerprint, broker, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT DO NOTHING
		RETURNING seq, created_at
	`

	err = r.db.Pool().QueryRow(ctx, query,
		trade.ID,
		trade.UserID,
		trade.AccountID,
		trade.Symbol,
		string(trade.Direction),
		trade.Quantity,
		trade.EntryPrice,
		trade.ExitPrice,
		trade.Fees,
		trade.PnL,
		trade.EntryTime,
		trade.ExitTime,
		trade.TradeDate,
		trade.BuyFillID,
		trade.SellFillID,
		trade.Fingerprint,
		trade.Broker,
		metadataJSON,
	).Scan(&trade.Seq, &trade.CreatedAt)

	if err == nil {
		return trade.ID, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", false, fmt.Errorf("failed to insert trade: %w", err)
	}

	existingID, err := r.findExistingID(ctx, trade)
	if err != nil {
		return "", false, err
	}
	return existingID, true, nil
}

// findExistingID resolves the row that won a dedup conflict
func (r *TradeRepository) findExistingID(ctx context.Context, trade *models.Trade) (string, error) {
	query := `
		SELECT id FROM trades
		WHERE account_id = $1
			AND (fingerprint = $2 OR (buy_fill_id = $3 AND sell_fill_id = $4))
		ORDER BY seq ASC
		LIMIT 1
	`

	var id string
	err := r.db.Pool().QueryRow(ctx, query,
		trade.AccountID,
		trade.Fingerprint,
		trade.BuyFillID,
		trade.SellFillID,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("trade insert skipped but no conflicting row found for account %s", trade.AccountID)
		}
		return "", fmt.Errorf("failed to look up existing trade: %w", err)
	}
	return id, nil
}

// ListByUser returns every trade of a user in (trade_date, seq) order
func (r *TradeRepository) ListByUser(ctx context.Context, userID string) ([]*models.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE user_id = $1 ORDER BY trade_date ASC, seq ASC`

	return r.queryTrades(ctx, query, userID)
}

// ListUserIDs returns every user that owns trades or analytics snapshots
func (r *TradeRepository) ListUserIDs(ctx context.Context) ([]string, error) {
	query := `
		SELECT user_id FROM trades
		UNION
		SELECT user_id FROM analytics_snapshots
		ORDER BY user_id
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list trade owners: %w", err)
	}
	defer rows.Close()

	var userIDs []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		userIDs = append(userIDs, userID)
	}
	return userIDs, rows.Err()
}

// List returns a filtered page of a user's trades, newest first
func (r *TradeRepository) List(ctx context.Context, userID string, filter *models.TradeFilter) ([]*models.Trade, error) {
	conditions := []string{"user_id = $1"}
	args := []interface{}{userID}

	addCondition := func(clause string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(clause, len(args)))
	}

	limit, offset := 100, 0
	if filter != nil {
		if filter.AccountID != nil {
			addCondition("account_id = $%d", *filter.AccountID)
		}
		if filter.Symbol != nil {
			addCondition("symbol = $%d", strings.ToUpper(*filter.Symbol))
		}
		if filter.From != nil {
			addCondition("trade_date >= $%d", *filter.From)
		}
		if filter.To != nil {
			addCondition("trade_date <= $%d", *filter.To)
		}
		if filter.Limit > 0 {
			limit = filter.Limit
		}
		if filter.Offset > 0 {
			offset = filter.Offset
		}
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(
		`SELECT %s FROM trades WHERE %s ORDER BY trade_date DESC, seq DESC LIMIT $%d OFFSET $%d`,
		tradeColumns, strings.Join(conditions, " AND "), len(args)-1, len(args),
	)

	return r.queryTrades(ctx, query, args...)
}

func (r *TradeRepository) queryTrades(ctx context.Context, query string, args ...interface{}) ([]*models.Trade, error) {
	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	trades := make([]*models.Trade, 0)
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, trade)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}

	return trades, nil
}

// GetByIDAndUser returns a trade owned by userID, or nil, nil
func (r *TradeRepository) GetByIDAndUser(ctx context.Context, id, userID string) (*models.Trade, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	query := `SELECT ` + tradeColumns + ` FROM trades WHERE id = $1 AND user_id = $2`

	trade, err := scanTrade(r.db.Pool().QueryRow(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get trade: %w", err)
	}
	return trade, nil
}

// Delete removes a trade owned by userID. Returns false when nothing matched.
func (r *TradeRepository) Delete(ctx context.Context, id, userID string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}

	tag, err := r.db.Pool().Exec(ctx, `DELETE FROM trades WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete trade: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Update rewrites the mutable fields of a trade. Returns
// types.ErrDuplicateTrade when the new values collide with another trade.
func (r *TradeRepository) Update(ctx context.Context, trade *models.Trade) error {
	metadataJSON, err := marshalMetadata(trade.Metadata)
	if err != nil {
		return err
	}

	query := `
		UPDATE trades SET
			symbol = $3,
			direction = $4,
			quantity = $5,
			entry_price = $6,
			exit_price = $7,
			fees = $8,
			pnl = $9,
			entry_time = $10,
			exit_time = $11,
			trade_date = $12,
			fingerprint = $13,
			metadata = $14
		WHERE id = $1 AND user_id = $2
	`

	tag, err := r.db.Pool().Exec(ctx, query,
		trade.ID,
		trade.UserID,
		trade.Symbol,
		string(trade.Direction),
		trade.Quantity,
		trade.EntryPrice,
		trade.ExitPrice,
		trade.Fees,
		trade.PnL,
		trade.EntryTime,
		trade.ExitTime,
		trade.TradeDate,
		trade.Fingerprint,
		metadataJSON,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.ErrDuplicateTrade
		}
		return fmt.Errorf("failed to update trade: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("trade %s not found", trade.ID)
	}
	return nil
}
