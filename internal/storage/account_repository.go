package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/trade-analytics/internal/models"
	"github.com/trade-analytics/internal/types"
)

// AccountRepository handles trading account persistence
type AccountRepository struct {
	db *PostgresDB
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *PostgresDB) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `id, user_id, name, broker, is_default, created_at`

func scanAccount(row pgx.Row) (*models.TradingAccount, error) {
	var account models.TradingAccount
	err := row.Scan(
		&account.ID,
		&account.UserID,
		&account.Name,
		&account.Broker,
		&account.IsDefault,
		&account.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// Create inserts a named account. Returns types.ErrAccountExists when the
// user already has an account with that name.
func (r *AccountRepository) Create(ctx context.Context, account *models.TradingAccount) error {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO trading_accounts (id, user_id, name, broker, is_default, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		account.ID,
		account.UserID,
		account.Name,
		account.Broker,
		account.IsDefault,
		account.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.ErrAccountExists
		}
		return fmt.Errorf("failed to create trading account: %w", err)
	}

	return nil
}

// InsertIfAbsent inserts the account unless a row with the same (user, name)
// or a second default for the user already exists. created is false when the
// insert was skipped; the caller re-reads the winning row.
func (r *AccountRepository) InsertIfAbsent(ctx context.Context, account *models.TradingAccount) (bool, error) {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO trading_accounts (id, user_id, name, broker, is_default, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT DO NOTHING
	`

	tag, err := r.db.Pool().Exec(ctx, query,
		account.ID,
		account.UserID,
		account.Name,
		account.Broker,
		account.IsDefault,
		account.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert trading account: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// GetByIDAndUser returns the account only when it belongs to userID.
// Returns nil, nil when there is no such account.
func (r *AccountRepository) GetByIDAndUser(ctx context.Context, id, userID string) (*models.TradingAccount, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	query := `SELECT ` + accountColumns + ` FROM trading_accounts WHERE id = $1 AND user_id = $2`

	account, err := scanAccount(r.db.Pool().QueryRow(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get trading account: %w", err)
	}
	return account, nil
}

// FindDefault returns the user's default-flagged account.
// Returns nil, nil when the user has none yet.
func (r *AccountRepository) FindDefault(ctx context.Context, userID string) (*models.TradingAccount, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM trading_accounts
		WHERE user_id = $1 AND is_default
		LIMIT 1
	`

	account, err := scanAccount(r.db.Pool().QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find default trading account: %w", err)
	}
	return account, nil
}

// GetByUserAndName looks up an account by its per-user unique name
func (r *AccountRepository) GetByUserAndName(ctx context.Context, userID, name string) (*models.TradingAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM trading_accounts WHERE user_id = $1 AND name = $2`

	account, err := scanAccount(r.db.Pool().QueryRow(ctx, query, userID, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get trading account by name: %w", err)
	}
	return account, nil
}

// ListByUser returns every account of a user, default first
func (r *AccountRepository) ListByUser(ctx context.Context, userID string) ([]*models.TradingAccount, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM trading_accounts
		WHERE user_id = $1
		ORDER BY is_default DESC, created_at ASC, id ASC
	`

	rows, err := r.db.Pool().Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list trading accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]*models.TradingAccount, 0)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trading account: %w", err)
		}
		accounts = append(accounts, account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trading accounts: %w", err)
	}

	return accounts, nil
}
