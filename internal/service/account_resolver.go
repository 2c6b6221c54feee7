package service

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/trade-analytics/internal/errors"
	"github.com/trade-analytics/internal/logging"
	"github.com/trade-analytics/internal/models"
	"github.com/trade-analytics/internal/types"
)

// AccountRepository interface for trading account persistence
type AccountRepository interface {
	GetByIDAndUser(ctx context.Context, id, userID string) (*models.TradingAccount, error)
	FindDefault(ctx context.Context, userID string) (*models.TradingAccount, error)
	InsertIfAbsent(ctx context.Context, account *models.TradingAccount) (bool, error)
	GetByUserAndName(ctx context.Context, userID, name string) (*models.TradingAccount, error)
	Create(ctx context.Context, account *models.TradingAccount) error
	ListByUser(ctx context.Context, userID string) ([]*models.TradingAccount, error)
}

// AccountResolver maps a user and an optional account reference to the
// account that owns an import
type AccountResolver struct {
	repo          AccountRepository
	defaultBroker string
	logger        *logging.Logger
}

// NewAccountResolver creates a new account resolver
func NewAccountResolver(repo AccountRepository, defaultBroker string, logger *logging.Logger) *AccountResolver {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	if defaultBroker == "" {
		defaultBroker = types.BrokerGeneric
	}
	return &AccountResolver{
		repo:          repo,
		defaultBroker: defaultBroker,
		logger:        logger.WithComponent("account_resolver"),
	}
}

// ResolveAccount returns the account id to import into. An explicit account
// the user does not own falls back to the default account instead of failing.
// The only error is persistence being unavailable.
func (r *AccountResolver) ResolveAccount(ctx context.Context, userID string, explicitAccountID *string) (string, error) {
	logger := r.logger.WithField("user_id", userID)

	if explicitAccountID != nil && strings.TrimSpace(*explicitAccountID) != "" {
		accountID := strings.TrimSpace(*explicitAccountID)

		account, err := r.repo.GetByIDAndUser(ctx, accountID, userID)
		if err != nil {
			return "", apperrors.NewDatabaseError("resolve account", err)
		}
		if account != nil {
			return account.ID, nil
		}

		logger.WithField("account_id", accountID).Warn("explicit account not owned by user, falling back to default account")
	}

	account, err := r.resolveDefault(ctx, userID)
	if err != nil {
		return "", apperrors.NewDatabaseError("resolve default account", err)
	}
	return account.ID, nil
}

// resolveDefault is insert-or-fetch: concurrent first imports all converge
// on the single row the unique constraints allow.
func (r *AccountResolver) resolveDefault(ctx context.Context, userID string) (*models.TradingAccount, error) {
	existing, err := r.repo.FindDefault(ctx, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	candidate := &models.TradingAccount{
		UserID:    userID,
		Name:      models.DefaultAccountName,
		Broker:    r.defaultBroker,
		IsDefault: true,
	}

	created, err := r.repo.InsertIfAbsent(ctx, candidate)
	if err != nil {
		return nil, err
	}
	if created {
		r.logger.WithFields(map[string]interface{}{
			"user_id":    userID,
			"account_id": candidate.ID,
		}).Info("created default trading account")
		return candidate, nil
	}

	// Lost the race; read the winner.
	winner, err := r.repo.GetByUserAndName(ctx, userID, models.DefaultAccountName)
	if err != nil {
		return nil, err
	}
	if winner == nil {
		winner, err = r.repo.FindDefault(ctx, userID)
		if err != nil {
			return nil, err
		}
	}
	if winner == nil {
		return nil, fmt.Errorf("default account for user %s vanished after insert conflict", userID)
	}

	return winner, nil
}
