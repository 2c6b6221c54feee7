package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/trade-analytics/internal/errors"
	"github.com/trade-analytics/internal/logging"
	"github.com/trade-analytics/internal/models"
	"github.com/trade-analytics/internal/types"
)

// CreateAccountInput represents input for creating a named trading account
type CreateAccountInput struct {
	UserID string
	Name   string
	Broker string
}

// AccountService manages explicit trading accounts
type AccountService struct {
	repo   AccountRepository
	logger *logging.Logger
}

// NewAccountService creates a new account service
func NewAccountService(repo AccountRepository, logger *logging.Logger) *AccountService {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &AccountService{
		repo:   repo,
		logger: logger.WithComponent("account_service"),
	}
}

// CreateAccount creates a named, non-default account
func (s *AccountService) CreateAccount(ctx context.Context, input *CreateAccountInput) (*models.TradingAccount, error) {
	if input == nil || strings.TrimSpace(input.UserID) == "" {
		return nil, &types.ServiceError{Code: "INVALID_INPUT", Message: "userId is required"}
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewInvalidParameterError("name", "account name is required")
	}
	if strings.EqualFold(name, models.DefaultAccountName) {
		return nil, apperrors.NewInvalidParameterError("name", fmt.Sprintf("account name %q is reserved", models.DefaultAccountName))
	}

	broker := strings.ToLower(strings.TrimSpace(input.Broker))
	if broker == "" {
		broker = types.BrokerGeneric
	}

	account := &models.TradingAccount{
		UserID: input.UserID,
		Name:   name,
		Broker: broker,
	}

	if err := s.repo.Create(ctx, account); err != nil {
		if errors.Is(err, types.ErrAccountExists) {
			return nil, apperrors.NewConflictError("ACCOUNT_EXISTS",
				fmt.Sprintf("account %q already exists", name),
				map[string]interface{}{"name": name})
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"user_id":    input.UserID,
		"account_id": account.ID,
	}).Info("created trading account")

	return account, nil
}

// ListAccounts returns every account of the user
func (s *AccountService) ListAccounts(ctx context.Context, userID string) ([]*models.TradingAccount, error) {
	if userID == "" {
		return nil, &types.ServiceError{Code: "INVALID_INPUT", Message: "userId is required"}
	}

	accounts, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}
