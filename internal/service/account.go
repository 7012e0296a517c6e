package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SR_rewards_bot/internal/model"
	"SR_rewards_bot/internal/repository"
)

type AccountService struct {
	repo  AccountRepository
	rules Rules
	now   func() time.Time
}

func NewAccountService(repo AccountRepository, rules Rules) *AccountService {
	return &AccountService{
		repo:  repo,
		rules: rules,
		now:   time.Now,
	}
}

// Register creates the account on first contact and reports whether it was new.
func (s *AccountService) Register(ctx context.Context, telegramID int64, username string) (*model.Account, bool, error) {
	created, err := s.repo.CreateAccount(ctx, model.NewAccount(telegramID, username, s.now().UTC()))
	if err != nil {
		return nil, false, fmt.Errorf("failed to create account: %w", err)
	}

	acc, err := s.repo.GetAccount(ctx, telegramID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get account: %w", err)
	}

	return acc, created, nil
}

func (s *AccountService) GetAccount(ctx context.Context, telegramID int64) (*model.Account, error) {
	acc, err := s.repo.GetAccount(ctx, telegramID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotRegistered
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return acc, nil
}

func (s *AccountService) GetLeaderboard(ctx context.Context) ([]model.LeaderboardEntry, error) {
	limit := s.rules.LeaderboardSize
	if limit <= 0 {
		limit = 5
	}

	accounts, err := s.repo.GetTopAccounts(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top accounts: %w", err)
	}

	entries := make([]model.LeaderboardEntry, len(accounts))
	for i, acc := range accounts {
		entries[i] = model.LeaderboardEntry{
			TelegramID: acc.TelegramID,
			Username:   acc.Username,
			Balance:    acc.Balance,
		}
	}

	return entries, nil
}
