package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SR_rewards_bot/internal/metrics"
	"SR_rewards_bot/internal/model"
	"SR_rewards_bot/internal/repository"
)

// StreakRewards is indexed by streak-1. Streaks past the end restart at day one.
var StreakRewards = []int64{25000, 27500, 30000, 32500, 35000, 37500, 40000}

type ClaimService struct {
	repo  AccountRepository
	rules Rules
	now   func() time.Time
}

func NewClaimService(repo AccountRepository, rules Rules) *ClaimService {
	return &ClaimService{
		repo:  repo,
		rules: rules,
		now:   time.Now,
	}
}

// NextStreak returns the streak and reward for a claim on today given the
// previous claim date. Dates are compared by calendar day.
func NextStreak(lastClaim *time.Time, streak int, today time.Time) (int, int64) {
	next := 1
	if lastClaim != nil && lastClaim.AddDate(0, 0, 1).Equal(today) {
		next = streak + 1
	}
	if next < 1 || next > len(StreakRewards) {
		next = 1
	}
	return next, StreakRewards[next-1]
}

func (s *ClaimService) Claim(ctx context.Context, telegramID int64, username string) (*model.ClaimResult, error) {
	now := s.now()
	today := model.DateOf(now, s.rules.location())

	_, err := s.repo.CreateAccount(ctx, model.NewAccount(telegramID, username, now.UTC()))
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	var result model.ClaimResult
	_, err = s.repo.UpdateAccount(ctx, telegramID, func(acc *model.Account) error {
		if acc.LastClaimDate != nil && model.DateOf(*acc.LastClaimDate, time.UTC).Equal(today) {
			return ErrAlreadyClaimedToday
		}

		var last *time.Time
		if acc.LastClaimDate != nil {
			d := model.DateOf(*acc.LastClaimDate, time.UTC)
			last = &d
		}

		streak, reward := NextStreak(last, acc.Streak, today)

		acc.Balance += reward
		acc.Streak = streak
		acc.LastClaimDate = &today

		result = model.ClaimResult{Reward: reward, Streak: streak, Date: today}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyClaimedToday) {
			metrics.ClaimsTotal.WithLabelValues("already_claimed").Inc()
			return nil, err
		}
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotRegistered
		}
		return nil, fmt.Errorf("failed to claim daily reward: %w", err)
	}

	metrics.ClaimsTotal.WithLabelValues("claimed").Inc()
	return &result, nil
}
