package service

import (
	"context"
	"errors"
	"fmt"

	"SR_rewards_bot/internal/metrics"
	"SR_rewards_bot/internal/model"
	"SR_rewards_bot/internal/repository"
)

var errReferralNoop = errors.New("referral not applicable")

type ReferralService struct {
	repo     AccountRepository
	rules    Rules
	dispatch *dispatcher
}

func NewReferralService(repo AccountRepository, rules Rules, dispatch *dispatcher) *ReferralService {
	return &ReferralService{
		repo:     repo,
		rules:    rules,
		dispatch: dispatch,
	}
}

// BindReferral links a new account to its referrer and credits both sides in
// one transaction. It reports false without error when the bond does not apply:
// self-referral, unknown referrer, or an account that is already referred.
func (s *ReferralService) BindReferral(ctx context.Context, newUserID, referrerID int64) (bool, error) {
	if newUserID == referrerID || referrerID <= 0 {
		return false, nil
	}

	err := s.repo.UpdateAccountPair(ctx, newUserID, referrerID, func(newUser, referrer *model.Account) error {
		if newUser.ReferredBy != nil {
			return errReferralNoop
		}

		id := referrer.TelegramID
		newUser.ReferredBy = &id
		newUser.Balance += s.rules.ReferralBonusNew

		referrer.Balance += s.rules.ReferralBonusReferrer
		referrer.Referrals++
		return nil
	})
	if err != nil {
		if errors.Is(err, errReferralNoop) || errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to bind referral: %w", err)
	}

	metrics.ReferralsTotal.Inc()
	s.dispatch.toUser(referrerID, fmt.Sprintf("🎉 Your referral joined! +%d tokens for you.", s.rules.ReferralBonusReferrer))

	return true, nil
}
