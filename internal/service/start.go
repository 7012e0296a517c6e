package service

import (
	"context"
	"strconv"
	"strings"

	"SR_rewards_bot/internal/model"
)

type StartResult struct {
	Account  *model.Account
	Created  bool
	Referred bool
}

// Start registers the caller and, when the deep-link payload names another
// account, binds the referral.
func (s *Service) Start(ctx context.Context, telegramID int64, username, payload string) (*StartResult, error) {
	acc, created, err := s.Register(ctx, telegramID, username)
	if err != nil {
		return nil, err
	}

	result := &StartResult{Account: acc, Created: created}

	referrerID, err := strconv.ParseInt(strings.TrimSpace(payload), 10, 64)
	if err != nil || referrerID == telegramID {
		return result, nil
	}

	bonded, err := s.BindReferral(ctx, telegramID, referrerID)
	if err != nil {
		return nil, err
	}
	if bonded {
		result.Referred = true
		if acc, err = s.GetAccount(ctx, telegramID); err == nil {
			result.Account = acc
		}
	}

	return result, nil
}
