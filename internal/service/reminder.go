package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	reminderInterval = 24 * time.Hour
	reminderText     = "🌞 Don't forget to claim your daily tokens! Type /claim"
)

type ReminderService struct {
	repo     AccountRepository
	dispatch *dispatcher
	logger   *zap.Logger
	now      func() time.Time
}

func NewReminderService(repo AccountRepository, dispatch *dispatcher, logger *zap.Logger) *ReminderService {
	return &ReminderService{
		repo:     repo,
		dispatch: dispatch,
		logger:   logger,
		now:      time.Now,
	}
}

// SendDailyReminders messages every account not reminded in the last 24h.
// The timestamp is only stamped after a successful send.
func (s *ReminderService) SendDailyReminders(ctx context.Context) (int, error) {
	now := s.now().UTC()

	accounts, err := s.repo.ListReminderDue(ctx, now.Add(-reminderInterval))
	if err != nil {
		return 0, fmt.Errorf("failed to list accounts due a reminder: %w", err)
	}

	if s.dispatch == nil || s.dispatch.notifier == nil {
		return 0, nil
	}

	sent := 0
	for _, acc := range accounts {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}

		sendCtx, cancel := context.WithTimeout(ctx, notifyTimeout)
		err := s.dispatch.notifier.SendText(sendCtx, acc.TelegramID, reminderText)
		cancel()
		if err != nil {
			s.logger.Warn("Failed to send daily reminder", zap.Int64("telegram_id", acc.TelegramID), zap.Error(err))
			continue
		}

		if err := s.repo.MarkReminderSent(ctx, acc.TelegramID, now); err != nil {
			s.logger.Warn("Failed to stamp daily reminder", zap.Int64("telegram_id", acc.TelegramID), zap.Error(err))
			continue
		}
		sent++
	}

	return sent, nil
}
