package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

type SchedulerConfig struct {
	ReminderInterval  time.Duration `mapstructure:"reminderInterval"`
	ReconcileInterval time.Duration `mapstructure:"reconcileInterval"`
}

// StartScheduler runs the daily reminder and withdrawal reconciliation jobs
// until the returned scheduler is shut down.
func (s *Service) StartScheduler(ctx context.Context, cfg SchedulerConfig, logger *zap.Logger) (gocron.Scheduler, error) {
	if cfg.ReminderInterval <= 0 {
		cfg.ReminderInterval = time.Hour
	}
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = time.Minute
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(cfg.ReminderInterval),
		gocron.NewTask(func() {
			sent, err := s.SendDailyReminders(ctx)
			if err != nil {
				logger.Error("Daily reminder run failed", zap.Error(err))
				return
			}
			if sent > 0 {
				logger.Info("Daily reminders sent", zap.Int("count", sent))
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule reminders: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(cfg.ReconcileInterval),
		gocron.NewTask(func() {
			resolved, err := s.ReconcileWithdrawals(ctx)
			if err != nil {
				logger.Error("Withdrawal reconciliation failed", zap.Error(err))
				return
			}
			if resolved > 0 {
				logger.Info("Withdrawals reconciled", zap.Int("count", resolved))
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule reconciliation: %w", err)
	}

	sched.Start()

	return sched, nil
}
