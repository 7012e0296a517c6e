package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"SR_rewards_bot/internal/metrics"

	"go.uber.org/zap"
)

const notifyTimeout = 10 * time.Second

// Notifier delivers out-of-band messages to a chat.
type Notifier interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendPhoto(ctx context.Context, chatID int64, fileRef, caption string) error
}

// MultiNotifier fans one message out to several notifiers.
type MultiNotifier []Notifier

func (m MultiNotifier) SendText(ctx context.Context, chatID int64, text string) error {
	var errs []error
	for _, n := range m {
		if err := n.SendText(ctx, chatID, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiNotifier) SendPhoto(ctx context.Context, chatID int64, fileRef, caption string) error {
	var errs []error
	for _, n := range m {
		if err := n.SendPhoto(ctx, chatID, fileRef, caption); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

const (
	EventUsernameSubmitted   = "USERNAME_SUBMITTED"
	EventScreenshotSubmitted = "SCREENSHOT_SUBMITTED"
	EventTaskCompleted       = "TASK_COMPLETED"
	EventWithdrawalSent      = "WITHDRAWAL_SENT"
	EventWithdrawalReview    = "WITHDRAWAL_PENDING_REVIEW"
	EventWithdrawalResolved  = "WITHDRAWAL_RESOLVED"
)

// Event is an admin-facing record of something that happened in the ledger.
type Event struct {
	Type       string         `json:"type"`
	TelegramID int64          `json:"telegram_id"`
	Text       string         `json:"text"`
	FileRef    string         `json:"file_ref,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

type EventPublisher interface {
	Publish(ctx context.Context, event Event)
}

type adminLister interface {
	ListAdminIDs(ctx context.Context) ([]int64, error)
}

// dispatcher sends notifications in the background. Every recipient gets its
// own goroutine and deadline; failures are logged and dropped.
type dispatcher struct {
	notifier  Notifier
	publisher EventPublisher
	admins    adminLister
	logger    *zap.Logger
	wg        sync.WaitGroup
}

func newDispatcher(notifier Notifier, publisher EventPublisher, admins adminLister, logger *zap.Logger) *dispatcher {
	return &dispatcher{
		notifier:  notifier,
		publisher: publisher,
		admins:    admins,
		logger:    logger,
	}
}

func (d *dispatcher) toUser(chatID int64, text string) {
	if d == nil || d.notifier == nil {
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		if err := d.notifier.SendText(ctx, chatID, text); err != nil {
			metrics.NotificationsTotal.WithLabelValues("user", "failed").Inc()
			d.logger.Warn("Failed to notify user", zap.Int64("telegram_id", chatID), zap.Error(err))
			return
		}
		metrics.NotificationsTotal.WithLabelValues("user", "sent").Inc()
	}()
}

func (d *dispatcher) toAdmins(event Event) {
	if d == nil {
		return
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		if d.publisher != nil {
			d.publisher.Publish(ctx, event)
		}
		if d.notifier == nil || d.admins == nil {
			return
		}

		ids, err := d.admins.ListAdminIDs(ctx)
		if err != nil {
			d.logger.Warn("Failed to list admins for notification", zap.String("event", event.Type), zap.Error(err))
			return
		}

		for _, id := range ids {
			d.wg.Add(1)
			go func(adminID int64) {
				defer d.wg.Done()

				ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
				defer cancel()

				var err error
				if event.FileRef != "" {
					err = d.notifier.SendPhoto(ctx, adminID, event.FileRef, event.Text)
				} else {
					err = d.notifier.SendText(ctx, adminID, event.Text)
				}
				if err != nil {
					metrics.NotificationsTotal.WithLabelValues("admin", "failed").Inc()
					d.logger.Warn("Failed to notify admin",
						zap.Int64("telegram_id", adminID),
						zap.String("event", event.Type),
						zap.Error(err))
					return
				}
				metrics.NotificationsTotal.WithLabelValues("admin", "sent").Inc()
			}(id)
		}
	}()
}

func (d *dispatcher) wait() {
	if d != nil {
		d.wg.Wait()
	}
}
