package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"SR_rewards_bot/internal/metrics"
	"SR_rewards_bot/internal/model"
	"SR_rewards_bot/internal/repository"
	"SR_rewards_bot/internal/settlement"

	"go.uber.org/zap"
)

var errLockLost = errors.New("withdrawal lock no longer held")

const settleWriteAttempts = 3

const (
	ResolveSettled = "settled"
	ResolveFailed  = "failed"
)

type WithdrawalService struct {
	repo       AccountRepository
	settlement Settlement
	auth       authorizer
	rules      Rules
	dispatch   *dispatcher
	logger     *zap.Logger
	now        func() time.Time

	// retryDelay is the pause between attempts to record a confirmed transfer.
	retryDelay time.Duration
}

func NewWithdrawalService(repo AccountRepository, settlement Settlement, auth authorizer, rules Rules, dispatch *dispatcher, logger *zap.Logger) *WithdrawalService {
	return &WithdrawalService{
		repo:       repo,
		settlement: settlement,
		auth:       auth,
		rules:      rules,
		dispatch:   dispatch,
		logger:     logger,
		now:        time.Now,
		retryDelay: 200 * time.Millisecond,
	}
}

func (s *WithdrawalService) checkEligible(acc *model.Account, now time.Time) error {
	w := acc.Withdrawal
	switch w.State {
	case model.WithdrawalInFlight:
		if w.LockedUntil != nil && now.Before(*w.LockedUntil) {
			return ErrWithdrawalInProgress
		}
		return ErrWithdrawalPendingReview
	case model.WithdrawalPendingReview:
		return ErrWithdrawalPendingReview
	}

	if w.LastAt != nil {
		elapsed := now.Sub(*w.LastAt)
		if elapsed < s.rules.WithdrawCooldown {
			return &CooldownActiveError{Remaining: s.rules.WithdrawCooldown - elapsed}
		}
	}

	if acc.Balance < s.rules.MinWithdrawAmount || acc.Balance <= 0 {
		return ErrBelowMinimum
	}

	return nil
}

// Withdraw sends the whole balance to address. The account is locked in the
// in-flight state for the duration of the transfer; the lock is persisted and
// expires after WithdrawLockTTL.
func (s *WithdrawalService) Withdraw(ctx context.Context, telegramID int64, address string) (*model.WithdrawalResult, error) {
	address = strings.TrimSpace(address)
	if !settlement.ValidAddress(address) {
		return nil, ErrInvalidAddress
	}

	now := s.now().UTC()
	var amount int64

	_, err := s.repo.UpdateAccount(ctx, telegramID, func(acc *model.Account) error {
		if err := s.checkEligible(acc, now); err != nil {
			return err
		}

		amount = acc.Balance
		lockedUntil := now.Add(s.rules.WithdrawLockTTL)
		acc.Withdrawal.State = model.WithdrawalInFlight
		acc.Withdrawal.LockedUntil = &lockedUntil
		acc.Withdrawal.PendingAmount = amount
		acc.Withdrawal.PendingAddress = address
		acc.Withdrawal.PendingTxHash = ""
		acc.Withdrawal.PendingSince = &now
		return nil
	})
	if err != nil {
		return nil, mapAccountErr(err)
	}

	log := s.logger.With(zap.Int64("telegram_id", telegramID), zap.Int64("amount", amount), zap.String("address", address))
	log.Info("Withdrawal started")

	started := time.Now()
	txHash, err := s.settlement.Transfer(ctx, address, amount)
	metrics.WithdrawalDuration.Observe(time.Since(started).Seconds())

	// The transfer may have moved tokens; ledger writes must not be cut short
	// by the caller going away.
	persistCtx := context.WithoutCancel(ctx)

	if err != nil {
		if settlement.IsIndeterminate(err) {
			log.Error("Withdrawal outcome unknown, flagging for review", zap.String("tx_hash", txHash), zap.Error(err))
			metrics.WithdrawalsTotal.WithLabelValues("pending_review").Inc()
			s.flagForReview(persistCtx, telegramID, txHash)
			return nil, settlementFailure(err)
		}

		log.Warn("Withdrawal transfer failed", zap.Error(err))
		metrics.WithdrawalsTotal.WithLabelValues("failed").Inc()
		s.release(persistCtx, telegramID)
		return nil, settlementFailure(err)
	}

	s.recordSettled(persistCtx, log, telegramID, amount, txHash, now)

	s.dispatch.toAdmins(Event{
		Type:       EventWithdrawalSent,
		TelegramID: telegramID,
		Text:       fmt.Sprintf("📤 Sent %d tokens to %s\nTX: %s", amount, address, s.settlement.ExplorerURL(txHash)),
		Payload: map[string]any{
			"amount":  amount,
			"address": address,
			"tx_hash": txHash,
		},
	})

	metrics.WithdrawalsTotal.WithLabelValues("sent").Inc()
	metrics.WithdrawnTokens.Add(float64(amount))
	log.Info("Withdrawal completed", zap.String("tx_hash", txHash))

	return &model.WithdrawalResult{Amount: amount, Address: address, TxHash: txHash}, nil
}

// recordSettled writes a confirmed transfer to the ledger. When every attempt
// fails the lock is kept and the hash is stored on it, so the reconciler can
// settle the withdrawal from the receipt once the lock expires.
func (s *WithdrawalService) recordSettled(ctx context.Context, log *zap.Logger, telegramID, amount int64, txHash string, now time.Time) {
	holdsLock := func(acc *model.Account) bool {
		return acc.Withdrawal.State == model.WithdrawalInFlight && acc.Withdrawal.PendingAmount == amount
	}

	var err error
	for attempt := 1; attempt <= settleWriteAttempts; attempt++ {
		_, err = s.repo.UpdateAccount(ctx, telegramID, func(acc *model.Account) error {
			if !holdsLock(acc) {
				return errLockLost
			}
			applySettled(acc, txHash, now)
			return nil
		})
		if err == nil {
			return
		}
		if errors.Is(err, errLockLost) {
			log.Error("Withdrawal lock lost before recording transfer", zap.String("tx_hash", txHash))
			return
		}

		log.Warn("Failed to record completed withdrawal",
			zap.String("tx_hash", txHash),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if attempt < settleWriteAttempts {
			time.Sleep(s.retryDelay)
		}
	}

	log.Error("Giving up recording completed withdrawal, keeping lock for review", zap.String("tx_hash", txHash), zap.Error(err))

	_, err = s.repo.UpdateAccount(ctx, telegramID, func(acc *model.Account) error {
		if !holdsLock(acc) {
			return errLockLost
		}
		acc.Withdrawal.PendingTxHash = txHash
		return nil
	})
	if err != nil {
		log.Error("Failed to store transaction hash on withdrawal lock", zap.String("tx_hash", txHash), zap.Error(err))
	}
}

func applySettled(acc *model.Account, txHash string, at time.Time) {
	w := &acc.Withdrawal

	acc.Balance -= w.PendingAmount
	if acc.Balance < 0 {
		acc.Balance = 0
	}

	w.LastAt = &at
	w.LastTxHash = txHash
	w.LastAddress = w.PendingAddress
	clearPending(w)
}

func clearPending(w *model.Withdrawal) {
	w.State = model.WithdrawalIdle
	w.LockedUntil = nil
	w.PendingAmount = 0
	w.PendingAddress = ""
	w.PendingTxHash = ""
	w.PendingSince = nil
}

func (s *WithdrawalService) release(ctx context.Context, telegramID int64) {
	_, err := s.repo.UpdateAccount(ctx, telegramID, func(acc *model.Account) error {
		if acc.Withdrawal.State != model.WithdrawalInFlight {
			return nil
		}
		clearPending(&acc.Withdrawal)
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to release withdrawal lock", zap.Int64("telegram_id", telegramID), zap.Error(err))
	}
}

func (s *WithdrawalService) flagForReview(ctx context.Context, telegramID int64, txHash string) {
	acc, err := s.repo.UpdateAccount(ctx, telegramID, func(acc *model.Account) error {
		if acc.Withdrawal.State == model.WithdrawalIdle {
			return nil
		}
		acc.Withdrawal.State = model.WithdrawalPendingReview
		if txHash != "" {
			acc.Withdrawal.PendingTxHash = txHash
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to flag withdrawal for review", zap.Int64("telegram_id", telegramID), zap.Error(err))
		return
	}

	s.notifyReview(acc)
}

func (s *WithdrawalService) notifyReview(acc *model.Account) {
	w := acc.Withdrawal
	s.dispatch.toAdmins(Event{
		Type:       EventWithdrawalReview,
		TelegramID: acc.TelegramID,
		Text: fmt.Sprintf("⚠️ Withdrawal of %d tokens by user %d to %s needs review\nTX: %s\nResolve with /resolvewithdrawal %d settled|failed [txHash]",
			w.PendingAmount, acc.TelegramID, w.PendingAddress, orNone(w.PendingTxHash), acc.TelegramID),
		Payload: map[string]any{
			"amount":  w.PendingAmount,
			"address": w.PendingAddress,
			"tx_hash": w.PendingTxHash,
		},
	})
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func (s *WithdrawalService) WithdrawalStatus(ctx context.Context, telegramID int64) (*model.WithdrawalStatus, error) {
	acc, err := s.repo.GetAccount(ctx, telegramID)
	if err != nil {
		return nil, mapAccountErr(err)
	}

	now := s.now().UTC()
	status := &model.WithdrawalStatus{
		State:  acc.Withdrawal.State,
		LastAt: acc.Withdrawal.LastAt,
	}

	switch err := s.checkEligible(acc, now); {
	case err == nil, errors.Is(err, ErrBelowMinimum):
		status.Eligible = true
	case errors.Is(err, ErrCooldownActive):
		var cooldown *CooldownActiveError
		if errors.As(err, &cooldown) {
			status.Remaining = cooldown.Remaining
		}
	}

	return status, nil
}

// ReconcileWithdrawals moves expired in-flight locks to review and settles
// reviewed withdrawals whose transaction outcome is now known on chain.
func (s *WithdrawalService) ReconcileWithdrawals(ctx context.Context) (int, error) {
	now := s.now().UTC()

	accounts, err := s.repo.ListWithdrawalsAwaitingReview(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to list withdrawals awaiting review: %w", err)
	}

	resolved := 0
	for _, acc := range accounts {
		log := s.logger.With(zap.Int64("telegram_id", acc.TelegramID))

		if acc.Withdrawal.State == model.WithdrawalInFlight {
			flagged, err := s.repo.UpdateAccount(ctx, acc.TelegramID, func(a *model.Account) error {
				w := a.Withdrawal
				if w.State != model.WithdrawalInFlight || w.LockedUntil == nil || now.Before(*w.LockedUntil) {
					return ErrNotPendingReview
				}
				a.Withdrawal.State = model.WithdrawalPendingReview
				return nil
			})
			if err != nil {
				if !errors.Is(err, ErrNotPendingReview) {
					log.Warn("Failed to flag expired withdrawal lock", zap.Error(err))
				}
				continue
			}
			log.Warn("Withdrawal lock expired, flagged for review")
			s.notifyReview(flagged)
			acc = flagged
		}

		txHash := acc.Withdrawal.PendingTxHash
		if txHash == "" {
			continue
		}

		status, err := s.settlement.TransferStatus(ctx, txHash)
		if err != nil {
			log.Warn("Failed to check transfer status", zap.String("tx_hash", txHash), zap.Error(err))
			continue
		}

		var outcome string
		switch status {
		case settlement.StatusConfirmed:
			outcome = ResolveSettled
		case settlement.StatusFailed:
			outcome = ResolveFailed
		default:
			continue
		}

		if _, err := s.resolve(ctx, acc.TelegramID, outcome, txHash); err != nil {
			log.Warn("Failed to resolve withdrawal", zap.String("tx_hash", txHash), zap.Error(err))
			continue
		}
		log.Info("Withdrawal reconciled", zap.String("tx_hash", txHash), zap.String("outcome", outcome))
		resolved++
	}

	return resolved, nil
}

// ResolveWithdrawal lets an operator close a withdrawal under review.
func (s *WithdrawalService) ResolveWithdrawal(ctx context.Context, callerID, targetID int64, outcome, txHash string) (*model.Account, error) {
	if err := s.auth.authorize(ctx, callerID); err != nil {
		return nil, err
	}

	acc, err := s.resolve(ctx, targetID, strings.ToLower(strings.TrimSpace(outcome)), strings.TrimSpace(txHash))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	s.logger.Info("Withdrawal resolved by operator",
		zap.Int64("admin_id", callerID),
		zap.Int64("telegram_id", targetID),
		zap.String("outcome", outcome))

	return acc, nil
}

func (s *WithdrawalService) resolve(ctx context.Context, telegramID int64, outcome, txHash string) (*model.Account, error) {
	if outcome != ResolveSettled && outcome != ResolveFailed {
		return nil, fmt.Errorf("%w: outcome must be %q or %q", ErrInvalidField, ResolveSettled, ResolveFailed)
	}

	now := s.now().UTC()
	var amount int64

	acc, err := s.repo.UpdateAccount(ctx, telegramID, func(acc *model.Account) error {
		w := acc.Withdrawal
		reviewable := w.State == model.WithdrawalPendingReview ||
			(w.State == model.WithdrawalInFlight && w.LockedUntil != nil && !now.Before(*w.LockedUntil))
		if !reviewable {
			return ErrNotPendingReview
		}

		amount = w.PendingAmount
		if outcome == ResolveFailed {
			clearPending(&acc.Withdrawal)
			return nil
		}

		hash := txHash
		if hash == "" {
			hash = w.PendingTxHash
		}
		at := now
		if w.PendingSince != nil {
			at = *w.PendingSince
		}
		applySettled(acc, hash, at)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.dispatch.toUser(telegramID, resolvedMessage(outcome, amount))
	s.dispatch.toAdmins(Event{
		Type:       EventWithdrawalResolved,
		TelegramID: telegramID,
		Text:       fmt.Sprintf("🧾 Withdrawal of %d tokens by user %d resolved as %s", amount, telegramID, outcome),
		Payload: map[string]any{
			"amount":  amount,
			"outcome": outcome,
		},
	})

	return acc, nil
}

func resolvedMessage(outcome string, amount int64) string {
	if outcome == ResolveSettled {
		return fmt.Sprintf("✅ Your withdrawal of %d tokens has been confirmed.", amount)
	}
	return fmt.Sprintf("↩️ Your withdrawal of %d tokens did not go through. Your balance was not charged.", amount)
}

func (s *WithdrawalService) ListPendingWithdrawals(ctx context.Context, callerID int64) ([]*model.Account, error) {
	if err := s.auth.authorize(ctx, callerID); err != nil {
		return nil, err
	}

	accounts, err := s.repo.ListWithdrawalsAwaitingReview(ctx, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list withdrawals awaiting review: %w", err)
	}
	return accounts, nil
}
