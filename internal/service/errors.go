package service

import (
	"errors"
	"fmt"
	"time"

	"SR_rewards_bot/internal/settlement"
)

var (
	ErrInvalidAddress          = errors.New("invalid wallet address")
	ErrInvalidField            = errors.New("invalid field")
	ErrNotRegistered           = errors.New("account not registered")
	ErrUserNotFound            = errors.New("user not found")
	ErrNotAdmin                = errors.New("not authorized")
	ErrAlreadyClaimedToday     = errors.New("daily reward already claimed today")
	ErrCooldownActive          = errors.New("withdrawal cooldown active")
	ErrBelowMinimum            = errors.New("balance below minimum withdrawal amount")
	ErrInvalidSelection        = errors.New("invalid task selection")
	ErrNoActiveTask            = errors.New("no active task")
	ErrAlreadyCompleted        = errors.New("task already completed")
	ErrUnsupportedPlatform     = errors.New("unsupported platform")
	ErrNoSubmittedHandle       = errors.New("no username submitted for platform")
	ErrTaskNotFound            = errors.New("task not found")
	ErrWithdrawalInProgress    = errors.New("withdrawal already in progress")
	ErrWithdrawalPendingReview = errors.New("previous withdrawal is pending review")
	ErrNotPendingReview        = errors.New("no withdrawal pending review")
	ErrTransferFailed          = errors.New("token transfer failed")
	ErrIndeterminateSettlement = errors.New("transfer outcome unknown, withdrawal flagged for review")
	ErrExternalService         = errors.New("external service unavailable")
)

// CooldownActiveError carries the time left until the next withdrawal.
type CooldownActiveError struct {
	Remaining time.Duration
}

func (e *CooldownActiveError) Error() string {
	return fmt.Sprintf("%s: %s remaining", ErrCooldownActive, e.Remaining.Round(time.Minute))
}

func (e *CooldownActiveError) Is(target error) bool {
	return target == ErrCooldownActive
}

var kinds = []struct {
	err  error
	kind string
}{
	{ErrInvalidAddress, "invalid_address"},
	{ErrInvalidField, "invalid_field"},
	{ErrNotRegistered, "not_registered"},
	{ErrUserNotFound, "user_not_found"},
	{ErrNotAdmin, "not_admin"},
	{ErrAlreadyClaimedToday, "already_claimed_today"},
	{ErrCooldownActive, "cooldown_active"},
	{ErrBelowMinimum, "below_minimum"},
	{ErrInvalidSelection, "invalid_selection"},
	{ErrNoActiveTask, "no_active_task"},
	{ErrAlreadyCompleted, "already_completed"},
	{ErrUnsupportedPlatform, "unsupported_platform"},
	{ErrNoSubmittedHandle, "no_submitted_handle"},
	{ErrTaskNotFound, "task_not_found"},
	{ErrWithdrawalInProgress, "withdrawal_in_progress"},
	{ErrWithdrawalPendingReview, "withdrawal_pending_review"},
	{ErrNotPendingReview, "not_pending_review"},
	{ErrTransferFailed, "transfer_failed"},
	{ErrIndeterminateSettlement, "indeterminate_settlement"},
	{ErrExternalService, "external_service"},
}

// Kind maps err to a stable code for clients and logs.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "internal"
}

// IsValidation reports whether err was raised before any state was touched
// because the caller supplied bad input or lacks permission.
func IsValidation(err error) bool {
	switch Kind(err) {
	case "invalid_address", "invalid_field", "not_admin", "unsupported_platform", "invalid_selection":
		return true
	}
	return false
}

func settlementFailure(err error) error {
	if settlement.IsIndeterminate(err) {
		return fmt.Errorf("%w: %v", ErrIndeterminateSettlement, err)
	}
	return fmt.Errorf("%w: %v", ErrTransferFailed, err)
}
