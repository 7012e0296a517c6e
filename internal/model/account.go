package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidAccount = errors.New("invalid account record")

type TaskState string

const (
	TaskStateAwaitingProof TaskState = "awaiting_proof"
	TaskStatePendingReview TaskState = "pending_review"
)

type WithdrawalState string

const (
	WithdrawalIdle          WithdrawalState = "idle"
	WithdrawalInFlight      WithdrawalState = "in_flight"
	WithdrawalPendingReview WithdrawalState = "pending_review"
)

// ActiveTask is the task a user selected and still owes proof for.
type ActiveTask struct {
	TaskID   uuid.UUID
	TaskName string
	Requires ProofKind
	Reward   int64
	State    TaskState
}

// TaskOption is one row of the most recently listed task page.
type TaskOption struct {
	Index    int       `json:"index"`
	TaskID   uuid.UUID `json:"task_id"`
	Name     string    `json:"name"`
	Reward   int64     `json:"reward"`
	Requires ProofKind `json:"requires"`
	Details  string    `json:"details,omitempty"`
}

type Withdrawal struct {
	LastAt      *time.Time
	LastTxHash  string
	LastAddress string

	State          WithdrawalState
	LockedUntil    *time.Time
	PendingAmount  int64
	PendingAddress string
	PendingTxHash  string
	PendingSince   *time.Time
}

type Account struct {
	TelegramID       int64
	Username         string
	Balance          int64
	Streak           int
	LastClaimDate    *time.Time
	ReferredBy       *int64
	Referrals        int
	TasksCompleted   int
	CompletedTaskIDs []uuid.UUID
	ActiveTask       *ActiveTask
	TaskOptions      []TaskOption
	SubmittedHandles map[string]string
	Withdrawal       Withdrawal

	LastDailyReminderSent *time.Time
	CreatedAt             time.Time
}

func NewAccount(telegramID int64, username string, now time.Time) *Account {
	return &Account{
		TelegramID:       telegramID,
		Username:         username,
		SubmittedHandles: make(map[string]string),
		Withdrawal:       Withdrawal{State: WithdrawalIdle},
		CreatedAt:        now,
	}
}

// Normalize fills absent optional fields with their zero defaults and
// rejects records that break the ledger invariants.
func (a *Account) Normalize() error {
	if a.SubmittedHandles == nil {
		a.SubmittedHandles = make(map[string]string)
	}
	if a.Withdrawal.State == "" {
		a.Withdrawal.State = WithdrawalIdle
	}
	if a.ActiveTask != nil && a.ActiveTask.State == "" {
		a.ActiveTask.State = TaskStateAwaitingProof
	}

	seen := make(map[uuid.UUID]struct{}, len(a.CompletedTaskIDs))
	ids := a.CompletedTaskIDs[:0]
	for _, id := range a.CompletedTaskIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	a.CompletedTaskIDs = ids

	if a.Balance < 0 || a.Streak < 0 || a.Referrals < 0 || a.TasksCompleted < 0 {
		return ErrInvalidAccount
	}
	return nil
}

func (a *Account) HasCompleted(taskID uuid.UUID) bool {
	for _, id := range a.CompletedTaskIDs {
		if id == taskID {
			return true
		}
	}
	return false
}

// MarkCompleted adds taskID to the completed set and reports whether it was new.
func (a *Account) MarkCompleted(taskID uuid.UUID) bool {
	if a.HasCompleted(taskID) {
		return false
	}
	a.CompletedTaskIDs = append(a.CompletedTaskIDs, taskID)
	return true
}

func (a *Account) HasWithdrawn() bool {
	return a.Withdrawal.LastAt != nil
}

func (a *Account) FindTaskOption(index int) (TaskOption, bool) {
	for _, o := range a.TaskOptions {
		if o.Index == index {
			return o, true
		}
	}
	return TaskOption{}, false
}

// DateOf returns the calendar day of t in loc as a UTC midnight timestamp.
func DateOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
