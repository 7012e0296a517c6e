package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"SR_rewards_bot/internal/model"

	"github.com/Masterminds/squirrel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var accountColumns = []string{
	"telegram_id",
	"username",
	"balance",
	"streak",
	"last_claim_date",
	"referred_by",
	"referrals",
	"tasks_completed",
	"completed_task_ids",
	"active_task_id",
	"active_task_name",
	"active_task_requires",
	"active_task_reward",
	"active_task_state",
	"task_options",
	"submitted_handles",
	"last_withdrawal_at",
	"last_withdrawal_tx_hash",
	"last_withdrawal_address",
	"withdrawal_state",
	"withdrawal_locked_until",
	"pending_withdrawal_amount",
	"pending_withdrawal_address",
	"pending_withdrawal_tx_hash",
	"pending_withdrawal_since",
	"last_daily_reminder_sent",
	"created_at",
}

type Account struct {
	TelegramID               int64          `db:"telegram_id"`
	Username                 string         `db:"username"`
	Balance                  int64          `db:"balance"`
	Streak                   int            `db:"streak"`
	LastClaimDate            *time.Time     `db:"last_claim_date"`
	ReferredBy               *int64         `db:"referred_by"`
	Referrals                int            `db:"referrals"`
	TasksCompleted           int            `db:"tasks_completed"`
	CompletedTaskIDs         pq.StringArray `db:"completed_task_ids"`
	ActiveTaskID             uuid.NullUUID  `db:"active_task_id"`
	ActiveTaskName           *string        `db:"active_task_name"`
	ActiveTaskRequires       *string        `db:"active_task_requires"`
	ActiveTaskReward         *int64         `db:"active_task_reward"`
	ActiveTaskState          *string        `db:"active_task_state"`
	TaskOptions              []byte         `db:"task_options"`
	SubmittedHandles         []byte         `db:"submitted_handles"`
	LastWithdrawalAt         *time.Time     `db:"last_withdrawal_at"`
	LastWithdrawalTxHash     string         `db:"last_withdrawal_tx_hash"`
	LastWithdrawalAddress    string         `db:"last_withdrawal_address"`
	WithdrawalState          string         `db:"withdrawal_state"`
	WithdrawalLockedUntil    *time.Time     `db:"withdrawal_locked_until"`
	PendingWithdrawalAmount  int64          `db:"pending_withdrawal_amount"`
	PendingWithdrawalAddress string         `db:"pending_withdrawal_address"`
	PendingWithdrawalTxHash  string         `db:"pending_withdrawal_tx_hash"`
	PendingWithdrawalSince   *time.Time     `db:"pending_withdrawal_since"`
	LastDailyReminderSent    *time.Time     `db:"last_daily_reminder_sent"`
	CreatedAt                time.Time      `db:"created_at"`
}

func (a *Account) toModel() (*model.Account, error) {
	acc := &model.Account{
		TelegramID:     a.TelegramID,
		Username:       a.Username,
		Balance:        a.Balance,
		Streak:         a.Streak,
		LastClaimDate:  a.LastClaimDate,
		ReferredBy:     a.ReferredBy,
		Referrals:      a.Referrals,
		TasksCompleted: a.TasksCompleted,
		Withdrawal: model.Withdrawal{
			LastAt:         a.LastWithdrawalAt,
			LastTxHash:     a.LastWithdrawalTxHash,
			LastAddress:    a.LastWithdrawalAddress,
			State:          model.WithdrawalState(a.WithdrawalState),
			LockedUntil:    a.WithdrawalLockedUntil,
			PendingAmount:  a.PendingWithdrawalAmount,
			PendingAddress: a.PendingWithdrawalAddress,
			PendingTxHash:  a.PendingWithdrawalTxHash,
			PendingSince:   a.PendingWithdrawalSince,
		},
		LastDailyReminderSent: a.LastDailyReminderSent,
		CreatedAt:             a.CreatedAt,
	}

	acc.CompletedTaskIDs = make([]uuid.UUID, 0, len(a.CompletedTaskIDs))
	for _, raw := range a.CompletedTaskIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: completed task id %q: %v", model.ErrInvalidAccount, raw, err)
		}
		acc.CompletedTaskIDs = append(acc.CompletedTaskIDs, id)
	}

	if a.ActiveTaskID.Valid {
		active := &model.ActiveTask{TaskID: a.ActiveTaskID.UUID}
		if a.ActiveTaskName != nil {
			active.TaskName = *a.ActiveTaskName
		}
		if a.ActiveTaskRequires != nil {
			active.Requires = model.ProofKind(*a.ActiveTaskRequires)
		}
		if a.ActiveTaskReward != nil {
			active.Reward = *a.ActiveTaskReward
		}
		if a.ActiveTaskState != nil {
			active.State = model.TaskState(*a.ActiveTaskState)
		}
		if !active.Requires.Valid() {
			active.Requires = model.ProofUsername
		}
		acc.ActiveTask = active
	}

	if len(a.TaskOptions) > 0 {
		if err := json.Unmarshal(a.TaskOptions, &acc.TaskOptions); err != nil {
			return nil, fmt.Errorf("%w: task options: %v", model.ErrInvalidAccount, err)
		}
	}
	if len(a.SubmittedHandles) > 0 {
		if err := json.Unmarshal(a.SubmittedHandles, &acc.SubmittedHandles); err != nil {
			return nil, fmt.Errorf("%w: submitted handles: %v", model.ErrInvalidAccount, err)
		}
	}

	if err := acc.Normalize(); err != nil {
		return nil, fmt.Errorf("account %d: %w", a.TelegramID, err)
	}

	return acc, nil
}

func accountValues(acc *model.Account) (map[string]interface{}, error) {
	ids := make(pq.StringArray, len(acc.CompletedTaskIDs))
	for i, id := range acc.CompletedTaskIDs {
		ids[i] = id.String()
	}

	options := acc.TaskOptions
	if options == nil {
		options = []model.TaskOption{}
	}
	taskOptions, err := json.Marshal(options)
	if err != nil {
		return nil, fmt.Errorf("failed to encode task options: %w", err)
	}

	handles, err := json.Marshal(acc.SubmittedHandles)
	if err != nil {
		return nil, fmt.Errorf("failed to encode submitted handles: %w", err)
	}

	values := map[string]interface{}{
		"username":                   acc.Username,
		"balance":                    acc.Balance,
		"streak":                     acc.Streak,
		"last_claim_date":            acc.LastClaimDate,
		"referred_by":                acc.ReferredBy,
		"referrals":                  acc.Referrals,
		"tasks_completed":            acc.TasksCompleted,
		"completed_task_ids":         squirrel.Expr("?::uuid[]", ids),
		"task_options":               taskOptions,
		"submitted_handles":          handles,
		"last_withdrawal_at":         acc.Withdrawal.LastAt,
		"last_withdrawal_tx_hash":    acc.Withdrawal.LastTxHash,
		"last_withdrawal_address":    acc.Withdrawal.LastAddress,
		"withdrawal_state":           string(acc.Withdrawal.State),
		"withdrawal_locked_until":    acc.Withdrawal.LockedUntil,
		"pending_withdrawal_amount":  acc.Withdrawal.PendingAmount,
		"pending_withdrawal_address": acc.Withdrawal.PendingAddress,
		"pending_withdrawal_tx_hash": acc.Withdrawal.PendingTxHash,
		"pending_withdrawal_since":   acc.Withdrawal.PendingSince,
		"last_daily_reminder_sent":   acc.LastDailyReminderSent,
	}

	if acc.ActiveTask != nil {
		values["active_task_id"] = acc.ActiveTask.TaskID
		values["active_task_name"] = acc.ActiveTask.TaskName
		values["active_task_requires"] = string(acc.ActiveTask.Requires)
		values["active_task_reward"] = acc.ActiveTask.Reward
		values["active_task_state"] = string(acc.ActiveTask.State)
	} else {
		values["active_task_id"] = nil
		values["active_task_name"] = nil
		values["active_task_requires"] = nil
		values["active_task_reward"] = nil
		values["active_task_state"] = nil
	}

	return values, nil
}

// CreateAccount inserts acc unless an account with the same id exists.
// It reports whether a new row was written.
func (r *Repository) CreateAccount(ctx context.Context, acc *model.Account) (bool, error) {
	if err := acc.Normalize(); err != nil {
		return false, err
	}

	values, err := accountValues(acc)
	if err != nil {
		return false, err
	}
	values["telegram_id"] = acc.TelegramID
	values["created_at"] = acc.CreatedAt

	query, args, err := squirrel.
		Insert("users").
		SetMap(values).
		Suffix("ON CONFLICT (telegram_id) DO NOTHING").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build account insert query: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to insert account: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return rows == 1, nil
}

func (r *Repository) GetAccount(ctx context.Context, telegramID int64) (*model.Account, error) {
	query, args, err := squirrel.
		Select(accountColumns...).
		From("users").
		Where(squirrel.Eq{"telegram_id": telegramID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	var row Account
	err = r.db.GetContext(ctx, &row, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return row.toModel()
}

func (r *Repository) getAccountForUpdate(ctx context.Context, tx *sqlx.Tx, telegramID int64) (*model.Account, error) {
	query, args, err := squirrel.
		Select(accountColumns...).
		From("users").
		Where(squirrel.Eq{"telegram_id": telegramID}).
		Suffix("FOR UPDATE").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	var row Account
	err = tx.GetContext(ctx, &row, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return row.toModel()
}

func (r *Repository) saveAccountWithTx(ctx context.Context, tx *sqlx.Tx, acc *model.Account) error {
	if err := acc.Normalize(); err != nil {
		return err
	}

	values, err := accountValues(acc)
	if err != nil {
		return err
	}

	query, args, err := squirrel.
		Update("users").
		SetMap(values).
		Where(squirrel.Eq{"telegram_id": acc.TelegramID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build account update query: %w", err)
	}

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// UpdateAccount runs fn against the row-locked account and writes the result
// back in the same transaction. If fn fails nothing is written.
func (r *Repository) UpdateAccount(ctx context.Context, telegramID int64, fn func(acc *model.Account) error) (*model.Account, error) {
	var updated *model.Account

	err := r.Transaction(ctx, func(tx *sqlx.Tx) error {
		acc, err := r.getAccountForUpdate(ctx, tx, telegramID)
		if err != nil {
			return err
		}

		if err := fn(acc); err != nil {
			return err
		}

		if err := r.saveAccountWithTx(ctx, tx, acc); err != nil {
			return err
		}

		updated = acc
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// UpdateAccountPair locks both accounts in id order and applies fn to them as
// one transaction.
func (r *Repository) UpdateAccountPair(ctx context.Context, firstID, secondID int64, fn func(first, second *model.Account) error) error {
	if firstID == secondID {
		return fmt.Errorf("update account pair: identical ids %d", firstID)
	}

	return r.Transaction(ctx, func(tx *sqlx.Tx) error {
		lowID, highID := firstID, secondID
		if lowID > highID {
			lowID, highID = highID, lowID
		}

		low, err := r.getAccountForUpdate(ctx, tx, lowID)
		if err != nil {
			return err
		}
		high, err := r.getAccountForUpdate(ctx, tx, highID)
		if err != nil {
			return err
		}

		first, second := low, high
		if first.TelegramID != firstID {
			first, second = high, low
		}

		if err := fn(first, second); err != nil {
			return err
		}

		if err := r.saveAccountWithTx(ctx, tx, first); err != nil {
			return err
		}
		return r.saveAccountWithTx(ctx, tx, second)
	})
}

// RecordProof applies fn to the locked account and stores the submission it
// returns in the same transaction.
func (r *Repository) RecordProof(ctx context.Context, telegramID int64, fn func(acc *model.Account) (*model.Submission, error)) (*model.Account, error) {
	var updated *model.Account

	err := r.Transaction(ctx, func(tx *sqlx.Tx) error {
		acc, err := r.getAccountForUpdate(ctx, tx, telegramID)
		if err != nil {
			return err
		}

		submission, err := fn(acc)
		if err != nil {
			return err
		}

		if err := r.saveAccountWithTx(ctx, tx, acc); err != nil {
			return err
		}

		if submission != nil {
			if err := r.upsertSubmissionWithTx(ctx, tx, submission); err != nil {
				return err
			}
		}

		updated = acc
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

func (r *Repository) selectAccounts(ctx context.Context, where squirrel.Sqlizer, orderBy string, limit uint64) ([]*model.Account, error) {
	builder := squirrel.
		Select(accountColumns...).
		From("users").
		PlaceholderFormat(squirrel.Dollar)
	if where != nil {
		builder = builder.Where(where)
	}
	if orderBy != "" {
		builder = builder.OrderBy(orderBy)
	}
	if limit > 0 {
		builder = builder.Limit(limit)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build accounts query: %w", err)
	}

	var rows []Account
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to select accounts: %w", err)
	}

	accounts := make([]*model.Account, 0, len(rows))
	for i := range rows {
		acc, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}

	return accounts, nil
}

func (r *Repository) GetTopAccounts(ctx context.Context, limit int) ([]*model.Account, error) {
	return r.selectAccounts(ctx, nil, "balance DESC, telegram_id", uint64(limit))
}

// ListWithdrawalsAwaitingReview returns accounts whose withdrawal is pending
// review or whose in-flight lock expired before `now`.
func (r *Repository) ListWithdrawalsAwaitingReview(ctx context.Context, now time.Time) ([]*model.Account, error) {
	where := squirrel.Or{
		squirrel.Eq{"withdrawal_state": string(model.WithdrawalPendingReview)},
		squirrel.And{
			squirrel.Eq{"withdrawal_state": string(model.WithdrawalInFlight)},
			squirrel.Lt{"withdrawal_locked_until": now},
		},
	}
	return r.selectAccounts(ctx, where, "pending_withdrawal_since NULLS FIRST, telegram_id", 0)
}

func (r *Repository) ListReminderDue(ctx context.Context, sentBefore time.Time) ([]*model.Account, error) {
	where := squirrel.Or{
		squirrel.Eq{"last_daily_reminder_sent": nil},
		squirrel.LtOrEq{"last_daily_reminder_sent": sentBefore},
	}
	return r.selectAccounts(ctx, where, "telegram_id", 0)
}

func (r *Repository) MarkReminderSent(ctx context.Context, telegramID int64, sentAt time.Time) error {
	query, args, err := squirrel.
		Update("users").
		Set("last_daily_reminder_sent", sentAt).
		Where(squirrel.Eq{"telegram_id": telegramID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}
