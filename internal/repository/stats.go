package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"SR_rewards_bot/internal/model"

	"github.com/Masterminds/squirrel"
)

type aggregateRow struct {
	TotalUsers          int   `db:"total_users"`
	TotalBalance        int64 `db:"total_balance"`
	TotalWithdrawals    int   `db:"total_withdrawals"`
	TotalTasksCompleted int   `db:"total_tasks_completed"`
	DailyActiveUsers    int   `db:"daily_active_users"`
}

// AggregateStats sums the ledger. Daily active users are those whose last
// claim date equals today.
func (r *Repository) AggregateStats(ctx context.Context, today time.Time) (*model.AdminStats, error) {
	query, args, err := squirrel.
		Select(
			"COUNT(*) AS total_users",
			"COALESCE(SUM(balance), 0) AS total_balance",
			"COUNT(*) FILTER (WHERE last_withdrawal_at IS NOT NULL) AS total_withdrawals",
			"COALESCE(SUM(tasks_completed), 0) AS total_tasks_completed",
		).
		Column(squirrel.Expr("COUNT(*) FILTER (WHERE last_claim_date = ?) AS daily_active_users", today)).
		From("users").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build stats query: %w", err)
	}

	var row aggregateRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		return nil, fmt.Errorf("failed to aggregate stats: %w", err)
	}

	stats := &model.AdminStats{
		TotalUsers:          row.TotalUsers,
		TotalBalance:        row.TotalBalance,
		TotalWithdrawals:    row.TotalWithdrawals,
		TotalTasksCompleted: row.TotalTasksCompleted,
		DailyActiveUsers:    row.DailyActiveUsers,
	}

	top, err := r.topHolder(ctx)
	if err != nil {
		return nil, err
	}
	stats.TopUser = top

	return stats, nil
}

func (r *Repository) topHolder(ctx context.Context) (*model.LeaderboardEntry, error) {
	query, args, err := squirrel.
		Select("telegram_id", "username", "balance").
		From("users").
		Where(squirrel.Gt{"balance": 0}).
		OrderBy("balance DESC", "telegram_id").
		Limit(1).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	var row struct {
		TelegramID int64  `db:"telegram_id"`
		Username   string `db:"username"`
		Balance    int64  `db:"balance"`
	}
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to select top holder: %w", err)
	}

	return &model.LeaderboardEntry{
		TelegramID: row.TelegramID,
		Username:   row.Username,
		Balance:    row.Balance,
	}, nil
}
