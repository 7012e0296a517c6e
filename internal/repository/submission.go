package repository

import (
	"context"
	"fmt"
	"time"

	"SR_rewards_bot/internal/model"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type Submission struct {
	UserTelegramID   int64     `db:"user_telegram_id"`
	TaskID           uuid.UUID `db:"task_id"`
	TaskName         string    `db:"task_name"`
	Platform         string    `db:"platform"`
	Username         string    `db:"username"`
	ScreenshotFileID string    `db:"screenshot_file_id"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

func (s *Submission) toModel() *model.Submission {
	return &model.Submission{
		UserTelegramID:   s.UserTelegramID,
		TaskID:           s.TaskID,
		TaskName:         s.TaskName,
		Platform:         s.Platform,
		Username:         s.Username,
		ScreenshotFileID: s.ScreenshotFileID,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
}

// upsertSubmissionWithTx stores a proof. Fields already recorded for the
// (user, task) pair are kept; empty ones are filled from the new proof.
func (r *Repository) upsertSubmissionWithTx(ctx context.Context, tx *sqlx.Tx, s *model.Submission) error {
	query, args, err := squirrel.
		Insert("submissions").
		Columns("user_telegram_id", "task_id", "task_name", "platform", "username", "screenshot_file_id", "created_at", "updated_at").
		Values(s.UserTelegramID, s.TaskID, s.TaskName, s.Platform, s.Username, s.ScreenshotFileID, s.CreatedAt, s.UpdatedAt).
		Suffix(`ON CONFLICT (user_telegram_id, task_id) DO UPDATE SET
			platform = COALESCE(NULLIF(submissions.platform, ''), EXCLUDED.platform),
			username = COALESCE(NULLIF(submissions.username, ''), EXCLUDED.username),
			screenshot_file_id = COALESCE(NULLIF(submissions.screenshot_file_id, ''), EXCLUDED.screenshot_file_id),
			updated_at = EXCLUDED.updated_at`).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build submission upsert query: %w", err)
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to upsert submission: %w", err)
	}

	return nil
}

func (r *Repository) ListSubmissions(ctx context.Context, telegramID int64) ([]*model.Submission, error) {
	query, args, err := squirrel.
		Select("user_telegram_id", "task_id", "task_name", "platform", "username", "screenshot_file_id", "created_at", "updated_at").
		From("submissions").
		Where(squirrel.Eq{"user_telegram_id": telegramID}).
		OrderBy("created_at").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	var rows []Submission
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to select submissions: %w", err)
	}

	submissions := make([]*model.Submission, len(rows))
	for i := range rows {
		submissions[i] = rows[i].toModel()
	}

	return submissions, nil
}
