package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"SR_rewards_bot/internal/model"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type Task struct {
	ID        uuid.UUID `db:"task_id"`
	Name      string    `db:"name"`
	Reward    int64     `db:"reward"`
	Status    string    `db:"status"`
	Requires  string    `db:"requires"`
	Details   string    `db:"details"`
	CreatedAt time.Time `db:"created_at"`
}

func (t *Task) toModel() *model.Task {
	return &model.Task{
		ID:        t.ID,
		Name:      t.Name,
		Reward:    t.Reward,
		Status:    model.TaskStatus(t.Status),
		Requires:  model.ProofKind(t.Requires),
		Details:   t.Details,
		CreatedAt: t.CreatedAt,
	}
}

var taskColumns = []string{"task_id", "name", "reward", "status", "requires", "details", "created_at"}

func lockTaskName(ctx context.Context, tx *sqlx.Tx, name string) error {
	_, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", name)
	if err != nil {
		return fmt.Errorf("failed to lock task name: %w", err)
	}
	return nil
}

// CreateTask inserts a task. Creation and deletion of the same name are
// serialized by a transaction-scoped advisory lock.
func (r *Repository) CreateTask(ctx context.Context, task *model.Task) error {
	return r.Transaction(ctx, func(tx *sqlx.Tx) error {
		if err := lockTaskName(ctx, tx, task.Name); err != nil {
			return err
		}

		query, args, err := squirrel.
			Insert("tasks").
			Columns(taskColumns...).
			Values(task.ID, task.Name, task.Reward, string(task.Status), string(task.Requires), task.Details, task.CreatedAt).
			PlaceholderFormat(squirrel.Dollar).
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to build task insert query: %w", err)
		}

		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert task: %w", err)
		}
		return nil
	})
}

// DeleteTasksByName removes every task with the given name and returns how
// many rows were removed.
func (r *Repository) DeleteTasksByName(ctx context.Context, name string) (int, error) {
	var deleted int64

	err := r.Transaction(ctx, func(tx *sqlx.Tx) error {
		if err := lockTaskName(ctx, tx, name); err != nil {
			return err
		}

		query, args, err := squirrel.
			Delete("tasks").
			Where(squirrel.Eq{"name": name}).
			PlaceholderFormat(squirrel.Dollar).
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to build task delete query: %w", err)
		}

		result, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to delete tasks: %w", err)
		}

		deleted, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}

	return int(deleted), nil
}

// ListActiveTasks returns active tasks in creation order, skipping the ids in
// exclude.
func (r *Repository) ListActiveTasks(ctx context.Context, exclude []uuid.UUID) ([]*model.Task, error) {
	builder := squirrel.
		Select(taskColumns...).
		From("tasks").
		Where(squirrel.Eq{"status": string(model.TaskActive)}).
		OrderBy("created_at", "task_id").
		PlaceholderFormat(squirrel.Dollar)

	if len(exclude) > 0 {
		ids := make([]string, len(exclude))
		for i, id := range exclude {
			ids[i] = id.String()
		}
		builder = builder.Where(squirrel.NotEq{"task_id::text": ids})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build tasks query: %w", err)
	}

	var rows []Task
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to select tasks: %w", err)
	}

	tasks := make([]*model.Task, len(rows))
	for i := range rows {
		tasks[i] = rows[i].toModel()
	}

	return tasks, nil
}

func (r *Repository) GetTask(ctx context.Context, taskID uuid.UUID) (*model.Task, error) {
	query, args, err := squirrel.
		Select(taskColumns...).
		From("tasks").
		Where(squirrel.Eq{"task_id": taskID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	var row Task
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return row.toModel(), nil
}
