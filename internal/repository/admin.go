package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

func (r *Repository) IsAdmin(ctx context.Context, telegramID int64) (bool, error) {
	query, args, err := squirrel.
		Select("is_admin").
		From("admins").
		Where(squirrel.Eq{"telegram_id": telegramID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return false, err
	}

	var isAdmin bool
	if err := r.db.GetContext(ctx, &isAdmin, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check admin flag: %w", err)
	}

	return isAdmin, nil
}

func (r *Repository) ListAdminIDs(ctx context.Context) ([]int64, error) {
	query, args, err := squirrel.
		Select("telegram_id").
		From("admins").
		Where(squirrel.Eq{"is_admin": true}).
		OrderBy("telegram_id").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list admins: %w", err)
	}

	return ids, nil
}

// SeedAdmins marks the given ids as admins. Existing rows are overwritten.
func (r *Repository) SeedAdmins(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	return r.Transaction(ctx, func(tx *sqlx.Tx) error {
		builder := squirrel.
			Insert("admins").
			Columns("telegram_id", "is_admin").
			Suffix("ON CONFLICT (telegram_id) DO UPDATE SET is_admin = EXCLUDED.is_admin").
			PlaceholderFormat(squirrel.Dollar)
		for _, id := range ids {
			builder = builder.Values(id, true)
		}

		query, args, err := builder.ToSql()
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to seed admins: %w", err)
		}
		return nil
	})
}
