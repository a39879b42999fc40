package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/spendlens/receiptflow/internal/core/domain"
)

type ExpenseRepository struct {
	db *sql.DB
}

func NewExpenseRepository(db *sql.DB) *ExpenseRepository {
	return &ExpenseRepository{db: db}
}

func (r *ExpenseRepository) GetByID(ctx context.Context, id string) (*domain.Expense, error) {
	const query = `
		SELECT id, owner_id, status, currency, total_amount, created_at, updated_at
		FROM expenses
		WHERE id = $1`

	var e domain.Expense
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&e.ID, &e.OwnerID, &e.Status, &e.Currency, &e.TotalAmount, &e.CreatedAt, &e.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.WrapError(domain.ErrExpenseNotFound, "get expense "+id, err)
	}
	if err != nil {
		return nil, domain.WrapError(domain.ErrStorageUnavailable, "get expense "+id, err)
	}
	return &e, nil
}

func (r *ExpenseRepository) UpdateStatus(ctx context.Context, id string, status domain.ExpenseStatus) error {
	const query = `UPDATE expenses SET status = $2, updated_at = $3 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, string(status), time.Now().UTC())
	if err != nil {
		return domain.WrapError(domain.ErrStorageUnavailable, "update expense status", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.WrapError(domain.ErrStorageUnavailable, "update expense status", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrExpenseNotFound, "update expense status", sql.ErrNoRows)
	}
	return nil
}

// RecomputeTotal rewrites total_amount from the persisted receipt totals in a
// single statement, so concurrent recomputes converge on the same value no
// matter the order they land in.
func (r *ExpenseRepository) RecomputeTotal(ctx context.Context, id string) (float64, error) {
	const query = `
		UPDATE expenses
		SET total_amount = COALESCE(
			(SELECT SUM(receipt_total) FROM receipt_metadata WHERE expense_id = $1), 0),
		    updated_at = $2
		WHERE id = $1
		RETURNING total_amount`

	var total float64
	err := r.db.QueryRowContext(ctx, query, id, time.Now().UTC()).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.WrapError(domain.ErrExpenseNotFound, "recompute expense total", err)
	}
	if err != nil {
		return 0, domain.WrapError(domain.ErrStorageUnavailable, "recompute expense total", err)
	}
	return total, nil
}
