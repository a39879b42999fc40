package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/spendlens/receiptflow/internal/core/domain"
)

// UsageRepository appends AI call records. Writes are best-effort from the
// caller's point of view; errors are returned but callers may drop them.
type UsageRepository struct {
	db *sql.DB
}

func NewUsageRepository(db *sql.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

func (r *UsageRepository) Log(ctx context.Context, rec domain.UsageRecord) error {
	const query = `
		INSERT INTO ai_usage_log (
			id, expense_id, model, operation, prompt_tokens, completion_tokens,
			success, error_message, processing_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.ExecContext(ctx, query,
		uuid.NewString(), rec.ExpenseID, rec.Model, rec.Operation,
		rec.PromptTokens, rec.CompletionTokens, rec.Success,
		rec.ErrorMessage, rec.ProcessingMS, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}
	return nil
}
