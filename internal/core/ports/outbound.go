package ports

import (
	"context"

	"github.com/spendlens/receiptflow/internal/core/domain"
)

// ObjectStore holds raw receipt files under hierarchical keys
// {owner}/{expense}/{filename}. Listing order is whatever the store returns;
// callers must not assume chronology.
type ObjectStore interface {
	List(ctx context.Context, prefix string) ([]domain.StoredObject, error)
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// ExpenseRepository reads expense state and writes the derived fields.
type ExpenseRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Expense, error)
	UpdateStatus(ctx context.Context, id string, status domain.ExpenseStatus) error
	// RecomputeTotal rewrites total_amount as the sum of receipt_total over
	// every persisted metadata row for the expense and returns the new value.
	// Idempotent and order-independent.
	RecomputeTotal(ctx context.Context, id string) (float64, error)
}

// ReceiptRepository persists extraction results.
type ReceiptRepository interface {
	ListByExpense(ctx context.Context, expenseID string) ([]domain.ReceiptMetadata, error)
	// CreateWithLineItems writes the metadata row and its line-item batch in
	// one transaction. Failures carry domain.ErrMetadataWrite or
	// domain.ErrLineItemWrite.
	CreateWithLineItems(ctx context.Context, meta *domain.ReceiptMetadata, items []domain.LineItem) error
}

// ExtractionService performs one AI vision extraction call.
type ExtractionService interface {
	Extract(ctx context.Context, payload domain.EncodedReceipt) (*domain.ReceiptAnalysis, error)
}

// UsageLogger records AI usage. Best-effort: implementations must be safe to
// call fire-and-forget and callers ignore failures.
type UsageLogger interface {
	Log(ctx context.Context, rec domain.UsageRecord) error
}

// AnalyzeQueue transports analyze requests from the API to the worker.
type AnalyzeQueue interface {
	PublishAnalyzeRequested(ctx context.Context, expenseID string) error
	SubscribeAnalyzeRequested(ctx context.Context, handler func(context.Context, string) error) error
}

// RetryPolicy executes an operation under the configured retry/breaker
// policy. A nil policy means a single attempt.
type RetryPolicy interface {
	Execute(ctx context.Context, operation string, fn func(context.Context) error) error
}
