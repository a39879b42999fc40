package ports

import (
	"context"
	"io"

	"github.com/spendlens/receiptflow/internal/core/domain"
)

// ReceiptAnalyzer is the inbound contract for one pipeline run: select the
// expense's unprocessed receipt files, extract and persist each, then
// reconcile the expense total.
type ReceiptAnalyzer interface {
	AnalyzeExpense(ctx context.Context, expenseID string) (*domain.BatchResult, error)
}

// ReceiptUploader attaches a raw receipt file to an existing expense and
// requests its analysis.
type ReceiptUploader interface {
	Upload(ctx context.Context, expenseID, filename, contentType string, body io.Reader) (*domain.StoredObject, error)
}
