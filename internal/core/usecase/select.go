package usecase

import (
	"context"
	"log/slog"

	"github.com/spendlens/receiptflow/internal/core/domain"
	"github.com/spendlens/receiptflow/internal/core/ports"
)

// ReceiptSelector decides which raw receipt files of an expense still need
// analysis. Read-only: it lists the object store and diffs against the
// persisted metadata rows.
type ReceiptSelector struct {
	store    ports.ObjectStore
	receipts ports.ReceiptRepository
}

func NewReceiptSelector(store ports.ObjectStore, receipts ports.ReceiptRepository) *ReceiptSelector {
	return &ReceiptSelector{store: store, receipts: receipts}
}

// SelectUnprocessed returns the files under the expense prefix that have no
// metadata row yet, in listing order. An empty listing is a valid empty
// result, not an error.
func (s *ReceiptSelector) SelectUnprocessed(ctx context.Context, expense *domain.Expense) ([]domain.StoredObject, error) {
	objects, err := s.store.List(ctx, expense.ReceiptPrefix())
	if err != nil {
		return nil, domain.WrapError(domain.ErrStorageUnavailable, "list receipt files", err)
	}

	analyzed, err := s.receipts.ListByExpense(ctx, expense.ID)
	if err != nil {
		return nil, domain.WrapError(domain.ErrSelectionFailed, "load analyzed receipts", err)
	}
	analyzedSize := make(map[string]int64, len(analyzed))
	for _, meta := range analyzed {
		analyzedSize[meta.FileName] = meta.SourceSize
	}

	pending := make([]domain.StoredObject, 0, len(objects))
	for _, obj := range objects {
		size, done := analyzedSize[obj.Name]
		if !done {
			pending = append(pending, obj)
			continue
		}
		// Matching is by file name, not content. A same-name re-upload with
		// different bytes stays unanalyzed; surface it instead of silently
		// skipping.
		if size != obj.Size {
			slog.Warn("receipt file changed after analysis; re-upload under a new name to reprocess",
				"expense_id", expense.ID,
				"file", obj.Name,
				"analyzed_size", size,
				"listed_size", obj.Size,
			)
		}
	}
	return pending, nil
}
