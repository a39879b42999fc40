package usecase

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/spendlens/receiptflow/internal/core/domain"
	"github.com/spendlens/receiptflow/internal/core/ports"
)

// UploadReceiptUseCase stores a raw receipt file under the expense prefix
// and publishes an analyze request for the expense.
type UploadReceiptUseCase struct {
	expenses ports.ExpenseRepository
	store    ports.ObjectStore
	queue    ports.AnalyzeQueue
}

func NewUploadReceiptUseCase(
	expenses ports.ExpenseRepository,
	store ports.ObjectStore,
	queue ports.AnalyzeQueue,
) *UploadReceiptUseCase {
	return &UploadReceiptUseCase{expenses: expenses, store: store, queue: queue}
}

func (uc *UploadReceiptUseCase) Upload(
	ctx context.Context,
	expenseID, filename, contentType string,
	body io.Reader,
) (*domain.StoredObject, error) {
	expense, err := uc.expenses.GetByID(ctx, expenseID)
	if err != nil {
		return nil, err
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read upload body", err)
	}
	if len(data) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read upload body", errors.New("empty file"))
	}

	name := sanitizeFilename(filename)
	key := expense.ReceiptPrefix() + name
	if _, err := uc.store.Upload(ctx, key, data, contentType); err != nil {
		return nil, domain.WrapError(domain.ErrStorageUnavailable, "store receipt file", err)
	}

	if err := uc.queue.PublishAnalyzeRequested(ctx, expense.ID); err != nil {
		return nil, err
	}

	return &domain.StoredObject{
		Key:       key,
		Name:      name,
		Size:      int64(len(data)),
		CreatedAt: time.Now().UTC(),
	}, nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "receipt.bin"
	}
	return base
}
