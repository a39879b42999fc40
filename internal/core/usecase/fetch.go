package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"path/filepath"
	"strings"

	"github.com/spendlens/receiptflow/internal/core/domain"
	"github.com/spendlens/receiptflow/internal/core/ports"
)

// ReceiptFetcher downloads one raw receipt file and encodes it for the
// extraction service. No resizing or format validation happens here; the
// vision service rejects images it cannot read.
type ReceiptFetcher struct {
	store ports.ObjectStore
}

func NewReceiptFetcher(store ports.ObjectStore) *ReceiptFetcher {
	return &ReceiptFetcher{store: store}
}

func (f *ReceiptFetcher) FetchAndEncode(ctx context.Context, expense *domain.Expense, obj domain.StoredObject) (*domain.EncodedReceipt, error) {
	data, err := f.store.Download(ctx, obj.Key)
	if err != nil {
		return nil, domain.WrapError(domain.ErrReceiptFetch, "download "+obj.Name, err)
	}
	if len(data) == 0 {
		return nil, domain.WrapError(domain.ErrReceiptFetch, "download "+obj.Name, errors.New("object is empty"))
	}

	return &domain.EncodedReceipt{
		ExpenseID:  expense.ID,
		FileName:   obj.Name,
		Key:        obj.Key,
		MimeType:   mimeTypeForFile(obj.Name),
		SourceSize: int64(len(data)),
		Base64:     base64.StdEncoding.EncodeToString(data),
	}, nil
}

func mimeTypeForFile(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".heic":
		return "image/heic"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}
