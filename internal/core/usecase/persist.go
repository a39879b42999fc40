package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/spendlens/receiptflow/internal/core/domain"
	"github.com/spendlens/receiptflow/internal/core/ports"
)

// ReceiptPersister writes one receipt's extraction result and owns the
// expense total recomputation.
type ReceiptPersister struct {
	expenses ports.ExpenseRepository
	receipts ports.ReceiptRepository
}

func NewReceiptPersister(expenses ports.ExpenseRepository, receipts ports.ReceiptRepository) *ReceiptPersister {
	return &ReceiptPersister{expenses: expenses, receipts: receipts}
}

// PersistAnalysis stores the metadata row and its line items for one
// analyzed file. Every line item is flagged as AI generated and linked to
// the new metadata row; an item without its own date inherits the receipt
// date.
func (p *ReceiptPersister) PersistAnalysis(
	ctx context.Context,
	payload *domain.EncodedReceipt,
	analysis *domain.ReceiptAnalysis,
) (*domain.ReceiptMetadata, []domain.LineItem, error) {
	now := time.Now().UTC()

	meta := &domain.ReceiptMetadata{
		ID:            uuid.NewString(),
		ExpenseID:     payload.ExpenseID,
		FileName:      payload.FileName,
		SourceSize:    payload.SourceSize,
		VendorName:    analysis.VendorName,
		VendorAddress: analysis.VendorAddress,
		ReceiptDate:   analysis.ReceiptDate,
		ReceiptTotal:  analysis.ReceiptTotal,
		TaxAmount:     analysis.TaxAmount,
		Currency:      analysis.Currency,
		Confidence:    analysis.Confidence,
		RawResponse:   analysis.Raw,
		CreatedAt:     now,
	}

	items := make([]domain.LineItem, 0, len(analysis.LineItems))
	for _, li := range analysis.LineItems {
		itemDate := li.Date
		if itemDate == nil {
			itemDate = analysis.ReceiptDate
		}
		items = append(items, domain.LineItem{
			ID:          uuid.NewString(),
			ExpenseID:   payload.ExpenseID,
			ReceiptID:   meta.ID,
			Description: li.Description,
			Quantity:    li.Quantity,
			UnitPrice:   li.UnitPrice,
			TotalAmount: li.Total,
			Category:    li.Category,
			ItemDate:    itemDate,
			AIGenerated: true,
			CreatedAt:   now,
		})
	}

	if err := p.receipts.CreateWithLineItems(ctx, meta, items); err != nil {
		return nil, nil, err
	}
	return meta, items, nil
}

// RecomputeTotal reconciles the expense total against all persisted receipt
// rows. Safe to call any number of times.
func (p *ReceiptPersister) RecomputeTotal(ctx context.Context, expenseID string) (float64, error) {
	total, err := p.expenses.RecomputeTotal(ctx, expenseID)
	if err != nil {
		return 0, domain.WrapError(domain.ErrAggregationFailed, "recompute expense total", err)
	}
	return total, nil
}
