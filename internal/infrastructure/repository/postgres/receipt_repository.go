package postgres

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/spendlens/receiptflow/internal/core/domain"
)

type ReceiptRepository struct {
	db *sql.DB
}

func NewReceiptRepository(db *sql.DB) *ReceiptRepository {
	return &ReceiptRepository{db: db}
}

// ListByExpense returns every persisted metadata row for the expense.
// raw_response is excluded; it is audit data, not working state.
func (r *ReceiptRepository) ListByExpense(ctx context.Context, expenseID string) ([]domain.ReceiptMetadata, error) {
	const query = `
		SELECT id, expense_id, receipt_file_name, source_size, vendor_name,
		       vendor_address, receipt_date, receipt_total, tax_amount,
		       currency, confidence, created_at
		FROM receipt_metadata
		WHERE expense_id = $1
		ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query, expenseID)
	if err != nil {
		return nil, domain.WrapError(domain.ErrStorageUnavailable, "list receipts for "+expenseID, err)
	}
	defer rows.Close()

	var out []domain.ReceiptMetadata
	for rows.Next() {
		var (
			m           domain.ReceiptMetadata
			receiptDate sql.NullTime
			taxAmount   sql.NullFloat64
		)
		err := rows.Scan(
			&m.ID, &m.ExpenseID, &m.FileName, &m.SourceSize, &m.VendorName,
			&m.VendorAddress, &receiptDate, &m.ReceiptTotal, &taxAmount,
			&m.Currency, &m.Confidence, &m.CreatedAt,
		)
		if err != nil {
			return nil, domain.WrapError(domain.ErrStorageUnavailable, "scan receipt row", err)
		}
		if receiptDate.Valid {
			d := receiptDate.Time
			m.ReceiptDate = &d
		}
		if taxAmount.Valid {
			t := taxAmount.Float64
			m.TaxAmount = &t
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrStorageUnavailable, "list receipts for "+expenseID, err)
	}
	return out, nil
}

// CreateWithLineItems writes the metadata row and its line items in one
// transaction: a receipt either lands with all its items or not at all.
func (r *ReceiptRepository) CreateWithLineItems(ctx context.Context, meta *domain.ReceiptMetadata, items []domain.LineItem) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.WrapError(domain.ErrMetadataWrite, "begin receipt tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	const insertMeta = `
		INSERT INTO receipt_metadata (
			id, expense_id, receipt_file_name, source_size, vendor_name,
			vendor_address, receipt_date, receipt_total, tax_amount,
			currency, confidence, raw_response, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}
	_, err = tx.ExecContext(ctx, insertMeta,
		meta.ID, meta.ExpenseID, meta.FileName, meta.SourceSize, meta.VendorName,
		meta.VendorAddress, nullableTime(meta.ReceiptDate), meta.ReceiptTotal,
		nullableFloat(meta.TaxAmount), meta.Currency, meta.Confidence,
		meta.RawResponse, meta.CreatedAt,
	)
	if err != nil {
		return domain.WrapError(domain.ErrMetadataWrite, "insert receipt metadata "+meta.FileName, err)
	}

	if len(items) > 0 {
		query, args := buildLineItemInsert(items, meta.CreatedAt)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return domain.WrapError(domain.ErrLineItemWrite, "insert line items for "+meta.FileName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.WrapError(domain.ErrMetadataWrite, "commit receipt tx", err)
	}
	return nil
}

func buildLineItemInsert(items []domain.LineItem, createdAt time.Time) (string, []any) {
	var b strings.Builder
	b.WriteString(`INSERT INTO line_items (
		id, expense_id, receipt_id, description, quantity, unit_price,
		total_amount, category, item_date, is_ai_generated, created_at
	) VALUES `)

	args := make([]any, 0, len(items)*11)
	for i, item := range items {
		if i > 0 {
			b.WriteString(", ")
		}
		base := i * 11
		b.WriteString("(")
		for j := 1; j <= 11; j++ {
			if j > 1 {
				b.WriteString(", ")
			}
			b.WriteString("$")
			b.WriteString(strconv.Itoa(base + j))
		}
		b.WriteString(")")

		ts := item.CreatedAt
		if ts.IsZero() {
			ts = createdAt
		}
		args = append(args,
			item.ID, item.ExpenseID, item.ReceiptID, item.Description,
			nullableFloat(item.Quantity), nullableFloat(item.UnitPrice),
			item.TotalAmount, item.Category, nullableTime(item.ItemDate),
			item.AIGenerated, ts,
		)
	}
	return b.String(), args
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullableFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
