package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/spendlens/receiptflow/internal/core/domain"
	"github.com/spendlens/receiptflow/internal/core/ports"
)

const (
	defaultMaxInFlight    = 4
	defaultExtractTimeout = 60 * time.Second
)

// AnalyzeExpenseUseCase orchestrates one batch run:
// select -> concurrent per-file {fetch, extract, persist} -> aggregate.
// Per-file failures stay local to their file; only selection and aggregation
// failures are fatal to the run.
type AnalyzeExpenseUseCase struct {
	expenses  ports.ExpenseRepository
	selector  *ReceiptSelector
	fetcher   *ReceiptFetcher
	extractor ports.ExtractionService
	persister *ReceiptPersister
	retry     ports.RetryPolicy

	maxInFlight    int64
	extractTimeout time.Duration
	locks          *expenseLocks
}

func NewAnalyzeExpenseUseCase(
	expenses ports.ExpenseRepository,
	receipts ports.ReceiptRepository,
	store ports.ObjectStore,
	extractor ports.ExtractionService,
	retry ports.RetryPolicy,
	maxInFlight int,
	extractTimeout time.Duration,
) *AnalyzeExpenseUseCase {
	if maxInFlight <= 0 {
		maxInFlight = defaultMaxInFlight
	}
	if extractTimeout <= 0 {
		extractTimeout = defaultExtractTimeout
	}
	return &AnalyzeExpenseUseCase{
		expenses:       expenses,
		selector:       NewReceiptSelector(store, receipts),
		fetcher:        NewReceiptFetcher(store),
		extractor:      extractor,
		persister:      NewReceiptPersister(expenses, receipts),
		retry:          retry,
		maxInFlight:    int64(maxInFlight),
		extractTimeout: extractTimeout,
		locks:          newExpenseLocks(),
	}
}

func (uc *AnalyzeExpenseUseCase) AnalyzeExpense(ctx context.Context, expenseID string) (*domain.BatchResult, error) {
	// Canceled before selection: no side effects at all.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	unlock := uc.locks.lock(expenseID)
	defer unlock()

	expense, err := uc.expenses.GetByID(ctx, expenseID)
	if err != nil {
		return nil, domain.WrapError(domain.ErrSelectionFailed, "load expense", err)
	}

	files, err := uc.selector.SelectUnprocessed(ctx, expense)
	if err != nil {
		return nil, domain.WrapError(domain.ErrSelectionFailed, "select receipts", err)
	}

	result := &domain.BatchResult{ExpenseID: expenseID}
	if len(files) == 0 {
		result.Files = []domain.FileResult{}
		result.TotalAmount = expense.TotalAmount
		result.Aggregated = true
		slog.Info("no receipts to analyze", "expense_id", expenseID)
		return result, nil
	}

	results := make([]domain.FileResult, len(files))
	sem := semaphore.NewWeighted(uc.maxInFlight)
	var wg sync.WaitGroup
	for i, file := range files {
		// Stop launching once the batch is canceled; already-started units
		// keep running and their writes stand.
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = domain.FileResult{
				FileName:  file.Name,
				Error:     "not started: batch canceled",
				ErrorKind: domain.KindName(context.Canceled),
			}
			continue
		}
		wg.Add(1)
		go func(i int, file domain.StoredObject) {
			defer wg.Done()
			defer sem.Release(1)
			results[i] = uc.processFile(context.WithoutCancel(ctx), expense, file)
		}(i, file)
	}
	wg.Wait()

	result.Files = results
	for _, r := range results {
		if r.OK() {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}

	// Aggregation runs exactly once per batch, after every unit has settled,
	// and must land even when the caller has given up.
	aggCtx := context.WithoutCancel(ctx)
	total, err := uc.persister.RecomputeTotal(aggCtx, expenseID)
	if err != nil {
		result.AggregationError = err.Error()
		slog.Error("expense total reconciliation failed", "expense_id", expenseID, "error", err)
		return result, err
	}
	result.TotalAmount = total
	result.Aggregated = true

	if result.Failed == 0 {
		if err := uc.expenses.UpdateStatus(aggCtx, expenseID, domain.ExpenseStatusAnalyzed); err != nil {
			slog.Warn("expense status update failed", "expense_id", expenseID, "error", err)
		}
	}

	slog.Info("batch complete",
		"expense_id", expenseID,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"total_amount", result.TotalAmount,
	)
	return result, nil
}

// processFile runs fetch -> extract -> persist for a single receipt file.
func (uc *AnalyzeExpenseUseCase) processFile(ctx context.Context, expense *domain.Expense, file domain.StoredObject) domain.FileResult {
	result := domain.FileResult{FileName: file.Name}

	payload, err := uc.fetcher.FetchAndEncode(ctx, expense, file)
	if err != nil {
		return uc.failFile(result, expense.ID, err)
	}

	analysis, err := uc.extract(ctx, payload)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !domain.IsKind(err, domain.ErrExtractionTimeout) {
			err = domain.WrapError(domain.ErrExtractionTimeout, "extract "+file.Name, err)
		}
		return uc.failFile(result, expense.ID, err)
	}

	meta, items, err := uc.persister.PersistAnalysis(ctx, payload, analysis)
	if err != nil {
		return uc.failFile(result, expense.ID, err)
	}

	result.ReceiptID = meta.ID
	result.LineItemIDs = make([]string, 0, len(items))
	for _, item := range items {
		result.LineItemIDs = append(result.LineItemIDs, item.ID)
	}

	slog.Info("receipt analyzed",
		"expense_id", expense.ID,
		"file", file.Name,
		"vendor", meta.VendorName,
		"receipt_total", meta.ReceiptTotal,
		"line_items", len(items),
	)
	return result
}

// extract calls the extraction service under the per-call timeout, routed
// through the retry policy when one is configured. The extraction client
// itself never retries.
func (uc *AnalyzeExpenseUseCase) extract(ctx context.Context, payload *domain.EncodedReceipt) (*domain.ReceiptAnalysis, error) {
	call := func(callCtx context.Context) (*domain.ReceiptAnalysis, error) {
		timeoutCtx, cancel := context.WithTimeout(callCtx, uc.extractTimeout)
		defer cancel()
		return uc.extractor.Extract(timeoutCtx, *payload)
	}

	if uc.retry == nil {
		return call(ctx)
	}

	var analysis *domain.ReceiptAnalysis
	err := uc.retry.Execute(ctx, "extraction.extract", func(execCtx context.Context) error {
		var callErr error
		analysis, callErr = call(execCtx)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return analysis, nil
}

func (uc *AnalyzeExpenseUseCase) failFile(result domain.FileResult, expenseID string, err error) domain.FileResult {
	result.Error = err.Error()
	result.ErrorKind = domain.KindName(err)
	slog.Error("receipt processing failed",
		"expense_id", expenseID,
		"file", result.FileName,
		"kind", result.ErrorKind,
		"error", err,
	)
	return result
}
