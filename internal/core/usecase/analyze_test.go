package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spendlens/receiptflow/internal/core/domain"
)

func newAnalyzeFixture() (*fakeExpenseRepo, *fakeReceiptRepo, *fakeObjectStore, *fakeExtractor) {
	expenses := &fakeExpenseRepo{expense: testExpense()}
	receipts := newFakeReceiptRepo()
	store := newFakeObjectStore()
	extractor := &fakeExtractor{
		respond: func(payload domain.EncodedReceipt) (*domain.ReceiptAnalysis, error) {
			return goodAnalysis("Acme", 12.50), nil
		},
	}
	return expenses, receipts, store, extractor
}

func TestAnalyzeExpenseMixedOutcome(t *testing.T) {
	expenses, receipts, store, extractor := newAnalyzeFixture()
	prefix := testExpense().ReceiptPrefix()
	store.add(prefix, "a.jpg", []byte("jpeg-bytes"))
	store.add(prefix, "b.pdf", []byte("pdf-bytes"))

	extractor.respond = func(payload domain.EncodedReceipt) (*domain.ReceiptAnalysis, error) {
		if payload.FileName == "b.pdf" {
			return nil, domain.WrapError(domain.ErrMalformedExtraction, "extract b.pdf", errors.New("not json"))
		}
		return goodAnalysis("Acme", 12.50), nil
	}
	expenses.recomputeTotal = func() float64 { return 12.50 }

	uc := NewAnalyzeExpenseUseCase(expenses, receipts, store, extractor, nil, 4, time.Second)
	result, err := uc.AnalyzeExpense(context.Background(), "exp-1")
	if err != nil {
		t.Fatalf("AnalyzeExpense: %v", err)
	}

	if result.Succeeded != 1 || result.Failed != 1 {
		t.Fatalf("got %d succeeded %d failed, want 1/1", result.Succeeded, result.Failed)
	}
	if !result.Aggregated || result.TotalAmount != 12.50 {
		t.Fatalf("got aggregated=%v total=%v, want true/12.50", result.Aggregated, result.TotalAmount)
	}

	byName := map[string]domain.FileResult{}
	for _, f := range result.Files {
		byName[f.FileName] = f
	}
	if !byName["a.jpg"].OK() {
		t.Errorf("a.jpg failed: %s", byName["a.jpg"].Error)
	}
	if byName["b.pdf"].ErrorKind != "malformed_extraction" {
		t.Errorf("b.pdf kind = %q, want malformed_extraction", byName["b.pdf"].ErrorKind)
	}

	created := receipts.createdFiles()
	if len(created) != 1 || created[0] != "a.jpg" {
		t.Fatalf("created receipts = %v, want [a.jpg]", created)
	}
	if items := receipts.created[0].items; len(items) != 1 || items[0].Description != "Widget" {
		t.Fatalf("unexpected line items: %+v", receipts.created[0].items)
	}

	// Partial failure must not flip the expense to analyzed.
	if len(expenses.statusUpdates) != 0 {
		t.Errorf("status updates = %v, want none", expenses.statusUpdates)
	}
}

func TestAnalyzeExpenseEmptySelectionIsSuccess(t *testing.T) {
	expenses, receipts, store, extractor := newAnalyzeFixture()
	expenses.expense.TotalAmount = 42.00

	uc := NewAnalyzeExpenseUseCase(expenses, receipts, store, extractor, nil, 4, time.Second)
	result, err := uc.AnalyzeExpense(context.Background(), "exp-1")
	if err != nil {
		t.Fatalf("AnalyzeExpense: %v", err)
	}
	if len(result.Files) != 0 || !result.Aggregated {
		t.Fatalf("got %d files aggregated=%v, want 0/true", len(result.Files), result.Aggregated)
	}
	if result.TotalAmount != 42.00 {
		t.Errorf("total = %v, want current expense total 42.00", result.TotalAmount)
	}
	if expenses.recomputeCalls != 0 {
		t.Errorf("recompute called %d times on empty batch, want 0", expenses.recomputeCalls)
	}
}

func TestAnalyzeExpenseSelectionFailureIsFatal(t *testing.T) {
	expenses, receipts, store, extractor := newAnalyzeFixture()
	store.listErr = errors.New("bucket gone")

	uc := NewAnalyzeExpenseUseCase(expenses, receipts, store, extractor, nil, 4, time.Second)
	result, err := uc.AnalyzeExpense(context.Background(), "exp-1")
	if result != nil {
		t.Fatalf("got result %+v, want nil on fatal selection failure", result)
	}
	if !domain.IsKind(err, domain.ErrSelectionFailed) {
		t.Fatalf("error = %v, want selection_failed kind", err)
	}
	if expenses.recomputeCalls != 0 {
		t.Errorf("recompute called after fatal selection failure")
	}
}

func TestAnalyzeExpenseUnknownExpense(t *testing.T) {
	expenses, receipts, store, extractor := newAnalyzeFixture()
	expenses.getErr = domain.WrapError(domain.ErrExpenseNotFound, "get expense", errors.New("no rows"))

	uc := NewAnalyzeExpenseUseCase(expenses, receipts, store, extractor, nil, 4, time.Second)
	_, err := uc.AnalyzeExpense(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrSelectionFailed) || !domain.IsKind(err, domain.ErrExpenseNotFound) {
		t.Fatalf("error = %v, want selection_failed wrapping expense_not_found", err)
	}
}

func TestAnalyzeExpenseAggregationRunsOnceAfterAllUnits(t *testing.T) {
	expenses, receipts, store, extractor := newAnalyzeFixture()
	prefix := testExpense().ReceiptPrefix()
	for _, name := range []string{"a.jpg", "b.jpg", "c.jpg"} {
		store.add(prefix, name, []byte(name))
	}
	extractor.delay = 10 * time.Millisecond

	// Snapshot how many receipts had been persisted at recompute time.
	var persistedAtRecompute int
	expenses.recomputeTotal = func() float64 {
		persistedAtRecompute = len(receipts.createdFiles())
		return 37.50
	}

	uc := NewAnalyzeExpenseUseCase(expenses, receipts, store, extractor, nil, 2, time.Second)
	result, err := uc.AnalyzeExpense(context.Background(), "exp-1")
	if err != nil {
		t.Fatalf("AnalyzeExpense: %v", err)
	}
	if expenses.recomputeCalls != 1 {
		t.Fatalf("recompute called %d times, want exactly 1", expenses.recomputeCalls)
	}
	if persistedAtRecompute != 3 {
		t.Fatalf("recompute saw %d persisted receipts, want all 3", persistedAtRecompute)
	}
	if result.TotalAmount != 37.50 {
		t.Errorf("total = %v, want 37.50", result.TotalAmount)
	}
}

func TestAnalyzeExpenseRespectsConcurrencyCap(t *testing.T) {
	expenses, receipts, store, extractor := newAnalyzeFixture()
	prefix := testExpense().ReceiptPrefix()
	for _, name := range []string{"a.jpg", "b.jpg", "c.jpg", "d.jpg", "e.jpg", "f.jpg"} {
		store.add(prefix, name, []byte(name))
	}
	extractor.delay = 20 * time.Millisecond

	uc := NewAnalyzeExpenseUseCase(expenses, receipts, store, extractor, nil, 2, time.Second)
	if _, err := uc.AnalyzeExpense(context.Background(), "exp-1"); err != nil {
		t.Fatalf("AnalyzeExpense: %v", err)
	}
	if extractor.maxInFlight > 2 {
		t.Fatalf("observed %d concurrent extractions, cap is 2", extractor.maxInFlight)
	}
	if extractor.calls != 6 {
		t.Errorf("extractor called %d times, want 6", extractor.calls)
	}
}

func TestAnalyzeExpenseCanceledBeforeStart(t *testing.T) {
	expenses, receipts, store, extractor := newAnalyzeFixture()
	store.add(testExpense().ReceiptPrefix(), "a.jpg", []byte("jpeg"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	uc := NewAnalyzeExpenseUseCase(expenses, receipts, store, extractor, nil, 4, time.Second)
	result, err := uc.AnalyzeExpense(ctx, "exp-1")
	if result != nil || !errors.Is(err, context.Canceled) {
		t.Fatalf("got (%+v, %v), want (nil, context.Canceled)", result, err)
	}
	if store.listCalls != 0 {
		t.Errorf("store listed %d times before start, want no side effects", store.listCalls)
	}
	if expenses.recomputeCalls != 0 {
		t.Errorf("recompute ran on a batch that never started")
	}
}

func TestAnalyzeExpenseCancelMidBatchFinishesStartedUnit(t *testing.T) {
	expenses, receipts, store, extractor := newAnalyzeFixture()
	prefix := testExpense().ReceiptPrefix()
	for _, name := range []string{"a.jpg", "b.jpg", "c.jpg"} {
		store.add(prefix, name, []byte(name))
	}
	expenses.recomputeTotal = func() float64 { return 12.50 }

	ctx, cancel := context.WithCancel(context.Background())
	extractor.respond = func(payload domain.EncodedReceipt) (*domain.ReceiptAnalysis, error) {
		// The first unit is already running; cancel before the rest launch.
		cancel()
		time.Sleep(10 * time.Millisecond)
		return goodAnalysis("Acme", 12.50), nil
	}

	uc := NewAnalyzeExpenseUseCase(expenses, receipts, store, extractor, nil, 1, time.Second)
	result, err := uc.AnalyzeExpense(ctx, "exp-1")
	if err != nil {
		t.Fatalf("AnalyzeExpense: %v", err)
	}

	if result.Succeeded != 1 {
		t.Fatalf("succeeded = %d, want the already-started unit to finish", result.Succeeded)
	}
	for _, f := range result.Files[1:] {
		if f.ErrorKind != "canceled" {
			t.Errorf("%s kind = %q, want canceled", f.FileName, f.ErrorKind)
		}
	}
	if created := receipts.createdFiles(); len(created) != 1 {
		t.Errorf("created = %v, want exactly the started unit's receipt", created)
	}
	// Aggregation still reconciles whatever landed.
	if expenses.recomputeCalls != 1 {
		t.Errorf("recompute called %d times after cancellation, want 1", expenses.recomputeCalls)
	}
}

func TestAnalyzeExpenseStatusUpdatedOnlyOnFullSuccess(t *testing.T) {
	expenses, receipts, store, extractor := newAnalyzeFixture()
	store.add(testExpense().ReceiptPrefix(), "a.jpg", []byte("jpeg"))
	expenses.recomputeTotal = func() float64 { return 12.50 }

	uc := NewAnalyzeExpenseUseCase(expenses, receipts, store, extractor, nil, 4, time.Second)
	if _, err := uc.AnalyzeExpense(context.Background(), "exp-1"); err != nil {
		t.Fatalf("AnalyzeExpense: %v", err)
	}
	if len(expenses.statusUpdates) != 1 || expenses.statusUpdates[0] != domain.ExpenseStatusAnalyzed {
		t.Fatalf("status updates = %v, want [analyzed]", expenses.statusUpdates)
	}
}

func TestAnalyzeExpenseSkipsAlreadyAnalyzedFiles(t *testing.T) {
	expenses, receipts, store, extractor := newAnalyzeFixture()
	prefix := testExpense().ReceiptPrefix()
	store.add(prefix, "a.jpg", []byte("jpeg"))
	store.add(prefix, "b.pdf", []byte("pdf"))
	receipts.existing = []domain.ReceiptMetadata{
		{ExpenseID: "exp-1", FileName: "a.jpg", SourceSize: 4},
	}
	expenses.recomputeTotal = func() float64 { return 25.00 }

	uc := NewAnalyzeExpenseUseCase(expenses, receipts, store, extractor, nil, 4, time.Second)
	result, err := uc.AnalyzeExpense(context.Background(), "exp-1")
	if err != nil {
		t.Fatalf("AnalyzeExpense: %v", err)
	}
	if len(result.Files) != 1 || result.Files[0].FileName != "b.pdf" {
		t.Fatalf("processed %+v, want only b.pdf", result.Files)
	}
}

func TestAnalyzeExpenseAggregationFailure(t *testing.T) {
	expenses, receipts, store, extractor := newAnalyzeFixture()
	store.add(testExpense().ReceiptPrefix(), "a.jpg", []byte("jpeg"))
	expenses.recomputeErr = errors.New("connection reset")

	uc := NewAnalyzeExpenseUseCase(expenses, receipts, store, extractor, nil, 4, time.Second)
	result, err := uc.AnalyzeExpense(context.Background(), "exp-1")
	if !domain.IsKind(err, domain.ErrAggregationFailed) {
		t.Fatalf("error = %v, want aggregation_failed kind", err)
	}
	if result == nil {
		t.Fatal("want the per-file results even when aggregation fails")
	}
	if result.Aggregated || result.AggregationError == "" {
		t.Errorf("got aggregated=%v aggErr=%q, want false with message", result.Aggregated, result.AggregationError)
	}
	if result.Succeeded != 1 {
		t.Errorf("succeeded = %d, the persisted unit result must stand", result.Succeeded)
	}
}

func TestAnalyzeExpensePersistedItemsAreAIGenerated(t *testing.T) {
	expenses, receipts, store, extractor := newAnalyzeFixture()
	store.add(testExpense().ReceiptPrefix(), "a.jpg", []byte("jpeg"))

	receiptDate := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	extractor.respond = func(domain.EncodedReceipt) (*domain.ReceiptAnalysis, error) {
		a := goodAnalysis("Acme", 12.50)
		a.ReceiptDate = &receiptDate
		return a, nil
	}
	expenses.recomputeTotal = func() float64 { return 12.50 }

	uc := NewAnalyzeExpenseUseCase(expenses, receipts, store, extractor, nil, 4, time.Second)
	if _, err := uc.AnalyzeExpense(context.Background(), "exp-1"); err != nil {
		t.Fatalf("AnalyzeExpense: %v", err)
	}

	items := receipts.created[0].items
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	if !items[0].AIGenerated {
		t.Error("line item not flagged as AI generated")
	}
	if items[0].ItemDate == nil || !items[0].ItemDate.Equal(receiptDate) {
		t.Errorf("item date = %v, want inherited receipt date %v", items[0].ItemDate, receiptDate)
	}
	if items[0].ReceiptID != receipts.created[0].meta.ID {
		t.Error("line item not linked to its receipt metadata row")
	}
}
