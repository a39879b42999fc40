package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/spendlens/receiptflow/internal/core/domain"
)

type fakeObjectStore struct {
	mu        sync.Mutex
	objects   []domain.StoredObject
	contents  map[string][]byte
	listErr   error
	downErr   map[string]error
	uploadErr error
	uploads   []string
	listCalls int
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{
		contents: make(map[string][]byte),
		downErr:  make(map[string]error),
	}
}

func (f *fakeObjectStore) add(prefix, name string, data []byte) {
	key := prefix + name
	f.objects = append(f.objects, domain.StoredObject{
		Key:       key,
		Name:      name,
		Size:      int64(len(data)),
		CreatedAt: time.Now(),
	})
	f.contents[key] = data
}

func (f *fakeObjectStore) List(_ context.Context, _ string) ([]domain.StoredObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.StoredObject, len(f.objects))
	copy(out, f.objects)
	return out, nil
}

func (f *fakeObjectStore) Download(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for name, err := range f.downErr {
		if key == name {
			return nil, err
		}
	}
	return f.contents[key], nil
}

func (f *fakeObjectStore) Upload(_ context.Context, key string, data []byte, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.contents[key] = data
	f.uploads = append(f.uploads, key)
	return key, nil
}

type fakeExpenseRepo struct {
	mu             sync.Mutex
	expense        *domain.Expense
	getErr         error
	statusUpdates  []domain.ExpenseStatus
	recomputeErr   error
	recomputeTotal func() float64
	recomputeCalls int
}

func (f *fakeExpenseRepo) GetByID(_ context.Context, _ string) (*domain.Expense, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	e := *f.expense
	return &e, nil
}

func (f *fakeExpenseRepo) UpdateStatus(_ context.Context, _ string, status domain.ExpenseStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusUpdates = append(f.statusUpdates, status)
	return nil
}

func (f *fakeExpenseRepo) RecomputeTotal(_ context.Context, _ string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recomputeCalls++
	if f.recomputeErr != nil {
		return 0, f.recomputeErr
	}
	if f.recomputeTotal != nil {
		return f.recomputeTotal(), nil
	}
	return 0, nil
}

type createdReceipt struct {
	meta  *domain.ReceiptMetadata
	items []domain.LineItem
}

type fakeReceiptRepo struct {
	mu        sync.Mutex
	existing  []domain.ReceiptMetadata
	listErr   error
	createErr map[string]error
	created   []createdReceipt
}

func newFakeReceiptRepo() *fakeReceiptRepo {
	return &fakeReceiptRepo{createErr: make(map[string]error)}
}

func (f *fakeReceiptRepo) ListByExpense(_ context.Context, _ string) ([]domain.ReceiptMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.ReceiptMetadata, len(f.existing))
	copy(out, f.existing)
	return out, nil
}

func (f *fakeReceiptRepo) CreateWithLineItems(_ context.Context, meta *domain.ReceiptMetadata, items []domain.LineItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.createErr[meta.FileName]; ok {
		return err
	}
	f.created = append(f.created, createdReceipt{meta: meta, items: items})
	return nil
}

func (f *fakeReceiptRepo) createdFiles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.created))
	for _, c := range f.created {
		out = append(out, c.meta.FileName)
	}
	return out
}

// fakeExtractor runs a per-file response function and tracks how many calls
// overlap, for concurrency-cap assertions.
type fakeExtractor struct {
	mu          sync.Mutex
	respond     func(payload domain.EncodedReceipt) (*domain.ReceiptAnalysis, error)
	delay       time.Duration
	inFlight    int
	maxInFlight int
	calls       int
}

func (f *fakeExtractor) Extract(ctx context.Context, payload domain.EncodedReceipt) (*domain.ReceiptAnalysis, error) {
	f.mu.Lock()
	f.calls++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			f.mu.Lock()
			f.inFlight--
			f.mu.Unlock()
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
	return f.respond(payload)
}

type fakeQueue struct {
	mu         sync.Mutex
	published  []string
	publishErr error
}

func (f *fakeQueue) PublishAnalyzeRequested(_ context.Context, expenseID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, expenseID)
	return nil
}

func (f *fakeQueue) SubscribeAnalyzeRequested(ctx context.Context, _ func(context.Context, string) error) error {
	<-ctx.Done()
	return ctx.Err()
}

func goodAnalysis(vendor string, total float64) *domain.ReceiptAnalysis {
	return &domain.ReceiptAnalysis{
		VendorName:   vendor,
		ReceiptTotal: total,
		Currency:     "USD",
		Confidence:   0.95,
		LineItems: []domain.AnalysisLineItem{
			{Description: "Widget", Total: total},
		},
	}
}

func testExpense() *domain.Expense {
	return &domain.Expense{
		ID:       "exp-1",
		OwnerID:  "user-1",
		Status:   domain.ExpenseStatusPending,
		Currency: "USD",
	}
}
