package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/spendlens/receiptflow/internal/config"
	"github.com/spendlens/receiptflow/internal/core/usecase"
	"github.com/spendlens/receiptflow/internal/infrastructure/extraction/gemini"
	natsqueue "github.com/spendlens/receiptflow/internal/infrastructure/queue/nats"
	"github.com/spendlens/receiptflow/internal/infrastructure/repository/postgres"
	"github.com/spendlens/receiptflow/internal/infrastructure/resilience"
	"github.com/spendlens/receiptflow/internal/infrastructure/storage/s3"
	"github.com/spendlens/receiptflow/internal/observability/metrics"
)

// App holds every wired dependency. Both binaries build one and use the
// parts they need.
type App struct {
	Config *config.Config

	DB       *sql.DB
	Expenses *postgres.ExpenseRepository
	Receipts *postgres.ReceiptRepository
	Usage    *postgres.UsageRepository

	Store     *s3.Storage
	Queue     *natsqueue.Queue
	Extractor *gemini.Client
	Metrics   *metrics.PipelineMetrics

	Analyze *usecase.AnalyzeExpenseUseCase
	Upload  *usecase.UploadReceiptUseCase

	closers []func()
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{Config: cfg, Metrics: metrics.NewPipelineMetrics()}

	db, err := postgres.OpenDB(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	app.onClose(func() { _ = db.Close() })
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		app.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	app.DB = db
	app.Expenses = postgres.NewExpenseRepository(db)
	app.Receipts = postgres.NewReceiptRepository(db)
	app.Usage = postgres.NewUsageRepository(db)

	store, err := s3.New(s3.Config{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		Region:    cfg.MinioRegion,
		UseSSL:    cfg.MinioUseSSL,
	})
	if err != nil {
		app.Close()
		return nil, err
	}
	if err := store.EnsureBucket(ctx); err != nil {
		app.Close()
		return nil, err
	}
	app.Store = store

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	queue, err := natsqueue.New(natsqueue.Options{
		URL:      cfg.NATSURL,
		Subject:  cfg.NATSSubject,
		Executor: executor,
		OnPickup: app.Metrics.ObserveQueueLag,
	})
	if err != nil {
		app.Close()
		return nil, err
	}
	app.onClose(queue.Close)
	app.Queue = queue

	extractor, err := gemini.New(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.ExtractionRPS, app.Usage)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.onClose(func() { _ = extractor.Close() })
	app.Extractor = extractor

	retryPolicy := resilience.NewPolicy(executor, gemini.ClassifyExtractionError)

	app.Analyze = usecase.NewAnalyzeExpenseUseCase(
		app.Expenses,
		app.Receipts,
		app.Store,
		app.Extractor,
		retryPolicy,
		cfg.MaxInFlight,
		time.Duration(cfg.ExtractTimeoutSeconds)*time.Second,
	)
	app.Upload = usecase.NewUploadReceiptUseCase(app.Expenses, app.Store, app.Queue)

	return app, nil
}

func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse wiring order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	slog.Info("application closed")
}
