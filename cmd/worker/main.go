package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spendlens/receiptflow/internal/bootstrap"
	"github.com/spendlens/receiptflow/internal/config"
	"github.com/spendlens/receiptflow/internal/core/domain"
	"github.com/spendlens/receiptflow/internal/observability/logging"
)

func main() {
	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("worker exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.New("receiptflow-worker", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WorkerMetricsPort),
		Handler:           metricsMux(app),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("worker metrics listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	batchTimeout := time.Duration(cfg.BatchTimeoutSeconds) * time.Second

	slog.Info("worker consuming", "subject", cfg.NATSSubject)
	return app.Queue.SubscribeAnalyzeRequested(ctx, func(ctx context.Context, expenseID string) error {
		return handleAnalyze(ctx, app, expenseID, batchTimeout)
	})
}

func metricsMux(app *bootstrap.App) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", app.Metrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func handleAnalyze(ctx context.Context, app *bootstrap.App, expenseID string, batchTimeout time.Duration) error {
	batchCtx, cancel := context.WithTimeout(ctx, batchTimeout)
	defer cancel()

	finish := app.Metrics.StartBatch()
	result, err := app.Analyze.AnalyzeExpense(batchCtx, expenseID)

	switch {
	case err != nil && result == nil:
		finish("fatal", 0, 0)
		slog.Error("analyze batch failed",
			"expense_id", expenseID,
			"kind", domain.KindName(err),
			"error", err,
		)
		return err
	case err != nil:
		finish("partial", result.Succeeded, result.Failed)
	case result.Failed > 0:
		finish("partial", result.Succeeded, result.Failed)
	default:
		finish("ok", result.Succeeded, result.Failed)
	}

	slog.Info("analyze batch finished",
		"expense_id", expenseID,
		"files", len(result.Files),
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"total_amount", result.TotalAmount,
		"aggregated", result.Aggregated,
	)
	return err
}
