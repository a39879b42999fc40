package http

import (
	"encoding/json"
	"net/http"

	"github.com/spendlens/receiptflow/internal/core/domain"
	"github.com/spendlens/receiptflow/internal/core/ports"
)

// 10 MiB covers any realistic receipt scan.
const maxUploadBytes = 10 << 20

type Dependencies struct {
	Uploader ports.ReceiptUploader
	Queue    ports.AnalyzeQueue
	Expenses ports.ExpenseRepository
	Receipts ports.ReceiptRepository
}

func NewRouter(deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /v1/expenses/{id}", handleGetExpense(deps))
	mux.HandleFunc("POST /v1/expenses/{id}/receipts", handleUploadReceipt(deps))
	mux.HandleFunc("POST /v1/expenses/{id}/analyze", handleTriggerAnalyze(deps))

	return withMiddleware(mux)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type expenseResponse struct {
	Expense  *domain.Expense          `json:"expense"`
	Receipts []domain.ReceiptMetadata `json:"receipts"`
}

func handleGetExpense(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		expense, err := deps.Expenses.GetByID(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		receipts, err := deps.Receipts.ListByExpense(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if receipts == nil {
			receipts = []domain.ReceiptMetadata{}
		}
		writeJSON(w, http.StatusOK, expenseResponse{Expense: expense, Receipts: receipts})
	}
}

type uploadResponse struct {
	Key  string `json:"key"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

func handleUploadReceipt(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "parse multipart form", err))
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "read form file", err))
			return
		}
		defer file.Close()

		stored, err := deps.Uploader.Upload(r.Context(), id, header.Filename, header.Header.Get("Content-Type"), file)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, uploadResponse{
			Key:  stored.Key,
			Name: stored.Name,
			Size: stored.Size,
		})
	}
}

func handleTriggerAnalyze(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		// Reject unknown expenses up front so a queued request always refers
		// to something the worker can load.
		if _, err := deps.Expenses.GetByID(r.Context(), id); err != nil {
			writeError(w, r, err)
			return
		}
		if err := deps.Queue.PublishAnalyzeRequested(r.Context(), id); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
