package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/spendlens/receiptflow/internal/core/domain"
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorResponse{
		Error: publicMessage(err, status),
		Kind:  domain.KindName(err),
	})
}

func statusForError(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrExpenseNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrTemporary),
		domain.IsKind(err, domain.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled):
		// Client went away; the status is a formality.
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func publicMessage(err error, status int) string {
	if status >= http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}
