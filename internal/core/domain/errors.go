package domain

import (
	"context"
	"errors"
	"fmt"
)

// Fatal to a whole run.
var (
	ErrSelectionFailed   = errors.New("selection failed")
	ErrAggregationFailed = errors.New("aggregation failed")
)

// Local to one file; never aborts sibling files.
var (
	ErrReceiptFetch        = errors.New("receipt fetch failed")
	ErrNoResponseContent   = errors.New("no response content")
	ErrMalformedExtraction = errors.New("malformed extraction")
	ErrExtractionTimeout   = errors.New("extraction timeout")
	ErrMetadataWrite       = errors.New("metadata write failed")
	ErrLineItemWrite       = errors.New("line item write failed")
)

var (
	ErrExpenseNotFound    = errors.New("expense not found")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrInvalidInput       = errors.New("invalid input")
	ErrTemporary          = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// KindName maps an error to the short kind label used in batch reporting.
func KindName(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSelectionFailed):
		return "selection_failed"
	case errors.Is(err, ErrAggregationFailed):
		return "aggregation_failed"
	case errors.Is(err, ErrReceiptFetch):
		return "receipt_fetch_failed"
	case errors.Is(err, ErrNoResponseContent):
		return "no_response_content"
	case errors.Is(err, ErrMalformedExtraction):
		return "malformed_extraction"
	case errors.Is(err, ErrExtractionTimeout):
		return "extraction_timeout"
	case errors.Is(err, ErrMetadataWrite):
		return "metadata_write_failed"
	case errors.Is(err, ErrLineItemWrite):
		return "line_item_write_failed"
	case errors.Is(err, ErrExpenseNotFound):
		return "expense_not_found"
	case errors.Is(err, ErrStorageUnavailable):
		return "storage_unavailable"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "internal"
	}
}
