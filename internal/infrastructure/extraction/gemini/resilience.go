package gemini

import (
	"context"
	"errors"
	"net"

	"google.golang.org/api/googleapi"

	"github.com/spendlens/receiptflow/internal/core/domain"
	"github.com/spendlens/receiptflow/internal/infrastructure/resilience"
)

// ClassifyExtractionError decides how the retry/breaker policy treats a
// failed extraction. Malformed model output is deterministic enough that a
// blind retry wastes tokens, but it still counts against the breaker.
func ClassifyExtractionError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	if domain.IsKind(err, domain.ErrMalformedExtraction) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
	}
	if domain.IsKind(err, domain.ErrNoResponseContent) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		retryable := apiErr.Code == 429 || apiErr.Code >= 500
		return resilience.ErrorClassification{Retryable: retryable, RecordFailure: true}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}

	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}
