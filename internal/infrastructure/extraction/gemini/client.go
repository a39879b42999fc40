package gemini

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"github.com/spendlens/receiptflow/internal/core/domain"
	"github.com/spendlens/receiptflow/internal/core/ports"
)

const defaultModel = "gemini-2.0-flash"

// Client implements the extraction service against Google Gemini vision.
// It performs exactly one model call per Extract; retries, if any, belong to
// the orchestrator's policy.
type Client struct {
	client    *genai.Client
	model     *genai.GenerativeModel
	modelName string
	usage     ports.UsageLogger
	limiter   *rate.Limiter
}

// New creates a Gemini extraction client. requestsPerSecond <= 0 disables
// client-side rate limiting.
func New(ctx context.Context, apiKey, modelName string, requestsPerSecond float64, usage ports.UsageLogger) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = defaultModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	var limiter *rate.Limiter
	if requestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}

	return &Client{
		client:    client,
		model:     client.GenerativeModel(modelName),
		modelName: modelName,
		usage:     usage,
		limiter:   limiter,
	}, nil
}

func (c *Client) Extract(ctx context.Context, payload domain.EncodedReceipt) (*domain.ReceiptAnalysis, error) {
	start := time.Now()
	analysis, usage, err := c.extract(ctx, payload)
	c.logUsage(ctx, payload.ExpenseID, usage, err, time.Since(start))
	if err != nil {
		return nil, err
	}
	return analysis, nil
}

func (c *Client) extract(ctx context.Context, payload domain.EncodedReceipt) (*domain.ReceiptAnalysis, *genai.UsageMetadata, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, nil, fmt.Errorf("extraction rate limit wait: %w", err)
		}
	}

	data, err := base64.StdEncoding.DecodeString(payload.Base64)
	if err != nil {
		return nil, nil, domain.WrapError(domain.ErrInvalidInput, "decode receipt payload", err)
	}

	parts := []genai.Part{
		genai.Blob{MIMEType: payload.MimeType, Data: data},
		genai.Text(extractionPrompt),
	}
	resp, err := c.model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, nil, fmt.Errorf("gemini generate content: %w", err)
	}

	text := responseText(resp)
	if strings.TrimSpace(text) == "" {
		return nil, resp.UsageMetadata, domain.WrapError(
			domain.ErrNoResponseContent,
			"extract "+payload.FileName,
			errors.New("model returned no text"),
		)
	}

	analysis, err := DecodeAnalysis(text)
	if err != nil {
		return nil, resp.UsageMetadata, domain.WrapError(
			domain.ErrMalformedExtraction,
			"extract "+payload.FileName,
			err,
		)
	}
	return analysis, resp.UsageMetadata, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String()
}

// logUsage records the call in the usage log. Fire-and-forget: a failed
// write never affects the extraction outcome.
func (c *Client) logUsage(ctx context.Context, expenseID string, usage *genai.UsageMetadata, extractErr error, elapsed time.Duration) {
	if c.usage == nil {
		return
	}
	rec := domain.UsageRecord{
		ExpenseID:    expenseID,
		Model:        c.modelName,
		Operation:    "receipt_extraction",
		Success:      extractErr == nil,
		ProcessingMS: elapsed.Milliseconds(),
	}
	if extractErr != nil {
		rec.ErrorMessage = extractErr.Error()
	}
	if usage != nil {
		rec.PromptTokens = int(usage.PromptTokenCount)
		rec.CompletionTokens = int(usage.CandidatesTokenCount)
	}

	logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	go func() {
		defer cancel()
		if err := c.usage.Log(logCtx, rec); err != nil {
			slog.Warn("usage log write failed", "expense_id", expenseID, "error", err)
		}
	}()
}

func (c *Client) Close() error {
	return c.client.Close()
}
