package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/spendlens/receiptflow/internal/infrastructure/resilience"
)

const defaultSubject = "expenses.analyze"

// analyzeRequest is the wire payload for one analyze trigger.
type analyzeRequest struct {
	ExpenseID   string    `json:"expense_id"`
	RequestedAt time.Time `json:"requested_at"`
}

type Options struct {
	URL     string
	Subject string
	// Executor, when set, wraps publishes with retry and a circuit breaker.
	Executor *resilience.Executor
	// OnPickup, when set, observes the delay between publication and worker
	// pickup of each request.
	OnPickup func(lag time.Duration)
}

// Queue transports analyze requests between the API and the worker over a
// plain NATS subject with a queue group, so multiple workers share the load.
type Queue struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
	onPickup func(lag time.Duration)
}

func New(opts Options) (*Queue, error) {
	if opts.URL == "" {
		opts.URL = nats.DefaultURL
	}
	if opts.Subject == "" {
		opts.Subject = defaultSubject
	}

	conn, err := nats.Connect(opts.URL,
		nats.Name("receiptflow"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", opts.URL, err)
	}

	return &Queue{conn: conn, subject: opts.Subject, executor: opts.Executor, onPickup: opts.OnPickup}, nil
}

func (q *Queue) PublishAnalyzeRequested(ctx context.Context, expenseID string) error {
	payload, err := json.Marshal(analyzeRequest{
		ExpenseID:   expenseID,
		RequestedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal analyze request: %w", err)
	}

	publish := func(context.Context) error {
		if err := q.conn.Publish(q.subject, payload); err != nil {
			return wrapTemporaryIfNeeded("publish analyze request", err)
		}
		return nil
	}

	if q.executor != nil {
		return q.executor.Execute(ctx, "nats.publish", publish, classifyNATSError)
	}
	return publish(ctx)
}

// SubscribeAnalyzeRequested consumes analyze requests until the context ends.
// Handler failures are logged and the message is dropped; the selector makes
// a later retrigger converge regardless.
func (q *Queue) SubscribeAnalyzeRequested(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, "receiptflow-workers", func(msg *nats.Msg) {
		var req analyzeRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			slog.Error("malformed analyze request dropped", "subject", q.subject, "error", err)
			return
		}
		if req.ExpenseID == "" {
			slog.Error("analyze request without expense id dropped", "subject", q.subject)
			return
		}
		if q.onPickup != nil && !req.RequestedAt.IsZero() {
			q.onPickup(time.Since(req.RequestedAt))
		}
		if err := handler(ctx, req.ExpenseID); err != nil {
			slog.Error("analyze request handling failed", "expense_id", req.ExpenseID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", q.subject, err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		slog.Warn("nats drain failed", "subject", q.subject, "error", err)
	}
	return ctx.Err()
}

func (q *Queue) Close() {
	if err := q.conn.Drain(); err != nil {
		q.conn.Close()
	}
}
