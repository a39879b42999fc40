package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// OpenDB opens a pgx-backed database/sql pool and verifies connectivity.
func OpenDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS expenses (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'new',
		currency TEXT NOT NULL DEFAULT 'USD',
		total_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_expenses_owner ON expenses (owner_id)`,

	`CREATE TABLE IF NOT EXISTS receipt_metadata (
		id TEXT PRIMARY KEY,
		expense_id TEXT NOT NULL REFERENCES expenses (id) ON DELETE CASCADE,
		receipt_file_name TEXT NOT NULL,
		source_size BIGINT NOT NULL DEFAULT 0,
		vendor_name TEXT NOT NULL,
		vendor_address TEXT NOT NULL DEFAULT '',
		receipt_date DATE,
		receipt_total DOUBLE PRECISION NOT NULL,
		tax_amount DOUBLE PRECISION,
		currency TEXT NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		raw_response TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (expense_id, receipt_file_name)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_receipt_metadata_expense ON receipt_metadata (expense_id)`,

	`CREATE TABLE IF NOT EXISTS line_items (
		id TEXT PRIMARY KEY,
		expense_id TEXT NOT NULL REFERENCES expenses (id) ON DELETE CASCADE,
		receipt_id TEXT REFERENCES receipt_metadata (id) ON DELETE CASCADE,
		description TEXT NOT NULL,
		quantity DOUBLE PRECISION,
		unit_price DOUBLE PRECISION,
		total_amount DOUBLE PRECISION NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		item_date DATE,
		is_ai_generated BOOLEAN NOT NULL DEFAULT FALSE,
		deleted BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_line_items_expense ON line_items (expense_id)`,
	`CREATE INDEX IF NOT EXISTS idx_line_items_receipt ON line_items (receipt_id)`,

	`CREATE TABLE IF NOT EXISTS ai_usage_log (
		id TEXT PRIMARY KEY,
		expense_id TEXT NOT NULL,
		model TEXT NOT NULL,
		operation TEXT NOT NULL,
		prompt_tokens INTEGER NOT NULL DEFAULT 0,
		completion_tokens INTEGER NOT NULL DEFAULT 0,
		success BOOLEAN NOT NULL,
		error_message TEXT NOT NULL DEFAULT '',
		processing_ms BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ai_usage_log_expense ON ai_usage_log (expense_id)`,
}

// EnsureSchema creates the tables if missing. The advisory lock serializes
// concurrent instances starting against the same database.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(0x7ecf10e5)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	for _, stmt := range schemaStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
