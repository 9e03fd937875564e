package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool using the provided DSN.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute
	return pgxpool.NewWithConfig(ctx, cfg)
}

// EnsureSchema creates the tables if needed. Keeping the migration in code
// keeps the stack self-contained so docker-compose can bootstrap everything.
//
// The unique index on ticket_number is load-bearing: it is what turns the
// read-then-insert race during ticket assignment into a retryable conflict
// instead of a duplicate number.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS nonconformities (
	id TEXT PRIMARY KEY,
	ticket_number TEXT,
	name TEXT NOT NULL,
	type TEXT NOT NULL,
	severity TEXT NOT NULL,
	status TEXT NOT NULL,
	location TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	date_reported TIMESTAMPTZ NOT NULL,
	assigned_manager_id TEXT,
	assigned_manager_name TEXT,
	assigned_manager_email TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_nonconformities_ticket ON nonconformities(ticket_number);
CREATE INDEX IF NOT EXISTS idx_nonconformities_created ON nonconformities(created_at DESC);

CREATE TABLE IF NOT EXISTS corrective_actions (
	id TEXT PRIMARY KEY,
	nonconformity_id TEXT NOT NULL REFERENCES nonconformities(id),
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	due_date TIMESTAMPTZ,
	priority TEXT NOT NULL,
	status TEXT NOT NULL,
	notes TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_corrective_actions_nc ON corrective_actions(nonconformity_id);

CREATE TABLE IF NOT EXISTS evidence (
	id TEXT PRIMARY KEY,
	nonconformity_id TEXT NOT NULL REFERENCES nonconformities(id),
	name TEXT NOT NULL,
	file_type TEXT NOT NULL,
	object_key TEXT NOT NULL,
	text_key TEXT,
	extracted_text TEXT,
	notes TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_evidence_nc ON evidence(nonconformity_id);`
	if _, err := pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
