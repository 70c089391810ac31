package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("pg connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg ping: %w", err)
	}
	return pool, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS orders (
		id           TEXT PRIMARY KEY,
		user_id      TEXT NOT NULL,
		product_id   TEXT NOT NULL,
		quantity     INTEGER NOT NULL,
		amount_cents BIGINT NOT NULL,
		status       TEXT NOT NULL,
		version      BIGINT NOT NULL DEFAULT 1,
		created_at   TIMESTAMPTZ NOT NULL,
		updated_at   TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS payments (
		id                  TEXT PRIMARY KEY,
		order_id            TEXT NOT NULL REFERENCES orders (id),
		user_id             TEXT NOT NULL,
		amount_cents        BIGINT NOT NULL,
		status              TEXT NOT NULL,
		external_payment_id TEXT,
		idempotency_key     TEXT NOT NULL UNIQUE,
		created_at          TIMESTAMPTZ NOT NULL,
		updated_at          TIMESTAMPTZ NOT NULL,
		seq                 BIGSERIAL NOT NULL UNIQUE
	)`,

	`CREATE INDEX IF NOT EXISTS payments_order_status_seq_idx
		ON payments (order_id, status, seq DESC)`,

	`CREATE TABLE IF NOT EXISTS saga_log (
		id          BIGSERIAL PRIMARY KEY,
		order_id    TEXT NOT NULL,
		state       TEXT NOT NULL,
		payment_id  TEXT,
		detail      TEXT,
		error       TEXT,
		traceparent TEXT,
		at          TIMESTAMPTZ NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS saga_log_order_idx ON saga_log (order_id, id)`,

	`CREATE TABLE IF NOT EXISTS outbox (
		id             BIGSERIAL PRIMARY KEY,
		aggregate_type TEXT NOT NULL,
		aggregate_id   TEXT NOT NULL,
		type           TEXT NOT NULL,
		payload        JSONB NOT NULL,
		headers        JSONB NOT NULL DEFAULT '{}',
		traceparent    TEXT NOT NULL DEFAULT '',
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		status         TEXT NOT NULL DEFAULT 'pending',
		relay_id       TEXT,
		lease_until    TIMESTAMPTZ,
		retry_count    INTEGER NOT NULL DEFAULT 0,
		last_error     TEXT
	)`,

	`CREATE INDEX IF NOT EXISTS outbox_status_idx ON outbox (status, id)`,
}

// Migrate creates the schema. Every statement is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
