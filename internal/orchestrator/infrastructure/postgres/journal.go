package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/order-payment-saga/internal/orchestrator/domain"
	"github.com/dmehra2102/order-payment-saga/pkg/tracing"
)

// Journal appends saga steps to saga_log and, for published states, queues
// the matching outbox event in the same transaction.
type Journal struct {
	log    *slog.Logger
	pool   *pgxpool.Pool
	source string
}

func NewJournal(log *slog.Logger, pool *pgxpool.Pool, source string) *Journal {
	return &Journal{log: log, pool: pool, source: source}
}

func (j *Journal) Record(ctx context.Context, ev domain.SagaEvent) error {
	if ev.Traceparent == "" {
		ev.Traceparent = tracing.Traceparent(ctx)
	}

	tx, err := j.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	_, err = tx.Exec(ctx, `INSERT INTO saga_log (order_id, state, payment_id, detail, error, traceparent, at)
		VALUES ($1,$2,NULLIF($3,''),NULLIF($4,''),NULLIF($5,''),$6,$7)`,
		ev.OrderID, ev.State, ev.PaymentID, ev.Detail, ev.Error, ev.Traceparent, ev.At)
	if err != nil {
		return fmt.Errorf("insert saga_log: %w", err)
	}

	if ev.State.Published() {
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal saga event: %w", err)
		}
		_, err = tx.Exec(ctx, `INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, headers, traceparent)
			VALUES ('order',$1,$2,$3,$4,$5)`,
			ev.OrderID, ev.EventType(), payload, map[string]string{"source": j.source}, ev.Traceparent)
		if err != nil {
			return fmt.Errorf("insert outbox: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ByOrder returns the steps of one order in recording order.
func (j *Journal) ByOrder(ctx context.Context, orderID string) ([]domain.SagaEvent, error) {
	rows, err := j.pool.Query(ctx, `SELECT order_id, state, COALESCE(payment_id,''), COALESCE(detail,''), COALESCE(error,''), COALESCE(traceparent,''), at
		FROM saga_log WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("select saga_log: %w", err)
	}
	defer rows.Close()

	var out []domain.SagaEvent
	for rows.Next() {
		var ev domain.SagaEvent
		if err := rows.Scan(&ev.OrderID, &ev.State, &ev.PaymentID, &ev.Detail, &ev.Error, &ev.Traceparent, &ev.At); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
