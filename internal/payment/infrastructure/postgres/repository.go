package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/order-payment-saga/internal/payment/domain"
)

const paymentColumns = `id, order_id, user_id, amount_cents, status, external_payment_id, idempotency_key, created_at, updated_at`

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) Create(ctx context.Context, p *domain.Payment) error {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		id, p.OrderID, p.UserID, p.AmountCents, p.Status, p.ExternalPaymentID, p.IdempotencyKey, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	p.ID = id
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (domain.Payment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id=$1`, id)
	return scanPayment(row)
}

// Update commits on its own connection, outside any caller transaction.
func (r *Repository) Update(ctx context.Context, p *domain.Payment) error {
	ct, err := r.pool.Exec(ctx, `UPDATE payments SET status=$2, external_payment_id=$3, updated_at=$4 WHERE id=$1`,
		p.ID, p.Status, p.ExternalPaymentID, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrPaymentNotFound
	}
	return nil
}

// LatestByOrder is served by payments_order_status_seq_idx; seq breaks
// created_at ties in insertion order.
func (r *Repository) LatestByOrder(ctx context.Context, orderID string, status domain.Status) (domain.Payment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments
		WHERE order_id=$1 AND status=$2
		ORDER BY seq DESC
		LIMIT 1`, orderID, status)
	return scanPayment(row)
}

func scanPayment(row pgx.Row) (domain.Payment, error) {
	var p domain.Payment
	err := row.Scan(&p.ID, &p.OrderID, &p.UserID, &p.AmountCents, &p.Status, &p.ExternalPaymentID, &p.IdempotencyKey, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	if err != nil {
		return domain.Payment{}, fmt.Errorf("scan payment: %w", err)
	}
	return p, nil
}
