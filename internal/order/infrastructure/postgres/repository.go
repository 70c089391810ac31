package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/order-payment-saga/internal/order/domain"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) Create(ctx context.Context, o *domain.Order) error {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `INSERT INTO orders (id, user_id, product_id, quantity, amount_cents, status, version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,1,$7,$8)`,
		id, o.UserID, o.ProductID, o.Quantity, o.AmountCents, o.Status, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	o.ID = id
	o.Version = 1
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (domain.Order, error) {
	var o domain.Order
	err := r.pool.QueryRow(ctx, `SELECT id, user_id, product_id, quantity, amount_cents, status, version, created_at, updated_at
		FROM orders WHERE id=$1`, id).
		Scan(&o.ID, &o.UserID, &o.ProductID, &o.Quantity, &o.AmountCents, &o.Status, &o.Version, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}
	return o, nil
}

func (r *Repository) Update(ctx context.Context, o *domain.Order) error {
	ct, err := r.pool.Exec(ctx, `UPDATE orders SET status=$2, updated_at=$3, version=version+1
		WHERE id=$1 AND version=$4`,
		o.ID, o.Status, o.UpdatedAt, o.Version)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if ct.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id=$1)`, o.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check order: %w", err)
		}
		if !exists {
			return domain.ErrOrderNotFound
		}
		r.log.Warn("order update rejected", "order_id", o.ID, "version", o.Version)
		return domain.ErrVersionConflict
	}
	o.Version++
	return nil
}
