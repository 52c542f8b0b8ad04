package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/marketplace/internal/order/application"
	"github.com/dmehra2102/marketplace/internal/order/domain"
	"github.com/dmehra2102/marketplace/pkg/tracing"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

var _ application.OrderRepository = (*Repository)(nil)

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) Create(ctx context.Context, o domain.Order, event domain.OrderCreated) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	_, err = tx.Exec(ctx, `INSERT INTO orders (id, number, user_id, status, payment_status, payment_ref,
			subtotal, tax, shipping_fee, discount, total, currency, coupon_code, ship_to, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,NULLIF($6,''),$7::numeric,$8::numeric,$9::numeric,$10::numeric,$11::numeric,$12,NULLIF($13,''),$14,$15,$16)`,
		o.ID, o.Number, o.UserID, o.Status, o.PaymentStatus, o.PaymentRef,
		o.Subtotal.String(), o.Tax.String(), o.ShippingFee.String(), o.Discount.String(), o.Total.String(),
		o.Currency, o.CouponCode, o.ShipTo, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, item := range o.Items {
		batch.Queue(`INSERT INTO order_items (order_id, product_id, name, quantity, unit_price)
			VALUES ($1,$2,$3,$4,$5::numeric)`,
			o.ID, item.ProductID, item.Name, item.Quantity, item.UnitPrice.String())
	}
	if err = tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}

	if o.CouponCode != "" {
		if _, err = tx.Exec(ctx, `UPDATE coupons SET usage_count = usage_count + 1 WHERE code=$1`, o.CouponCode); err != nil {
			return err
		}
	}

	if err = insertOutbox(ctx, tx, o.ID, domain.EventOrderCreated, event); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const selectOrder = `SELECT id, number, user_id, status, payment_status, COALESCE(payment_ref, ''),
	subtotal::text, tax::text, shipping_fee::text, discount::text, total::text,
	currency, COALESCE(coupon_code, ''), ship_to, created_at, updated_at FROM orders`

func (r *Repository) Get(ctx context.Context, id string) (domain.Order, error) {
	return r.load(ctx, selectOrder+` WHERE id=$1`, id)
}

func (r *Repository) GetByPaymentRef(ctx context.Context, ref string) (domain.Order, error) {
	return r.load(ctx, selectOrder+` WHERE payment_ref=$1`, ref)
}

func (r *Repository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM orders WHERE user_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}

	out := make([]domain.Order, 0, len(ids))
	for _, id := range ids {
		o, err := r.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load order %s: %w", id, err)
		}
		out = append(out, o)
	}
	return out, nil
}

func (r *Repository) load(ctx context.Context, query, arg string) (domain.Order, error) {
	var o domain.Order
	var money [5]string
	err := r.pool.QueryRow(ctx, query, arg).Scan(&o.ID, &o.Number, &o.UserID, &o.Status, &o.PaymentStatus, &o.PaymentRef,
		&money[0], &money[1], &money[2], &money[3], &money[4],
		&o.Currency, &o.CouponCode, &o.ShipTo, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, application.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, err
	}
	for i, dst := range []*decimal.Decimal{&o.Subtotal, &o.Tax, &o.ShippingFee, &o.Discount, &o.Total} {
		if *dst, err = decimal.NewFromString(money[i]); err != nil {
			return domain.Order{}, err
		}
	}

	rows, err := r.pool.Query(ctx, `SELECT product_id, name, quantity, unit_price::text FROM order_items WHERE order_id=$1 ORDER BY product_id`, o.ID)
	if err != nil {
		return domain.Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item domain.OrderItem
		var price string
		if err := rows.Scan(&item.ProductID, &item.Name, &item.Quantity, &price); err != nil {
			return domain.Order{}, err
		}
		if item.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return domain.Order{}, err
		}
		o.Items = append(o.Items, item)
	}
	return o, rows.Err()
}

func (r *Repository) SaveTransition(ctx context.Context, t domain.Transition) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	ct, err := tx.Exec(ctx, `UPDATE orders SET status=$2, payment_status=$3, updated_at=$4
		WHERE id=$1 AND payment_status=$5`,
		t.After.ID, t.After.Status, t.After.PaymentStatus, t.After.UpdatedAt, t.Before.PaymentStatus)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return application.ErrConcurrentUpdate
	}

	if t.StatusChanged() {
		if err = insertOutbox(ctx, tx, t.After.ID, domain.EventOrderStatusChanged, domain.NewOrderStatusChanged(t)); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertOutbox(ctx context.Context, tx execer, aggregateID, eventType string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	headers := map[string]string{"source": "order-service"}
	_, err = tx.Exec(ctx, `INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, headers, traceparent, status)
		VALUES ($1,$2,$3,$4,$5,$6,'pending')`,
		"order", aggregateID, eventType, payload, headers, tracing.Traceparent(ctx))
	return err
}
