package postgres

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/marketplace/internal/payment/domain"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

// Save records an applied payment event. Redelivered events keep the first
// row.
func (r *Repository) Save(ctx context.Context, p domain.Payment) error {
	ct, err := r.pool.Exec(ctx, `INSERT INTO payments (event_id, order_id, payment_ref, amount, currency, status, failure_reason, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7,''),$8)
		ON CONFLICT (event_id) DO NOTHING`,
		p.EventID, p.OrderID, p.PaymentRef, p.Amount, p.Currency, p.Status, p.FailureReason, p.CreatedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		r.log.Debug("payment already recorded", "event_id", p.EventID)
	}
	return nil
}

func (r *Repository) ListByOrder(ctx context.Context, orderID string) ([]domain.Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT event_id, order_id, payment_ref, amount, currency, status, COALESCE(failure_reason, ''), created_at
		FROM payments WHERE order_id=$1 ORDER BY created_at`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Payment
	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(&p.EventID, &p.OrderID, &p.PaymentRef, &p.Amount, &p.Currency, &p.Status, &p.FailureReason, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
