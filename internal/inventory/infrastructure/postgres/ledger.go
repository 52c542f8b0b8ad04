package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/marketplace/internal/inventory/application"
	"github.com/dmehra2102/marketplace/internal/inventory/domain"
)

// Ledger stores stock on the products table and serializes writers per
// product with SELECT ... FOR UPDATE.
type Ledger struct {
	log         *slog.Logger
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

var _ application.Ledger = (*Ledger)(nil)

func NewLedger(log *slog.Logger, pool *pgxpool.Pool, lockTimeout time.Duration) *Ledger {
	return &Ledger{log: log, pool: pool, lockTimeout: lockTimeout}
}

func (l *Ledger) Mutate(ctx context.Context, productID, orderID string, fn application.MutateFunc) error {
	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if l.lockTimeout > 0 {
		if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, fmt.Sprintf("%dms", l.lockTimeout.Milliseconds())); err != nil {
			return mapError(err)
		}
	}

	stock := domain.Stock{ProductID: productID}
	err = tx.QueryRow(ctx, `SELECT stock_quantity, reserved_quantity FROM products WHERE id=$1 FOR UPDATE`, productID).
		Scan(&stock.StockQuantity, &stock.ReservedQuantity)
	if errors.Is(err, pgx.ErrNoRows) {
		return &domain.StockError{ProductID: productID, Err: domain.ErrProductNotFound}
	}
	if err != nil {
		return mapError(err)
	}

	var res *domain.Reservation
	if orderID != "" {
		r := domain.Reservation{OrderID: orderID, ProductID: productID}
		err = tx.QueryRow(ctx, `SELECT quantity, state, created_at, updated_at FROM stock_reservations WHERE order_id=$1 AND product_id=$2`, orderID, productID).
			Scan(&r.Quantity, &r.State, &r.CreatedAt, &r.UpdatedAt)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return mapError(err)
		}
		res = &r
	}

	before := stock
	if err := fn(&stock, res); err != nil {
		return err
	}

	if stock != before {
		_, err = tx.Exec(ctx, `UPDATE products SET stock_quantity=$2, reserved_quantity=$3, updated_at=now() WHERE id=$1`,
			productID, stock.StockQuantity, stock.ReservedQuantity)
		if err != nil {
			return mapError(err)
		}
	}
	if res != nil && res.Exists() {
		_, err = tx.Exec(ctx, `INSERT INTO stock_reservations (order_id, product_id, quantity, state, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6)
			ON CONFLICT (order_id, product_id) DO UPDATE SET state=$4, updated_at=$6`,
			orderID, productID, res.Quantity, res.State, res.CreatedAt, res.UpdatedAt)
		if err != nil {
			return mapError(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return mapError(err)
	}
	return nil
}

func (l *Ledger) Stock(ctx context.Context, productID string) (domain.Stock, error) {
	s := domain.Stock{ProductID: productID}
	err := l.pool.QueryRow(ctx, `SELECT stock_quantity, reserved_quantity FROM products WHERE id=$1`, productID).
		Scan(&s.StockQuantity, &s.ReservedQuantity)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Stock{}, &domain.StockError{ProductID: productID, Err: domain.ErrProductNotFound}
	}
	if err != nil {
		return domain.Stock{}, err
	}
	return s, nil
}

func (l *Ledger) Reservations(ctx context.Context, orderID string) ([]domain.Reservation, error) {
	rows, err := l.pool.Query(ctx, `SELECT product_id, quantity, state, created_at, updated_at
		FROM stock_reservations WHERE order_id=$1 ORDER BY product_id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		r := domain.Reservation{OrderID: orderID}
		if err := rows.Scan(&r.ProductID, &r.Quantity, &r.State, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Seed creates a product with the given physical count and reports whether
// it did. An existing product is left alone: its count and holds belong to
// the ledger once it exists.
func (l *Ledger) Seed(ctx context.Context, productID, name, price string, qty int) (bool, error) {
	ct, err := l.pool.Exec(ctx, `INSERT INTO products (id, name, price, stock_quantity) VALUES ($1,$2,$3::numeric,$4)
		ON CONFLICT (id) DO NOTHING`,
		productID, name, price, qty)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

const (
	codeLockNotAvailable     = "55P03"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeLockNotAvailable, codeSerializationFailure, codeDeadlockDetected:
			return fmt.Errorf("%w: %s", domain.ErrLockTimeout, pgErr.Message)
		}
	}
	return err
}
