package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Open builds a pool and checks the server is reachable.
func Open(ctx context.Context, url string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		price NUMERIC(12,2) NOT NULL DEFAULT 0,
		stock_quantity INTEGER NOT NULL DEFAULT 0 CHECK (stock_quantity >= 0),
		reserved_quantity INTEGER NOT NULL DEFAULT 0 CHECK (reserved_quantity >= 0),
		is_active BOOLEAN NOT NULL DEFAULT true,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CHECK (reserved_quantity <= stock_quantity)
	)`,

	`CREATE TABLE IF NOT EXISTS stock_reservations (
		order_id TEXT NOT NULL,
		product_id TEXT NOT NULL REFERENCES products(id),
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		state TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (order_id, product_id)
	)`,

	`CREATE TABLE IF NOT EXISTS coupons (
		code TEXT PRIMARY KEY,
		type TEXT NOT NULL CHECK (type IN ('percentage', 'fixed')),
		value NUMERIC(12,2) NOT NULL,
		minimum_amount NUMERIC(12,2),
		usage_limit INTEGER,
		usage_count INTEGER NOT NULL DEFAULT 0,
		usage_limit_per_user INTEGER,
		starts_at TIMESTAMPTZ,
		expires_at TIMESTAMPTZ,
		is_active BOOLEAN NOT NULL DEFAULT true
	)`,

	`CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		number TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		status TEXT NOT NULL,
		payment_status TEXT NOT NULL,
		payment_ref TEXT UNIQUE,
		subtotal NUMERIC(12,2) NOT NULL,
		tax NUMERIC(12,2) NOT NULL,
		shipping_fee NUMERIC(12,2) NOT NULL,
		discount NUMERIC(12,2) NOT NULL,
		total NUMERIC(12,2) NOT NULL,
		currency TEXT NOT NULL,
		coupon_code TEXT,
		ship_to JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_user_coupon ON orders(user_id, coupon_code)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_user_created ON orders(user_id, created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS order_items (
		order_id TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		product_id TEXT NOT NULL,
		name TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		unit_price NUMERIC(12,2) NOT NULL,
		PRIMARY KEY (order_id, product_id)
	)`,

	`CREATE TABLE IF NOT EXISTS payments (
		event_id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL REFERENCES orders(id),
		payment_ref TEXT NOT NULL,
		amount BIGINT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		failure_reason TEXT,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_order_id ON payments(order_id)`,

	`CREATE TABLE IF NOT EXISTS outbox (
		id BIGSERIAL PRIMARY KEY,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		type TEXT NOT NULL,
		payload JSONB NOT NULL,
		headers JSONB NOT NULL DEFAULT '{}',
		traceparent TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		relay_id TEXT,
		lease_until TIMESTAMPTZ,
		retry_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_status ON outbox(status, id)`,
}

// Migrate creates the schema shared by the services. Every statement is
// idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, m := range migrations {
		if _, err := pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}
