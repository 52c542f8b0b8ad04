package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/marketplace/internal/catalog/domain"
	orderapp "github.com/dmehra2102/marketplace/internal/order/application"
)

// Catalog serves product prices and coupon checks to checkout.
type Catalog struct {
	log  *slog.Logger
	pool *pgxpool.Pool
	now  func() time.Time
}

var (
	_ orderapp.Catalog    = (*Catalog)(nil)
	_ orderapp.Discounter = (*Catalog)(nil)
)

func NewCatalog(log *slog.Logger, pool *pgxpool.Pool) *Catalog {
	return &Catalog{log: log, pool: pool, now: time.Now}
}

func (c *Catalog) Product(ctx context.Context, id string) (orderapp.Product, error) {
	var p orderapp.Product
	var price string
	err := c.pool.QueryRow(ctx, `SELECT id, name, price::text FROM products WHERE id=$1 AND is_active`, id).
		Scan(&p.ID, &p.Name, &price)
	if errors.Is(err, pgx.ErrNoRows) {
		return orderapp.Product{}, orderapp.ErrProductNotFound
	}
	if err != nil {
		return orderapp.Product{}, err
	}
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return orderapp.Product{}, fmt.Errorf("product %s price: %w", id, err)
	}
	return p, nil
}

func (c *Catalog) Discount(ctx context.Context, code, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	coupon, err := c.coupon(ctx, code)
	if err != nil {
		return decimal.Zero, err
	}

	var uses int
	if coupon.UsageLimitPerUser > 0 {
		err = c.pool.QueryRow(ctx, `SELECT count(*) FROM orders WHERE user_id=$1 AND coupon_code=$2`, userID, code).Scan(&uses)
		if err != nil {
			return decimal.Zero, err
		}
	}

	discount, err := coupon.Discount(amount, uses, c.now())
	if err != nil {
		c.log.Info("coupon rejected", "code", code, "user_id", userID, "reason", err)
		return decimal.Zero, fmt.Errorf("%w: %w", orderapp.ErrInvalidCoupon, err)
	}
	return discount, nil
}

func (c *Catalog) coupon(ctx context.Context, code string) (domain.Coupon, error) {
	var cp domain.Coupon
	var value string
	var minimum *string
	var limit, perUser *int
	err := c.pool.QueryRow(ctx, `SELECT code, type, value::text, minimum_amount::text, usage_limit, usage_count,
			usage_limit_per_user, starts_at, expires_at, is_active
		FROM coupons WHERE code=$1`, code).
		Scan(&cp.Code, &cp.Type, &value, &minimum, &limit, &cp.UsageCount, &perUser, &cp.StartsAt, &cp.ExpiresAt, &cp.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Coupon{}, orderapp.ErrInvalidCoupon
	}
	if err != nil {
		return domain.Coupon{}, err
	}

	if cp.Value, err = decimal.NewFromString(value); err != nil {
		return domain.Coupon{}, err
	}
	if minimum != nil {
		if cp.MinimumAmount, err = decimal.NewFromString(*minimum); err != nil {
			return domain.Coupon{}, err
		}
	}
	if limit != nil {
		cp.UsageLimit = *limit
	}
	if perUser != nil {
		cp.UsageLimitPerUser = *perUser
	}
	return cp, nil
}

// SeedCoupon inserts or replaces a coupon. Used by local setups and tests.
func (c *Catalog) SeedCoupon(ctx context.Context, cp domain.Coupon) error {
	var limit, perUser *int
	if cp.UsageLimit > 0 {
		limit = &cp.UsageLimit
	}
	if cp.UsageLimitPerUser > 0 {
		perUser = &cp.UsageLimitPerUser
	}
	var minimum *string
	if cp.MinimumAmount.IsPositive() {
		s := cp.MinimumAmount.String()
		minimum = &s
	}
	_, err := c.pool.Exec(ctx, `INSERT INTO coupons (code, type, value, minimum_amount, usage_limit, usage_count,
			usage_limit_per_user, starts_at, expires_at, is_active)
		VALUES ($1,$2,$3::numeric,$4::numeric,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (code) DO UPDATE SET type=EXCLUDED.type, value=EXCLUDED.value,
			minimum_amount=EXCLUDED.minimum_amount, usage_limit=EXCLUDED.usage_limit,
			usage_count=EXCLUDED.usage_count, usage_limit_per_user=EXCLUDED.usage_limit_per_user,
			starts_at=EXCLUDED.starts_at, expires_at=EXCLUDED.expires_at, is_active=EXCLUDED.is_active`,
		cp.Code, string(cp.Type), cp.Value.String(), minimum, limit, cp.UsageCount, perUser, cp.StartsAt, cp.ExpiresAt, cp.Active)
	return err
}
