package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type CouponType string

const (
	CouponPercentage CouponType = "percentage"
	CouponFixed      CouponType = "fixed"
)

var (
	ErrCouponInactive     = errors.New("coupon is not active")
	ErrCouponNotStarted   = errors.New("coupon is not valid yet")
	ErrCouponExpired      = errors.New("coupon has expired")
	ErrCouponExhausted    = errors.New("coupon usage limit reached")
	ErrCouponUserLimit    = errors.New("coupon already used the maximum number of times")
	ErrCouponBelowMinimum = errors.New("order amount is below the coupon minimum")
	ErrCouponType         = errors.New("unknown coupon type")
)

// Coupon limits are optional: zero values mean unlimited or unbounded.
type Coupon struct {
	Code              string
	Type              CouponType
	Value             decimal.Decimal
	MinimumAmount     decimal.Decimal
	UsageLimit        int
	UsageCount        int
	UsageLimitPerUser int
	StartsAt          *time.Time
	ExpiresAt         *time.Time
	Active            bool
}

// Discount validates c for a user who has already redeemed it userUses
// times and returns the amount taken off. A fixed discount never exceeds
// amount.
func (c Coupon) Discount(amount decimal.Decimal, userUses int, now time.Time) (decimal.Decimal, error) {
	switch {
	case !c.Active:
		return decimal.Zero, ErrCouponInactive
	case c.StartsAt != nil && now.Before(*c.StartsAt):
		return decimal.Zero, ErrCouponNotStarted
	case c.ExpiresAt != nil && now.After(*c.ExpiresAt):
		return decimal.Zero, ErrCouponExpired
	case c.UsageLimit > 0 && c.UsageCount >= c.UsageLimit:
		return decimal.Zero, ErrCouponExhausted
	case c.UsageLimitPerUser > 0 && userUses >= c.UsageLimitPerUser:
		return decimal.Zero, ErrCouponUserLimit
	case c.MinimumAmount.IsPositive() && amount.LessThan(c.MinimumAmount):
		return decimal.Zero, ErrCouponBelowMinimum
	}

	switch c.Type {
	case CouponPercentage:
		return amount.Mul(c.Value).Div(decimal.NewFromInt(100)).Round(2), nil
	case CouponFixed:
		return decimal.Min(c.Value, amount), nil
	default:
		return decimal.Zero, ErrCouponType
	}
}
