package domain

import (
	"regexp"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingOrder() Order {
	items := []OrderItem{{ProductID: "p1", Name: "Mug", Quantity: 2, UnitPrice: decimal.RequireFromString("12.50")}}
	return NewOrder("o1", "u1", items, ShippingInfo{}, "usd", time.Unix(0, 0).UTC())
}

func TestDecide(t *testing.T) {
	now := time.Unix(100, 0).UTC()
	paid := pendingOrder()
	paid.PaymentStatus, paid.Status = PaymentPaid, StatusProcessing

	cases := []struct {
		name    string
		order   Order
		trigger Trigger
		status  OrderStatus
		payment PaymentStatus
		effect  Effect
		illegal bool
	}{
		{"succeeded from pending", pendingOrder(), TriggerPaymentSucceeded, StatusProcessing, PaymentPaid, EffectConfirm, false},
		{"failed keeps status", pendingOrder(), TriggerPaymentFailed, StatusPending, PaymentFailed, EffectRelease, false},
		{"canceled from pending", pendingOrder(), TriggerPaymentCanceled, StatusCancelled, PaymentCancelled, EffectRelease, false},
		{"refund from paid", paid, TriggerChargeRefunded, StatusRefunded, PaymentRefunded, EffectRestock, false},
		{"duplicate succeeded", paid, TriggerPaymentSucceeded, "", "", "", true},
		{"refund before payment", pendingOrder(), TriggerChargeRefunded, "", "", "", true},
		{"cancel after payment", paid, TriggerPaymentCanceled, "", "", "", true},
		{"unknown trigger", pendingOrder(), Trigger("invoice.paid"), "", "", "", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			before := tc.order
			tr, err := Decide(tc.order, tc.trigger, now)
			if tc.illegal {
				assert.ErrorIs(t, err, ErrIllegalTransition)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.status, tr.After.Status)
			assert.Equal(t, tc.payment, tr.After.PaymentStatus)
			assert.Equal(t, tc.effect, tr.Effect)
			assert.Equal(t, before, tr.Before)
			assert.Equal(t, before, tc.order, "input must not be mutated")
			assert.Equal(t, now, tr.After.UpdatedAt)
		})
	}
}

func TestFailedThenDuplicateFailedIsIllegal(t *testing.T) {
	tr, err := Decide(pendingOrder(), TriggerPaymentFailed, time.Now())
	require.NoError(t, err)
	assert.False(t, tr.StatusChanged())

	_, err = Decide(tr.After, TriggerPaymentFailed, time.Now())
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestCanMoveStatus(t *testing.T) {
	assert.True(t, CanMoveStatus(StatusPending, StatusProcessing))
	assert.True(t, CanMoveStatus(StatusProcessing, StatusCancelled))
	assert.True(t, CanMoveStatus(StatusRefunded, StatusRefunded))
	assert.False(t, CanMoveStatus(StatusPending, StatusRefunded))
	assert.False(t, CanMoveStatus(StatusCancelled, StatusProcessing))
	assert.False(t, CanMoveStatus(StatusRefunded, StatusPending))
}

func TestOrderTotals(t *testing.T) {
	o := pendingOrder()
	assert.True(t, decimal.RequireFromString("25").Equal(o.Subtotal))

	o.ApplyTotals(decimal.RequireFromString("0.10"), decimal.Zero, decimal.RequireFromString("5"))
	assert.Equal(t, "2.5", o.Tax.String())
	assert.Equal(t, "22.5", o.Total.String())
	assert.Equal(t, int64(2250), o.AmountMinor())

	o.ApplyTotals(decimal.Zero, decimal.Zero, decimal.RequireFromString("100"))
	assert.True(t, o.Total.IsZero())
}

func TestAttachPaymentRefOnce(t *testing.T) {
	o := pendingOrder()
	require.NoError(t, o.AttachPaymentRef("pi_1"))
	require.NoError(t, o.AttachPaymentRef("pi_1"))
	assert.ErrorIs(t, o.AttachPaymentRef("pi_2"), ErrPaymentRefAlreadySet)
	assert.Equal(t, "pi_1", o.PaymentRef)
}

func TestOrderNumberFormat(t *testing.T) {
	re := regexp.MustCompile(`^ORD-[0-9A-F]{13}$`)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		n := NewOrderNumber()
		assert.Regexp(t, re, n)
		seen[n] = true
	}
	assert.Greater(t, len(seen), 45)
}
