package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPricingTotals(t *testing.T) {
	p := DefaultPricing()
	sub := decimal.RequireFromString("10.00").Mul(decimal.NewFromInt(2))

	got := p.Totals(sub)

	assert.Equal(t, "20.00", got.Subtotal.StringFixed(2))
	assert.Equal(t, "5.00", got.Shipping.StringFixed(2))
	assert.Equal(t, "0.40", got.Tax.StringFixed(2))
	assert.Equal(t, "25.40", got.Total.StringFixed(2))
	assert.True(t, got.Total.Equal(got.Subtotal.Add(got.Shipping).Add(got.Tax)))
}

func TestPricingTotalsIsExactForAwkwardPrices(t *testing.T) {
	p := DefaultPricing()
	for _, s := range []string{"0.10", "0.33", "19.99", "1234.57", "0.01"} {
		sub := decimal.RequireFromString(s).Mul(decimal.NewFromInt(3))
		got := p.Totals(sub)
		assert.True(t, got.Total.Equal(got.Subtotal.Add(got.Shipping).Add(got.Tax)), s)
		assert.Equal(t, got.Tax.StringFixed(2), got.Tax.Round(2).StringFixed(2))
	}
}

func TestVariantDescribe(t *testing.T) {
	assert.Equal(t, "", (*ProductVariant)(nil).Describe())
	assert.Equal(t, "Red / XL", (&ProductVariant{Color: "Red", Size: "XL"}).Describe())
	assert.Equal(t, "XL", (&ProductVariant{Size: "XL"}).Describe())
	assert.Equal(t, "Blue", (&ProductVariant{Color: "Blue"}).Describe())
}

func TestUnitPriceAddsAdjustment(t *testing.T) {
	p := &Product{Price: decimal.RequireFromString("10.00")}
	v := &ProductVariant{PriceAdjustment: decimal.RequireFromString("-1.50")}
	assert.Equal(t, "8.50", UnitPrice(p, v).StringFixed(2))
	assert.Equal(t, "10.00", UnitPrice(p, nil).StringFixed(2))
}

func TestPaymentTransitions(t *testing.T) {
	now := time.Now()
	o := &Order{PaymentStatus: PaymentPending, Status: OrderPending}

	require.NoError(t, o.MovePayment(PaymentProcessing, now))
	require.NoError(t, o.MovePayment(PaymentOTPRequired, now))
	require.NoError(t, o.CompletePayment(now))
	assert.Equal(t, PaymentCompleted, o.PaymentStatus)
	assert.Equal(t, OrderProcessing, o.Status)

	err := o.MovePayment(PaymentFailed, now)
	var te *TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, PaymentCompleted, o.PaymentStatus)

	require.NoError(t, o.MovePayment(PaymentRefunded, now))
	assert.Error(t, o.MovePayment(PaymentCompleted, now))
}

func TestOrderTransitionsStampDelivery(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	o := &Order{Status: OrderProcessing}

	require.NoError(t, o.MoveStatus(OrderShipped, now))
	assert.Nil(t, o.DeliveredAt)
	require.NoError(t, o.MoveStatus(OrderDelivered, now))
	require.NotNil(t, o.DeliveredAt)
	assert.Equal(t, now, *o.DeliveredAt)

	assert.Error(t, o.MoveStatus(OrderCancelled, now))
}

func TestReached(t *testing.T) {
	assert.True(t, OrderShipped.Reached(OrderShipped))
	assert.True(t, OrderDelivered.Reached(OrderShipped))
	assert.False(t, OrderProcessing.Reached(OrderShipped))
	assert.False(t, OrderCancelled.Reached(OrderShipped))
	assert.False(t, OrderCancelled.Reached(OrderDelivered))
}

func TestHoldsCart(t *testing.T) {
	o := &Order{PaymentMethod: MethodMobileMoney, PaymentStatus: PaymentOTPRequired}
	assert.True(t, o.HoldsCart())
	o.PaymentStatus = PaymentFailed
	assert.False(t, o.HoldsCart())
	cash := &Order{PaymentMethod: MethodCash, PaymentStatus: PaymentPending}
	assert.False(t, cash.HoldsCart())
}

func TestGatewayResultReference(t *testing.T) {
	assert.Equal(t, "L-1", GatewayResult{Reference: "R-1", ProviderReference: "L-1"}.PaymentReference())
	assert.Equal(t, "R-1", GatewayResult{Reference: "R-1"}.PaymentReference())
	assert.Equal(t, GatewayUnknown, ParseGatewayStatus("weird"))
	assert.Equal(t, GatewayOTPRequired, ParseGatewayStatus("otp-required"))
}

func TestValidationErrorMessageIsStable(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{"phone": "required", "email": "invalid"}}
	assert.Equal(t, "validation failed: email: invalid; phone: required", err.Error())
}

func TestNormalizeOperator(t *testing.T) {
	assert.Equal(t, OperatorMTN, NormalizeOperator("mtn"))
	assert.Equal(t, OperatorMTN, NormalizeOperator(" MTN "))
	assert.Equal(t, OperatorAirtel, NormalizeOperator("vodafone"))
	assert.Equal(t, OperatorAirtel, NormalizeOperator(""))
}
