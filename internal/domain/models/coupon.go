package models

import (
	"github.com/shopspring/decimal"
)

// CouponType distinguishes fixed-amount from percentage discounts
type CouponType string

const (
	CouponFixed      CouponType = "fixed"
	CouponPercentage CouponType = "percentage"
)

var oneHundred = decimal.NewFromInt(100)

// Coupon is the discount rule applied to an order. Only the discount and
// refund-proration math lives here; coupon issuance and usage tracking are
// outside this service.
type Coupon struct {
	Code              string
	Type              CouponType
	DiscountValue     decimal.Decimal
	MaxDiscountAmount *decimal.Decimal // nil means uncapped
}

// CalculateDiscount returns the discount applied to the whole order.
// Fixed coupons discount min(value, order); percentage coupons floor to whole
// currency units. Both are capped by MaxDiscountAmount when set.
func (c *Coupon) CalculateDiscount(orderAmount decimal.Decimal) decimal.Decimal {
	var discount decimal.Decimal
	if c.Type == CouponFixed {
		discount = decimal.Min(c.DiscountValue, orderAmount)
	} else {
		discount = orderAmount.Mul(c.DiscountValue).Div(oneHundred).Floor()
	}

	if c.MaxDiscountAmount != nil && discount.GreaterThan(*c.MaxDiscountAmount) {
		return *c.MaxDiscountAmount
	}
	return discount
}

// CalculateDiscountForRefund prorates the order's total discount onto a
// partial refund: floor(totalDiscount * refundOriginalAmount / originalOrderAmount).
//
// The floor must match CalculateDiscount's rounding; mixing rounding modes
// between the two would misallocate fractional currency units across partial
// refunds. Returns zero for a zero-amount order.
func (c *Coupon) CalculateDiscountForRefund(originalOrderAmount, refundOriginalAmount decimal.Decimal) decimal.Decimal {
	if originalOrderAmount.IsZero() {
		return decimal.Zero
	}

	totalDiscount := c.CalculateDiscount(originalOrderAmount)
	return totalDiscount.Mul(refundOriginalAmount).Div(originalOrderAmount).Floor()
}
