package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus represents the current state of a payment
type PaymentStatus string

const (
	PaymentReady      PaymentStatus = "ready"
	PaymentAuthorized PaymentStatus = "authorized"
	PaymentCaptured   PaymentStatus = "captured"
	PaymentRefunded   PaymentStatus = "refunded"
	PaymentCanceled   PaymentStatus = "canceled"
	PaymentFailed     PaymentStatus = "failed"
)

// Payment represents one captured transaction. RefundedAmount is the running
// total of completed refunds and is only ever mutated by the refund service
// while the row is locked.
type Payment struct {
	ID             string
	OrderID        string
	CapturedAmount decimal.Decimal
	RefundedAmount decimal.Decimal
	Status         PaymentStatus
	CapturedAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RefundableAmount returns the balance still available to refund
func (p *Payment) RefundableAmount() decimal.Decimal {
	return p.CapturedAmount.Sub(p.RefundedAmount)
}

// IsFullyRefunded reports whether the refunded total has reached the captured amount
func (p *Payment) IsFullyRefunded() bool {
	return p.RefundedAmount.GreaterThanOrEqual(p.CapturedAmount)
}

// ApplyRefund accumulates a completed refund into the payment. The caller must
// hold the row lock and must have validated the amount against RefundableAmount.
func (p *Payment) ApplyRefund(amount decimal.Decimal) {
	p.RefundedAmount = p.RefundedAmount.Add(amount)
	if p.IsFullyRefunded() {
		p.Status = PaymentRefunded
	}
	p.UpdatedAt = time.Now()
}

// SettlementBaseAmount returns the amount the settlement batch settles on:
// what was captured minus what had already been refunded by creation time.
func (p *Payment) SettlementBaseAmount() decimal.Decimal {
	return p.CapturedAmount.Sub(p.RefundedAmount)
}
