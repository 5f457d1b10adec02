package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RefundStatus represents the state of one refund attempt
type RefundStatus string

const (
	RefundRequested RefundStatus = "requested"
	RefundCompleted RefundStatus = "completed"
	RefundFailed    RefundStatus = "failed"
	RefundCanceled  RefundStatus = "canceled"
)

// Refund is one refund attempt against a payment. At most one refund exists
// per (PaymentID, IdempotencyKey) pair; a completed refund is never mutated
// again except for timestamp fields.
type Refund struct {
	ID             string
	PaymentID      string
	Amount         decimal.Decimal
	Status         RefundStatus
	IdempotencyKey string
	Reason         string
	RequestedAt    time.Time
	CompletedAt    *time.Time
}

// Complete marks the refund as completed
func (r *Refund) Complete() {
	now := time.Now()
	r.Status = RefundCompleted
	r.CompletedAt = &now
}

// MarkFailed records a gateway failure; the payment must not have been mutated
func (r *Refund) MarkFailed() {
	r.Status = RefundFailed
}

// IsCompleted reports whether the refund reached its terminal success state
func (r *Refund) IsCompleted() bool {
	return r.Status == RefundCompleted
}
