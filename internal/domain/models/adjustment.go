package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AdjustmentStatus represents the state of a settlement adjustment
type AdjustmentStatus string

const (
	AdjustmentPending   AdjustmentStatus = "pending"
	AdjustmentConfirmed AdjustmentStatus = "confirmed"
)

// SettlementAdjustment is an append-only correction for a refund against an
// already-confirmed settlement. Exactly one adjustment exists per refund; the
// only permitted mutation is the PENDING → CONFIRMED flip by a later batch.
type SettlementAdjustment struct {
	ID             string
	SettlementID   string
	RefundID       string
	Amount         decimal.Decimal // negative; magnitude equals the refund amount
	Status         AdjustmentStatus
	AdjustmentDate time.Time
	CreatedAt      time.Time
}

// NewAdjustmentForRefund builds the correction record for a refund against a
// confirmed settlement. The stored amount is the negated refund amount so that
// netAmount + sum(adjustments) equals the true post-refund payout.
func NewAdjustmentForRefund(settlementID, refundID string, refundAmount decimal.Decimal, adjustmentDate time.Time) *SettlementAdjustment {
	return &SettlementAdjustment{
		ID:             uuid.New().String(),
		SettlementID:   settlementID,
		RefundID:       refundID,
		Amount:         refundAmount.Neg(),
		Status:         AdjustmentPending,
		AdjustmentDate: adjustmentDate,
		CreatedAt:      time.Now(),
	}
}

// Confirm flips a pending adjustment to confirmed; confirming twice is a no-op
func (a *SettlementAdjustment) Confirm() {
	if a.Status == AdjustmentPending {
		a.Status = AdjustmentConfirmed
	}
}
