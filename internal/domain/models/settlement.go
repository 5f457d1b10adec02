package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lemuelpay/settlement-service/internal/domain"
	"github.com/shopspring/decimal"
)

// CommissionRate is the fixed platform commission applied to every settlement
var CommissionRate = decimal.NewFromFloat(0.03)

// SettlementStatus represents the state of a settlement payout.
//
// The lifecycle is a single unified machine covering both batch creation and
// payout approval:
//
//	PENDING → WAITING_APPROVAL → PROCESSING → CONFIRMED
//	                             PROCESSING → FAILED → PENDING (retry)
//	CANCELED is reachable from every state except CONFIRMED.
type SettlementStatus string

const (
	SettlementPending         SettlementStatus = "pending"
	SettlementWaitingApproval SettlementStatus = "waiting_approval"
	SettlementProcessing      SettlementStatus = "processing"
	SettlementConfirmed       SettlementStatus = "confirmed"
	SettlementFailed          SettlementStatus = "failed"
	SettlementCanceled        SettlementStatus = "canceled"
)

// settlementTransitions is the single source of truth for allowed status
// changes. Every mutation goes through transition(), so status checks are not
// scattered across methods.
var settlementTransitions = map[SettlementStatus][]SettlementStatus{
	SettlementPending:         {SettlementWaitingApproval, SettlementProcessing, SettlementConfirmed, SettlementCanceled},
	SettlementWaitingApproval: {SettlementProcessing, SettlementConfirmed, SettlementCanceled},
	SettlementProcessing:      {SettlementConfirmed, SettlementFailed, SettlementCanceled},
	SettlementFailed:          {SettlementPending, SettlementCanceled},
	SettlementConfirmed:       {},
	SettlementCanceled:        {},
}

// CanTransitionTo reports whether the status machine allows moving to target
func (s SettlementStatus) CanTransitionTo(target SettlementStatus) bool {
	for _, next := range settlementTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed
func (s SettlementStatus) IsTerminal() bool {
	return len(settlementTransitions[s]) == 0
}

// Settlement is the payout computation for one payment. At most one settlement
// exists per payment; refunds that land before confirmation adjust it in
// place, refunds after confirmation are recorded as SettlementAdjustments.
type Settlement struct {
	ID             string
	PaymentID      string
	OrderID        string
	PaymentAmount  decimal.Decimal
	RefundedAmount decimal.Decimal
	Commission     decimal.Decimal
	NetAmount      decimal.Decimal
	Status         SettlementStatus
	SettlementDate time.Time
	FailureReason  string
	ConfirmedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewSettlementFromPayment computes the payout for a captured payment.
// Commission and net amount use 2-decimal half-up rounding; the same rule is
// reapplied on every later adjustment so creation-time and adjustment-time
// rounding cannot drift.
func NewSettlementFromPayment(paymentID, orderID string, paymentAmount decimal.Decimal, settlementDate time.Time) (*Settlement, error) {
	if paymentID == "" {
		return nil, domain.ErrValidationMissingField.WithDetail("field", "payment_id")
	}
	if paymentAmount.LessThanOrEqual(decimal.Zero) {
		return nil, domain.ErrValidationAmountInvalid.WithDetail("payment_amount", paymentAmount.String())
	}
	if settlementDate.IsZero() {
		return nil, domain.ErrValidationMissingField.WithDetail("field", "settlement_date")
	}

	now := time.Now()
	s := &Settlement{
		ID:             uuid.New().String(),
		PaymentID:      paymentID,
		OrderID:        orderID,
		PaymentAmount:  paymentAmount,
		RefundedAmount: decimal.Zero,
		Status:         SettlementPending,
		SettlementDate: settlementDate,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.Commission = roundMoney(paymentAmount.Mul(CommissionRate))
	s.recomputeNetAmount()
	return s, nil
}

// roundMoney applies the shared money rounding rule: scale 2, half up
func roundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func (s *Settlement) recomputeNetAmount() {
	s.NetAmount = roundMoney(s.PaymentAmount.Sub(s.RefundedAmount).Sub(s.Commission))
}

func (s *Settlement) transition(target SettlementStatus) error {
	if !s.Status.CanTransitionTo(target) {
		return domain.ErrSettlementInvalidTransition.
			WithDetail("settlement_id", s.ID).
			WithDetail("from", string(s.Status)).
			WithDetail("to", string(target))
	}
	s.Status = target
	s.UpdatedAt = time.Now()
	return nil
}

// RequestApproval moves a pending settlement into the approval queue
func (s *Settlement) RequestApproval() error {
	return s.transition(SettlementWaitingApproval)
}

// StartProcessing marks the settlement as being paid out
func (s *Settlement) StartProcessing() error {
	return s.transition(SettlementProcessing)
}

// Confirm finalizes the settlement. Irreversible; refunds arriving afterwards
// must go through SettlementAdjustment records.
func (s *Settlement) Confirm() error {
	if err := s.transition(SettlementConfirmed); err != nil {
		return err
	}
	now := time.Now()
	s.ConfirmedAt = &now
	return nil
}

// Fail records a payout failure; the settlement can be retried
func (s *Settlement) Fail(reason string) error {
	if err := s.transition(SettlementFailed); err != nil {
		return err
	}
	s.FailureReason = reason
	return nil
}

// Retry returns a failed settlement to the pending queue
func (s *Settlement) Retry() error {
	if err := s.transition(SettlementPending); err != nil {
		return err
	}
	s.FailureReason = ""
	return nil
}

// Cancel voids the settlement; rejected once confirmed
func (s *Settlement) Cancel() error {
	return s.transition(SettlementCanceled)
}

// AdjustForRefund folds a refund into a not-yet-confirmed settlement,
// recomputing the net amount with the shared rounding rule. The settlement is
// canceled when nothing is left to pay out.
func (s *Settlement) AdjustForRefund(refundAmount decimal.Decimal) error {
	if refundAmount.LessThanOrEqual(decimal.Zero) {
		return domain.ErrValidationAmountInvalid.WithDetail("refund_amount", refundAmount.String())
	}
	if s.Status == SettlementConfirmed {
		return domain.ErrSettlementInvalidTransition.
			WithDetail("settlement_id", s.ID).
			WithDetail("from", string(s.Status)).
			WithDetail("to", "adjusted")
	}

	s.RefundedAmount = s.RefundedAmount.Add(refundAmount)
	s.recomputeNetAmount()
	s.UpdatedAt = time.Now()

	if s.NetAmount.LessThanOrEqual(decimal.Zero) && s.Status != SettlementCanceled {
		return s.transition(SettlementCanceled)
	}
	return nil
}

// IsConfirmed reports whether the settlement has been finalized
func (s *Settlement) IsConfirmed() bool {
	return s.Status == SettlementConfirmed
}

// IsAwaitingConfirmation reports whether the confirmation batch may confirm it
func (s *Settlement) IsAwaitingConfirmation() bool {
	return s.Status == SettlementPending || s.Status == SettlementWaitingApproval
}
