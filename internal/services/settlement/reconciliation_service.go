package settlement

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lemuelpay/settlement-service/internal/domain"
	"github.com/lemuelpay/settlement-service/internal/domain/models"
	"github.com/lemuelpay/settlement-service/internal/domain/ports"
	"github.com/lemuelpay/settlement-service/internal/monitoring"
)

// ReconciliationService propagates completed refunds into settlements.
//
// The branch taken depends on the settlement's state at refund time:
//
//	no settlement yet    → no-op; the creation batch reads the already-adjusted payment
//	confirmed            → one SettlementAdjustment per refund, settlement row untouched
//	any other live state → direct adjustment of the settlement amounts
//
// Every path is idempotent on refund ID, so re-delivery and delayed re-runs
// converge on the same end state.
type ReconciliationService struct {
	db          ports.DBPort
	settlements ports.SettlementRepository
	adjustments ports.AdjustmentRepository
	logger      ports.Logger
}

// NewReconciliationService creates a new reconciliation service
func NewReconciliationService(
	db ports.DBPort,
	settlements ports.SettlementRepository,
	adjustments ports.AdjustmentRepository,
	logger ports.Logger,
) *ReconciliationService {
	return &ReconciliationService{
		db:          db,
		settlements: settlements,
		adjustments: adjustments,
		logger:      logger,
	}
}

// ApplyRefundToSettlement reconciles one completed refund with whatever
// settlement exists for its payment. Invoked after the refund has committed;
// runs in its own transaction.
func (s *ReconciliationService) ApplyRefundToSettlement(ctx context.Context, refund *models.Refund) error {
	if !refund.IsCompleted() {
		return domain.NewDomainError(domain.ErrorCodeValidationFailed, "only completed refunds reconcile").
			WithDetail("refund_id", refund.ID).
			WithDetail("status", string(refund.Status))
	}

	err := s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		// Re-delivery guard, independent of the refund-level idempotency key
		if _, err := s.adjustments.GetByRefundID(ctx, tx, refund.ID); err == nil {
			monitoring.ReconciliationTotal.WithLabelValues("duplicate").Inc()
			s.logger.Debug("adjustment already exists for refund",
				ports.String("refund_id", refund.ID))
			return nil
		} else if !domain.IsDomainError(err, domain.ErrorCodeAdjustmentNotFound) {
			return err
		}

		settlement, err := s.settlements.GetByPaymentIDForUpdate(ctx, tx, refund.PaymentID)
		if domain.IsDomainError(err, domain.ErrorCodeSettlementNotFound) {
			monitoring.ReconciliationTotal.WithLabelValues("no_settlement").Inc()
			s.logger.Info("no settlement yet for refunded payment, batch will pick up adjusted amount",
				ports.String("payment_id", refund.PaymentID),
				ports.String("refund_id", refund.ID))
			return nil
		}
		if err != nil {
			return err
		}

		if settlement.IsConfirmed() {
			return s.createAdjustment(ctx, tx, settlement, refund)
		}
		return s.adjustDirectly(ctx, tx, settlement, refund)
	})
	if err != nil {
		monitoring.ReconciliationTotal.WithLabelValues("error").Inc()
	}
	return err
}

// adjustDirectly folds the refund into a not-yet-confirmed settlement
func (s *ReconciliationService) adjustDirectly(ctx context.Context, tx ports.DBTX, settlement *models.Settlement, refund *models.Refund) error {
	if err := settlement.AdjustForRefund(refund.Amount); err != nil {
		return err
	}
	if err := s.settlements.Update(ctx, tx, settlement); err != nil {
		return err
	}

	monitoring.ReconciliationTotal.WithLabelValues("adjusted").Inc()
	s.logger.Info("settlement adjusted for refund",
		ports.String("settlement_id", settlement.ID),
		ports.String("refund_id", refund.ID),
		ports.String("refund_amount", refund.Amount.String()),
		ports.String("net_amount", settlement.NetAmount.String()),
		ports.String("status", string(settlement.Status)))
	return nil
}

// createAdjustment records the refund against an already-confirmed settlement.
// The settlement itself has been reported and paid out, so its amounts stay
// untouched; netAmount + sum(adjustments) is the true post-refund payout.
func (s *ReconciliationService) createAdjustment(ctx context.Context, tx ports.DBTX, settlement *models.Settlement, refund *models.Refund) error {
	adjustment := models.NewAdjustmentForRefund(settlement.ID, refund.ID, refund.Amount, today())

	if err := s.adjustments.Create(ctx, tx, adjustment); err != nil {
		if domain.IsDomainError(err, domain.ErrorCodeAdjustmentDuplicate) {
			monitoring.ReconciliationTotal.WithLabelValues("duplicate").Inc()
			return nil
		}
		return err
	}

	monitoring.ReconciliationTotal.WithLabelValues("adjustment_created").Inc()
	s.logger.Info("settlement adjustment created for refund against confirmed settlement",
		ports.String("settlement_id", settlement.ID),
		ports.String("refund_id", refund.ID),
		ports.String("adjustment_id", adjustment.ID),
		ports.String("amount", adjustment.Amount.String()))
	return nil
}

// today returns the current date truncated to midnight local time
func today() time.Time {
	now := time.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}
