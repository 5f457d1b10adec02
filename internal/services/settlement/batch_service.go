package settlement

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lemuelpay/settlement-service/internal/domain"
	"github.com/lemuelpay/settlement-service/internal/domain/models"
	"github.com/lemuelpay/settlement-service/internal/domain/ports"
	"github.com/lemuelpay/settlement-service/internal/monitoring"
	"github.com/shopspring/decimal"
)

// BatchService runs the daily settlement jobs: creating settlements for the
// previous day's captured payments and confirming settlements whose payout
// date has arrived.
type BatchService struct {
	db          ports.DBPort
	payments    ports.PaymentRepository
	settlements ports.SettlementRepository
	adjustments ports.AdjustmentRepository
	logger      ports.Logger
}

// NewBatchService creates a new batch service
func NewBatchService(
	db ports.DBPort,
	payments ports.PaymentRepository,
	settlements ports.SettlementRepository,
	adjustments ports.AdjustmentRepository,
	logger ports.Logger,
) *BatchService {
	return &BatchService{
		db:          db,
		payments:    payments,
		settlements: settlements,
		adjustments: adjustments,
		logger:      logger,
	}
}

// BatchResult summarizes one batch run
type BatchResult struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// CreateDailySettlements creates a settlement for every payment captured on
// targetDate that does not have one yet. Already-settled payments and payments
// whose refundable base has dropped to zero are skipped, so re-running the
// batch for the same day converges.
func (s *BatchService) CreateDailySettlements(ctx context.Context, targetDate time.Time) (*BatchResult, error) {
	timer := time.Now()
	defer func() {
		monitoring.BatchDuration.WithLabelValues("create").Observe(time.Since(timer).Seconds())
	}()

	start, end := dayRange(targetDate)
	captured, err := s.payments.ListCapturedBetween(ctx, nil, start, end)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{}
	for _, payment := range captured {
		if payment.SettlementBaseAmount().LessThanOrEqual(decimal.Zero) {
			// Fully refunded before settlement creation; nothing to pay out
			result.Skipped++
			continue
		}
		if err := s.createSettlementForPayment(ctx, payment, start); err != nil {
			if domain.IsDomainError(err, domain.ErrorCodeSettlementAlreadyExists) {
				result.Skipped++
				continue
			}
			// One bad payment does not abort the batch run
			result.Failed++
			s.logger.Error("settlement creation failed for payment",
				ports.String("payment_id", payment.ID),
				ports.Err(err))
			continue
		}
		result.Processed++
	}

	s.logger.Info("settlement creation batch finished",
		ports.String("settlement_date", start.Format("2006-01-02")),
		ports.Int("captured_payments", len(captured)),
		ports.Int("created", result.Processed),
		ports.Int("skipped", result.Skipped),
		ports.Int("failed", result.Failed))
	return result, nil
}

func (s *BatchService) createSettlementForPayment(ctx context.Context, payment *models.Payment, settlementDate time.Time) error {
	settlement, err := models.NewSettlementFromPayment(payment.ID, payment.OrderID, payment.SettlementBaseAmount(), settlementDate)
	if err != nil {
		return err
	}

	return s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := s.settlements.Create(ctx, tx, settlement); err != nil {
			return err
		}
		monitoring.SettlementsCreated.Inc()
		s.logger.Debug("settlement created",
			ports.String("settlement_id", settlement.ID),
			ports.String("payment_id", payment.ID),
			ports.String("net_amount", settlement.NetAmount.String()))
		return nil
	})
}

// ConfirmDailySettlements confirms every settlement dated targetDate that is
// still awaiting confirmation. Canceled and already-confirmed settlements are
// skipped; a settlement that refuses the transition counts as failed but does
// not stop the run.
func (s *BatchService) ConfirmDailySettlements(ctx context.Context, targetDate time.Time) (*BatchResult, error) {
	timer := time.Now()
	defer func() {
		monitoring.BatchDuration.WithLabelValues("confirm").Observe(time.Since(timer).Seconds())
	}()

	start, _ := dayRange(targetDate)
	list, err := s.settlements.ListBySettlementDate(ctx, nil, start)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{}
	for _, settlement := range list {
		if !settlement.IsAwaitingConfirmation() {
			result.Skipped++
			continue
		}

		err := s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
			// Re-read under lock; a refund may have adjusted or canceled the
			// settlement between the list and this transaction.
			locked, err := s.settlements.GetByPaymentIDForUpdate(ctx, tx, settlement.PaymentID)
			if err != nil {
				return err
			}
			if !locked.IsAwaitingConfirmation() {
				return domain.ErrSettlementInvalidTransition.
					WithDetail("settlement_id", locked.ID).
					WithDetail("from", string(locked.Status)).
					WithDetail("to", string(models.SettlementConfirmed))
			}
			if err := locked.Confirm(); err != nil {
				return err
			}
			return s.settlements.Update(ctx, tx, locked)
		})
		if err != nil {
			if domain.IsDomainError(err, domain.ErrorCodeSettlementInvalidTransition) {
				result.Skipped++
				continue
			}
			result.Failed++
			s.logger.Error("settlement confirmation failed",
				ports.String("settlement_id", settlement.ID),
				ports.Err(err))
			continue
		}
		monitoring.SettlementsConfirmed.Inc()
		result.Processed++
	}

	s.logger.Info("settlement confirmation batch finished",
		ports.String("settlement_date", start.Format("2006-01-02")),
		ports.Int("confirmed", result.Processed),
		ports.Int("skipped", result.Skipped),
		ports.Int("failed", result.Failed))
	return result, nil
}

// ConfirmPendingAdjustments confirms pending adjustments dated on or before
// targetDate whose owning settlement is confirmed. Adjustments against
// settlements still in flight stay pending for a later run.
func (s *BatchService) ConfirmPendingAdjustments(ctx context.Context, targetDate time.Time) (*BatchResult, error) {
	timer := time.Now()
	defer func() {
		monitoring.BatchDuration.WithLabelValues("confirm_adjustments").Observe(time.Since(timer).Seconds())
	}()

	start, _ := dayRange(targetDate)
	pending, err := s.adjustments.ListPendingThrough(ctx, nil, start)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{}
	for _, adjustment := range pending {
		settlement, err := s.settlements.GetByID(ctx, nil, adjustment.SettlementID)
		if err != nil {
			result.Failed++
			s.logger.Error("adjustment confirmation failed, settlement lookup",
				ports.String("adjustment_id", adjustment.ID),
				ports.Err(err))
			continue
		}
		if !settlement.IsConfirmed() {
			result.Skipped++
			continue
		}

		adjustment.Confirm()
		if err := s.adjustments.UpdateStatus(ctx, nil, adjustment); err != nil {
			result.Failed++
			s.logger.Error("adjustment confirmation failed",
				ports.String("adjustment_id", adjustment.ID),
				ports.Err(err))
			continue
		}
		monitoring.AdjustmentsConfirmed.Inc()
		result.Processed++
	}

	s.logger.Info("adjustment confirmation batch finished",
		ports.String("through_date", start.Format("2006-01-02")),
		ports.Int("confirmed", result.Processed),
		ports.Int("skipped", result.Skipped),
		ports.Int("failed", result.Failed))
	return result, nil
}

// CreateSettlementFromPayment creates the settlement for a single payment
// immediately, outside the daily batch. Used when a merchant is on immediate
// settlement terms.
func (s *BatchService) CreateSettlementFromPayment(ctx context.Context, paymentID string, settlementDate time.Time) (*models.Settlement, error) {
	payment, err := s.payments.GetByID(ctx, nil, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != models.PaymentCaptured && payment.Status != models.PaymentRefunded {
		return nil, domain.ErrPaymentInvalidState.
			WithDetail("payment_id", payment.ID).
			WithDetail("status", string(payment.Status))
	}

	base := payment.SettlementBaseAmount()
	if base.LessThanOrEqual(decimal.Zero) {
		return nil, domain.ErrValidationAmountInvalid.
			WithDetail("payment_id", payment.ID).
			WithDetail("settlement_base", base.String())
	}

	settlement, err := models.NewSettlementFromPayment(payment.ID, payment.OrderID, base, settlementDate)
	if err != nil {
		return nil, err
	}

	err = s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return s.settlements.Create(ctx, tx, settlement)
	})
	if err != nil {
		return nil, err
	}

	monitoring.SettlementsCreated.Inc()
	s.logger.Info("settlement created for payment",
		ports.String("settlement_id", settlement.ID),
		ports.String("payment_id", payment.ID),
		ports.String("net_amount", settlement.NetAmount.String()))
	return settlement, nil
}

// dayRange returns [midnight, next midnight) for the given date in its location
func dayRange(date time.Time) (time.Time, time.Time) {
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	return start, start.AddDate(0, 0, 1)
}
