package refund

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lemuelpay/settlement-service/internal/domain"
	"github.com/lemuelpay/settlement-service/internal/domain/models"
	"github.com/lemuelpay/settlement-service/internal/domain/ports"
	"github.com/lemuelpay/settlement-service/internal/monitoring"
	"github.com/shopspring/decimal"
)

// reservationTTL bounds how long a fast-path idempotency reservation is held.
// Expiry only costs a redundant database lookup, never correctness.
const reservationTTL = 24 * time.Hour

// Reconciler propagates a completed refund into the settlement space.
// Implementations must be idempotent on refund ID.
type Reconciler interface {
	ApplyRefundToSettlement(ctx context.Context, refund *models.Refund) error
}

// CreateRefundRequest carries one refund attempt against a payment
type CreateRefundRequest struct {
	PaymentID      string
	Amount         decimal.Decimal
	IdempotencyKey string
	Reason         string

	// FullRefund refunds the entire remaining refundable balance; Amount is
	// ignored when set.
	FullRefund bool
}

// CreateRefundResult is the refund plus the payment snapshot after the
// operation, as returned to the caller
type CreateRefundResult struct {
	Refund   *models.Refund
	Payment  *models.Payment
	Replayed bool // true when an existing refund was returned for the idempotency key
}

// Service is the idempotent, lock-protected entry point for refunds
type Service struct {
	db         ports.DBPort
	payments   ports.PaymentRepository
	refunds    ports.RefundRepository
	gateway    ports.RefundGateway
	reconciler Reconciler
	idemCache  ports.IdempotencyCache // optional fast path; may be nil
	logger     ports.Logger
}

// NewService creates a new refund service
func NewService(
	db ports.DBPort,
	payments ports.PaymentRepository,
	refunds ports.RefundRepository,
	gateway ports.RefundGateway,
	reconciler Reconciler,
	idemCache ports.IdempotencyCache,
	logger ports.Logger,
) *Service {
	return &Service{
		db:         db,
		payments:   payments,
		refunds:    refunds,
		gateway:    gateway,
		reconciler: reconciler,
		idemCache:  idemCache,
		logger:     logger,
	}
}

// CreateRefund validates and records a refund against a payment.
//
// Retrying with the same (paymentID, idempotencyKey) returns the original
// refund without re-mutating the payment. Concurrent refunds on one payment
// are serialized by an exclusive row lock; the overspend check runs against
// the locked row, never a stale read. The refund and payment mutation commit
// together; settlement reconciliation runs afterwards and its failure does
// not revert the refund.
func (s *Service) CreateRefund(ctx context.Context, req CreateRefundRequest) (*CreateRefundResult, error) {
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		return nil, domain.ErrMissingIdempotencyKey
	}
	if !req.FullRefund && req.Amount.LessThanOrEqual(decimal.Zero) {
		monitoring.RefundsTotal.WithLabelValues("rejected").Inc()
		return nil, domain.ErrValidationAmountInvalid.
			WithDetail("payment_id", req.PaymentID).
			WithDetail("amount", req.Amount.String())
	}

	// Advisory fast path: a lost reservation is a strong retry signal, so
	// check the store before taking the lock. The unique index remains the
	// authoritative dedup either way.
	if s.idemCache != nil {
		reserved, err := s.idemCache.Reserve(ctx, reservationKey(req.PaymentID, req.IdempotencyKey), reservationTTL)
		if err != nil {
			s.logger.Warn("idempotency cache unavailable, falling back to database",
				ports.String("payment_id", req.PaymentID),
				ports.Err(err))
		} else if !reserved {
			if result, ok := s.lookupExisting(ctx, req); ok {
				return result, nil
			}
		}
	}

	var result *CreateRefundResult

	err := s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		// Pre-lock idempotency lookup: cheap dedup for retries that already
		// completed.
		existing, err := s.refunds.GetByPaymentAndIdempotencyKey(ctx, tx, req.PaymentID, req.IdempotencyKey)
		if err == nil {
			payment, err := s.payments.GetByID(ctx, tx, req.PaymentID)
			if err != nil {
				return err
			}
			result = &CreateRefundResult{Refund: existing, Payment: payment, Replayed: true}
			return nil
		}
		if !domain.IsDomainError(err, domain.ErrorCodeRefundNotFound) {
			return err
		}

		// Exclusive row lock. Everything below runs against the locked row;
		// a request that lost the race to the lock re-validates here.
		payment, err := s.payments.GetByIDForUpdate(ctx, tx, req.PaymentID)
		if err != nil {
			return err
		}

		if payment.Status != models.PaymentCaptured {
			return domain.ErrPaymentInvalidState.
				WithDetail("payment_id", payment.ID).
				WithDetail("status", string(payment.Status))
		}

		amount := req.Amount
		if req.FullRefund {
			amount = payment.RefundableAmount()
		}
		if amount.LessThanOrEqual(decimal.Zero) {
			return domain.ErrValidationAmountInvalid.
				WithDetail("payment_id", payment.ID).
				WithDetail("amount", amount.String())
		}
		if amount.GreaterThan(payment.RefundableAmount()) {
			return domain.ErrRefundExceedsPayment.
				WithDetail("payment_id", payment.ID).
				WithDetail("refundable_amount", payment.RefundableAmount().String()).
				WithDetail("requested_amount", amount.String())
		}

		refund := &models.Refund{
			ID:             uuid.New().String(),
			PaymentID:      payment.ID,
			Amount:         amount,
			Status:         models.RefundRequested,
			IdempotencyKey: req.IdempotencyKey,
			Reason:         req.Reason,
			RequestedAt:    time.Now(),
		}
		if err := s.refunds.Create(ctx, tx, refund); err != nil {
			return err
		}

		// Gateway call is synchronous here; a real integration would split
		// this into an async confirmation step.
		if _, err := s.gateway.ProcessRefund(ctx, &ports.RefundGatewayRequest{
			PaymentID:      payment.ID,
			RefundID:       refund.ID,
			Amount:         amount,
			IdempotencyKey: req.IdempotencyKey,
			Reason:         req.Reason,
		}); err != nil {
			return err
		}

		refund.Complete()
		if err := s.refunds.UpdateStatus(ctx, tx, refund); err != nil {
			return err
		}

		payment.ApplyRefund(amount)
		if err := s.payments.UpdateRefundProgress(ctx, tx, payment); err != nil {
			return err
		}

		result = &CreateRefundResult{Refund: refund, Payment: payment}
		return nil
	})

	if err != nil {
		if domain.IsDomainError(err, domain.ErrorCodeValidationFailed) {
			// Lost the insert race to a concurrent request with the same
			// key: return the winner's refund.
			if result, ok := s.lookupExisting(ctx, req); ok {
				monitoring.RefundsTotal.WithLabelValues("idempotent_replay").Inc()
				return result, nil
			}
		}
		return nil, s.handleCreateError(ctx, req, err)
	}

	if result.Replayed {
		monitoring.RefundsTotal.WithLabelValues("idempotent_replay").Inc()
		s.logger.Info("refund replayed for idempotency key",
			ports.String("refund_id", result.Refund.ID),
			ports.String("payment_id", req.PaymentID),
			ports.String("idempotency_key", req.IdempotencyKey))
		return result, nil
	}

	monitoring.RefundsTotal.WithLabelValues("completed").Inc()
	s.logger.Info("refund completed",
		ports.String("refund_id", result.Refund.ID),
		ports.String("payment_id", req.PaymentID),
		ports.String("amount", result.Refund.Amount.String()),
		ports.Bool("fully_refunded", result.Payment.Status == models.PaymentRefunded))

	// The refund is durably committed at this point. Reconciliation failure
	// is recovered locally: logged and retried by a later pass, never
	// propagated to the caller.
	if err := s.reconciler.ApplyRefundToSettlement(ctx, result.Refund); err != nil {
		monitoring.ReconciliationFailures.Inc()
		s.logger.Error("settlement reconciliation failed, refund stands",
			ports.String("refund_id", result.Refund.ID),
			ports.String("payment_id", req.PaymentID),
			ports.Err(err))
	}

	return result, nil
}

// handleCreateError maps transaction failures to caller-facing outcomes and
// records the failed attempt where the policy requires it.
func (s *Service) handleCreateError(ctx context.Context, req CreateRefundRequest, err error) error {
	switch {
	case domain.IsGatewayError(err):
		monitoring.RefundsTotal.WithLabelValues("gateway_failed").Inc()
		s.recordFailedAttempt(ctx, req)
		s.releaseReservation(ctx, req)
		return err

	default:
		if domain.IsConflictError(err) || domain.IsNotFoundError(err) || domain.IsValidationError(err) {
			monitoring.RefundsTotal.WithLabelValues("rejected").Inc()
		}
		s.releaseReservation(ctx, req)
		return err
	}
}

// recordFailedAttempt persists a FAILED refund row after a gateway error so
// the attempt is auditable. The payment was never mutated; the idempotency
// key stays free for a retry only if this best-effort insert itself fails.
func (s *Service) recordFailedAttempt(ctx context.Context, req CreateRefundRequest) {
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		// Full-refund requests carry no explicit amount; nothing auditable to store
		return
	}
	failed := &models.Refund{
		ID:             uuid.New().String(),
		PaymentID:      req.PaymentID,
		Amount:         req.Amount,
		Status:         models.RefundFailed,
		IdempotencyKey: req.IdempotencyKey,
		Reason:         req.Reason,
		RequestedAt:    time.Now(),
	}
	if err := s.refunds.Create(ctx, nil, failed); err != nil {
		s.logger.Warn("could not record failed refund attempt",
			ports.String("payment_id", req.PaymentID),
			ports.Err(err))
	}
}

// lookupExisting does the authoritative idempotency lookup outside any
// transaction, returning the prior result when the refund already exists
func (s *Service) lookupExisting(ctx context.Context, req CreateRefundRequest) (*CreateRefundResult, bool) {
	existing, err := s.refunds.GetByPaymentAndIdempotencyKey(ctx, nil, req.PaymentID, req.IdempotencyKey)
	if err != nil {
		return nil, false
	}
	payment, err := s.payments.GetByID(ctx, nil, req.PaymentID)
	if err != nil {
		return nil, false
	}
	return &CreateRefundResult{Refund: existing, Payment: payment, Replayed: true}, true
}

func (s *Service) releaseReservation(ctx context.Context, req CreateRefundRequest) {
	if s.idemCache == nil {
		return
	}
	if err := s.idemCache.Release(ctx, reservationKey(req.PaymentID, req.IdempotencyKey)); err != nil {
		s.logger.Debug("could not release idempotency reservation", ports.Err(err))
	}
}

func reservationKey(paymentID, idempotencyKey string) string {
	return paymentID + ":" + idempotencyKey
}

// GetRefund returns a refund by ID
func (s *Service) GetRefund(ctx context.Context, id string) (*models.Refund, error) {
	return s.refunds.GetByID(ctx, nil, id)
}
