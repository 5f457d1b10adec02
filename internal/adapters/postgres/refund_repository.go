package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/lemuelpay/settlement-service/internal/domain"
	"github.com/lemuelpay/settlement-service/internal/domain/models"
	"github.com/lemuelpay/settlement-service/internal/domain/ports"
)

const refundColumns = `id, payment_id, amount::text, status, idempotency_key, reason, requested_at, completed_at`

// refundIdempotencyConstraint is the unique index on (payment_id, idempotency_key)
const refundIdempotencyConstraint = "refunds_payment_id_idempotency_key_key"

// RefundRepository implements ports.RefundRepository using pgx
type RefundRepository struct {
	db ports.DBPort
}

// NewRefundRepository creates a new refund repository
func NewRefundRepository(db ports.DBPort) *RefundRepository {
	return &RefundRepository{db: db}
}

func (r *RefundRepository) exec(db ports.DBTX) ports.DBTX {
	return executor(db, r.db.GetDB())
}

// Create inserts a new refund. A unique violation on the idempotency index
// means a concurrent request with the same key won the insert; the caller
// re-reads the winning row and returns it.
func (r *RefundRepository) Create(ctx context.Context, tx ports.DBTX, refund *models.Refund) error {
	_, err := r.exec(tx).Exec(ctx, `
		INSERT INTO refunds (id, payment_id, amount, status, idempotency_key, reason, requested_at, completed_at)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8)`,
		refund.ID,
		refund.PaymentID,
		refund.Amount.String(),
		string(refund.Status),
		refund.IdempotencyKey,
		refund.Reason,
		refund.RequestedAt,
		refund.CompletedAt,
	)
	if err != nil {
		if isUniqueViolation(err, refundIdempotencyConstraint) {
			return domain.WrapError(domain.ErrorCodeValidationFailed, "duplicate idempotency key", err).
				WithDetail("payment_id", refund.PaymentID).
				WithDetail("idempotency_key", refund.IdempotencyKey)
		}
		return fmt.Errorf("create refund: %w", err)
	}
	return nil
}

// GetByID retrieves a refund by its ID
func (r *RefundRepository) GetByID(ctx context.Context, db ports.DBTX, id string) (*models.Refund, error) {
	row := r.exec(db).QueryRow(ctx,
		`SELECT `+refundColumns+` FROM refunds WHERE id = $1`, id)
	return scanRefund(row)
}

// GetByPaymentAndIdempotencyKey is the authoritative idempotency lookup
func (r *RefundRepository) GetByPaymentAndIdempotencyKey(ctx context.Context, db ports.DBTX, paymentID, idempotencyKey string) (*models.Refund, error) {
	row := r.exec(db).QueryRow(ctx,
		`SELECT `+refundColumns+` FROM refunds WHERE payment_id = $1 AND idempotency_key = $2`,
		paymentID, idempotencyKey)
	return scanRefund(row)
}

// UpdateStatus persists a refund status transition
func (r *RefundRepository) UpdateStatus(ctx context.Context, tx ports.DBTX, refund *models.Refund) error {
	tag, err := r.exec(tx).Exec(ctx, `
		UPDATE refunds SET status = $2, completed_at = $3 WHERE id = $1`,
		refund.ID, string(refund.Status), refund.CompletedAt)
	if err != nil {
		return fmt.Errorf("update refund status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRefundNotFound.WithDetail("refund_id", refund.ID)
	}
	return nil
}

func scanRefund(row pgx.Row) (*models.Refund, error) {
	var (
		rf        models.Refund
		amountTxt string
		status    string
	)
	err := row.Scan(&rf.ID, &rf.PaymentID, &amountTxt, &status, &rf.IdempotencyKey, &rf.Reason, &rf.RequestedAt, &rf.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrRefundNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan refund: %w", err)
	}

	if rf.Amount, err = parseDecimal(amountTxt); err != nil {
		return nil, err
	}
	rf.Status = models.RefundStatus(status)
	return &rf, nil
}
