package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lemuelpay/settlement-service/internal/domain"
	"github.com/lemuelpay/settlement-service/internal/domain/models"
	"github.com/lemuelpay/settlement-service/internal/domain/ports"
)

const settlementColumns = `id, payment_id, order_id, payment_amount::text, refunded_amount::text,
	commission::text, net_amount::text, status, settlement_date, failure_reason, confirmed_at, created_at, updated_at`

// settlementPaymentConstraint is the unique index on payment_id, which makes
// batch re-runs safe: at most one settlement per payment.
const settlementPaymentConstraint = "settlements_payment_id_key"

// SettlementRepository implements ports.SettlementRepository using pgx
type SettlementRepository struct {
	db ports.DBPort
}

// NewSettlementRepository creates a new settlement repository
func NewSettlementRepository(db ports.DBPort) *SettlementRepository {
	return &SettlementRepository{db: db}
}

func (r *SettlementRepository) exec(db ports.DBTX) ports.DBTX {
	return executor(db, r.db.GetDB())
}

// Create inserts a new settlement; a second settlement for the same payment
// is rejected with ErrSettlementAlreadyExists
func (r *SettlementRepository) Create(ctx context.Context, tx ports.DBTX, s *models.Settlement) error {
	_, err := r.exec(tx).Exec(ctx, `
		INSERT INTO settlements (id, payment_id, order_id, payment_amount, refunded_amount,
			commission, net_amount, status, settlement_date, failure_reason, confirmed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7::numeric, $8, $9, $10, $11, $12, $13)`,
		s.ID,
		s.PaymentID,
		s.OrderID,
		s.PaymentAmount.String(),
		s.RefundedAmount.String(),
		s.Commission.String(),
		s.NetAmount.String(),
		string(s.Status),
		s.SettlementDate,
		s.FailureReason,
		s.ConfirmedAt,
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, settlementPaymentConstraint) {
			return domain.ErrSettlementAlreadyExists.WithDetail("payment_id", s.PaymentID)
		}
		return fmt.Errorf("create settlement: %w", err)
	}
	return nil
}

// GetByID retrieves a settlement by its ID
func (r *SettlementRepository) GetByID(ctx context.Context, db ports.DBTX, id string) (*models.Settlement, error) {
	row := r.exec(db).QueryRow(ctx,
		`SELECT `+settlementColumns+` FROM settlements WHERE id = $1`, id)
	return scanSettlement(row)
}

// GetByPaymentID retrieves the settlement for a payment, if one exists
func (r *SettlementRepository) GetByPaymentID(ctx context.Context, db ports.DBTX, paymentID string) (*models.Settlement, error) {
	row := r.exec(db).QueryRow(ctx,
		`SELECT `+settlementColumns+` FROM settlements WHERE payment_id = $1`, paymentID)
	return scanSettlement(row)
}

// GetByPaymentIDForUpdate locks the settlement row for the reconciliation transaction
func (r *SettlementRepository) GetByPaymentIDForUpdate(ctx context.Context, tx ports.DBTX, paymentID string) (*models.Settlement, error) {
	row := r.exec(tx).QueryRow(ctx,
		`SELECT `+settlementColumns+` FROM settlements WHERE payment_id = $1 FOR UPDATE`, paymentID)
	return scanSettlement(row)
}

// Update persists settlement amounts and status
func (r *SettlementRepository) Update(ctx context.Context, tx ports.DBTX, s *models.Settlement) error {
	tag, err := r.exec(tx).Exec(ctx, `
		UPDATE settlements
		SET refunded_amount = $2::numeric, net_amount = $3::numeric, status = $4,
			failure_reason = $5, confirmed_at = $6, updated_at = $7
		WHERE id = $1`,
		s.ID,
		s.RefundedAmount.String(),
		s.NetAmount.String(),
		string(s.Status),
		s.FailureReason,
		s.ConfirmedAt,
		s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update settlement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSettlementNotFound.WithDetail("settlement_id", s.ID)
	}
	return nil
}

// ListBySettlementDate returns all settlements dated on the given day
func (r *SettlementRepository) ListBySettlementDate(ctx context.Context, db ports.DBTX, date time.Time) ([]*models.Settlement, error) {
	rows, err := r.exec(db).Query(ctx,
		`SELECT `+settlementColumns+` FROM settlements WHERE settlement_date = $1 ORDER BY created_at`,
		date)
	if err != nil {
		return nil, fmt.Errorf("list settlements by date: %w", err)
	}
	defer rows.Close()

	var settlements []*models.Settlement
	for rows.Next() {
		s, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		settlements = append(settlements, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list settlements by date: %w", err)
	}
	return settlements, nil
}

// CountByDateAndStatus counts settlements for a date in a given status
func (r *SettlementRepository) CountByDateAndStatus(ctx context.Context, db ports.DBTX, date time.Time, status models.SettlementStatus) (int, error) {
	var count int
	err := r.exec(db).QueryRow(ctx,
		`SELECT COUNT(*) FROM settlements WHERE settlement_date = $1 AND status = $2`,
		date, string(status)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count settlements: %w", err)
	}
	return count, nil
}

func scanSettlement(row pgx.Row) (*models.Settlement, error) {
	var (
		s                                              models.Settlement
		paymentTxt, refundedTxt, commissionTxt, netTxt string
		status                                         string
	)
	err := row.Scan(&s.ID, &s.PaymentID, &s.OrderID, &paymentTxt, &refundedTxt,
		&commissionTxt, &netTxt, &status, &s.SettlementDate, &s.FailureReason,
		&s.ConfirmedAt, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSettlementNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan settlement: %w", err)
	}

	if s.PaymentAmount, err = parseDecimal(paymentTxt); err != nil {
		return nil, err
	}
	if s.RefundedAmount, err = parseDecimal(refundedTxt); err != nil {
		return nil, err
	}
	if s.Commission, err = parseDecimal(commissionTxt); err != nil {
		return nil, err
	}
	if s.NetAmount, err = parseDecimal(netTxt); err != nil {
		return nil, err
	}
	s.Status = models.SettlementStatus(status)
	return &s, nil
}
