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

const paymentColumns = `id, order_id, captured_amount::text, refunded_amount::text, status, captured_at, created_at, updated_at`

// PaymentRepository implements ports.PaymentRepository using pgx
type PaymentRepository struct {
	db ports.DBPort
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db ports.DBPort) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) exec(db ports.DBTX) ports.DBTX {
	return executor(db, r.db.GetDB())
}

// Create inserts a new payment
func (r *PaymentRepository) Create(ctx context.Context, tx ports.DBTX, payment *models.Payment) error {
	_, err := r.exec(tx).Exec(ctx, `
		INSERT INTO payments (id, order_id, captured_amount, refunded_amount, status, captured_at, created_at, updated_at)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5, $6, $7, $8)`,
		payment.ID,
		payment.OrderID,
		payment.CapturedAmount.String(),
		payment.RefundedAmount.String(),
		string(payment.Status),
		payment.CapturedAt,
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

// GetByID retrieves a payment by its ID
func (r *PaymentRepository) GetByID(ctx context.Context, db ports.DBTX, id string) (*models.Payment, error) {
	row := r.exec(db).QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
	return scanPayment(row)
}

// GetByIDForUpdate retrieves a payment holding an exclusive row lock for the
// duration of the surrounding transaction. Blocks until a concurrent refund
// on the same payment releases the lock.
func (r *PaymentRepository) GetByIDForUpdate(ctx context.Context, tx ports.DBTX, id string) (*models.Payment, error) {
	row := r.exec(tx).QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id)
	return scanPayment(row)
}

// UpdateRefundProgress persists the refunded amount and status mutated under the lock
func (r *PaymentRepository) UpdateRefundProgress(ctx context.Context, tx ports.DBTX, payment *models.Payment) error {
	tag, err := r.exec(tx).Exec(ctx, `
		UPDATE payments
		SET refunded_amount = $2::numeric, status = $3, updated_at = $4
		WHERE id = $1`,
		payment.ID,
		payment.RefundedAmount.String(),
		string(payment.Status),
		payment.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update payment refund progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPaymentNotFound.WithDetail("payment_id", payment.ID)
	}
	return nil
}

// ListCapturedBetween returns payments captured within [start, end). Fully
// refunded payments are included so the creation batch can settle their
// residual amount (possibly zero) consistently.
func (r *PaymentRepository) ListCapturedBetween(ctx context.Context, db ports.DBTX, start, end time.Time) ([]*models.Payment, error) {
	rows, err := r.exec(db).Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE status IN ($1, $2) AND captured_at >= $3 AND captured_at < $4
		ORDER BY captured_at`,
		string(models.PaymentCaptured), string(models.PaymentRefunded), start, end)
	if err != nil {
		return nil, fmt.Errorf("list captured payments: %w", err)
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list captured payments: %w", err)
	}
	return payments, nil
}

func scanPayment(row pgx.Row) (*models.Payment, error) {
	var (
		p                        models.Payment
		capturedTxt, refundedTxt string
		status                   string
	)
	err := row.Scan(&p.ID, &p.OrderID, &capturedTxt, &refundedTxt, &status, &p.CapturedAt, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan payment: %w", err)
	}

	if p.CapturedAmount, err = parseDecimal(capturedTxt); err != nil {
		return nil, err
	}
	if p.RefundedAmount, err = parseDecimal(refundedTxt); err != nil {
		return nil, err
	}
	p.Status = models.PaymentStatus(status)
	return &p, nil
}
