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

const adjustmentColumns = `id, settlement_id, refund_id, amount::text, status, adjustment_date, created_at`

// adjustmentRefundConstraint is the unique index on refund_id: at most one
// adjustment per refund, regardless of reconciliation re-delivery.
const adjustmentRefundConstraint = "settlement_adjustments_refund_id_key"

// AdjustmentRepository implements ports.AdjustmentRepository using pgx
type AdjustmentRepository struct {
	db ports.DBPort
}

// NewAdjustmentRepository creates a new settlement adjustment repository
func NewAdjustmentRepository(db ports.DBPort) *AdjustmentRepository {
	return &AdjustmentRepository{db: db}
}

func (r *AdjustmentRepository) exec(db ports.DBTX) ports.DBTX {
	return executor(db, r.db.GetDB())
}

// Create inserts a new adjustment; a second adjustment for the same refund is
// rejected with ErrAdjustmentDuplicate
func (r *AdjustmentRepository) Create(ctx context.Context, tx ports.DBTX, a *models.SettlementAdjustment) error {
	_, err := r.exec(tx).Exec(ctx, `
		INSERT INTO settlement_adjustments (id, settlement_id, refund_id, amount, status, adjustment_date, created_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7)`,
		a.ID,
		a.SettlementID,
		a.RefundID,
		a.Amount.String(),
		string(a.Status),
		a.AdjustmentDate,
		a.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, adjustmentRefundConstraint) {
			return domain.ErrAdjustmentDuplicate.WithDetail("refund_id", a.RefundID)
		}
		return fmt.Errorf("create settlement adjustment: %w", err)
	}
	return nil
}

// GetByRefundID retrieves the adjustment created for a refund, if any
func (r *AdjustmentRepository) GetByRefundID(ctx context.Context, db ports.DBTX, refundID string) (*models.SettlementAdjustment, error) {
	row := r.exec(db).QueryRow(ctx,
		`SELECT `+adjustmentColumns+` FROM settlement_adjustments WHERE refund_id = $1`, refundID)
	return scanAdjustment(row)
}

// ListPendingThrough returns pending adjustments dated on or before date
func (r *AdjustmentRepository) ListPendingThrough(ctx context.Context, db ports.DBTX, date time.Time) ([]*models.SettlementAdjustment, error) {
	rows, err := r.exec(db).Query(ctx,
		`SELECT `+adjustmentColumns+`
		FROM settlement_adjustments
		WHERE status = $1 AND adjustment_date <= $2
		ORDER BY adjustment_date, created_at`,
		string(models.AdjustmentPending), date)
	if err != nil {
		return nil, fmt.Errorf("list pending adjustments: %w", err)
	}
	defer rows.Close()

	var adjustments []*models.SettlementAdjustment
	for rows.Next() {
		a, err := scanAdjustment(rows)
		if err != nil {
			return nil, err
		}
		adjustments = append(adjustments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pending adjustments: %w", err)
	}
	return adjustments, nil
}

// UpdateStatus persists an adjustment status flip
func (r *AdjustmentRepository) UpdateStatus(ctx context.Context, tx ports.DBTX, a *models.SettlementAdjustment) error {
	tag, err := r.exec(tx).Exec(ctx,
		`UPDATE settlement_adjustments SET status = $2 WHERE id = $1`,
		a.ID, string(a.Status))
	if err != nil {
		return fmt.Errorf("update adjustment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAdjustmentNotFound.WithDetail("adjustment_id", a.ID)
	}
	return nil
}

// CountPendingByDate counts pending adjustments dated on the given day
func (r *AdjustmentRepository) CountPendingByDate(ctx context.Context, db ports.DBTX, date time.Time) (int, error) {
	var count int
	err := r.exec(db).QueryRow(ctx,
		`SELECT COUNT(*) FROM settlement_adjustments WHERE status = $1 AND adjustment_date = $2`,
		string(models.AdjustmentPending), date).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pending adjustments: %w", err)
	}
	return count, nil
}

func scanAdjustment(row pgx.Row) (*models.SettlementAdjustment, error) {
	var (
		a         models.SettlementAdjustment
		amountTxt string
		status    string
	)
	err := row.Scan(&a.ID, &a.SettlementID, &a.RefundID, &amountTxt, &status, &a.AdjustmentDate, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAdjustmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan settlement adjustment: %w", err)
	}

	if a.Amount, err = parseDecimal(amountTxt); err != nil {
		return nil, err
	}
	a.Status = models.AdjustmentStatus(status)
	return &a, nil
}
