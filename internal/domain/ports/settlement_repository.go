package ports

import (
	"context"
	"time"

	"github.com/lemuelpay/settlement-service/internal/domain/models"
)

// SettlementRepository defines the interface for settlement persistence
type SettlementRepository interface {
	Create(ctx context.Context, tx DBTX, settlement *models.Settlement) error
	GetByID(ctx context.Context, db DBTX, id string) (*models.Settlement, error)
	GetByPaymentID(ctx context.Context, db DBTX, paymentID string) (*models.Settlement, error)

	// GetByPaymentIDForUpdate locks the settlement row for the reconciliation
	// transaction so the direct-adjustment path is serialized per settlement.
	GetByPaymentIDForUpdate(ctx context.Context, tx DBTX, paymentID string) (*models.Settlement, error)

	Update(ctx context.Context, tx DBTX, settlement *models.Settlement) error
	ListBySettlementDate(ctx context.Context, db DBTX, date time.Time) ([]*models.Settlement, error)
	CountByDateAndStatus(ctx context.Context, db DBTX, date time.Time, status models.SettlementStatus) (int, error)
}

// AdjustmentRepository defines the interface for settlement adjustment persistence
type AdjustmentRepository interface {
	Create(ctx context.Context, tx DBTX, adjustment *models.SettlementAdjustment) error
	GetByRefundID(ctx context.Context, db DBTX, refundID string) (*models.SettlementAdjustment, error)

	// ListPendingThrough returns pending adjustments dated on or before date,
	// for the adjustment confirmation batch.
	ListPendingThrough(ctx context.Context, db DBTX, date time.Time) ([]*models.SettlementAdjustment, error)

	UpdateStatus(ctx context.Context, tx DBTX, adjustment *models.SettlementAdjustment) error
	CountPendingByDate(ctx context.Context, db DBTX, date time.Time) (int, error)
}
