package ports

import (
	"context"
	"time"

	"github.com/lemuelpay/settlement-service/internal/domain/models"
)

// PaymentRepository defines the interface for payment persistence.
// Methods taking a DBTX run against the given executor, or the pool when nil.
type PaymentRepository interface {
	Create(ctx context.Context, tx DBTX, payment *models.Payment) error
	GetByID(ctx context.Context, db DBTX, id string) (*models.Payment, error)

	// GetByIDForUpdate acquires an exclusive row lock on the payment
	// (SELECT ... FOR UPDATE) scoped to the surrounding transaction. This is
	// the single serialization point for concurrent refunds on one payment.
	GetByIDForUpdate(ctx context.Context, tx DBTX, id string) (*models.Payment, error)

	// UpdateRefundProgress persists the refunded amount and status of a
	// payment mutated under the row lock.
	UpdateRefundProgress(ctx context.Context, tx DBTX, payment *models.Payment) error

	// ListCapturedBetween returns payments captured within [start, end),
	// including fully refunded ones, for the settlement creation batch.
	ListCapturedBetween(ctx context.Context, db DBTX, start, end time.Time) ([]*models.Payment, error)
}
