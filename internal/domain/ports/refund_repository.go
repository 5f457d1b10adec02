package ports

import (
	"context"

	"github.com/lemuelpay/settlement-service/internal/domain/models"
)

// RefundRepository defines the interface for refund persistence
type RefundRepository interface {
	Create(ctx context.Context, tx DBTX, refund *models.Refund) error
	GetByID(ctx context.Context, db DBTX, id string) (*models.Refund, error)

	// GetByPaymentAndIdempotencyKey is the authoritative idempotency lookup;
	// the (payment_id, idempotency_key) pair is unique in the store.
	GetByPaymentAndIdempotencyKey(ctx context.Context, db DBTX, paymentID, idempotencyKey string) (*models.Refund, error)

	UpdateStatus(ctx context.Context, tx DBTX, refund *models.Refund) error
}
