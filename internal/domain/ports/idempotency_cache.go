package ports

import (
	"context"
	"time"
)

// IdempotencyCache is an advisory fast-path reservation for retried refund
// requests. A reservation that is lost or expires is harmless: the unique
// (payment_id, idempotency_key) index and the payment row lock remain the
// authoritative dedup.
type IdempotencyCache interface {
	// Reserve reserves the key; returns false when the key is already held
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release drops the reservation, allowing a failed request to be retried
	Release(ctx context.Context, key string) error
}
