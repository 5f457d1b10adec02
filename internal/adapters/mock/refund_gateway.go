package mock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lemuelpay/settlement-service/internal/domain"
	"github.com/lemuelpay/settlement-service/internal/domain/ports"
)

// RefundGateway is a mock payment-gateway refund adapter. It approves every
// refund by default; tests and local runs can script failures per payment.
type RefundGateway struct {
	mu       sync.Mutex
	failures map[string]error // paymentID -> scripted error
	calls    []ports.RefundGatewayRequest
}

// NewRefundGateway creates an always-approve mock refund gateway
func NewRefundGateway() *RefundGateway {
	return &RefundGateway{failures: make(map[string]error)}
}

// FailPayment scripts a gateway failure for refunds against the given payment
func (g *RefundGateway) FailPayment(paymentID string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[paymentID] = err
}

// Calls returns a copy of all refund requests the gateway has seen
func (g *RefundGateway) Calls() []ports.RefundGatewayRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]ports.RefundGatewayRequest, len(g.calls))
	copy(out, g.calls)
	return out
}

// ProcessRefund approves the refund unless a failure was scripted
func (g *RefundGateway) ProcessRefund(ctx context.Context, req *ports.RefundGatewayRequest) (*ports.RefundGatewayResult, error) {
	g.mu.Lock()
	g.calls = append(g.calls, *req)
	err := g.failures[req.PaymentID]
	g.mu.Unlock()

	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeGatewayError, "mock gateway failure", err).
			WithDetail("payment_id", req.PaymentID)
	}

	return &ports.RefundGatewayResult{
		GatewayRefundID: "mock-" + uuid.New().String(),
		ResponseCode:    "00",
		Message:         "Approved",
		Approved:        true,
		Timestamp:       time.Now(),
	}, nil
}
