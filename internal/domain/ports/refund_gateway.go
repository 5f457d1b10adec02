package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// RefundGatewayRequest is the instruction sent to the payment gateway to
// return funds for a captured payment
type RefundGatewayRequest struct {
	PaymentID      string
	RefundID       string
	Amount         decimal.Decimal
	IdempotencyKey string
	Reason         string
}

// RefundGatewayResult is the gateway's answer to a refund instruction
type RefundGatewayResult struct {
	GatewayRefundID string
	ResponseCode    string
	Message         string
	Approved        bool
	Timestamp       time.Time
}

// RefundGateway abstracts the payment gateway's refund operation. A failure
// here must leave the refund in a non-completed state with the payment
// untouched.
type RefundGateway interface {
	ProcessRefund(ctx context.Context, req *RefundGatewayRequest) (*RefundGatewayResult, error)
}
