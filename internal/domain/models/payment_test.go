package models_test

import (
	"testing"

	"github.com/lemuelpay/settlement-service/internal/domain/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPaymentApplyRefund(t *testing.T) {
	t.Run("partial refund keeps status captured", func(t *testing.T) {
		p := &models.Payment{
			ID:             "pay-1",
			CapturedAmount: d("10000.00"),
			RefundedAmount: decimal.Zero,
			Status:         models.PaymentCaptured,
		}

		p.ApplyRefund(d("3000.00"))

		assert.True(t, p.RefundedAmount.Equal(d("3000.00")))
		assert.True(t, p.RefundableAmount().Equal(d("7000.00")))
		assert.Equal(t, models.PaymentCaptured, p.Status)
		assert.False(t, p.IsFullyRefunded())
	})

	t.Run("full refund flips status to refunded", func(t *testing.T) {
		p := &models.Payment{
			ID:             "pay-1",
			CapturedAmount: d("10000.00"),
			RefundedAmount: d("9000.00"),
			Status:         models.PaymentCaptured,
		}

		p.ApplyRefund(d("1000.00"))

		assert.Equal(t, models.PaymentRefunded, p.Status)
		assert.True(t, p.IsFullyRefunded())
		assert.True(t, p.RefundableAmount().IsZero())
	})

	t.Run("settlement base reflects refunds applied before settlement", func(t *testing.T) {
		p := &models.Payment{
			CapturedAmount: d("10000.00"),
			RefundedAmount: d("2500.00"),
			Status:         models.PaymentCaptured,
		}
		assert.True(t, p.SettlementBaseAmount().Equal(d("7500.00")))
	})
}

func TestRefundComplete(t *testing.T) {
	r := &models.Refund{ID: "ref-1", Status: models.RefundRequested}

	assert.False(t, r.IsCompleted())
	r.Complete()
	assert.True(t, r.IsCompleted())
	assert.NotNil(t, r.CompletedAt)
}

func TestRefundMarkFailed(t *testing.T) {
	r := &models.Refund{ID: "ref-1", Status: models.RefundRequested}
	r.MarkFailed()
	assert.Equal(t, models.RefundFailed, r.Status)
	assert.Nil(t, r.CompletedAt)
}
