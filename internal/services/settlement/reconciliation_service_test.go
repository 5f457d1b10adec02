package settlement_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lemuelpay/settlement-service/internal/domain"
	"github.com/lemuelpay/settlement-service/internal/domain/models"
	"github.com/lemuelpay/settlement-service/internal/domain/ports"
	"github.com/lemuelpay/settlement-service/internal/services/settlement"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockDBPort mocks the database port
type MockDBPort struct {
	mock.Mock
}

func (m *MockDBPort) GetDB() *pgxpool.Pool {
	return nil
}

func (m *MockDBPort) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	// Execute the function with a nil transaction for testing
	return fn(ctx, nil)
}

func (m *MockDBPort) WithReadOnlyTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return fn(ctx, nil)
}

// MockSettlementRepository mocks the settlement repository
type MockSettlementRepository struct {
	mock.Mock
}

func (m *MockSettlementRepository) Create(ctx context.Context, tx ports.DBTX, s *models.Settlement) error {
	args := m.Called(ctx, tx, s)
	return args.Error(0)
}

func (m *MockSettlementRepository) GetByID(ctx context.Context, db ports.DBTX, id string) (*models.Settlement, error) {
	args := m.Called(ctx, db, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Settlement), args.Error(1)
}

func (m *MockSettlementRepository) GetByPaymentID(ctx context.Context, db ports.DBTX, paymentID string) (*models.Settlement, error) {
	args := m.Called(ctx, db, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Settlement), args.Error(1)
}

func (m *MockSettlementRepository) GetByPaymentIDForUpdate(ctx context.Context, tx ports.DBTX, paymentID string) (*models.Settlement, error) {
	args := m.Called(ctx, tx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Settlement), args.Error(1)
}

func (m *MockSettlementRepository) Update(ctx context.Context, tx ports.DBTX, s *models.Settlement) error {
	args := m.Called(ctx, tx, s)
	return args.Error(0)
}

func (m *MockSettlementRepository) ListBySettlementDate(ctx context.Context, db ports.DBTX, date time.Time) ([]*models.Settlement, error) {
	args := m.Called(ctx, db, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Settlement), args.Error(1)
}

func (m *MockSettlementRepository) CountByDateAndStatus(ctx context.Context, db ports.DBTX, date time.Time, status models.SettlementStatus) (int, error) {
	args := m.Called(ctx, db, date, status)
	return args.Int(0), args.Error(1)
}

// MockAdjustmentRepository mocks the adjustment repository
type MockAdjustmentRepository struct {
	mock.Mock
}

func (m *MockAdjustmentRepository) Create(ctx context.Context, tx ports.DBTX, a *models.SettlementAdjustment) error {
	args := m.Called(ctx, tx, a)
	return args.Error(0)
}

func (m *MockAdjustmentRepository) GetByRefundID(ctx context.Context, db ports.DBTX, refundID string) (*models.SettlementAdjustment, error) {
	args := m.Called(ctx, db, refundID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SettlementAdjustment), args.Error(1)
}

func (m *MockAdjustmentRepository) ListPendingThrough(ctx context.Context, db ports.DBTX, date time.Time) ([]*models.SettlementAdjustment, error) {
	args := m.Called(ctx, db, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.SettlementAdjustment), args.Error(1)
}

func (m *MockAdjustmentRepository) UpdateStatus(ctx context.Context, tx ports.DBTX, a *models.SettlementAdjustment) error {
	args := m.Called(ctx, tx, a)
	return args.Error(0)
}

func (m *MockAdjustmentRepository) CountPendingByDate(ctx context.Context, db ports.DBTX, date time.Time) (int, error) {
	args := m.Called(ctx, db, date)
	return args.Int(0), args.Error(1)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...ports.Field)  {}
func (nopLogger) Error(string, ...ports.Field) {}
func (nopLogger) Warn(string, ...ports.Field)  {}
func (nopLogger) Debug(string, ...ports.Field) {}

func completedRefund(amount string) *models.Refund {
	now := time.Now()
	return &models.Refund{
		ID:          "ref-1",
		PaymentID:   "pay-1",
		Amount:      decimal.RequireFromString(amount),
		Status:      models.RefundCompleted,
		RequestedAt: now,
		CompletedAt: &now,
	}
}

func pendingSettlement(t *testing.T, amount string) *models.Settlement {
	t.Helper()
	s, err := models.NewSettlementFromPayment(
		"pay-1", "order-1",
		decimal.RequireFromString(amount),
		time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)
	return s
}

func TestApplyRefundToSettlement(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects non-completed refunds", func(t *testing.T) {
		svc := settlement.NewReconciliationService(new(MockDBPort), new(MockSettlementRepository), new(MockAdjustmentRepository), nopLogger{})
		refund := completedRefund("1000.00")
		refund.Status = models.RefundRequested

		err := svc.ApplyRefundToSettlement(ctx, refund)
		assert.True(t, domain.IsValidationError(err))
	})

	t.Run("no-op when no settlement exists yet", func(t *testing.T) {
		settlements := new(MockSettlementRepository)
		adjustments := new(MockAdjustmentRepository)
		svc := settlement.NewReconciliationService(new(MockDBPort), settlements, adjustments, nopLogger{})

		adjustments.On("GetByRefundID", ctx, mock.Anything, "ref-1").Return(nil, domain.ErrAdjustmentNotFound)
		settlements.On("GetByPaymentIDForUpdate", ctx, mock.Anything, "pay-1").Return(nil, domain.ErrSettlementNotFound)

		err := svc.ApplyRefundToSettlement(ctx, completedRefund("3000.00"))

		require.NoError(t, err)
		settlements.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
		adjustments.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("adjusts a pending settlement in place", func(t *testing.T) {
		settlements := new(MockSettlementRepository)
		adjustments := new(MockAdjustmentRepository)
		svc := settlement.NewReconciliationService(new(MockDBPort), settlements, adjustments, nopLogger{})

		stl := pendingSettlement(t, "10000.00")
		adjustments.On("GetByRefundID", ctx, mock.Anything, "ref-1").Return(nil, domain.ErrAdjustmentNotFound)
		settlements.On("GetByPaymentIDForUpdate", ctx, mock.Anything, "pay-1").Return(stl, nil)
		settlements.On("Update", ctx, mock.Anything, stl).Return(nil)

		err := svc.ApplyRefundToSettlement(ctx, completedRefund("3000.00"))

		require.NoError(t, err)
		assert.True(t, stl.RefundedAmount.Equal(decimal.RequireFromString("3000.00")))
		// 10000 - 3000 - 300 commission
		assert.True(t, stl.NetAmount.Equal(decimal.RequireFromString("6700.00")), "net: %s", stl.NetAmount)
		assert.Equal(t, models.SettlementPending, stl.Status)
		adjustments.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("creates one adjustment for a confirmed settlement", func(t *testing.T) {
		settlements := new(MockSettlementRepository)
		adjustments := new(MockAdjustmentRepository)
		svc := settlement.NewReconciliationService(new(MockDBPort), settlements, adjustments, nopLogger{})

		stl := pendingSettlement(t, "10000.00")
		require.NoError(t, stl.Confirm())

		adjustments.On("GetByRefundID", ctx, mock.Anything, "ref-1").Return(nil, domain.ErrAdjustmentNotFound)
		settlements.On("GetByPaymentIDForUpdate", ctx, mock.Anything, "pay-1").Return(stl, nil)

		var created *models.SettlementAdjustment
		adjustments.On("Create", ctx, mock.Anything, mock.AnythingOfType("*models.SettlementAdjustment")).
			Run(func(args mock.Arguments) {
				created = args.Get(2).(*models.SettlementAdjustment)
			}).
			Return(nil)

		err := svc.ApplyRefundToSettlement(ctx, completedRefund("2000.00"))

		require.NoError(t, err)
		require.NotNil(t, created)
		assert.Equal(t, stl.ID, created.SettlementID)
		assert.Equal(t, "ref-1", created.RefundID)
		assert.True(t, created.Amount.Equal(decimal.RequireFromString("-2000.00")), "amount: %s", created.Amount)
		assert.Equal(t, models.AdjustmentPending, created.Status)

		// The confirmed settlement itself stays untouched
		settlements.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
		assert.True(t, stl.RefundedAmount.IsZero())
	})

	t.Run("re-delivery for the same refund is a no-op", func(t *testing.T) {
		settlements := new(MockSettlementRepository)
		adjustments := new(MockAdjustmentRepository)
		svc := settlement.NewReconciliationService(new(MockDBPort), settlements, adjustments, nopLogger{})

		existing := models.NewAdjustmentForRefund("stl-1", "ref-1", decimal.NewFromInt(2000), time.Now())
		adjustments.On("GetByRefundID", ctx, mock.Anything, "ref-1").Return(existing, nil)

		err := svc.ApplyRefundToSettlement(ctx, completedRefund("2000.00"))

		require.NoError(t, err)
		settlements.AssertNotCalled(t, "GetByPaymentIDForUpdate", mock.Anything, mock.Anything, mock.Anything)
		adjustments.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("losing the adjustment insert race is a no-op", func(t *testing.T) {
		settlements := new(MockSettlementRepository)
		adjustments := new(MockAdjustmentRepository)
		svc := settlement.NewReconciliationService(new(MockDBPort), settlements, adjustments, nopLogger{})

		stl := pendingSettlement(t, "10000.00")
		require.NoError(t, stl.Confirm())

		adjustments.On("GetByRefundID", ctx, mock.Anything, "ref-1").Return(nil, domain.ErrAdjustmentNotFound)
		settlements.On("GetByPaymentIDForUpdate", ctx, mock.Anything, "pay-1").Return(stl, nil)
		adjustments.On("Create", ctx, mock.Anything, mock.Anything).Return(domain.ErrAdjustmentDuplicate)

		err := svc.ApplyRefundToSettlement(ctx, completedRefund("2000.00"))
		assert.NoError(t, err)
	})
}
